// Package validation checks request bodies against embedded JSON schemas
// before they are decoded into handler request types.
package validation

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gigmarket/backend/internal/apperr"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Kind names a request body schema.
type Kind string

const (
	Register     Kind = "register"
	Login        Kind = "login"
	CreateJob    Kind = "job"
	PlaceBid     Kind = "bid"
	CreateOffer  Kind = "offer"
	AddMilestone Kind = "milestone"
	SubmitWork   Kind = "submission"
	RejectWork   Kind = "rejection"
	CreateEscrow Kind = "escrow"
	EditProfile  Kind = "profile"
)

const schemaIDPrefix = "https://gigmarket.dev/schemas/"

type Validator struct {
	schemas map[Kind]*jsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	v := &Validator{schemas: make(map[Kind]*jsonschema.Schema, len(entries))}
	for _, e := range entries {
		name := e.Name()
		data, err := schemaFS.ReadFile(path.Join("schemas", name))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", name, err)
		}
		kind := Kind(strings.TrimSuffix(name, path.Ext(name)))
		s, err := jsonschema.CompileString(schemaIDPrefix+name, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
		v.schemas[kind] = s
	}
	return v, nil
}

// Validate checks body against the schema for kind. Schema violations are
// returned as apperr validation errors listing the offending fields.
func (v *Validator) Validate(kind Kind, body []byte) error {
	s, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("unknown schema %q", kind)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return apperr.Validation("request body is not valid JSON")
	}
	err := s.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		return apperr.Validation("request body failed validation", fieldsOf(ve)...)
	}
	return fmt.Errorf("validate %s: %w", kind, err)
}

// Decode validates body and unmarshals it into dst.
func (v *Validator) Decode(kind Kind, body []byte, dst any) error {
	if err := v.Validate(kind, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Validation("request body has the wrong shape")
	}
	return nil
}

var quoted = regexp.MustCompile(`'([^']+)'`)

// fieldsOf flattens the leaf causes of a validation error into dotted field
// names, e.g. "milestone.title".
func fieldsOf(ve *jsonschema.ValidationError) []string {
	seen := map[string]bool{}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		base := strings.ReplaceAll(strings.Trim(e.InstanceLocation, "/"), "/", ".")
		if strings.HasPrefix(e.Message, "missing properties") || strings.HasPrefix(e.Message, "additionalProperties") {
			for _, m := range quoted.FindAllStringSubmatch(e.Message, -1) {
				seen[join(base, m[1])] = true
			}
			return
		}
		if base != "" {
			seen[base] = true
		}
	}
	walk(ve)
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func join(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}
