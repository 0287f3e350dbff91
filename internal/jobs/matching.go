package jobs

import (
	"sort"
	"strings"

	"github.com/gigmarket/backend/internal/models"
)

// jobCandidate holds an open job and the fields it is ranked on.
type jobCandidate struct {
	job         *models.Job
	skillMatch  float64 // 0–1, share of the job's wanted skills the freelancer has
	openRoles   int
	budgetCents int64
}

// wantedSkills returns the job's skills plus those of its open roles, lowercased.
func wantedSkills(j *models.Job) map[string]bool {
	out := map[string]bool{}
	for _, s := range j.Skills {
		out[normalizeSkill(s)] = true
	}
	for _, r := range j.Roles {
		if r.Status != models.RoleStatusOpen {
			continue
		}
		for _, s := range r.Skills {
			out[normalizeSkill(s)] = true
		}
	}
	delete(out, "")
	return out
}

func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if n := normalizeSkill(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// buildCandidates scores each job against the freelancer's skills.
func buildCandidates(list []*models.Job, skills []string) []jobCandidate {
	have := map[string]bool{}
	for _, s := range skills {
		have[normalizeSkill(s)] = true
	}
	candidates := make([]jobCandidate, 0, len(list))
	for _, j := range list {
		wanted := wantedSkills(j)
		match := 0.0
		if len(wanted) > 0 {
			hits := 0
			for s := range wanted {
				if have[s] {
					hits++
				}
			}
			match = float64(hits) / float64(len(wanted))
		}
		open := 0
		for _, r := range j.Roles {
			if r.Status == models.RoleStatusOpen {
				open++
			}
		}
		candidates = append(candidates, jobCandidate{job: j, skillMatch: match, openRoles: open, budgetCents: j.BudgetCents})
	}
	return candidates
}

// scoreAndSort orders candidates best first: skill match dominates, budget
// breaks near ties. The sort is stable so equal scores keep newest-first order.
func scoreAndSort(candidates []jobCandidate) {
	var maxBudget int64
	for i := range candidates {
		if candidates[i].budgetCents > maxBudget {
			maxBudget = candidates[i].budgetCents
		}
	}
	if maxBudget <= 0 {
		maxBudget = 1
	}
	scores := make(map[*models.Job]float64, len(candidates))
	for _, c := range candidates {
		budgetNorm := float64(c.budgetCents) / float64(maxBudget)
		roleBonus := 0.0
		if c.openRoles > 0 {
			roleBonus = 1
		}
		scores[c.job] = c.skillMatch*0.80 + budgetNorm*0.15 + roleBonus*0.05
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i].job] > scores[candidates[j].job]
	})
}

// RankForSkills orders open jobs by how well they fit the given skills.
// With no skills the input order is kept.
func RankForSkills(list []*models.Job, skills []string) []*models.Job {
	if len(skills) == 0 {
		return list
	}
	candidates := buildCandidates(list, skills)
	scoreAndSort(candidates)
	out := make([]*models.Job, len(candidates))
	for i, c := range candidates {
		out[i] = c.job
	}
	return out
}
