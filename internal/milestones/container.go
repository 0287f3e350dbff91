package milestones

import (
	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/models"
)

// Container locates milestones on a job regardless of whether they hang off
// the job itself or off team members.
type Container interface {
	// Find returns the milestone and, for team jobs, the team entry holding it.
	Find(id uuid.UUID) (*models.Milestone, *models.TeamMember)
	// Owns reports whether the freelancer is responsible for the milestone.
	Owns(freelancerID, id uuid.UUID) bool
}

// ContainerFor picks the container matching how the job hires.
func ContainerFor(j *models.Job) Container {
	if j.IsCrowdsourced {
		return PerMemberMilestones{job: j}
	}
	return FlatMilestones{job: j}
}

// FlatMilestones holds the milestones of a job with a single hired freelancer.
type FlatMilestones struct {
	job *models.Job
}

func (c FlatMilestones) Find(id uuid.UUID) (*models.Milestone, *models.TeamMember) {
	for i := range c.job.Milestones {
		if c.job.Milestones[i].ID == id {
			return &c.job.Milestones[i], nil
		}
	}
	return nil, nil
}

func (c FlatMilestones) Owns(freelancerID, id uuid.UUID) bool {
	m, _ := c.Find(id)
	return m != nil && c.job.HiredFreelancerID != nil && *c.job.HiredFreelancerID == freelancerID
}

// PerMemberMilestones holds the milestones of a crowdsourced job, one list
// per team member.
type PerMemberMilestones struct {
	job *models.Job
}

func (c PerMemberMilestones) Find(id uuid.UUID) (*models.Milestone, *models.TeamMember) {
	for i := range c.job.Team {
		tm := &c.job.Team[i]
		for k := range tm.Milestones {
			if tm.Milestones[k].ID == id {
				return &tm.Milestones[k], tm
			}
		}
	}
	return nil, nil
}

func (c PerMemberMilestones) Owns(freelancerID, id uuid.UUID) bool {
	_, tm := c.Find(id)
	return tm != nil && tm.FreelancerID == freelancerID && tm.Status == models.TeamMemberActive
}
