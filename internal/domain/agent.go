package domain

import "time"

// Agent models a human operator serving conversations.
type Agent struct {
	ID            string
	Name          string
	Email         string
	Active        bool
	DepartmentIDs []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MemberOf reports department membership.
func (a *Agent) MemberOf(departmentID string) bool {
	for _, id := range a.DepartmentIDs {
		if id == departmentID {
			return true
		}
	}
	return false
}
