// Package auth holds the goal authorization rules. Every function is a pure
// predicate over data the caller has already loaded.
package auth

import (
	"fmt"

	"whygo/internal/domain"
)

// ForbiddenError indicates the actor may not perform an action.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("permission denied: %s", e.Action)
	}
	return fmt.Sprintf("permission denied: %s: %s", e.Action, e.Reason)
}

// IsManagerTier reports whether the actor is a manager, department head or executive.
func IsManagerTier(a domain.Actor) bool {
	switch a.Level {
	case domain.LevelManager, domain.LevelDepartmentHead, domain.LevelExecutive:
		return true
	}
	return false
}

func isExecutive(a domain.Actor) bool { return a.Level == domain.LevelExecutive }

// headOfGoalDepartment is the department_head scope shared by edit and delete.
func headOfGoalDepartment(a domain.Actor, g domain.Goal) bool {
	if a.Level != domain.LevelDepartmentHead || g.Department == nil {
		return false
	}
	if *g.Department != a.Department {
		return false
	}
	return g.Level == domain.GoalDepartment || g.Level == domain.GoalIndividual
}

func CanViewGoal(a domain.Actor, g domain.Goal) bool {
	switch g.Level {
	case domain.GoalCompany:
		return true
	case domain.GoalDepartment:
		return (g.Department != nil && *g.Department == a.Department) || isExecutive(a)
	case domain.GoalIndividual:
		return a.ID == g.OwnerID || IsManagerTier(a) || isExecutive(a)
	}
	return false
}

func CanEditGoal(a domain.Actor, g domain.Goal) bool {
	switch {
	case isExecutive(a):
		return true
	case headOfGoalDepartment(a, g):
		return true
	case g.Approved() && a.ID == g.OwnerID:
		return false
	case a.ID == g.OwnerID:
		return true
	case a.Level == domain.LevelDepartmentHead:
		// department heads are confined to their own department's goals
		return false
	case IsManagerTier(a):
		return true
	}
	return false
}

func CanCreateGoal(a domain.Actor, level domain.GoalLevel) bool {
	switch level {
	case domain.GoalCompany:
		return isExecutive(a)
	case domain.GoalDepartment:
		return a.Level == domain.LevelDepartmentHead || isExecutive(a)
	case domain.GoalIndividual:
		return true
	}
	return false
}

func CanDeleteGoal(a domain.Actor, g domain.Goal) bool {
	switch {
	case isExecutive(a):
		return true
	case headOfGoalDepartment(a, g):
		return true
	case a.ID == g.OwnerID:
		return true
	}
	return false
}

func CanApproveGoal(a domain.Actor, g domain.Goal) bool {
	switch g.Level {
	case domain.GoalCompany, domain.GoalDepartment:
		return isExecutive(a)
	case domain.GoalIndividual:
		return IsManagerTier(a) || isExecutive(a)
	}
	return false
}

// CanUpdateOutcomeProgress covers quarterly actual/status writes only.
func CanUpdateOutcomeProgress(a domain.Actor, o domain.Outcome) bool {
	if o.OwnerID == a.ID {
		return true
	}
	return IsManagerTier(a) || isExecutive(a)
}

// CanEditOutcomeDetails covers description, unit and target writes.
func CanEditOutcomeDetails(a domain.Actor) bool {
	return a.Level == domain.LevelExecutive || a.Level == domain.LevelDepartmentHead
}

func CanAccessManagement(a domain.Actor) bool {
	return a.Level == domain.LevelExecutive || a.Level == domain.LevelDepartmentHead
}

func CanEditEmployee(a domain.Actor) bool {
	return isExecutive(a)
}

// Capabilities summarizes the actor-level permissions for clients.
type Capabilities struct {
	CreateCompanyGoals    bool `json:"createCompanyGoals"`
	CreateDepartmentGoals bool `json:"createDepartmentGoals"`
	EditOutcomeDetails    bool `json:"editOutcomeDetails"`
	AccessManagement      bool `json:"accessManagement"`
	EditEmployees         bool `json:"editEmployees"`
}

func CapabilitiesFor(a domain.Actor) Capabilities {
	return Capabilities{
		CreateCompanyGoals:    CanCreateGoal(a, domain.GoalCompany),
		CreateDepartmentGoals: CanCreateGoal(a, domain.GoalDepartment),
		EditOutcomeDetails:    CanEditOutcomeDetails(a),
		AccessManagement:      CanAccessManagement(a),
		EditEmployees:         CanEditEmployee(a),
	}
}
