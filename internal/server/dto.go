package server

import (
	"whygo/internal/domain"
	"whygo/internal/engine"
	"whygo/internal/engine/auth"
)

// Request payloads. Every field is optional at the schema level so the
// engine can report all violations at once.

type OutcomeRequest struct {
	Description  string `json:"description,omitempty"`
	Unit         string `json:"unit,omitempty"`
	AnnualTarget any    `json:"annualTarget,omitempty" doc:"Number, numeric string, or empty string for no target"`
	Q1Target     any    `json:"q1Target,omitempty"`
	Q2Target     any    `json:"q2Target,omitempty"`
	Q3Target     any    `json:"q3Target,omitempty"`
	Q4Target     any    `json:"q4Target,omitempty"`
	OwnerID      string `json:"ownerId,omitempty"`
}

type CreateGoalRequest struct {
	ID           string           `json:"id,omitempty" doc:"Id minted by an earlier attempt; reuse it when retrying"`
	Level        string           `json:"level,omitempty" enum:"company,department,individual"`
	Year         int              `json:"year,omitempty"`
	Department   string           `json:"department,omitempty"`
	Goal         string           `json:"goal,omitempty"`
	Why          string           `json:"why,omitempty"`
	ParentGoalID string           `json:"parentGoalId,omitempty"`
	Outcomes     []OutcomeRequest `json:"outcomes,omitempty"`
}

type UpdateGoalRequest struct {
	Goal         *string `json:"goal,omitempty"`
	Why          *string `json:"why,omitempty"`
	ParentGoalID *string `json:"parentGoalId,omitempty" nullable:"true"`
}

type GoalStatusRequest struct {
	Status string `json:"status" enum:"draft,active,completed,archived"`
}

type UpdateOutcomeRequest struct {
	Description  *string  `json:"description,omitempty"`
	Unit         *string  `json:"unit,omitempty"`
	AnnualTarget any      `json:"annualTarget,omitempty"`
	Q1Target     any      `json:"q1Target,omitempty"`
	Q2Target     any      `json:"q2Target,omitempty"`
	Q3Target     any      `json:"q3Target,omitempty"`
	Q4Target     any      `json:"q4Target,omitempty"`
	Quarter      string   `json:"quarter,omitempty" enum:"q1,q2,q3,q4"`
	Actual       *float64 `json:"actual,omitempty" nullable:"true" doc:"Explicit null clears the quarter actual"`
	Status       *string  `json:"status,omitempty" nullable:"true" doc:"One of +, ~, -; null clears the quarter status"`
}

type EmployeeRequest struct {
	Email      string  `json:"email,omitempty"`
	Name       string  `json:"name,omitempty"`
	Level      string  `json:"level,omitempty" enum:"executive,department_head,manager,individual_contributor"`
	Department string  `json:"department,omitempty"`
	ReportsTo  *string `json:"reportsTo,omitempty" nullable:"true"`
}

type DevLoginRequest struct {
	EmployeeID string `json:"employeeId"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	Actor        domain.Actor      `json:"actor"`
	Source       string            `json:"source"`
	DevMode      bool              `json:"devMode"`
	Capabilities auth.Capabilities `json:"capabilities"`
}

type OutcomeResponse struct {
	ID           string   `json:"id"`
	WhygoID      string   `json:"whygoId"`
	Description  string   `json:"description"`
	Unit         string   `json:"unit"`
	AnnualTarget any      `json:"annualTarget" doc:"Number, or empty string when unset"`
	Q1Target     any      `json:"q1Target"`
	Q2Target     any      `json:"q2Target"`
	Q3Target     any      `json:"q3Target"`
	Q4Target     any      `json:"q4Target"`
	Q1Actual     *float64 `json:"q1Actual"`
	Q2Actual     *float64 `json:"q2Actual"`
	Q3Actual     *float64 `json:"q3Actual"`
	Q4Actual     *float64 `json:"q4Actual"`
	Q1Status     *string  `json:"q1Status"`
	Q2Status     *string  `json:"q2Status"`
	Q3Status     *string  `json:"q3Status"`
	Q4Status     *string  `json:"q4Status"`
	OwnerID      string   `json:"ownerId"`
	OwnerName    string   `json:"ownerName"`
	SortOrder    int      `json:"sortOrder"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt"`
	CreatedBy    string   `json:"createdBy"`
	UpdatedBy    string   `json:"updatedBy,omitempty"`
}

type GoalDetailResponse struct {
	Goal     domain.Goal       `json:"goal"`
	Outcomes []OutcomeResponse `json:"outcomes"`
}

type GoalTreeResponse struct {
	Goal     domain.Goal        `json:"goal"`
	Outcomes []OutcomeResponse  `json:"outcomes"`
	Children []GoalTreeResponse `json:"children"`
}

type goalList struct {
	Items []domain.Goal `json:"items"`
}

type outcomeList struct {
	Items []OutcomeResponse `json:"items"`
}

type employeeList struct {
	Items []domain.Actor `json:"items"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

func targetValue(t domain.Target) any {
	if v, ok := t.Value(); ok {
		return v
	}
	return ""
}

func statusValue(s *domain.StatusIndicator) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func outcomeResponse(o domain.Outcome) OutcomeResponse {
	return OutcomeResponse{
		ID:           o.ID,
		WhygoID:      o.WhygoID,
		Description:  o.Description,
		Unit:         o.Unit,
		AnnualTarget: targetValue(o.AnnualTarget),
		Q1Target:     targetValue(o.Q1Target),
		Q2Target:     targetValue(o.Q2Target),
		Q3Target:     targetValue(o.Q3Target),
		Q4Target:     targetValue(o.Q4Target),
		Q1Actual:     o.Q1Actual,
		Q2Actual:     o.Q2Actual,
		Q3Actual:     o.Q3Actual,
		Q4Actual:     o.Q4Actual,
		Q1Status:     statusValue(o.Q1Status),
		Q2Status:     statusValue(o.Q2Status),
		Q3Status:     statusValue(o.Q3Status),
		Q4Status:     statusValue(o.Q4Status),
		OwnerID:      o.OwnerID,
		OwnerName:    o.OwnerName,
		SortOrder:    o.SortOrder,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		CreatedBy:    o.CreatedBy,
		UpdatedBy:    o.UpdatedBy,
	}
}

func mapOutcomes(items []domain.Outcome) []OutcomeResponse {
	out := make([]OutcomeResponse, 0, len(items))
	for _, o := range items {
		out = append(out, outcomeResponse(o))
	}
	return out
}

func treeResponse(n engine.GoalNode) GoalTreeResponse {
	res := GoalTreeResponse{Goal: n.Goal, Outcomes: mapOutcomes(n.Outcomes), Children: []GoalTreeResponse{}}
	for _, c := range n.Children {
		res.Children = append(res.Children, treeResponse(c))
	}
	return res
}

func goalInput(req CreateGoalRequest) engine.GoalInput {
	in := engine.GoalInput{
		ID:           req.ID,
		Level:        domain.GoalLevel(req.Level),
		Year:         req.Year,
		Department:   req.Department,
		Goal:         req.Goal,
		Why:          req.Why,
		ParentGoalID: req.ParentGoalID,
	}
	for _, o := range req.Outcomes {
		in.Outcomes = append(in.Outcomes, engine.OutcomeInput{
			Description:  o.Description,
			Unit:         o.Unit,
			AnnualTarget: o.AnnualTarget,
			Q1Target:     o.Q1Target,
			Q2Target:     o.Q2Target,
			Q3Target:     o.Q3Target,
			Q4Target:     o.Q4Target,
			OwnerID:      o.OwnerID,
		})
	}
	return in
}
