package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Collection names used in the document store.
const (
	CollectionGoals     = "whygos"
	CollectionOutcomes  = "outcomes"
	CollectionEmployees = "employees"
	CollectionEvents    = "events"
	CollectionAPIKeys   = "api_keys"
	CollectionSettings  = "settings"
)

type ActorLevel string

const (
	LevelExecutive             ActorLevel = "executive"
	LevelDepartmentHead        ActorLevel = "department_head"
	LevelManager               ActorLevel = "manager"
	LevelIndividualContributor ActorLevel = "individual_contributor"
)

func (l ActorLevel) Valid() bool {
	switch l {
	case LevelExecutive, LevelDepartmentHead, LevelManager, LevelIndividualContributor:
		return true
	}
	return false
}

type GoalLevel string

const (
	GoalCompany    GoalLevel = "company"
	GoalDepartment GoalLevel = "department"
	GoalIndividual GoalLevel = "individual"
)

func (l GoalLevel) Valid() bool {
	return l == GoalCompany || l == GoalDepartment || l == GoalIndividual
}

type GoalStatus string

const (
	StatusDraft     GoalStatus = "draft"
	StatusActive    GoalStatus = "active"
	StatusCompleted GoalStatus = "completed"
	StatusArchived  GoalStatus = "archived"
)

// Departments is the fixed department enumeration.
var Departments = []string{
	"Executive",
	"Sales",
	"Marketing",
	"Production",
	"Engineering",
	"Finance",
	"Operations",
	"People",
}

// IsDepartment reports whether name is one of Departments (case-insensitive).
func IsDepartment(name string) bool {
	for _, d := range Departments {
		if strings.EqualFold(d, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// CanonicalDepartment returns the enumeration spelling of name.
func CanonicalDepartment(name string) (string, bool) {
	for _, d := range Departments {
		if strings.EqualFold(d, strings.TrimSpace(name)) {
			return d, true
		}
	}
	return "", false
}

// Actor is an authenticated employee as seen by authorization checks.
type Actor struct {
	ID         string     `json:"id"`
	Email      string     `json:"email,omitempty"`
	Name       string     `json:"name"`
	Level      ActorLevel `json:"level" enum:"executive,department_head,manager,individual_contributor"`
	Department string     `json:"department"`
	ReportsTo  *string    `json:"reportsTo,omitempty"`
	CreatedAt  string     `json:"createdAt,omitempty" format:"date-time"`
	UpdatedAt  string     `json:"updatedAt,omitempty" format:"date-time"`
}

type Goal struct {
	ID             string     `json:"id"`
	Level          GoalLevel  `json:"level" enum:"company,department,individual"`
	Year           int        `json:"year"`
	Department     *string    `json:"department"`
	OwnerID        string     `json:"ownerId"`
	OwnerName      string     `json:"ownerName"`
	Goal           string     `json:"goal"`
	Why            string     `json:"why"`
	Status         GoalStatus `json:"status" enum:"draft,active,completed,archived"`
	ParentGoalID   *string    `json:"parentGoalId"`
	ApprovedBy     *string    `json:"approvedBy"`
	ApprovedByName *string    `json:"approvedByName"`
	ApprovedAt     *string    `json:"approvedAt" format:"date-time"`
	CreatedAt      string     `json:"createdAt" format:"date-time"`
	UpdatedAt      string     `json:"updatedAt" format:"date-time"`
	CreatedBy      string     `json:"createdBy"`
	UpdatedBy      string     `json:"updatedBy,omitempty"`
}

// Approved reports whether the goal carries the approval lock.
func (g Goal) Approved() bool {
	return g.ApprovedBy != nil && *g.ApprovedBy != ""
}

// StatusIndicator is a quarterly pacing signal.
type StatusIndicator string

const (
	OnPace      StatusIndicator = "+"
	SlightlyOff StatusIndicator = "~"
	OffPace     StatusIndicator = "-"
)

func (s StatusIndicator) Valid() bool {
	return s == OnPace || s == SlightlyOff || s == OffPace
}

type Outcome struct {
	ID           string           `json:"id"`
	WhygoID      string           `json:"whygoId"`
	Description  string           `json:"description"`
	Unit         string           `json:"unit"`
	AnnualTarget Target           `json:"annualTarget"`
	Q1Target     Target           `json:"q1Target"`
	Q2Target     Target           `json:"q2Target"`
	Q3Target     Target           `json:"q3Target"`
	Q4Target     Target           `json:"q4Target"`
	Q1Actual     *float64         `json:"q1Actual"`
	Q2Actual     *float64         `json:"q2Actual"`
	Q3Actual     *float64         `json:"q3Actual"`
	Q4Actual     *float64         `json:"q4Actual"`
	Q1Status     *StatusIndicator `json:"q1Status"`
	Q2Status     *StatusIndicator `json:"q2Status"`
	Q3Status     *StatusIndicator `json:"q3Status"`
	Q4Status     *StatusIndicator `json:"q4Status"`
	OwnerID      string           `json:"ownerId"`
	OwnerName    string           `json:"ownerName"`
	SortOrder    int              `json:"sortOrder"`
	CreatedAt    string           `json:"createdAt" format:"date-time"`
	UpdatedAt    string           `json:"updatedAt" format:"date-time"`
	CreatedBy    string           `json:"createdBy"`
	UpdatedBy    string           `json:"updatedBy,omitempty"`
}

// SetActual stores the actual for quarter q. Unknown quarters are ignored.
func (o *Outcome) SetActual(q string, v *float64) {
	switch q {
	case "q1":
		o.Q1Actual = v
	case "q2":
		o.Q2Actual = v
	case "q3":
		o.Q3Actual = v
	case "q4":
		o.Q4Actual = v
	}
}

func (o *Outcome) SetStatus(q string, s *StatusIndicator) {
	switch q {
	case "q1":
		o.Q1Status = s
	case "q2":
		o.Q2Status = s
	case "q3":
		o.Q3Status = s
	case "q4":
		o.Q4Status = s
	}
}

// Quarters lists the valid quarter keys.
var Quarters = []string{"q1", "q2", "q3", "q4"}

func IsQuarter(q string) bool {
	for _, v := range Quarters {
		if v == q {
			return true
		}
	}
	return false
}

// Target is a numeric target that may be empty. Empty encodes as "" and is
// distinct from a numeric zero.
type Target struct {
	value *float64
}

func EmptyTarget() Target { return Target{} }

// NumericTarget wraps v. NaN and infinities have no JSON form and yield an
// empty target.
func NumericTarget(v float64) Target {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Target{}
	}
	return Target{value: &v}
}

// ParseTarget coerces form input into a Target. Blank or unparseable input
// yields an empty target, never zero.
func ParseTarget(in any) Target {
	switch v := in.(type) {
	case nil:
		return Target{}
	case Target:
		return v
	case float64:
		return NumericTarget(v)
	case float32:
		return NumericTarget(float64(v))
	case int:
		return NumericTarget(float64(v))
	case int64:
		return NumericTarget(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Target{}
		}
		return NumericTarget(f)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return Target{}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Target{}
		}
		return NumericTarget(f)
	default:
		return Target{}
	}
}

func (t Target) IsEmpty() bool { return t.value == nil }

// Value returns the numeric value and whether one is set.
func (t Target) Value() (float64, bool) {
	if t.value == nil {
		return 0, false
	}
	return *t.value, true
}

func (t Target) String() string {
	if t.value == nil {
		return ""
	}
	return strconv.FormatFloat(*t.value, 'f', -1, 64)
}

func (t Target) MarshalJSON() ([]byte, error) {
	if t.value == nil {
		return []byte(`""`), nil
	}
	return json.Marshal(*t.value)
}

func (t *Target) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		t.value = nil
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("target: %w", err)
		}
		*t = ParseTarget(s)
		return nil
	}
	*t = ParseTarget(json.Number(trimmed))
	return nil
}

// Event is an audit log entry stored alongside the mutation that produced it.
type Event struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq,omitempty"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actorId"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"keyHash"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}
