package whygosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal WhyGo HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration

	// DevDepartment and DevLevel are sent as actor overrides. Servers in
	// production mode ignore them.
	DevDepartment string
	DevLevel      string
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Employee struct {
	ID         string  `json:"id"`
	Email      string  `json:"email,omitempty"`
	Name       string  `json:"name"`
	Level      string  `json:"level"`
	Department string  `json:"department"`
	ReportsTo  *string `json:"reportsTo,omitempty"`
}

type Capabilities struct {
	CreateCompanyGoals    bool `json:"createCompanyGoals"`
	CreateDepartmentGoals bool `json:"createDepartmentGoals"`
	EditOutcomeDetails    bool `json:"editOutcomeDetails"`
	AccessManagement      bool `json:"accessManagement"`
	EditEmployees         bool `json:"editEmployees"`
}

type Me struct {
	Actor        Employee     `json:"actor"`
	Source       string       `json:"source"`
	DevMode      bool         `json:"devMode"`
	Capabilities Capabilities `json:"capabilities"`
}

// Goal is the API goal model.
type Goal struct {
	ID           string  `json:"id"`
	Level        string  `json:"level"`
	Year         int     `json:"year"`
	Department   *string `json:"department"`
	OwnerID      string  `json:"ownerId"`
	OwnerName    string  `json:"ownerName"`
	Goal         string  `json:"goal"`
	Why          string  `json:"why"`
	Status       string  `json:"status"`
	ParentGoalID *string `json:"parentGoalId"`
	ApprovedBy   *string `json:"approvedBy"`
	ApprovedAt   *string `json:"approvedAt"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
}

// Outcome is the API outcome model. Targets are a number or "".
type Outcome struct {
	ID           string   `json:"id"`
	WhygoID      string   `json:"whygoId"`
	Description  string   `json:"description"`
	Unit         string   `json:"unit"`
	AnnualTarget any      `json:"annualTarget"`
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
}

type GoalDetail struct {
	Goal     Goal      `json:"goal"`
	Outcomes []Outcome `json:"outcomes"`
}

type NewOutcome struct {
	Description  string `json:"description"`
	Unit         string `json:"unit,omitempty"`
	AnnualTarget any    `json:"annualTarget,omitempty"`
	Q1Target     any    `json:"q1Target,omitempty"`
	Q2Target     any    `json:"q2Target,omitempty"`
	Q3Target     any    `json:"q3Target,omitempty"`
	Q4Target     any    `json:"q4Target,omitempty"`
	OwnerID      string `json:"ownerId,omitempty"`
}

type NewGoal struct {
	ID           string       `json:"id,omitempty"`
	Level        string       `json:"level"`
	Year         int          `json:"year,omitempty"`
	Department   string       `json:"department,omitempty"`
	Goal         string       `json:"goal"`
	Why          string       `json:"why"`
	ParentGoalID string       `json:"parentGoalId,omitempty"`
	Outcomes     []NewOutcome `json:"outcomes,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"nextCursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// CreateGoal creates a goal and returns its id. Pass the id back in
// NewGoal.ID when retrying after a failure.
func (c *Client) CreateGoal(ctx context.Context, g NewGoal) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "goals", g, &resp)
	return resp.ID, err
}

func (c *Client) GetGoal(ctx context.Context, id string) (GoalDetail, error) {
	var resp GoalDetail
	err := c.do(ctx, http.MethodGet, "goals/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListGoals returns visible goals; filters map to query parameters such as
// year, level, department and status.
func (c *Client) ListGoals(ctx context.Context, filters map[string]string) ([]Goal, error) {
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := "goals"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Goal `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) ApproveGoal(ctx context.Context, id string) (Goal, error) {
	var resp Goal
	err := c.do(ctx, http.MethodPost, "goals/"+url.PathEscape(id)+"/approve", nil, &resp)
	return resp, err
}

func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "goals/"+url.PathEscape(id), nil, nil)
}

// UpdateProgress records a quarter actual and status. A nil actual or
// status is sent as null and clears the stored value.
func (c *Client) UpdateProgress(ctx context.Context, outcomeID, quarter string, actual *float64, status *string) (Outcome, error) {
	body := map[string]any{
		"quarter": quarter,
		"actual":  actual,
		"status":  status,
	}
	var resp Outcome
	err := c.do(ctx, http.MethodPatch, "outcomes/"+url.PathEscape(outcomeID), body, &resp)
	return resp, err
}

// EventsPage returns a page of the audit log after cursor.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	if c.DevDepartment != "" {
		req.Header.Set("X-Dev-Department", c.DevDepartment)
	}
	if c.DevLevel != "" {
		req.Header.Set("X-Dev-Level", c.DevLevel)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
