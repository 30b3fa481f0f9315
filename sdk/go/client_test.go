package whygosdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateProgressSendsExplicitNull(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/outcomes/cg_26_k3x9_o1", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"cg_26_k3x9_o1","q1Actual":null,"q1Status":"+"}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "key-1"
	status := "+"
	o, err := c.UpdateProgress(context.Background(), "cg_26_k3x9_o1", "q1", nil, &status)
	require.NoError(t, err)
	assert.Nil(t, o.Q1Actual)
	require.NotNil(t, o.Q1Status)
	assert.Equal(t, "+", *o.Q1Status)
	assert.JSONEq(t, "null", string(got["actual"]))
	assert.JSONEq(t, `"q1"`, string(got["quarter"]))
}

func TestErrorEnvelopeDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "executive", r.Header.Get("X-Dev-Level"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"code":"forbidden","message":"create goal: not allowed"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.BearerToken = "tok"
	c.DevLevel = "executive"
	_, err := c.CreateGoal(context.Background(), NewGoal{Level: "company", Goal: "g", Why: "w"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "forbidden", apiErr.Code)
}

func TestDeleteGoalNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).DeleteGoal(context.Background(), "cg_26_k3x9"))
}

func TestEventsPageQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "42", r.URL.Query().Get("cursor"))
		io.WriteString(w, `{"items":[{"id":"e1","seq":43,"type":"goal.created"}],"nextCursor":"43"}`)
	}))
	defer srv.Close()

	page, err := New(srv.URL).EventsPage(context.Background(), 10, "42")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(43), page.Items[0].Seq)
	assert.Equal(t, "43", page.NextCursor)
}
