package jira_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/jira"
	"github.com/Tiliavir/worklog-sync/internal/model"
)

func TestCreateWorklog(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/api/2/issue/ABC-1/worklog" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "me@example.com" || pass != "tok" {
			t.Errorf("basic auth = %q %q %v", user, pass, ok)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"10042","timeSpentSeconds":5400}`))
	}))
	defer srv.Close()

	c, err := jira.NewClient(context.Background(), srv.URL+"/", jira.Credentials{Email: "me@example.com", APIToken: "tok"}, 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	started := time.Date(2026, 3, 2, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	id, err := c.CreateWorklog(context.Background(), "ABC-1", 5400, started, "Standup")
	if err != nil {
		t.Fatalf("CreateWorklog: %v", err)
	}
	if id != "10042" {
		t.Errorf("id = %q, want 10042", id)
	}
	if got["started"] != "2026-03-02T09:30:00.000+0100" || got["timeSpentSeconds"] != float64(5400) || got["comment"] != "Standup" {
		t.Errorf("request body = %v", got)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer pat-123" {
			t.Errorf("Authorization = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := jira.NewClient(context.Background(), srv.URL, jira.Credentials{BearerToken: "pat-123", Email: "x", APIToken: "y"}, 0)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.DeleteWorklog(context.Background(), "ABC-1", "10042"); err != nil {
		t.Fatalf("DeleteWorklog: %v", err)
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		kind   model.RemoteErrorKind
	}{
		{http.StatusUnauthorized, model.RemoteAuth},
		{http.StatusForbidden, model.RemoteAuth},
		{http.StatusNotFound, model.RemoteNotFound},
		{http.StatusBadRequest, model.RemoteRejected},
		{http.StatusTooManyRequests, model.RemoteNetwork},
		{http.StatusBadGateway, model.RemoteNetwork},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"errorMessages":["nope"],"errors":{"timeSpent":"bad"}}`))
		}))
		c := jira.NewWithHTTPClient(srv.URL, srv.Client())
		err := c.DeleteWorklog(context.Background(), "ABC-1", "1")
		srv.Close()

		var re *model.RemoteError
		if !errors.As(err, &re) {
			t.Fatalf("status %d: err = %v, want RemoteError", tt.status, err)
		}
		if re.Kind != tt.kind || re.Status != tt.status || re.Op != "delete" {
			t.Errorf("status %d: %+v", tt.status, re)
		}
		if re.Message != "nope; timeSpent: bad" {
			t.Errorf("message = %q", re.Message)
		}
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := jira.NewWithHTTPClient(url, &http.Client{Timeout: time.Second})
	_, err := c.CreateWorklog(context.Background(), "ABC-1", 60, time.Now(), "")
	if !jira.IsRetryable(err) {
		t.Errorf("err = %v, want retryable network error", err)
	}
}

func TestCreateWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	_, err := jira.NewWithHTTPClient(srv.URL, srv.Client()).CreateWorklog(context.Background(), "ABC-1", 60, time.Now(), "")
	if !model.IsRemote(err) {
		t.Errorf("err = %v, want RemoteError", err)
	}
}

func TestSearchIssuesPaging(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/rest/api/3/search/jql" || !strings.Contains(r.URL.Query().Get("jql"), "openSprints") {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.URL.Query().Get("nextPageToken") == "" {
			w.Write([]byte(`{"issues":[{"key":"ABC-1","fields":{"summary":"One"}}],"nextPageToken":"p2","isLast":false}`))
			return
		}
		w.Write([]byte(`{"issues":[{"key":"ABC-2","fields":{"summary":"Two"}}],"isLast":true}`))
	}))
	defer srv.Close()

	issues, err := jira.NewWithHTTPClient(srv.URL, srv.Client()).SearchIssues(context.Background(), "sprint in openSprints()")
	if err != nil {
		t.Fatalf("SearchIssues: %v", err)
	}
	if calls != 2 || len(issues) != 2 || issues[1].Key != "ABC-2" || issues[0].Summary != "One" {
		t.Errorf("SearchIssues = %+v after %d calls", issues, calls)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := jira.NewClient(context.Background(), "https://example.atlassian.net", jira.Credentials{}, 0); !model.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
	if _, err := jira.NewClient(context.Background(), "", jira.Credentials{BearerToken: "x"}, 0); !model.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError for empty url", err)
	}
}
