// Package jira is a small Jira REST client covering worklogs and issue search.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Tiliavir/worklog-sync/internal/model"
)

// startedLayout is the timestamp format Jira expects for worklog start.
const startedLayout = "2006-01-02T15:04:05.000-0700"

// Credentials selects the authentication scheme. A bearer token wins over
// basic auth.
type Credentials struct {
	Email       string
	APIToken    string
	BearerToken string
}

// Client is an authenticated Jira REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the Jira instance at baseURL.
func NewClient(ctx context.Context, baseURL string, creds Credentials, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, &model.ValidationError{Field: "jira.base_url", Message: "must be set"}
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, &model.ValidationError{Field: "jira.base_url", Message: err.Error()}
	}

	var hc *http.Client
	switch {
	case creds.BearerToken != "":
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.BearerToken, TokenType: "Bearer"}))
	case creds.Email != "" && creds.APIToken != "":
		hc = &http.Client{Transport: &basicAuthTransport{user: creds.Email, pass: creds.APIToken, base: http.DefaultTransport}}
	default:
		return nil, &model.ValidationError{Field: "jira", Message: "set bearer_token or email and api_token"}
	}
	hc.Timeout = timeout
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}, nil
}

// NewWithHTTPClient returns a client using hc as is.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}
}

type basicAuthTransport struct {
	user, pass string
	base       http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.SetBasicAuth(t.user, t.pass)
	return t.base.RoundTrip(r)
}

type worklogRequest struct {
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
	Started          string `json:"started"`
	Comment          string `json:"comment,omitempty"`
}

type worklogResponse struct {
	ID string `json:"id"`
}

// CreateWorklog logs seconds on issueKey and returns the new worklog id.
func (c *Client) CreateWorklog(ctx context.Context, issueKey string, seconds int64, started time.Time, comment string) (string, error) {
	body, err := json.Marshal(worklogRequest{
		TimeSpentSeconds: seconds,
		Started:          started.Format(startedLayout),
		Comment:          comment,
	})
	if err != nil {
		return "", fmt.Errorf("encoding worklog: %w", err)
	}
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s/worklog", c.baseURL, url.PathEscape(issueKey))
	data, err := c.do(ctx, "create", issueKey, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	var wl worklogResponse
	if err := json.Unmarshal(data, &wl); err != nil {
		return "", &model.RemoteError{Kind: model.RemoteRejected, Op: "create", IssueKey: issueKey, Message: "undecodable response", Cause: err}
	}
	if wl.ID == "" {
		return "", &model.RemoteError{Kind: model.RemoteRejected, Op: "create", IssueKey: issueKey, Message: "response has no worklog id"}
	}
	return wl.ID, nil
}

// DeleteWorklog removes worklog remoteID from issueKey.
func (c *Client) DeleteWorklog(ctx context.Context, issueKey, remoteID string) error {
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s/worklog/%s", c.baseURL, url.PathEscape(issueKey), url.PathEscape(remoteID))
	_, err := c.do(ctx, "delete", issueKey, http.MethodDelete, endpoint, nil)
	return err
}

type searchResponse struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
		} `json:"fields"`
	} `json:"issues"`
	NextPageToken string `json:"nextPageToken"`
	IsLast        bool   `json:"isLast"`
}

// SearchIssues returns every issue matching jql.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]model.Issue, error) {
	var all []model.Issue
	token := ""
	for {
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("fields", "summary")
		q.Set("maxResults", "100")
		if token != "" {
			q.Set("nextPageToken", token)
		}
		data, err := c.do(ctx, "search", "", http.MethodGet, c.baseURL+"/rest/api/3/search/jql?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var page searchResponse
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, &model.RemoteError{Kind: model.RemoteRejected, Op: "search", Message: "undecodable response", Cause: err}
		}
		for _, is := range page.Issues {
			all = append(all, model.Issue{Key: is.Key, Summary: is.Fields.Summary})
		}
		if page.IsLast || page.NextPageToken == "" {
			return all, nil
		}
		token = page.NextPageToken
	}
}

func (c *Client) do(ctx context.Context, op, issueKey, method, endpoint string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.RemoteError{Kind: model.RemoteNetwork, Op: op, IssueKey: issueKey, Cause: err}
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, &model.RemoteError{Kind: model.RemoteNetwork, Op: op, IssueKey: issueKey, Status: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, &model.RemoteError{
		Kind:     kindForStatus(resp.StatusCode),
		Op:       op,
		IssueKey: issueKey,
		Status:   resp.StatusCode,
		Message:  errorMessage(data),
	}
}

func kindForStatus(status int) model.RemoteErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.RemoteAuth
	case status == http.StatusNotFound:
		return model.RemoteNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return model.RemoteNetwork
	default:
		return model.RemoteRejected
	}
}

// errorMessage extracts Jira's errorMessages/errors, falling back to the raw body.
func errorMessage(body []byte) string {
	var e struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		parts := append([]string{}, e.ErrorMessages...)
		keys := make([]string, 0, len(e.Errors))
		for k := range e.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+": "+e.Errors[k])
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// IsRetryable reports whether err is a remote failure worth retrying later.
func IsRetryable(err error) bool {
	var re *model.RemoteError
	return errors.As(err, &re) && re.Kind == model.RemoteNetwork
}
