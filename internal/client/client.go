// Package client talks to the change request API and keeps dashboard state
// in sync with it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GolovachevS/cr-dashboard/internal/domain"
)

const defaultTimeout = 10 * time.Second

// APIError is a failed call decoded from the response envelope.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type NewUser struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

type NewTask struct {
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to"`
}

type NewChangeRequest struct {
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	OwnerID            string    `json:"owner_id"`
	AssignedDevelopers []string  `json:"assigned_developers"`
	DueDate            string    `json:"due_date"`
	Tasks              []NewTask `json:"tasks,omitempty"`
}

// ChangeRequestUpdate is a full update; a nil AssignedDevelopers keeps the
// current set.
type ChangeRequestUpdate struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Status             string   `json:"status"`
	DueDate            string   `json:"due_date"`
	AssignedDevelopers []string `json:"assigned_developers"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// Client is a thin JSON client for the API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) CreateUser(ctx context.Context, user NewUser) (domain.User, error) {
	var created domain.User
	err := c.do(ctx, http.MethodPost, "/api/users", user, &created)
	return created, err
}

func (c *Client) ListChangeRequests(ctx context.Context) ([]domain.ChangeRequest, error) {
	var crs []domain.ChangeRequest
	if err := c.do(ctx, http.MethodGet, "/api/crs", nil, &crs); err != nil {
		return nil, err
	}
	return crs, nil
}

func (c *Client) ListChangeRequestsForUser(ctx context.Context, userID string) ([]domain.ChangeRequest, error) {
	var crs []domain.ChangeRequest
	if err := c.do(ctx, http.MethodGet, "/api/crs/user/"+url.PathEscape(userID), nil, &crs); err != nil {
		return nil, err
	}
	return crs, nil
}

func (c *Client) CreateChangeRequest(ctx context.Context, cr NewChangeRequest) (domain.ChangeRequest, error) {
	var created domain.ChangeRequest
	err := c.do(ctx, http.MethodPost, "/api/crs", cr, &created)
	return created, err
}

func (c *Client) UpdateChangeRequestStatus(ctx context.Context, id, status string) (domain.ChangeRequest, error) {
	var updated domain.ChangeRequest
	err := c.do(ctx, http.MethodPatch, "/api/crs/"+url.PathEscape(id)+"/status", statusBody{Status: status}, &updated)
	return updated, err
}

func (c *Client) UpdateChangeRequest(ctx context.Context, id string, update ChangeRequestUpdate) (domain.ChangeRequest, error) {
	var updated domain.ChangeRequest
	err := c.do(ctx, http.MethodPut, "/api/crs/"+url.PathEscape(id), update, &updated)
	return updated, err
}

func (c *Client) DeleteChangeRequest(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/crs/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListTasks(ctx context.Context, crID string) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/cr/"+url.PathEscape(crID), nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) UpdateTaskStatus(ctx context.Context, id, status string) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id)+"/status", statusBody{Status: status}, &task)
	return task, err
}

type statusBody struct {
	Status string `json:"status"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s (status %d): %w", method, path, resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message, Detail: env.Error}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}
