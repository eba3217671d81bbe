package devhubsdk

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

// Module route prefixes.
const (
	ModuleStaff             = "staff"
	ModuleApp               = "app"
	ModuleProject           = "project"
	ModuleRelatedApps       = "project/relatedApps"
	ModuleTimeline          = "project/timeline"
	ModuleProjectConfig     = "project/config"
	ModuleProjectTemplates  = "project/templates"
	ModuleMaterialComponent = "material/component"
	ModuleMaterialTemplate  = "material/template"
)

// Client is a minimal devhub HTTP API client.
type Client struct {
	// BaseURL includes the API base path, e.g. http://127.0.0.1:8080/api.
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credentials are set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError is a response whose envelope code is not 0.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%d message=%s", e.StatusCode, e.Code, e.Message)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// PageInfo describes one page of a list call.
type PageInfo struct {
	Total   int64 `json:"total"`
	Size    int   `json:"size"`
	Current int   `json:"current"`
	Pages   int64 `json:"pages"`
}

// ProjectStatistics mirrors GET /project/statistics.
type ProjectStatistics struct {
	TotalProjects       int `json:"totalProjects"`
	ActiveProjects      int `json:"activeProjects"`
	CompletedProjects   int `json:"completedProjects"`
	PausedProjects      int `json:"pausedProjects"`
	PlanningProjects    int `json:"planningProjects"`
	AvgProgress         int `json:"avgProgress"`
	TotalEstimatedHours int `json:"totalEstimatedHours"`
	TotalActualHours    int `json:"totalActualHours"`
	OnTimeRate          int `json:"onTimeRate"`
	DelayedRate         int `json:"delayedRate"`
}

// List fetches one page of module records into records, which must be a pointer to a
// slice. filters uses the server's list parameter names (field, field_like, field_begin...).
func (c *Client) List(ctx context.Context, module string, pageNo, pageSize int, filters url.Values, records any) (PageInfo, error) {
	q := url.Values{}
	for k, v := range filters {
		q[k] = v
	}
	if pageNo > 0 {
		q.Set("pageNo", strconv.Itoa(pageNo))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	var page struct {
		PageInfo
		Records json.RawMessage `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, module+"/list?"+q.Encode(), nil, &page); err != nil {
		return PageInfo{}, err
	}
	if records != nil && len(page.Records) > 0 {
		if err := json.Unmarshal(page.Records, records); err != nil {
			return PageInfo{}, err
		}
	}
	return page.PageInfo, nil
}

// Get fetches one record into out.
func (c *Client) Get(ctx context.Context, module, id string, out any) error {
	return c.do(ctx, http.MethodGet, module+"/queryById?id="+url.QueryEscape(id), nil, out)
}

// Add creates a record.
func (c *Client) Add(ctx context.Context, module string, rec any) error {
	return c.do(ctx, http.MethodPost, module+"/add", rec, nil)
}

// Edit updates the record identified by the id field of rec.
func (c *Client) Edit(ctx context.Context, module string, rec any) error {
	return c.do(ctx, http.MethodPut, module+"/edit", rec, nil)
}

// Delete removes one record.
func (c *Client) Delete(ctx context.Context, module, id string) error {
	return c.do(ctx, http.MethodDelete, module+"/delete?id="+url.QueryEscape(id), nil, nil)
}

// DeleteBatch removes several records.
func (c *Client) DeleteBatch(ctx context.Context, module string, ids []string) error {
	return c.do(ctx, http.MethodDelete, module+"/deleteBatch?ids="+url.QueryEscape(strings.Join(ids, ",")), nil, nil)
}

// ProjectStatistics returns the project dashboard figures.
func (c *Client) ProjectStatistics(ctx context.Context) (ProjectStatistics, error) {
	var out ProjectStatistics
	err := c.do(ctx, http.MethodGet, "project/statistics", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Body: string(b)}
	}
	if resp.StatusCode >= 300 || env.Code != 0 {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message, Body: string(b)}
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
