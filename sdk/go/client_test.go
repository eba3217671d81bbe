package devhubsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staff struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "data": data})
}

func TestClientDecodesEnvelope(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))
		switch r.URL.Path {
		case "/api/staff/list":
			writeEnvelope(w, 200, 0, "ok", map[string]any{
				"records": []staff{{ID: "s1", Name: "Ann"}},
				"total":   11, "size": 10, "current": 2, "pages": 2,
			})
		case "/api/staff/queryById":
			writeEnvelope(w, 404, 404, "record not found", nil)
		case "/api/project/statistics":
			writeEnvelope(w, 200, 0, "ok", map[string]any{"totalProjects": 3, "onTimeRate": 50})
		default:
			writeEnvelope(w, 200, 0, "done", "done")
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/api/")
	c.APIKey = "key-1"
	ctx := context.Background()

	var rows []staff
	page, err := c.List(ctx, ModuleStaff, 2, 10, url.Values{"name_like": {"An"}}, &rows)
	require.NoError(t, err)
	assert.EqualValues(t, 11, page.Total)
	assert.Equal(t, 2, page.Current)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ann", rows[0].Name)

	var one staff
	err = c.Get(ctx, ModuleStaff, "missing", &one)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Code)
	assert.Equal(t, "record not found", apiErr.Message)

	st, err := c.ProjectStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalProjects)
	assert.Equal(t, 50, st.OnTimeRate)

	require.NoError(t, c.Add(ctx, ModuleStaff, staff{Name: "Bob"}))
	require.NoError(t, c.Edit(ctx, ModuleStaff, staff{ID: "s1", Name: "Ann B"}))
	require.NoError(t, c.Delete(ctx, ModuleStaff, "s1"))
	require.NoError(t, c.DeleteBatch(ctx, ModuleProjectConfig, []string{"1", "2"}))

	assert.Contains(t, seen, "GET /api/staff/list?name_like=An&pageNo=2&pageSize=10")
	assert.Contains(t, seen, "PUT /api/staff/edit?")
	assert.Contains(t, seen, "DELETE /api/project/config/deleteBatch?ids=1%2C2")
}

func TestClientRejectsNonEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).Delete(context.Background(), ModuleApp, "a1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "boom")
}
