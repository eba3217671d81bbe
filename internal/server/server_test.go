package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"devhub/internal/config"
	"devhub/internal/dbctx"
	"devhub/internal/domain"
	"devhub/internal/engine"
	"devhub/internal/record"
	"devhub/internal/repo"
	"devhub/internal/stats"
	"devhub/internal/testutil"
)

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, authCfg AuthConfig) *testServer {
	t.Helper()
	e, err := engine.New(testutil.DB(t), config.Default(t.TempDir()), nil)
	require.NoError(t, err)
	e.Now = testutil.SteppingClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	handler, err := New(Config{Engine: e, BasePath: "/api", Auth: authCfg})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String() + "/api",
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func legacyAuth() AuthConfig {
	return AuthConfig{AllowLegacyActorHeader: true, JWTSecret: "test-secret", DevLogin: true}
}

var asAlice = map[string]string{"X-Actor-Id": "alice"}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return send(t, client, req)
}

func send(t *testing.T, client *http.Client, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return res, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(env.Data))
	return out
}

func TestStaffLifecycle(t *testing.T) {
	srv := newTestServer(t, legacyAuth())
	client := srv.Client()

	res, env := doJSON(t, client, http.MethodPost, srv.URL+"/staff/add", map[string]any{
		"name":       "Ann",
		"employeeNo": "E1",
		"email":      "ann@example.com",
		"skills":     "Go,SQL",
		"status":     1,
	}, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, "add succeeded", env.Message)

	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/staff/list?name=An*", nil, asAlice)
	page := decode[record.Page[domain.Staff]](t, env)
	require.EqualValues(t, 1, page.Total)
	staff := page.Records[0]
	assert.Equal(t, "alice", staff.CreateBy)
	assert.Equal(t, 1, page.Current)
	assert.Equal(t, 10, page.Size)

	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/staff/checkEmployeeNo?employeeNo=E1", nil, asAlice)
	assert.True(t, decode[bool](t, env))
	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/staff/checkEmployeeNo?employeeNo=E1&id="+staff.ID, nil, asAlice)
	assert.False(t, decode[bool](t, env))

	res, env = doJSON(t, client, http.MethodPut, srv.URL+"/staff/edit", map[string]any{
		"id":    staff.ID,
		"phone": "555-0100",
	}, map[string]string{"X-Actor-Id": "bob"})
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)

	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/staff/queryById?id="+staff.ID, nil, asAlice)
	got := decode[domain.Staff](t, env)
	assert.Equal(t, "555-0100", got.Phone)
	assert.Equal(t, "Ann", got.Name)
	assert.Equal(t, "bob", got.UpdateBy)
	assert.Equal(t, "alice", got.CreateBy)

	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/staff/skillsStats", nil, asAlice)
	skills := decode[[]stats.SkillStat](t, env)
	require.Len(t, skills, 2)

	res, env = doJSON(t, client, http.MethodDelete, srv.URL+"/staff/delete?id="+staff.ID, nil, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "delete succeeded", env.Message)

	res, env = doJSON(t, client, http.MethodGet, srv.URL+"/staff/queryById?id="+staff.ID, nil, asAlice)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, http.StatusNotFound, env.Code)
	assert.Equal(t, "null", string(env.Data))
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, legacyAuth())
	client := srv.Client()

	res, env := doJSON(t, client, http.MethodPost, srv.URL+"/staff/add", map[string]any{"name": "Ann", "status": 9}, asAlice)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.Code)
	assert.Contains(t, env.Message, "status")

	res, env = doJSON(t, client, http.MethodPost, srv.URL+"/project/edit", map[string]any{"id": "ghost", "projectName": "x"}, asAlice)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, http.StatusNotFound, env.Code)

	res, env = doJSON(t, client, http.MethodDelete, srv.URL+"/app/deleteBatch", nil, asAlice)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.Code)

	res, env = doJSON(t, client, http.MethodGet, srv.URL+"/staff/list", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, env.Code)

	res, env = doJSON(t, client, http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 0, env.Code)
}

func TestProjectPagingStatisticsAndBatchDelete(t *testing.T) {
	srv := newTestServer(t, legacyAuth())
	client := srv.Client()
	for i := 1; i <= 15; i++ {
		body := map[string]any{
			"id":          fmt.Sprintf("%d", i),
			"projectName": fmt.Sprintf("Project %02d", i),
			"projectCode": fmt.Sprintf("P%02d", i),
			"status":      "DEVELOPING",
			"progress":    40,
		}
		res, env := doJSON(t, client, http.MethodPost, srv.URL+"/project/add", body, asAlice)
		require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	}

	_, env := doJSON(t, client, http.MethodGet, srv.URL+"/project/list?pageNo=2&pageSize=10", nil, asAlice)
	page := decode[record.Page[domain.Project]](t, env)
	assert.EqualValues(t, 15, page.Total)
	assert.Len(t, page.Records, 5)
	assert.EqualValues(t, 2, page.Pages)

	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/project/statistics", nil, asAlice)
	st := decode[stats.ProjectStatistics](t, env)
	assert.Equal(t, 15, st.TotalProjects)
	assert.Equal(t, 15, st.ActiveProjects)
	assert.Equal(t, 40, st.AvgProgress)

	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/project/checkProjectCode?projectCode=P01", nil, asAlice)
	assert.True(t, decode[bool](t, env))

	res, env := doJSON(t, client, http.MethodDelete, srv.URL+"/project/deleteBatch?ids=1,2,3", nil, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/project/queryById?id=2", nil, asAlice)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/project/list", nil, asAlice)
	assert.EqualValues(t, 12, decode[record.Page[domain.Project]](t, env).Total)
}

func TestExportImportXLSX(t *testing.T) {
	srv := newTestServer(t, legacyAuth())
	client := srv.Client()
	for _, name := range []string{"billing", "portal"} {
		res, env := doJSON(t, client, http.MethodPost, srv.URL+"/app/add", map[string]any{"appName": name, "status": 1}, asAlice)
		require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/app/exportXls", nil)
	require.NoError(t, err)
	req.Header.Set("X-Actor-Id", "alice")
	res, err := client.Do(req)
	require.NoError(t, err)
	xlsx, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, xlsxContentType, res.Header.Get("Content-Type"))
	assert.Contains(t, res.Header.Get("Content-Disposition"), "Apps.xlsx")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "apps.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req, err = http.NewRequest(http.MethodPost, srv.URL+"/app/importExcel", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Actor-Id", "bob")
	res, env := send(t, client, req)
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	assert.Equal(t, 2, decode[int](t, env))
	assert.Equal(t, "file import succeeded, rows: 2", env.Message)

	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/app/list?appName=portal", nil, asAlice)
	assert.EqualValues(t, 2, decode[record.Page[domain.App]](t, env).Total)
}

func workbook(t *testing.T, rows map[string][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for cell, values := range rows {
		values := values
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &values))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestImportIsAllOrNothingAcrossFiles(t *testing.T) {
	srv := newTestServer(t, legacyAuth())
	client := srv.Client()

	good := workbook(t, map[string][]interface{}{
		"A3": {"Project Name", "Priority"},
		"A4": {"first", "HIGH"},
	})
	bad := workbook(t, map[string][]interface{}{
		"A3": {"Project Name", "Priority"},
		"A4": {"second", "LOW"},
		"A6": {"third", "SOMEDAY"},
	})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range map[string][]byte{"good.xlsx": good, "bad.xlsx": bad} {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/project/importExcel", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Actor-Id", "alice")

	res, env := send(t, client, req)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, env.Message)
	assert.Equal(t, http.StatusUnprocessableEntity, env.Code)
	where := decode[map[string]any](t, env)
	assert.EqualValues(t, 6, where["row"])
	assert.Equal(t, "Priority", where["column"])

	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/project/list", nil, asAlice)
	assert.EqualValues(t, 0, decode[record.Page[domain.Project]](t, env).Total)
}

func TestConfigAndTemplateRoutes(t *testing.T) {
	srv := newTestServer(t, legacyAuth())
	client := srv.Client()

	res, env := doJSON(t, client, http.MethodPost, srv.URL+"/project/config/save?projectId=p1", []map[string]any{
		{"configType": "env", "configKey": "B", "sortOrder": 2},
		{"configType": "env", "configKey": "A", "sortOrder": 1},
	}, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	assert.Equal(t, 2, decode[int](t, env))

	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/project/config/listByProjectId?projectId=p1", nil, asAlice)
	configs := decode[[]domain.ProjectConfig](t, env)
	require.Len(t, configs, 2)
	assert.Equal(t, "A", configs[0].ConfigKey)
	assert.Equal(t, domain.Yes, configs[0].Enabled)

	res, env = doJSON(t, client, http.MethodPost, srv.URL+"/project/templates/add", map[string]any{
		"id": "t1", "templateName": "spring", "templateType": "backend", "enabled": "Y",
	}, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/project/templates/detail?templateId=t1", nil, asAlice)
	tpl := decode[domain.ProjectTemplate](t, env)
	require.NotNil(t, tpl.UsageCount)
	assert.Equal(t, 1, *tpl.UsageCount)

	res, env = doJSON(t, client, http.MethodPut, srv.URL+"/project/timeline/updateStatus?id=missing&status=COMPLETED", nil, asAlice)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func TestPermissionsFromDevToken(t *testing.T) {
	cfg := legacyAuth()
	cfg.EnforcePermissions = true
	srv := newTestServer(t, cfg)
	client := srv.Client()

	res, env := doJSON(t, client, http.MethodPost, srv.URL+"/auth/dev/login", map[string]any{
		"actorId":     "carol",
		"permissions": []string{"staff:list", "audit:*"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	token := decode[DevLoginResponse](t, env).Token
	bearer := map[string]string{"Authorization": "Bearer " + token}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/staff/list", nil, bearer)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, env = doJSON(t, client, http.MethodPost, srv.URL+"/staff/add", map[string]any{"name": "Dan"}, bearer)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, http.StatusForbidden, env.Code)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/staff/list", nil, asAlice)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	_, env = doJSON(t, client, http.MethodGet, srv.URL+"/me", nil, bearer)
	who := decode[WhoAmIResponse](t, env)
	assert.Equal(t, "carol", who.ActorID)
	assert.Equal(t, "jwt", who.Source)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/audit/list", nil, bearer)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/staff/list", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestAPIKeyAuthListsSeededProject(t *testing.T) {
	cfg := legacyAuth()
	cfg.EnforcePermissions = true
	srv := newTestServer(t, cfg)
	client := srv.Client()
	ctx := context.Background()

	testutil.SeedProject(t, ctx, srv.Engine.DB, domain.Project{
		Base:        domain.Base{ID: "p-seed"},
		ProjectName: "Seeded",
		ProjectCode: "SEED-1",
		Status:      domain.ProjectDeployed,
	})
	require.NoError(t, srv.Engine.Repo.InsertAPIKey(dbctx.New(ctx), domain.APIKey{
		ID:          "k1",
		ActorID:     "bot",
		KeyHash:     repo.HashAPIKey("dh_secret"),
		Permissions: "project:list,project:queryById",
	}))
	withKey := map[string]string{"X-Api-Key": "dh_secret"}

	res, env := doJSON(t, client, http.MethodGet, srv.URL+"/project/list?projectCode=SEED-1", nil, withKey)
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	page := decode[record.Page[domain.Project]](t, env)
	require.EqualValues(t, 1, page.Total)
	assert.Equal(t, "Seeded", page.Records[0].ProjectName)

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/project/delete?id=p-seed", nil, withKey)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/project/list", nil, map[string]string{"X-Api-Key": "dh_wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestAuditListRecordsMutations(t *testing.T) {
	srv := newTestServer(t, legacyAuth())
	client := srv.Client()
	doJSON(t, client, http.MethodPost, srv.URL+"/material/component/add", map[string]any{"name": "button"}, asAlice)
	doJSON(t, client, http.MethodPost, srv.URL+"/material/template/add", map[string]any{"name": "landing"}, asAlice)

	_, env := doJSON(t, client, http.MethodGet, srv.URL+"/audit/list?module="+engine.ModuleMaterialTemplate, nil, asAlice)
	page := decode[AuditPage](t, env)
	require.EqualValues(t, 1, page.Total)
	assert.Equal(t, "create", page.Records[0].Action)
	assert.Equal(t, "alice", page.Records[0].ActorID)
}

func TestOpenAPIIsPublic(t *testing.T) {
	srv := newTestServer(t, legacyAuth())
	res, err := srv.Client().Get(srv.URL + "/openapi.json")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&doc))
	paths, _ := doc["paths"].(map[string]any)
	assert.Contains(t, paths, "/api/staff/list")
	assert.Contains(t, paths, "/api/project/templates/detail")
}

func TestWebhookForwardsMatchingEvents(t *testing.T) {
	var mu sync.Mutex
	var got []webhookEvent
	var secrets []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		got = append(got, evt)
		secrets = append(secrets, r.Header.Get("X-Devhub-Secret"))
		mu.Unlock()
	}))
	defer hook.Close()

	e, err := engine.New(testutil.DB(t), config.Default(t.TempDir()), nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = e.Apps.Create(ctx, "alice", &domain.App{AppName: "before"})
	require.NoError(t, err)

	d := newWebhookDispatcher(e.Events, []config.WebhookConfig{{
		URL:    hook.URL,
		Events: []string{"app:create"},
		Secret: "s3cret",
	}}, nil)
	d.dispatchAll(ctx)

	id, err := e.Apps.Create(ctx, "alice", &domain.App{AppName: "after"})
	require.NoError(t, err)
	require.NoError(t, e.Apps.Delete(ctx, "alice", id))
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "app:create", got[0].Event)
	assert.Equal(t, id, got[0].EntityID)
	assert.Equal(t, "s3cret", secrets[0])
}

func TestEventFilter(t *testing.T) {
	f := newEventFilter([]string{"staff:*", "app:delete"})
	assert.True(t, f.match("staff", "update"))
	assert.True(t, f.match("app", "delete"))
	assert.False(t, f.match("app", "create"))
	assert.True(t, newEventFilter(nil).match("project", "import"))
}
