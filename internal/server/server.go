package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"

	"devhub/internal/audit"
	"devhub/internal/dbctx"
	"devhub/internal/engine"
	"devhub/internal/engine/auth"
	"devhub/internal/logger"
	"devhub/internal/record"
)

// DefaultBasePath prefixes every API route unless configured otherwise.
const DefaultBasePath = "/api"

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
	Log      *logger.Logger
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError is the error form of the {code, message, data} envelope. Code repeats the
// HTTP status.
type apiError struct {
	status  int
	Code    int    `json:"code" example:"400"`
	Message string `json:"message" example:"status: unknown value \"9\""`
	Data    any    `json:"data"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

type server struct {
	eng   *engine.Engine
	perms auth.Service
	log   *logger.Logger
}

// New returns an HTTP handler exposing the devhub API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = cfg.Engine.Log
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	s := &server{
		eng:   cfg.Engine,
		perms: auth.Service{Enforce: cfg.Auth.EnforcePermissions},
		log:   log,
	}

	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIErrorData(status, msg, errorDetails(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Request validation errors are reported as 400.
			status = http.StatusBadRequest
		}
		return newAPIErrorData(status, msg, errorDetails(errs))
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(accessLog(log))
	router.Use(middleware.Recoverer)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("devhub API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	s.registerModules(group)
	s.registerAudit(group)
	s.registerMe(group)
	if cfg.Auth.DevLogin {
		s.registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, message string) huma.StatusError {
	return newAPIErrorData(status, message, nil)
}

func newAPIErrorData(status int, message string, data any) huma.StatusError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &apiError{status: status, Code: status, Message: message, Data: data}
}

func errorDetails(errs []error) any {
	if len(errs) == 0 {
		return nil
	}
	return lo.Map(errs, func(err error, _ int) string { return err.Error() })
}

// handleError maps service errors onto the envelope. Persistence failures are logged
// and reported with a generic message.
func (s *server) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIErrorData(http.StatusForbidden, err.Error(), map[string]any{"permission": fe.Permission})
	}
	var ie *record.ImportError
	if errors.As(err, &ie) {
		return newAPIErrorData(http.StatusUnprocessableEntity, "file import failed: "+ie.Error(), map[string]any{
			"row":    ie.Row,
			"column": ie.Column,
		})
	}
	if errors.Is(err, record.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "record not found")
	}
	var ve *record.ValidationError
	if errors.As(err, &ve) {
		return newAPIErrorData(http.StatusBadRequest, ve.Error(), map[string]any{"field": ve.Field})
	}
	s.log.Error("request failed", "error", err)
	return newAPIError(http.StatusInternalServerError, "operation failed")
}

// require resolves the caller and checks the module:op permission.
func (s *server) require(ctx context.Context, module, op string) (Principal, error) {
	return requirePermission(ctx, s.perms, module, op)
}

func accessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func operations(item *huma.PathItem) []*huma.Operation {
	return lo.Compact([]*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>devhub API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*resultOutput[map[string]string], error) {
		return ok(map[string]string{"status": "ok"}), nil
	})
}

func (s *server) registerAudit(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "audit-list",
		Method:      http.MethodGet,
		Path:        "/audit/list",
		Summary:     "List audit events, newest first",
		Tags:        []string{"audit"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		pageInput
		Module   string `query:"module"`
		EntityID string `query:"entityId"`
		ActorID  string `query:"actorId"`
	}) (*resultOutput[AuditPage], error) {
		if _, err := s.require(ctx, "audit", "list"); err != nil {
			return nil, s.handleError(err)
		}
		page, size := pageOrDefault(input.PageNo, input.PageSize)
		events, total, err := s.eng.Events.List(dbctx.New(ctx), audit.Filter{
			Module:   input.Module,
			EntityID: input.EntityID,
			ActorID:  input.ActorID,
		}, size, (page-1)*size)
		if err != nil {
			return nil, s.handleError(err)
		}
		return ok(AuditPage{
			Records: nonNilSlice(events),
			Total:   total,
			Size:    size,
			Current: page,
		}), nil
	})
}

func (s *server) registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Tags:        []string{"auth"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*resultOutput[WhoAmIResponse], error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return ok(WhoAmIResponse{
			ActorID:     principal.ActorID,
			Permissions: nonNilSlice(principal.Permissions),
			Source:      principal.Source,
		}), nil
	})
}

func (s *server) registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Tags:        []string{"auth"},
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest
	}) (*resultOutput[DevLoginResponse], error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "body required")
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "actorId is required")
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Permissions, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, err.Error())
		}
		return ok(DevLoginResponse{Token: token}), nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

// queryParams returns the raw query string of the current request. List and export
// filters are open-ended, so they are read here rather than declared on the input.
func queryParams(ctx context.Context) url.Values {
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return url.Values{}
	}
	return req.URL.Query()
}

func pageOrDefault(page, size int) (int, int) {
	if page <= 0 {
		page = record.DefaultPage
	}
	if size <= 0 {
		size = record.DefaultPageSize
	}
	return page, size
}
