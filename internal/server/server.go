package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"oversight/internal/domain"
	"oversight/internal/engine"
	"oversight/internal/engine/auth"
	"oversight/internal/geofence"
	"oversight/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *log.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"object is planned, not awaiting approval"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type output[T any] struct {
	Body T
}

func respond[T any](v T) *output[T] {
	return &output[T]{Body: v}
}

// New returns an HTTP handler exposing the oversight API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Oversight API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerObjects(group, cfg.Engine)
	registerSchedules(group, cfg.Engine)
	registerWorkItems(group, cfg.Engine)
	registerViolations(group, cfg.Engine)
	registerDeliveryNotes(group, cfg.Engine)
	registerLabSamples(group, cfg.Engine)
	registerGeofence(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	if cfg.Auth.AllowActorHeader && cfg.Auth.JWTSecret != "" {
		registerDevAuth(group, cfg.Engine, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger == nil {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
				"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"role": fe.Role, "action": fe.Action})
	}
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidState):
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invalid_state"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func operationsOf(item *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace}
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operationsOf(item) {
			if op == nil {
				continue
			}
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
	open := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range operationsOf(item) {
			if op == nil {
				continue
			}
			if open[route] {
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
    <title>Oversight API Docs</title>
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
	}, func(ctx context.Context, _ *struct{}) (*output[map[string]string], error) {
		return respond(map[string]string{"status": "ok"}), nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[MeResponse], error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return respond(MeResponse{
			ActorID:     p.ActorID,
			Role:        string(p.Role),
			Source:      p.Source,
			DisplayName: e.DisplayName(ctx, p.ActorID),
		}), nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Add a user to the directory",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest
	}) (*output[domain.User], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.RequireAdmin(actor.Role, "create users"); err != nil {
			return nil, handleError(err)
		}
		u, err := e.CreateUser(ctx, actor.ID, engine.UserCreateOptions{
			ID:           input.Body.ID,
			Login:        input.Body.Login,
			DisplayName:  input.Body.DisplayName,
			Role:         domain.Role(input.Body.Role),
			Organization: input.Body.Organization,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, input *struct {
		Role string `query:"role" enum:"admin,control,contractor,inspector"`
	}) (*output[paginatedUsers], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		users, err := e.Repo.ListUsers(ctx, domain.Role(input.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(paginatedUsers{Items: nonNilSlice(users)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*output[domain.User], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(fmt.Errorf("user %s: %w", input.UserID, err))
		}
		return respond(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/api-keys",
		Summary:       "Issue an API key; the key is shown once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Body   CreateAPIKeyRequest
	}) (*output[APIKeyResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if actor.ID != input.UserID {
			if err := auth.RequireAdmin(actor.Role, "issue keys for other users"); err != nil {
				return nil, handleError(err)
			}
		}
		key, plain, err := e.CreateAPIKey(ctx, input.UserID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(APIKeyResponse{ID: key.ID, UserID: key.UserID, Name: key.Name, Key: plain, CreatedAt: key.CreatedAt}), nil
	})
}

func objectResponse(ctx context.Context, e engine.Engine, o domain.ConstructionObject) ObjectResponse {
	return ObjectResponse{
		ConstructionObject: o,
		CreatedByName:      e.DisplayName(ctx, o.CreatedBy),
		ControlName:        e.DisplayName(ctx, o.ControlUserID),
		ContractorName:     e.DisplayName(ctx, o.ContractorUserID),
		InspectorName:      e.DisplayName(ctx, o.InspectorUserID),
	}
}

// objectResult maps an engine result for an object-returning operation.
func objectResult(ctx context.Context, e engine.Engine, o domain.ConstructionObject, err error) (*output[ObjectResponse], error) {
	if err != nil {
		return nil, handleError(err)
	}
	return respond(objectResponse(ctx, e, o)), nil
}

func uploadOf(name, docType string, body []byte) engine.DocumentUpload {
	return engine.DocumentUpload{Name: name, Type: docType, Data: body}
}

const uploadLimit = int64(engine.MaxDocumentBytes) + 1

func registerObjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-object",
		Method:        http.MethodPost,
		Path:          "/objects",
		Summary:       "Create a construction object in planned with its journal",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateObjectRequest
	}) (*output[ObjectResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ObjectCreateOptions{
			ID:          input.Body.ID,
			Name:        input.Body.Name,
			Address:     input.Body.Address,
			Description: input.Body.Description,
		}
		for _, p := range input.Body.Polygon {
			opts.Polygon = append(opts.Polygon, domain.Point{Lat: p.Lat, Lng: p.Lng})
		}
		if s := input.Body.Schedule; s != nil {
			opts.Schedule = &engine.ScheduleInput{StartDate: s.StartDate, EndDate: s.EndDate}
			for _, w := range s.WorkItems {
				opts.Schedule.WorkItems = append(opts.Schedule.WorkItems, engine.WorkItemInput{
					ID: w.ID, Name: w.Name, Description: w.Description, Unit: w.Unit,
					Amount: w.Amount, StartDate: w.StartDate, EndDate: w.EndDate,
				})
			}
		}
		o, err := e.CreateObject(ctx, actor, opts)
		return objectResult(ctx, e, o, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-objects",
		Method:      http.MethodGet,
		Path:        "/objects",
		Summary:     "List objects visible to the caller",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
	}) (*output[paginatedObjects], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListObjects(ctx, actor, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedObjects{Items: []ObjectResponse{}}
		for _, o := range items {
			resp.Items = append(resp.Items, objectResponse(ctx, e, o))
		}
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-object",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}",
		Summary:     "Get object",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
	}) (*output[ObjectResponse], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		o, err := e.GetObject(ctx, input.ObjectID)
		return objectResult(ctx, e, o, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-control",
		Method:      http.MethodPost,
		Path:        "/objects/{object_id}/control",
		Summary:     "Assign construction control",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
		Body     AssignControlRequest
	}) (*output[ObjectResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.AssignControl(ctx, actor, input.ObjectID, input.Body.ControlUserID)
		return objectResult(ctx, e, o, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-object",
		Method:      http.MethodPost,
		Path:        "/objects/{object_id}/activate",
		Summary:     "Appoint contractor and control; planned to assigned",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
		Body     ActivateRequest
	}) (*output[ObjectResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.ActivateWithContractor(ctx, actor, input.ObjectID, input.Body.ContractorID, input.Body.ControlUserID)
		return objectResult(ctx, e, o, err)
	})

	huma.Register(api, huma.Operation{
		OperationID:  "upload-object-document",
		Method:       http.MethodPost,
		Path:         "/objects/{object_id}/documents",
		Summary:      "Upload a document; type=opening_act starts activation",
		MaxBodyBytes: uploadLimit,
		Errors:       []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
		Name     string `query:"name" required:"true"`
		Type     string `query:"type"`
		RawBody  []byte
	}) (*output[ObjectResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.AttachObjectDocument(ctx, actor, input.ObjectID, uploadOf(input.Name, input.Type, input.RawBody))
		return objectResult(ctx, e, o, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-opening-act",
		Method:      http.MethodPost,
		Path:        "/objects/{object_id}/documents/{document_id}/approval",
		Summary:     "Approve or reject an opening act",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID   string `path:"object_id"`
		DocumentID string `path:"document_id"`
		Body       DecisionRequest
	}) (*output[ObjectResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.ApproveOpeningAct(ctx, actor, input.ObjectID, input.DocumentID, input.Body.Approved)
		return objectResult(ctx, e, o, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-journal",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}/journal",
		Summary:     "Get the object's journal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
	}) (*output[domain.Journal], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		j, err := e.Journal(ctx, input.ObjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(j), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-journal",
		Method:      http.MethodPost,
		Path:        "/objects/{object_id}/journal/archive",
		Summary:     "Archive the object's journal",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
	}) (*output[domain.Journal], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.ArchiveJournal(ctx, actor, input.ObjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(j), nil
	})
}

func registerSchedules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-schedule",
		Method:      http.MethodPut,
		Path:        "/objects/{object_id}/schedule",
		Summary:     "Change or propose object schedule dates",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
		Body     DateChangeRequest
	}) (*output[ObjectResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.UpdateSchedule(ctx, actor, input.ObjectID, engine.DateChange{StartDate: input.Body.StartDate, EndDate: input.Body.EndDate})
		return objectResult(ctx, e, o, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-schedule",
		Method:      http.MethodPost,
		Path:        "/objects/{object_id}/schedule/approval",
		Summary:     "Approve or reject a proposed object schedule",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
		Body     DecisionRequest
	}) (*output[ObjectResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.ResolveSchedule(ctx, actor, input.ObjectID, input.Body.Approved)
		return objectResult(ctx, e, o, err)
	})
}

func registerWorkItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-work-item-schedule",
		Method:      http.MethodPut,
		Path:        "/objects/{object_id}/work-items/{work_item_id}/schedule",
		Summary:     "Change or propose work item dates",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID   string `path:"object_id"`
		WorkItemID string `path:"work_item_id"`
		Body       DateChangeRequest
	}) (*output[ObjectResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		change := engine.DateChange{StartDate: input.Body.StartDate, EndDate: input.Body.EndDate}
		o, err := e.UpdateWorkItemSchedule(ctx, actor, input.ObjectID, input.WorkItemID, change)
		return objectResult(ctx, e, o, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-work-item-schedule",
		Method:      http.MethodPost,
		Path:        "/objects/{object_id}/work-items/{work_item_id}/schedule/approval",
		Summary:     "Approve or reject proposed work item dates",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID   string `path:"object_id"`
		WorkItemID string `path:"work_item_id"`
		Body       DecisionRequest
	}) (*output[ObjectResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.ResolveWorkItemSchedule(ctx, actor, input.ObjectID, input.WorkItemID, input.Body.Approved)
		return objectResult(ctx, e, o, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-work-item-status",
		Method:      http.MethodPut,
		Path:        "/objects/{object_id}/work-items/{work_item_id}/status",
		Summary:     "Set a work item status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID   string `path:"object_id"`
		WorkItemID string `path:"work_item_id"`
		Body       WorkStatusRequest
	}) (*output[ObjectResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.UpdateWorkItemStatus(ctx, actor, input.ObjectID, input.WorkItemID, domain.WorkStatus(input.Body.Status))
		return objectResult(ctx, e, o, err)
	})
}

func registerViolations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "raise-violation",
		Method:        http.MethodPost,
		Path:          "/objects/{object_id}/violations",
		Summary:       "Raise a violation in the object's journal",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
		Body     CreateViolationRequest
	}) (*output[domain.Violation], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := engine.ViolationInput{
			Category:                  input.Body.Category,
			Fixability:                domain.Fixability(input.Body.Fixability),
			Type:                      domain.ViolationType(input.Body.Type),
			Name:                      input.Body.Name,
			FixDeadlineDays:           input.Body.FixDeadlineDays,
			InspectorLocationVerified: input.Body.InspectorLocationVerified,
		}
		if l := input.Body.Location; l != nil {
			in.Location = &domain.Location{Lat: l.Lat, Lng: l.Lng, Accuracy: l.Accuracy, Timestamp: l.Timestamp}
		}
		v, err := e.RaiseViolation(ctx, actor, input.ObjectID, in)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-violations",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}/violations",
		Summary:     "List violations newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
	}) (*output[paginatedViolations], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListViolations(ctx, input.ObjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(paginatedViolations{Items: nonNilSlice(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-violation",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}/violations/{violation_id}",
		Summary:     "Get violation with responses",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID    string `path:"object_id"`
		ViolationID string `path:"violation_id"`
	}) (*output[domain.Violation], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		v, err := e.GetViolation(ctx, input.ObjectID, input.ViolationID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "upload-violation-document",
		Method:       http.MethodPost,
		Path:         "/objects/{object_id}/violations/{violation_id}/documents",
		Summary:      "Attach evidence to a violation",
		MaxBodyBytes: uploadLimit,
		Errors:       []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID    string `path:"object_id"`
		ViolationID string `path:"violation_id"`
		Name        string `query:"name" required:"true"`
		Type        string `query:"type"`
		RawBody     []byte
	}) (*output[domain.Violation], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.AttachViolationDocument(ctx, actor, input.ObjectID, input.ViolationID, uploadOf(input.Name, input.Type, input.RawBody))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-violation-response",
		Method:        http.MethodPost,
		Path:          "/objects/{object_id}/violations/{violation_id}/responses",
		Summary:       "Respond to a violation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID    string `path:"object_id"`
		ViolationID string `path:"violation_id"`
		Body        CreateResponseRequest
	}) (*output[domain.ViolationResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.CreateResponse(ctx, actor, input.ObjectID, input.ViolationID, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-violation-responses",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}/violations/{violation_id}/responses",
		Summary:     "List responses newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID    string `path:"object_id"`
		ViolationID string `path:"violation_id"`
	}) (*output[paginatedResponses], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListResponses(ctx, input.ObjectID, input.ViolationID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(paginatedResponses{Items: nonNilSlice(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "upload-response-document",
		Method:       http.MethodPost,
		Path:         "/objects/{object_id}/violations/{violation_id}/responses/{response_id}/documents",
		Summary:      "Attach a file to a response",
		MaxBodyBytes: uploadLimit,
		Errors:       []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID    string `path:"object_id"`
		ViolationID string `path:"violation_id"`
		ResponseID  string `path:"response_id"`
		Name        string `query:"name" required:"true"`
		Type        string `query:"type"`
		RawBody     []byte
	}) (*output[domain.ViolationResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.AttachResponseDocument(ctx, actor, input.ObjectID, input.ViolationID, input.ResponseID, uploadOf(input.Name, input.Type, input.RawBody))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-violation-response-status",
		Method:      http.MethodPut,
		Path:        "/objects/{object_id}/violations/{violation_id}/responses/{response_id}/status",
		Summary:     "Approve a response or send it back for revision",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID    string `path:"object_id"`
		ViolationID string `path:"violation_id"`
		ResponseID  string `path:"response_id"`
		Body        ResponseStatusRequest
	}) (*output[domain.ViolationResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.SetResponseStatus(ctx, actor, input.ObjectID, input.ViolationID, input.ResponseID,
			domain.ResponseStatus(input.Body.Status), input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(r), nil
	})
}

func registerDeliveryNotes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-delivery-note",
		Method:        http.MethodPost,
		Path:          "/objects/{object_id}/work-items/{work_item_id}/delivery-notes",
		Summary:       "File a delivery note for a work item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID   string `path:"object_id"`
		WorkItemID string `path:"work_item_id"`
		Body       CreateDeliveryNoteRequest
	}) (*output[domain.DeliveryNote], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.CreateDeliveryNote(ctx, actor, input.ObjectID, input.WorkItemID, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(n), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-delivery-notes",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}/work-items/{work_item_id}/delivery-notes",
		Summary:     "List a work item's delivery notes newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID   string `path:"object_id"`
		WorkItemID string `path:"work_item_id"`
	}) (*output[paginatedDeliveryNotes], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListDeliveryNotes(ctx, input.ObjectID, input.WorkItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(paginatedDeliveryNotes{Items: nonNilSlice(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-delivery-note",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}/work-items/{work_item_id}/delivery-notes/{note_id}",
		Summary:     "Get a delivery note",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID   string `path:"object_id"`
		WorkItemID string `path:"work_item_id"`
		NoteID     string `path:"note_id"`
	}) (*output[domain.DeliveryNote], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		n, err := e.GetDeliveryNote(ctx, input.ObjectID, input.WorkItemID, input.NoteID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(n), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "upload-delivery-note-document",
		Method:       http.MethodPost,
		Path:         "/objects/{object_id}/work-items/{work_item_id}/delivery-notes/{note_id}/documents",
		Summary:      "Attach a waybill or certificate to a delivery note",
		MaxBodyBytes: uploadLimit,
		Errors:       []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID   string `path:"object_id"`
		WorkItemID string `path:"work_item_id"`
		NoteID     string `path:"note_id"`
		Name       string `query:"name" required:"true"`
		Type       string `query:"type"`
		RawBody    []byte
	}) (*output[domain.DeliveryNote], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.AttachDeliveryNoteDocument(ctx, actor, input.ObjectID, input.WorkItemID, input.NoteID, uploadOf(input.Name, input.Type, input.RawBody))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(n), nil
	})
}

func registerLabSamples(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-lab-sample",
		Method:        http.MethodPost,
		Path:          "/objects/{object_id}/lab-samples",
		Summary:       "Request laboratory testing of a material",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
		Body     CreateLabSampleRequest
	}) (*output[domain.LabSample], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateLabSample(ctx, actor, input.ObjectID, input.Body.MaterialName, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-lab-samples",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}/lab-samples",
		Summary:     "List an object's lab samples newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
	}) (*output[paginatedLabSamples], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListLabSamples(ctx, input.ObjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(paginatedLabSamples{Items: nonNilSlice(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-lab-sample",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}/lab-samples/{sample_id}",
		Summary:     "Get a lab sample",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
		SampleID string `path:"sample_id"`
	}) (*output[domain.LabSample], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		s, err := e.GetLabSample(ctx, input.ObjectID, input.SampleID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-lab-sample-status",
		Method:      http.MethodPut,
		Path:        "/objects/{object_id}/lab-samples/{sample_id}/status",
		Summary:     "Advance a lab sample",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
		SampleID string `path:"sample_id"`
		Body     LabSampleStatusRequest
	}) (*output[domain.LabSample], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.SetLabSampleStatus(ctx, actor, input.ObjectID, input.SampleID, domain.SampleStatus(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})
}

func registerGeofence(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "check-geofence",
		Method:      http.MethodPost,
		Path:        "/objects/{object_id}/geofence/check",
		Summary:     "Check a reported position against the object boundary",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectID string `path:"object_id"`
		Body     GeofenceCheckRequest
	}) (*output[engine.GeofenceResult], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		pos := geofence.Position{Lat: input.Body.Lat, Lng: input.Body.Lng, Accuracy: input.Body.Accuracy, Timestamp: time.Now()}
		res, err := e.CheckPosition(ctx, input.ObjectID, pos)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ObjectID   string `query:"object_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*output[paginatedEvents], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			ObjectID:   input.ObjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return respond(resp), nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for a directory user",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest
	}) (*output[DevLoginResponse], error) {
		id := strings.TrimSpace(input.Body.UserID)
		if id == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		u, err := e.Repo.GetUser(ctx, id)
		if err != nil {
			return nil, handleError(fmt.Errorf("user %s: %w", id, err))
		}
		token, err := IssueToken(authCfg.JWTSecret, u.ID, u.Role, 12*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return respond(DevLoginResponse{Token: token}), nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
