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

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Repo     repo.Repo
	BasePath string
}

const defaultActor = "api-user"

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"assignment not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Teamline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the error envelope.
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
	hcfg := huma.DefaultConfig("Teamline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Repo)
	registerAssignments(group, cfg.Engine, cfg.Repo)
	registerDays(group, cfg.Engine, cfg.Repo)
	registerGroups(group, cfg.Engine, cfg.Repo)
	registerMaintenance(group, cfg.Engine)
	registerEvents(group, cfg.Repo)
	registerOpenAPI(router, api, basePath)

	return router, nil
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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrInvalidRange) {
		return newAPIError(http.StatusBadRequest, "invalid_range", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func actorOrDefault(header string) string {
	if header == "" {
		return defaultActor
	}
	return header
}

func requireDates(dates ...string) huma.StatusError {
	for _, d := range dates {
		if !engine.ValidDay(d) {
			return newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid date %q, want YYYY-MM-DD", d), map[string]any{"date": d})
		}
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Teamline API Docs</title>
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
  </body>
</html>`, specURL)
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Workspace status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body statusResponse `json:"body"`
	}, error) {
		counts, err := r.Counts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body statusResponse `json:"body"`
		}{Body: statusResponse{Counts: counts}}, nil
	})
}

func registerAssignments(api huma.API, e engine.Engine, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-assignment",
		Method:        http.MethodPost,
		Path:          "/assignments",
		Summary:       "Register a project-member assignment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ActorID string                  `header:"X-Actor-Id"`
		Body    CreateAssignmentRequest `json:"body"`
	}) (*struct {
		Body domain.Assignment `json:"body"`
	}, error) {
		opts := engine.AssignmentCreateOptions{
			ProjectID: input.Body.ProjectID,
			MemberID:  input.Body.MemberID,
			ActorID:   actorOrDefault(input.ActorID),
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Label != nil {
			opts.Label = *input.Body.Label
		}
		a, err := e.CreateAssignment(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Assignment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/assignments",
		Summary:     "List assignments",
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		MemberID  string `query:"member_id"`
	}) (*struct {
		Body listAssignments `json:"body"`
	}, error) {
		items, err := r.ListAssignments(ctx, repo.AssignmentFilters{ProjectID: input.ProjectID, MemberID: input.MemberID})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Assignment{}
		}
		return &struct {
			Body listAssignments `json:"body"`
		}{Body: listAssignments{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{id}",
		Summary:     "Get assignment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Assignment `json:"body"`
	}, error) {
		a, err := r.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Assignment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-assignment",
		Method:      http.MethodDelete,
		Path:        "/assignments/{id}",
		Summary:     "Delete assignment with its days and groups",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		ActorID string `header:"X-Actor-Id"`
	}) (*struct{}, error) {
		if err := e.DeleteAssignment(ctx, input.ID, actorOrDefault(input.ActorID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDays(api huma.API, e engine.Engine, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-days",
		Method:      http.MethodGet,
		Path:        "/assignments/{id}/days",
		Summary:     "List day assignments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body listDays `json:"body"`
	}, error) {
		if _, err := r.GetAssignment(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := r.ListDays(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.DayAssignment{}
		}
		return &struct {
			Body listDays `json:"body"`
		}{Body: listDays{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-day",
		Method:        http.MethodPost,
		Path:          "/assignments/{id}/days",
		Summary:       "Add one scheduled day",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string           `path:"id"`
		ActorID string           `header:"X-Actor-Id"`
		Body    CreateDayRequest `json:"body"`
	}) (*struct {
		Body engine.MergeOutcome `json:"body"`
	}, error) {
		if err := requireDates(input.Body.Date); err != nil {
			return nil, err
		}
		comment := ""
		if input.Body.Comment != nil {
			comment = *input.Body.Comment
		}
		outcome, err := e.AddDay(ctx, input.ID, input.Body.Date, comment, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.MergeOutcome `json:"body"`
		}{Body: outcome}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-days-batch",
		Method:        http.MethodPost,
		Path:          "/assignments/{id}/days/batch",
		Summary:       "Add many scheduled days and reconcile",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string           `path:"id"`
		ActorID string           `header:"X-Actor-Id"`
		Body    BatchDaysRequest `json:"body"`
	}) (*struct {
		Body engine.ReconcileOutcome `json:"body"`
	}, error) {
		if len(input.Body.Dates) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "dates are required", nil)
		}
		if err := requireDates(input.Body.Dates...); err != nil {
			return nil, err
		}
		opts := engine.DaysCreateOptions{
			AssignmentID:   input.ID,
			Dates:          input.Body.Dates,
			ExpandAdjacent: input.Body.ExpandAdjacent,
			ActorID:        actorOrDefault(input.ActorID),
		}
		if input.Body.Comment != nil {
			opts.Comment = *input.Body.Comment
		}
		outcome, err := e.AddDays(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReconcileOutcome `json:"body"`
		}{Body: outcome}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-day",
		Method:      http.MethodDelete,
		Path:        "/assignments/{id}/days/{date}",
		Summary:     "Remove one scheduled day",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		Date    string `path:"date"`
		ActorID string `header:"X-Actor-Id"`
	}) (*struct {
		Body engine.SplitOutcome `json:"body"`
	}, error) {
		if err := requireDates(input.Date); err != nil {
			return nil, err
		}
		outcome, err := e.RemoveDay(ctx, input.ID, input.Date, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SplitOutcome `json:"body"`
		}{Body: outcome}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-days",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/days/move",
		Summary:     "Move a contiguous day range",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string          `path:"id"`
		ActorID string          `header:"X-Actor-Id"`
		Body    MoveDaysRequest `json:"body"`
	}) (*struct {
		Body engine.MoveOutcome `json:"body"`
	}, error) {
		if err := requireDates(input.Body.FromStart, input.Body.FromEnd, input.Body.ToStart); err != nil {
			return nil, err
		}
		outcome, err := e.MoveDays(ctx, engine.MoveOptions{
			AssignmentID: input.ID,
			FromStart:    input.Body.FromStart,
			FromEnd:      input.Body.FromEnd,
			ToStart:      input.Body.ToStart,
			ActorID:      actorOrDefault(input.ActorID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.MoveOutcome `json:"body"`
		}{Body: outcome}, nil
	})
}

func registerGroups(api huma.API, e engine.Engine, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-groups",
		Method:      http.MethodGet,
		Path:        "/assignments/{id}/groups",
		Summary:     "List assignment groups",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body listGroups `json:"body"`
	}, error) {
		if _, err := r.GetAssignment(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := r.ListGroups(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.AssignmentGroup{}
		}
		return &struct {
			Body listGroups `json:"body"`
		}{Body: listGroups{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-group",
		Method:      http.MethodPatch,
		Path:        "/groups/{id}",
		Summary:     "Update group priority or comment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string             `path:"id"`
		ActorID string             `header:"X-Actor-Id"`
		Body    UpdateGroupRequest `json:"body"`
	}) (*struct {
		Body domain.AssignmentGroup `json:"body"`
	}, error) {
		g, err := e.SetGroupMeta(ctx, engine.GroupMetaOptions{
			GroupID:  input.ID,
			Priority: input.Body.Priority,
			Comment:  input.Body.Comment,
			ActorID:  actorOrDefault(input.ActorID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AssignmentGroup `json:"body"`
		}{Body: g}, nil
	})
}

func registerMaintenance(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "reconcile-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/reconcile",
		Summary:     "Run cross-entity reconciliation",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string           `path:"id"`
		ActorID string           `header:"X-Actor-Id"`
		Body    ReconcileRequest `json:"body"`
	}) (*struct {
		Body engine.ReconcileOutcome `json:"body"`
	}, error) {
		if err := requireDates(input.Body.TouchedDates...); err != nil {
			return nil, err
		}
		outcome, err := e.Reconcile(ctx, input.ID, input.Body.TouchedDates, engine.ReconcileOptions{ExpandAdjacent: input.Body.ExpandAdjacent}, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReconcileOutcome `json:"body"`
		}{Body: outcome}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rebuild-groups",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/rebuild",
		Summary:     "Rebuild groups from live days",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		ActorID string `header:"X-Actor-Id"`
	}) (*struct {
		Body engine.RebuildOutcome `json:"body"`
	}, error) {
		outcome, err := e.RebuildGroups(ctx, input.ID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.RebuildOutcome `json:"body"`
		}{Body: outcome}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cleanup-orphans",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/cleanup",
		Summary:     "Delete orphaned groups",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		ActorID string `header:"X-Actor-Id"`
	}) (*struct {
		Body cleanupResponse `json:"body"`
	}, error) {
		deleted, err := e.CleanupOrphans(ctx, input.ID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		if deleted == nil {
			deleted = []string{}
		}
		return &struct {
			Body cleanupResponse `json:"body"`
		}{Body: cleanupResponse{DeletedGroupIDs: deleted}}, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssignmentID string `query:"assignment_id"`
		Type         string `query:"type"`
		Limit        int    `query:"limit" default:"50"`
		Cursor       string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		var cursor int64
		if input.Cursor != "" {
			v, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursor = v
		}
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		items, err := r.LatestEventsFrom(ctx, limit+1, cursor, input.AssignmentID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []eventView{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit].ID, 10)
			items = items[:limit]
		}
		resp.Items = eventViews(items)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
