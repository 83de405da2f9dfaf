package snapshothttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-dbsnapshot/command"
	"github.com/goliatone/go-dbsnapshot/query"
	"github.com/goliatone/go-dbsnapshot/snapshot"
	errorslib "github.com/goliatone/go-errors"
)

const defaultBasePath = "/runs"

// RunTrigger starts a snapshot run.
type RunTrigger interface {
	Execute(ctx context.Context, msg command.RunSnapshot) error
}

// StatusQuery returns one run record.
type StatusQuery interface {
	Query(ctx context.Context, msg query.RunStatus) (snapshot.RunRecord, error)
}

// HistoryQuery returns past run records.
type HistoryQuery interface {
	Query(ctx context.Context, msg query.RunHistory) ([]snapshot.RunRecord, error)
}

// Config configures the HTTP adapter.
type Config struct {
	Trigger   RunTrigger
	Status    StatusQuery
	History   HistoryQuery
	Format    snapshot.Format
	Directory string
	BasePath  string
}

// Handler exposes snapshot runs over HTTP.
type Handler struct {
	cfg Config
}

// NewHandler creates a new HTTP handler.
func NewHandler(cfg Config) *Handler {
	if strings.TrimSpace(cfg.BasePath) == "" {
		cfg.BasePath = defaultBasePath
	}
	cfg.BasePath = "/" + strings.Trim(cfg.BasePath, "/")
	return &Handler{cfg: cfg}
}

// RegisterRoutes mounts the health check and run endpoints on router.
func (h *Handler) RegisterRoutes(router fiber.Router) {
	router.Get("/healthz", h.health)
	router.Get(h.cfg.BasePath, h.listRuns)
	router.Post(h.cfg.BasePath, h.triggerRun)
	router.Get(h.cfg.BasePath+"/:id", h.getRun)
}

// RunRequest is the optional body of a trigger request. Runs always write to
// the configured directory; a request that names one is rejected.
type RunRequest struct {
	Format    string `json:"format"`
	Directory string `json:"dir"`
}

// ErrorResponse describes JSON error responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains error details.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (h *Handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) triggerRun(c *fiber.Ctx) error {
	if h.cfg.Trigger == nil {
		return writeError(c, snapshot.NewError(snapshot.KindInternal, "run trigger not configured", nil))
	}

	var body RunRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, snapshot.NewError(snapshot.KindValidation, "request body is invalid", err))
		}
	}
	msg := command.RunSnapshot{
		Format:    h.cfg.Format,
		Directory: h.cfg.Directory,
	}
	if strings.TrimSpace(body.Format) != "" {
		msg.Format = snapshot.Format(body.Format)
	}
	if strings.TrimSpace(body.Directory) != "" {
		return writeError(c, snapshot.NewError(snapshot.KindValidation, "output directory cannot be set per request", nil))
	}

	var result snapshot.RunResult
	msg.Result = &result
	if err := h.cfg.Trigger.Execute(c.UserContext(), msg); err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(newRunResponse(result))
}

func (h *Handler) getRun(c *fiber.Ctx) error {
	if h.cfg.Status == nil {
		return writeError(c, snapshot.NewError(snapshot.KindInternal, "run tracker not configured", nil))
	}
	record, err := h.cfg.Status.Query(c.UserContext(), query.RunStatus{RunID: c.Params("id")})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(record)
}

func (h *Handler) listRuns(c *fiber.Ctx) error {
	if h.cfg.History == nil {
		return writeError(c, snapshot.NewError(snapshot.KindInternal, "run tracker not configured", nil))
	}
	filter, err := parseFilter(c)
	if err != nil {
		return writeError(c, err)
	}
	records, err := h.cfg.History.Query(c.UserContext(), query.RunHistory{Filter: filter})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"runs": records})
}

type runResponse struct {
	ID      string               `json:"id"`
	State   snapshot.RunState    `json:"state"`
	Path    string               `json:"path,omitempty"`
	Tables  int                  `json:"tables"`
	Rows    int64                `json:"rows"`
	Skipped []snapshot.TableName `json:"skipped,omitempty"`
	Elapsed string               `json:"elapsed"`
}

func newRunResponse(result snapshot.RunResult) runResponse {
	return runResponse{
		ID:      result.ID,
		State:   result.State,
		Path:    result.Path,
		Tables:  result.Tables,
		Rows:    result.Rows,
		Skipped: result.Skipped,
		Elapsed: result.Elapsed.String(),
	}
}

func parseFilter(c *fiber.Ctx) (snapshot.RunFilter, error) {
	filter := snapshot.RunFilter{State: snapshot.RunState(c.Query("state"))}
	if since := c.Query("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, snapshot.NewError(snapshot.KindValidation, "since must be RFC3339", err)
		}
		filter.Since = ts
	}
	if until := c.Query("until"); until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return filter, snapshot.NewError(snapshot.KindValidation, "until must be RFC3339", err)
		}
		filter.Until = ts
	}
	if limit := c.Query("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil {
			return filter, snapshot.NewError(snapshot.KindValidation, "limit must be a number", err)
		}
		filter.Limit = parsed
	}
	return filter, nil
}

func writeError(c *fiber.Ctx, err error) error {
	ge := snapshot.AsGoError(err)
	return c.Status(statusForError(ge)).JSON(ErrorResponse{
		Error: ErrorBody{Message: ge.Message, Code: ge.TextCode},
	})
}

func statusForError(err *errorslib.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	switch err.Category {
	case errorslib.CategoryValidation:
		return http.StatusBadRequest
	case errorslib.CategoryNotFound:
		return http.StatusNotFound
	case errorslib.CategoryExternal:
		return http.StatusBadGateway
	case errorslib.CategoryOperation:
		switch err.TextCode {
		case "conflict", "canceled":
			return http.StatusConflict
		case "timeout":
			return http.StatusGatewayTimeout
		}
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
