package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/DXD-Magante/dxd-magnate-sub002/assign"
	"github.com/DXD-Magante/dxd-magnate-sub002/board"
	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
	"github.com/DXD-Magante/dxd-magnate-sub002/perf"
	"github.com/DXD-Magante/dxd-magnate-sub002/storage"
)

const (
	postBodyMaxSize    = 64 * 1024 // 64 KiB
	inlineWriteTimeout = 30 * time.Second
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, sub Subscriber, auth Authenticator, deduper Deduper, dispatcher Dispatcher, logger *log.Logger) {
	mgr := board.NewManager(logger)
	writer := &dispatchedStatusWriter{store: store, pool: dispatcher}
	ctrl := board.NewController(mgr, writer, logger)
	coordinator := assign.NewCoordinator(store, logger)

	e.GET("/api/projects/:projectId/board", getBoard(store, auth, mgr, logger))
	e.GET("/api/projects/:projectId/performance", getPerformance(store, auth))
	e.GET("/api/projects/:projectId/stream", streamBoard(sub, auth, mgr, ctrl, logger))
	e.POST("/api/tasks", postTask(store, auth))
	e.POST("/api/tasks/:id/move", postMove(store, auth, deduper, mgr, ctrl))
	e.POST("/api/tasks/:id/assign", postAssign(coordinator, auth))
	e.GET("/healthz", healthz())
}

// dispatchedStatusWriter pushes status writes onto the background pool
// so drag gestures never wait on the store. When the pool is saturated
// the write runs inline on a detached context.
type dispatchedStatusWriter struct {
	store Store
	pool  Dispatcher
}

func (w *dispatchedStatusWriter) WriteStatus(ctx context.Context, projectID, taskID string, status domain.Status) error {
	write := func(ctx context.Context) error {
		return w.store.UpdateTaskStatus(ctx, projectID, taskID, status)
	}
	if w.pool != nil && w.pool.Dispatch("status-write", write) {
		return nil
	}
	wctx, cancel := context.WithTimeout(context.Background(), inlineWriteTimeout)
	defer cancel()
	return write(wctx)
}

type boardResponse struct {
	ProjectID string        `json:"projectId"`
	Columns   board.Columns `json:"columns"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(store Store, auth Authenticator, mgr *board.Manager, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newBoardRequestMetrics(c.Request().Context(), "/api/projects/:projectId/board", logger)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		projectID := c.Param("projectId")
		fetchStart := time.Now()
		tasks, fetchErr := store.FetchTasks(ctx, projectID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, boardResponse{ProjectID: projectID, Columns: mgr.Rebuild(tasks)})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getPerformance(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		projectID := c.Param("projectId")
		project, err := store.FetchProject(ctx, projectID)
		if err != nil {
			if storage.IsNotFound(err) {
				return c.String(http.StatusNotFound, "project not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		tasks, err := store.FetchTasks(ctx, projectID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, perf.Compute(project, tasks, time.Now()))
	}
}

type createTaskRequest struct {
	ProjectID   string   `json:"projectId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	DueDate     string   `json:"dueDate"`
	Labels      []string `json:"labels"`
}

func postTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createTaskRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.ProjectID == "" || req.Title == "" || req.Description == "" {
			return c.String(http.StatusBadRequest, "projectId, title and description are required")
		}

		// New tasks start in Backlog or To Do, at the caller's choice.
		status := domain.StatusBacklog
		if req.Status != "" {
			status = domain.Status(req.Status)
			if status != domain.StatusBacklog && status != domain.StatusToDo {
				return c.String(http.StatusBadRequest, "new tasks must start in Backlog or To Do")
			}
		}
		priority := domain.PriorityMedium
		if req.Priority != "" {
			priority = domain.Priority(req.Priority)
		}

		task := domain.Task{
			ProjectID:   req.ProjectID,
			Title:       req.Title,
			Description: req.Description,
			Status:      status,
			Priority:    priority,
			Labels:      req.Labels,
		}
		if req.DueDate != "" {
			due, err := time.Parse(time.RFC3339, req.DueDate)
			if err != nil {
				return c.String(http.StatusBadRequest, "invalid due date")
			}
			task.DueDate = &due
		}

		created, err := store.CreateTask(ctx, task)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}
		return c.JSON(http.StatusCreated, created)
	}
}

type moveRequest struct {
	ProjectID      string `json:"projectId"`
	SourceColumn   string `json:"sourceColumn"`
	SourceIndex    int    `json:"sourceIndex"`
	DestColumn     string `json:"destColumn"`
	DestIndex      int    `json:"destIndex"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type moveResponse struct {
	Columns   board.Columns `json:"columns"`
	Persisted bool          `json:"persisted"`
	NewStatus domain.Status `json:"newStatus,omitempty"`
	Duplicate bool          `json:"duplicate,omitempty"`
}

func postMove(store Store, auth Authenticator, deduper Deduper, mgr *board.Manager, ctrl *board.Controller) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		actor, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req moveRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.ProjectID == "" {
			return c.String(http.StatusBadRequest, "projectId is required")
		}

		key := req.IdempotencyKey
		if key == "" {
			key = uuid.NewString()
		}
		added, err := deduper.Add(ctx, actor.ID, key)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to record gesture")
		}
		if !added {
			return c.JSON(http.StatusAccepted, moveResponse{Duplicate: true})
		}

		tasks, err := store.FetchTasks(ctx, req.ProjectID)
		if err != nil {
			_ = deduper.Remove(ctx, actor.ID, key)
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		gesture := board.Gesture{
			ProjectID:    req.ProjectID,
			TaskID:       c.Param("id"),
			SourceColumn: domain.ColumnID(req.SourceColumn),
			SourceIndex:  req.SourceIndex,
			DestColumn:   domain.ColumnID(req.DestColumn),
			DestIndex:    req.DestIndex,
		}
		out, err := ctrl.Apply(ctx, mgr.Rebuild(tasks), gesture)
		if err != nil {
			_ = deduper.Remove(ctx, actor.ID, key)
			return c.String(http.StatusBadRequest, err.Error())
		}

		return c.JSON(http.StatusAccepted, moveResponse{
			Columns:   out.Columns,
			Persisted: out.Persisted,
			NewStatus: out.NewStatus,
		})
	}
}

type assignRequest struct {
	ProjectID string `json:"projectId"`
	MemberID  string `json:"memberId"`
}

func postAssign(coordinator *assign.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		actor, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req assignRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.ProjectID == "" || req.MemberID == "" {
			return c.String(http.StatusBadRequest, "projectId and memberId are required")
		}

		task, err := coordinator.Assign(ctx, actor, req.ProjectID, c.Param("id"), req.MemberID)
		if err != nil {
			var invalid *assign.InvalidMemberError
			if errors.As(err, &invalid) {
				return c.String(http.StatusUnprocessableEntity, invalid.Error())
			}
			var notFound *assign.TaskNotFoundError
			if errors.As(err, &notFound) {
				return c.String(http.StatusNotFound, notFound.Error())
			}
			if storage.IsNotFound(err) {
				return c.String(http.StatusNotFound, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "assignment failed")
		}
		return c.JSON(http.StatusOK, task)
	}
}

func decodeBody(body io.Reader, out any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, postBodyMaxSize))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
