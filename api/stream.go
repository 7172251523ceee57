package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/DXD-Magante/dxd-magnate-sub002/board"
)

const streamHeartbeat = 15 * time.Second

// streamBoard serves the live board projection over SSE. Each connection
// gets its own session; the latest columns are pushed after every change
// stream snapshot, with heartbeats to keep proxies from closing the pipe.
func streamBoard(sub Subscriber, auth Authenticator, mgr *board.Manager, ctrl *board.Controller, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		// EventSource cannot set headers, so accept the token as a query param too.
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if _, err := auth.ActorFromAuthHeader(authHeader); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		projectID := c.Param("projectId")
		session, err := board.NewSession(projectID, mgr, ctrl, sub, logger)
		if err != nil {
			logger.Errorf("failed to open board session, project: %s, err: %v", projectID, err)
			return c.String(http.StatusInternalServerError, "stream unavailable")
		}
		defer session.Close()

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		ticker := time.NewTicker(streamHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case cols := <-session.Updates():
				if err := writeEvent(c, boardResponse{ProjectID: projectID, Columns: cols}); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(c echo.Context, payload any) error {
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	_, err = c.Response().Write([]byte("\n\n"))
	return err
}
