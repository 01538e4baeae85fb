package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iceos-ai/iceos/cmd/iceos/container"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// EventHandler serves the per-run event log, as a JSON page or as a live
// SSE stream.
type EventHandler struct {
	container *container.Container
}

// NewEventHandler creates a new event handler
func NewEventHandler(c *container.Container) *EventHandler {
	return &EventHandler{container: c}
}

// List returns persisted events with seq > from_seq
// GET /api/v1/runs/:id/events
func (h *EventHandler) List(c echo.Context) error {
	fromSeq := parseFromSeq(c)
	rows, err := h.container.RunService.Events(c.Request().Context(), c.Param("id"), fromSeq)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id": c.Param("id"),
		"events": rows,
	})
}

// Stream pushes events over SSE. Live runs stream until their terminal
// event; finished runs replay the persisted log and close.
// GET /api/v1/runs/:id/events/stream
func (h *EventHandler) Stream(c echo.Context) error {
	runID := c.Param("id")
	fromSeq := parseFromSeq(c)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")

	if stream, ok := h.container.RunService.Stream(runID); ok {
		ch, cancel := stream.Subscribe(fromSeq)
		defer cancel()
		resp.WriteHeader(http.StatusOK)

		for {
			select {
			case <-c.Request().Context().Done():
				return nil
			case event, open := <-ch:
				if !open {
					return nil
				}
				if err := writeSSE(resp, &event); err != nil {
					return nil
				}
				if event.Kind.Terminal() {
					return nil
				}
			}
		}
	}

	// Not live: replay the persisted log and close.
	rows, err := h.container.RunService.Events(c.Request().Context(), runID, fromSeq)
	if err != nil {
		return fail(c, err)
	}
	resp.WriteHeader(http.StatusOK)
	for _, row := range rows {
		event := sdk.Event{
			ExecutionID: row.ExecutionID,
			Seq:         row.Seq,
			Timestamp:   row.Timestamp,
			Kind:        sdk.EventType(row.Kind),
		}
		if row.NodeID != nil {
			event.NodeID = *row.NodeID
		}
		if len(row.Payload) > 0 {
			_ = json.Unmarshal(row.Payload, &event.Payload)
		}
		if err := writeSSE(resp, &event); err != nil {
			return nil
		}
	}
	return nil
}

func writeSSE(resp *echo.Response, event *sdk.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Kind, data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

func parseFromSeq(c echo.Context) int64 {
	raw := c.QueryParam("from_seq")
	if raw == "" {
		return 0
	}
	fromSeq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return fromSeq
}
