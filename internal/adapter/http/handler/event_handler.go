package handler

import (
	"io"
	"strconv"

	"subscription-ledger/internal/adapter/http/dto"
	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/pkg/apperror"
	"subscription-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultEventPage = 100
	maxEventPage     = 500
)

// EventHandler exposes the ledger's event log.
type EventHandler struct {
	eventSvc ports.EventService
}

func NewEventHandler(eventSvc ports.EventService) *EventHandler {
	return &EventHandler{eventSvc: eventSvc}
}

// List handles GET /api/v1/events. Only events the caller owns or caused
// are returned. Filters: instance_id, owner_id, type. Paging: after
// (sequence cursor) and limit; next_cursor feeds the next call.
func (h *EventHandler) List(c *gin.Context) {
	viewer, ok := caller(c)
	if !ok {
		return
	}
	params, ok := eventFilter(c)
	if !ok {
		return
	}

	var err error
	if params.AfterSeq, err = strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64); err != nil {
		abortWith(c, apperror.ErrInvalidArgument("after must be an integer"))
		return
	}
	if params.Limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultEventPage))); err != nil {
		abortWith(c, apperror.ErrInvalidArgument("limit must be an integer"))
		return
	}
	if params.Limit < 1 || params.Limit > maxEventPage {
		params.Limit = defaultEventPage
	}

	events, err := h.eventSvc.List(c.Request.Context(), viewer, params)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.EventResponse, 0, len(events))
	next := params.AfterSeq
	for i := range events {
		out = append(out, dto.NewEventResponse(&events[i]))
		next = events[i].Seq
	}
	response.Page(c, out, next, len(events) == params.Limit)
}

// Stream handles GET /api/v1/events/stream as server-sent events. The same
// scoping and filters as List apply; the stream ends when the client
// disconnects.
func (h *EventHandler) Stream(c *gin.Context) {
	viewer, ok := caller(c)
	if !ok {
		return
	}
	params, ok := eventFilter(c)
	if !ok {
		return
	}

	ch, err := h.eventSvc.Subscribe(c.Request.Context(), viewer, params)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(_ io.Writer) bool {
		e, open := <-ch
		if !open {
			return false
		}
		c.SSEvent(string(e.Type), dto.NewEventResponse(&e))
		return true
	})
}

// Verify handles GET /api/v1/events/verify by recomputing the hash chain.
func (h *EventHandler) Verify(c *gin.Context) {
	report, err := h.eventSvc.VerifyLog(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

func eventFilter(c *gin.Context) (ports.EventListParams, bool) {
	var params ports.EventListParams
	for _, q := range []struct {
		name string
		dst  **uuid.UUID
	}{
		{"instance_id", &params.InstanceID},
		{"owner_id", &params.OwnerID},
	} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			abortWith(c, apperror.ErrInvalidArgument(q.name+" must be a uuid"))
			return params, false
		}
		*q.dst = &id
	}
	if t := c.Query("type"); t != "" {
		typ := domain.EventType(t)
		params.Type = &typ
	}
	return params, true
}
