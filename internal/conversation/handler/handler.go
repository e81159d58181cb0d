package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"engagement_backend/internal/conversation/repository"
	"engagement_backend/internal/conversation/service"
	"engagement_backend/internal/conversation/transport"
	"engagement_backend/platform/httpkit"
	"engagement_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidPayload   = "invalid webhook payload"
	msgValidationFailed = "validation error"
	msgPayloadTooLarge  = "payload too large"

	maxPayloadBytes = 256 << 10
)

// Engine is the conversation service as seen by the HTTP layer.
type Engine interface {
	HandleInbound(ctx context.Context, in service.InboundEvent) (service.InboundResult, error)
	LogBump(ctx context.Context, ev service.MessageEvent) (service.SideChannelResult, error)
	LogManualReply(ctx context.Context, ev service.MessageEvent) (service.SideChannelResult, error)
	LogBooking(ctx context.Context, ev service.BookingEvent) (service.SideChannelResult, error)
	LogOptOut(ctx context.Context, ref service.ContactRef) (service.SideChannelResult, error)
	GetContact(ctx context.Context, externalID string) (service.ContactView, error)
}

// Handler serves the CRM webhooks and the contact read endpoint.
type Handler struct {
	svc Engine
	val *validator.Validator
}

// New creates a new conversation handler.
func New(svc Engine, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// HandleInbound runs one inbound message through the engine.
// POST /api/v1/webhook/inbound
func (h *Handler) HandleInbound(c *gin.Context) {
	payload, ok := h.readPayload(c)
	if !ok {
		return
	}

	ev := payload.InboundEvent()
	if ev.DeliveryID == "" {
		ev.DeliveryID = httpkit.DeliveryID(c)
	}
	if !h.validate(c, &ev) {
		return
	}

	result, err := h.svc.HandleInbound(c.Request.Context(), ev)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// HandleBump journals a scheduled nudge.
// POST /api/v1/webhook/bump
func (h *Handler) HandleBump(c *gin.Context) {
	h.handleMessage(c, h.svc.LogBump)
}

// HandleManualReply journals a reply sent by a human operator.
// POST /api/v1/webhook/manual-reply
func (h *Handler) HandleManualReply(c *gin.Context) {
	h.handleMessage(c, h.svc.LogManualReply)
}

func (h *Handler) handleMessage(c *gin.Context, log func(context.Context, service.MessageEvent) (service.SideChannelResult, error)) {
	payload, ok := h.readPayload(c)
	if !ok {
		return
	}

	ev := payload.MessageEvent()
	if ev.DeliveryID == "" {
		ev.DeliveryID = httpkit.DeliveryID(c)
	}
	if !h.validate(c, &ev) {
		return
	}

	result, err := log(c.Request.Context(), ev)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// HandleBooking marks the contact as booked.
// POST /api/v1/webhook/booking
func (h *Handler) HandleBooking(c *gin.Context) {
	payload, ok := h.readPayload(c)
	if !ok {
		return
	}

	ev := payload.BookingEvent()
	if !h.validate(c, &ev) {
		return
	}

	result, err := h.svc.LogBooking(c.Request.Context(), ev)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// HandleOptOut stops all automation for the contact.
// POST /api/v1/webhook/opt-out
func (h *Handler) HandleOptOut(c *gin.Context) {
	payload, ok := h.readPayload(c)
	if !ok {
		return
	}

	ref := payload.ContactRef()
	if !h.validate(c, &ref) {
		return
	}

	result, err := h.svc.LogOptOut(c.Request.Context(), ref)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetContact returns the contact with its last messages and pending escalations.
// GET /api/v1/contacts/:externalId
func (h *Handler) GetContact(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("externalId"))
	if externalID == "" {
		httpkit.Error(c, http.StatusBadRequest, "external contact id is required", nil)
		return
	}

	view, err := h.svc.GetContact(c.Request.Context(), externalID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toContactViewResponse(view))
}

func (h *Handler) readPayload(c *gin.Context) (service.Payload, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpkit.Error(c, http.StatusRequestEntityTooLarge, msgPayloadTooLarge, nil)
			return nil, false
		}
		httpkit.Error(c, http.StatusBadRequest, msgInvalidPayload, err.Error())
		return nil, false
	}

	payload, err := service.ParsePayload(body)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidPayload, err.Error())
		return nil, false
	}
	return payload, true
}

func (h *Handler) validate(c *gin.Context, req interface{}) bool {
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

func toContactViewResponse(view service.ContactView) transport.ContactViewResponse {
	messages := make([]transport.MessageResponse, len(view.Messages))
	for i, m := range view.Messages {
		messages[i] = toMessageResponse(m)
	}
	escalations := make([]transport.EscalationResponse, len(view.Escalations))
	for i, e := range view.Escalations {
		escalations[i] = transport.EscalationResponse{
			ID:              e.ID,
			Type:            string(e.Type),
			Reason:          e.Reason,
			Status:          string(e.Status),
			SourceMessageID: e.SourceMessageID,
			CreatedAt:       e.CreatedAt.Format(time.RFC3339),
		}
	}
	return transport.ContactViewResponse{
		Contact:            toContactResponse(view.Contact),
		Messages:           messages,
		PendingEscalations: escalations,
	}
}

func toContactResponse(c repository.Contact) transport.ContactResponse {
	return transport.ContactResponse{
		ID:                 c.ID,
		ExternalID:         c.ExternalID,
		LocationID:         c.LocationID,
		FirstName:          c.FirstName,
		LastName:           c.LastName,
		Email:              c.Email,
		Phone:              c.Phone,
		Stage:              string(c.Stage),
		MessageCount:       c.MessageCount,
		QuestionsAsked:     c.QuestionsAsked,
		BumpCount:          c.BumpCount,
		NeedsHumanReview:   c.NeedsHumanReview,
		CalendarLinkSent:   c.CalendarLinkSent,
		CalendarLinkSentAt: formatTime(c.CalendarLinkSentAt),
		IsQualified:        c.IsQualified,
		IsOptedOut:         c.IsOptedOut,
		LastMessageAt:      formatTime(c.LastMessageAt),
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          c.UpdatedAt.Format(time.RFC3339),
	}
}

func toMessageResponse(m repository.Message) transport.MessageResponse {
	resp := transport.MessageResponse{
		ID:          m.ID,
		Direction:   string(m.Direction),
		Channel:     m.Channel,
		Content:     m.Content,
		MessageType: string(m.MessageType),
		AIGenerated: m.AIGenerated,
		ReplyToID:   m.ReplyToID,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
	if m.DetectedIntent != nil {
		intent := string(*m.DetectedIntent)
		resp.DetectedIntent = &intent
	}
	return resp
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
