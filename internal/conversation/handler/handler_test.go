package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"engagement_backend/internal/conversation/domain"
	"engagement_backend/internal/conversation/repository"
	"engagement_backend/internal/conversation/service"
	"engagement_backend/internal/conversation/transport"
	"engagement_backend/platform/apperr"
	"engagement_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	inbound  service.InboundEvent
	message  service.MessageEvent
	booking  service.BookingEvent
	optOut   service.ContactRef
	lastCall string
	err      error
	view     service.ContactView
}

func (f *fakeEngine) HandleInbound(_ context.Context, in service.InboundEvent) (service.InboundResult, error) {
	f.inbound, f.lastCall = in, "inbound"
	return service.InboundResult{Reply: "Thanks!", ShouldSend: true, Stage: domain.StageInConversation}, f.err
}

func (f *fakeEngine) LogBump(_ context.Context, ev service.MessageEvent) (service.SideChannelResult, error) {
	f.message, f.lastCall = ev, "bump"
	return service.SideChannelResult{Stage: domain.StageInConversation}, f.err
}

func (f *fakeEngine) LogManualReply(_ context.Context, ev service.MessageEvent) (service.SideChannelResult, error) {
	f.message, f.lastCall = ev, "manual"
	return service.SideChannelResult{Stage: domain.StageInConversation}, f.err
}

func (f *fakeEngine) LogBooking(_ context.Context, ev service.BookingEvent) (service.SideChannelResult, error) {
	f.booking, f.lastCall = ev, "booking"
	return service.SideChannelResult{Stage: domain.StageBooked}, f.err
}

func (f *fakeEngine) LogOptOut(_ context.Context, ref service.ContactRef) (service.SideChannelResult, error) {
	f.optOut, f.lastCall = ref, "opt-out"
	return service.SideChannelResult{Stage: domain.StageOptedOut}, f.err
}

func (f *fakeEngine) GetContact(_ context.Context, externalID string) (service.ContactView, error) {
	f.lastCall = "contact:" + externalID
	return f.view, f.err
}

func newRouter(engine Engine) *gin.Engine {
	h := New(engine, validator.New())
	r := gin.New()
	r.POST("/webhook/inbound", h.HandleInbound)
	r.POST("/webhook/bump", h.HandleBump)
	r.POST("/webhook/manual-reply", h.HandleManualReply)
	r.POST("/webhook/booking", h.HandleBooking)
	r.POST("/webhook/opt-out", h.HandleOptOut)
	r.GET("/contacts/:externalId", h.GetContact)
	return r
}

func post(r http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleInboundReadsAliases(t *testing.T) {
	engine := &fakeEngine{}
	w := post(newRouter(engine), "/webhook/inbound",
		`{"contactId":"c-1","customData":{"message":"Is it free?"},"locationId":"loc-9","contact":{"first_name":"Jo"}}`, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := engine.inbound
	if got.ExternalID != "c-1" || got.Text != "Is it free?" || got.LocationID != "loc-9" || got.FirstName != "Jo" {
		t.Fatalf("unexpected event %+v", got)
	}

	var res service.InboundResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Reply != "Thanks!" || !res.ShouldSend {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestHandleInboundDeliveryIDHeaderFallback(t *testing.T) {
	engine := &fakeEngine{}
	w := post(newRouter(engine), "/webhook/inbound", `{"contact_id":"c-1","message":"hi"}`,
		map[string]string{"Idempotency-Key": "evt-9"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if engine.inbound.DeliveryID != "evt-9" {
		t.Fatalf("expected header delivery id, got %q", engine.inbound.DeliveryID)
	}

	w = post(newRouter(engine), "/webhook/inbound", `{"contact_id":"c-1","message":"hi","event_id":"evt-1"}`,
		map[string]string{"Idempotency-Key": "evt-9"})
	if w.Code != http.StatusOK || engine.inbound.DeliveryID != "evt-1" {
		t.Fatalf("expected payload delivery id to win, got %q", engine.inbound.DeliveryID)
	}
}

func TestHandleInboundRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `contact_id=c-1`},
		{"json array", `[{"contact_id":"c-1"}]`},
		{"missing contact", `{"message":"hi"}`},
		{"missing message", `{"contact_id":"c-1"}`},
		{"blank message", `{"contact_id":"c-1","message":"  \n "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			w := post(newRouter(engine), "/webhook/inbound", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if engine.lastCall != "" {
				t.Fatalf("engine must not be called on invalid input")
			}
		})
	}
}

func TestHandleInboundAcceptsLongBodies(t *testing.T) {
	long := strings.Repeat("a", 6000)
	tests := []struct {
		name string
		body string
	}{
		{"long campaign first message", `{"contact_id":"c-1","message":"yes please","first_message":"` + long + `"}`},
		{"long email reply", `{"contact_id":"c-1","channel":"email","message":"` + long + `"}`},
		{"long last memory", `{"contact_id":"c-1","message":"ok","last_memory":"` + long + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			w := post(newRouter(engine), "/webhook/inbound", tt.body, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			if engine.lastCall != "inbound" {
				t.Fatalf("expected engine to be called, got %q", engine.lastCall)
			}
		})
	}
}

func TestManualReplyAcceptsLongText(t *testing.T) {
	engine := &fakeEngine{}
	w := post(newRouter(engine), "/webhook/manual-reply", `{"contact_id":"c-1","message":"`+strings.Repeat("b", 5000)+`"}`, nil)
	if w.Code != http.StatusOK || len(engine.message.Text) != 5000 {
		t.Fatalf("expected full manual reply to reach the engine, got %d / %d chars", w.Code, len(engine.message.Text))
	}
}

func TestHandleInboundMapsErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"generation failure", apperr.Upstream("reply generation failed", context.DeadlineExceeded), http.StatusBadGateway},
		{"in flight", apperr.Conflict("delivery is already being processed"), http.StatusConflict},
		{"commit failure", apperr.Internal("commit exchange"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(newRouter(&fakeEngine{err: tt.err}), "/webhook/inbound", `{"contact_id":"c-1","message":"hi"}`, nil)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if !strings.Contains(w.Body.String(), `"retryable":true`) {
				t.Fatalf("expected retryable flag in %s", w.Body.String())
			}
		})
	}
}

func TestSideChannelRoutes(t *testing.T) {
	tests := []struct {
		path string
		body string
		call string
	}{
		{"/webhook/bump", `{"contact_id":"c-1","message":"still keen?"}`, "bump"},
		{"/webhook/manual-reply", `{"contact_id":"c-1","body":"Hi from the office"}`, "manual"},
		{"/webhook/booking", `{"contact_id":"c-1","appointment_title":"Survey"}`, "booking"},
		{"/webhook/opt-out", `{"contact_id":"c-1"}`, "opt-out"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			engine := &fakeEngine{}
			w := post(newRouter(engine), tt.path, tt.body, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			if engine.lastCall != tt.call {
				t.Fatalf("expected %s call, got %q", tt.call, engine.lastCall)
			}
		})
	}
}

func TestHandleBookingPassesNote(t *testing.T) {
	engine := &fakeEngine{}
	post(newRouter(engine), "/webhook/booking", `{"contactId":"c-1","calendar":{"title":"Roof survey"}}`, nil)
	if engine.booking.Note != "Roof survey" {
		t.Fatalf("expected note from nested alias, got %q", engine.booking.Note)
	}
}

func TestHandleBumpRequiresText(t *testing.T) {
	engine := &fakeEngine{}
	w := post(newRouter(engine), "/webhook/bump", `{"contact_id":"c-1"}`, nil)
	if w.Code != http.StatusBadRequest || engine.lastCall != "" {
		t.Fatalf("expected 400 without engine call, got %d", w.Code)
	}
}

func TestGetContact(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	intent := domain.IntentQuestion
	engine := &fakeEngine{view: service.ContactView{
		Contact: repository.Contact{ID: uuid.New(), ExternalID: "c-1", Stage: domain.StageInConversation, MessageCount: 2, CreatedAt: now, UpdatedAt: now},
		Messages: []repository.Message{
			{ID: uuid.New(), Direction: domain.DirectionInbound, Content: "how much?", MessageType: domain.MessageConversation, DetectedIntent: &intent, CreatedAt: now},
		},
		Escalations: []repository.Escalation{
			{ID: uuid.New(), Type: domain.EscalationNeedsReview, Reason: "lead raised an objection", Status: domain.EscalationPending, CreatedAt: now},
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/contacts/c-1", nil)
	w := httptest.NewRecorder()
	newRouter(engine).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp transport.ContactViewResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Contact.ExternalID != "c-1" || resp.Contact.Stage != "in_conversation" {
		t.Fatalf("unexpected contact %+v", resp.Contact)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].DetectedIntent == nil || *resp.Messages[0].DetectedIntent != "question" {
		t.Fatalf("unexpected messages %+v", resp.Messages)
	}
	if len(resp.PendingEscalations) != 1 || resp.PendingEscalations[0].Type != "needs_review" {
		t.Fatalf("unexpected escalations %+v", resp.PendingEscalations)
	}
}

func TestGetContactNotFound(t *testing.T) {
	engine := &fakeEngine{err: apperr.NotFound("contact not found")}
	req := httptest.NewRequest(http.MethodGet, "/contacts/missing", nil)
	w := httptest.NewRecorder()
	newRouter(engine).ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
