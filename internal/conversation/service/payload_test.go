package service

import "testing"

func TestPayloadAliasPriority(t *testing.T) {
	p, err := ParsePayload([]byte(`{
		"contactId": "second",
		"contact_id": "first",
		"message": "",
		"body": "hello there",
		"customData": {"message": "ignored", "first_message": "Hi, it's Sam from Acme"},
		"contact": {"email": "lead@example.com"},
		"event_id": 12345
	}`))
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}

	ev := p.InboundEvent()
	if ev.ExternalID != "first" {
		t.Fatalf("expected first alias to win, got %q", ev.ExternalID)
	}
	if ev.Text != "hello there" {
		t.Fatalf("expected blank alias to be skipped, got %q", ev.Text)
	}
	if ev.FirstMessage != "Hi, it's Sam from Acme" {
		t.Fatalf("expected nested first message, got %q", ev.FirstMessage)
	}
	if ev.Email != "lead@example.com" {
		t.Fatalf("expected nested email, got %q", ev.Email)
	}
	if ev.DeliveryID != "12345" {
		t.Fatalf("expected numeric delivery id as string, got %q", ev.DeliveryID)
	}
}

func TestPayloadMissingFieldsAreEmpty(t *testing.T) {
	p, err := ParsePayload([]byte(`{"unrelated": true}`))
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if p.ExternalID() != "" || p.Text() != "" {
		t.Fatalf("expected empty fields")
	}
}

func TestParsePayloadRejectsNonObject(t *testing.T) {
	for _, body := range []string{`[]`, `null`, `"text"`, `{`} {
		if _, err := ParsePayload([]byte(body)); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}
