package types

import "testing"

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := CreditDropPayload{
		Credit:      Credit{Phase: CreditPhaseProfiling, ConversationID: "conv-1"},
		TimestampNS: 1234,
	}
	env, err := NewEnvelope(MessageTypeCreditDrop, "worker-1", payload)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	decoded, err := UnmarshalEnvelope(data, true)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if decoded.MessageType != MessageTypeCreditDrop {
		t.Fatalf("expected message type %q, got %q", MessageTypeCreditDrop, decoded.MessageType)
	}
	if decoded.ServiceID != "worker-1" {
		t.Fatalf("expected service id worker-1, got %q", decoded.ServiceID)
	}

	var out CreditDropPayload
	if err := decoded.DecodePayload(&out); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if out.Credit.ConversationID != "conv-1" {
		t.Fatalf("expected conversation id conv-1, got %q", out.Credit.ConversationID)
	}
}

func TestUnmarshalEnvelopeStrictRejectsUnknownFields(t *testing.T) {
	data := []byte(`{"message_type":"heartbeat","service_id":"s1","timestamp_ns":1,"payload":{},"extra_field":true}`)
	if _, err := UnmarshalEnvelope(data, true); err == nil {
		t.Fatalf("expected strict decode to reject unknown field")
	}
	if _, err := UnmarshalEnvelope(data, false); err != nil {
		t.Fatalf("expected lenient decode to succeed, got %v", err)
	}
}
