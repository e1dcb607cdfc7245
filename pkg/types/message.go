package types

import (
	"bytes"
	"time"

	json "github.com/goccy/go-json"
)

// MessageType discriminates the payload carried by a Message envelope.
type MessageType string

const (
	MessageTypeCreditDrop                MessageType = "credit_drop"
	MessageTypeCreditReturn              MessageType = "credit_return"
	MessageTypeConversationRequest       MessageType = "conversation_request"
	MessageTypeConversationResponse      MessageType = "conversation_response"
	MessageTypeParsedInferenceResults    MessageType = "parsed_inference_results"
	MessageTypeMetricRecords             MessageType = "metric_records"
	MessageTypeHeartbeat                 MessageType = "heartbeat"
	MessageTypeRegistration              MessageType = "registration"
	MessageTypeCommand                   MessageType = "command"
	MessageTypeCommandResponse           MessageType = "command_response"
	MessageTypeStatus                    MessageType = "status"
	MessageTypeError                     MessageType = "error"
	MessageTypeShutdown                  MessageType = "shutdown"
	MessageTypeCreditPhaseStart          MessageType = "credit_phase_start"
	MessageTypeCreditPhaseSendingComplete MessageType = "credit_phase_sending_complete"
	MessageTypeCreditPhaseComplete       MessageType = "credit_phase_complete"
	MessageTypeCreditPhaseProgress       MessageType = "credit_phase_progress"
	MessageTypeCreditsComplete           MessageType = "credits_complete"
	MessageTypeRealtimeMetrics           MessageType = "realtime_metrics"
)

// Envelope carries the fields common to every inter-service message,
// regardless of payload. The payload itself is stored as raw JSON and
// decoded by the consumer once it has inspected MessageType, a
// discriminated-union wire shape.
type Envelope struct {
	MessageType     MessageType `json:"message_type"`
	ServiceID       string      `json:"service_id"`
	RequestID       string      `json:"request_id,omitempty"`
	CorrelationID   string      `json:"x_correlation_id,omitempty"`
	TimestampNS     int64       `json:"timestamp_ns"`
	Payload         json.RawMessage `json:"payload"`
}

// NowNS returns the current wall-clock time in nanoseconds since the Unix
// epoch, the timestamp representation used throughout the wire protocol.
func NowNS() int64 {
	return time.Now().UnixNano()
}

// NewEnvelope builds an Envelope with the common fields populated and the
// payload marshaled to JSON via the fast-path encoder.
func NewEnvelope(msgType MessageType, serviceID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		MessageType: msgType,
		ServiceID:   serviceID,
		TimestampNS: NowNS(),
		Payload:     raw,
	}, nil
}

// Marshal serializes the envelope to JSON. Absent optional fields (RequestID,
// CorrelationID) are omitted rather than emitted as null/empty, so a
// marshal/unmarshal round-trip reproduces the original value.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope decodes a JSON-encoded envelope. When strict is true,
// unknown top-level fields are rejected; otherwise they are ignored.
func UnmarshalEnvelope(data []byte, strict bool) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// DecodePayload decodes the envelope's raw payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}
