package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Instrument-related messages
	MessageTypeMeasurement            MessageType = "measurement"
	MessageTypeInstrumentConnected    MessageType = "instrument_connected"
	MessageTypeInstrumentDisconnected MessageType = "instrument_disconnected"
	MessageTypeInstrumentError        MessageType = "instrument_error"

	// Timer/list sequence progress
	MessageTypeSequencePosition MessageType = "sequence_position"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// InstrumentEventData announces connect/disconnect/error events
type InstrumentEventData struct {
	InstrumentID string `json:"instrument_id"`
	Resource     string `json:"resource"`
	Model        string `json:"model,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewInstrumentEventMessage(msgType MessageType, instrumentID, resource, model string) Message {
	return NewMessage(msgType, InstrumentEventData{
		InstrumentID: instrumentID,
		Resource:     resource,
		Model:        model,
	})
}
