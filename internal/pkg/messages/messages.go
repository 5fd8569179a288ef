package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "TRC/"
	// Work queue name
	Work = st + "Work"
	// Inform queue name
	Inform = st + "Inform"
	// StatusChange queue name
	StatusChange = st + "StatusChange"
)

// TranscribeMessage starts transcription of one session
type TranscribeMessage struct {
	amessages.QueueMessage
	AudioKey         string `json:"audioKey,omitempty"`
	Language         string `json:"language,omitempty"`
	OriginalFilename string `json:"originalFilename,omitempty"`
	RequestID        string `json:"requestID,omitempty"`
}

// NewMessageFrom creates a copy of a message
func NewMessageFrom(m *TranscribeMessage) *TranscribeMessage {
	return &TranscribeMessage{QueueMessage: m.QueueMessage, AudioKey: m.AudioKey,
		Language: m.Language, OriginalFilename: m.OriginalFilename, RequestID: m.RequestID}
}
