package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type SendMode string

const (
	SendModeSample    SendMode = "sample"
	SendModeCustomize SendMode = "customize"
)

// ParseSendMode maps the wire value onto the closed set of send modes.
func ParseSendMode(raw string) (SendMode, error) {
	switch mode := SendMode(raw); mode {
	case SendModeSample, SendModeCustomize:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSendMode, raw)
	}
}

type Outcome string

const (
	OutcomeFulfilled Outcome = "fulfilled"
	OutcomeRejected  Outcome = "rejected"
)

// Message is one queued send attempt belonging to a job.
type Message struct {
	JobID     int64  `json:"jobId"`
	JobName   string `json:"jobName"`
	AppID     int64  `json:"appId"`
	UserID    int64  `json:"userId"`
	SampleID  int64  `json:"sampleId,omitempty"`
	Content   string `json:"content,omitempty"`
	Recipient string `json:"receive"`
	SendMode  string `json:"super"`
}

func DecodeMessage(payload []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.JobID == 0 {
		return nil, fmt.Errorf("%w: jobId is required", ErrInvalidMessage)
	}
	return &msg, nil
}

// SendRecord is the append-only ledger entry written for every processed message.
type SendRecord struct {
	ID         string
	JobID      int64
	JobName    string
	AppID      int64
	AppName    *string
	Recipient  string
	SendMode   SendMode
	Outcome    Outcome
	SampleID   *int64
	SampleName *string
	Content    *string
	Reason     *string
	UserID     *int64
	Nickname   *string
	Avatar     *string
	CreatedAt  time.Time
}

// Envelope is what the mail transport receives.
type Envelope struct {
	JobID     int64
	Recipient string
	Subject   string
	Body      string
}
