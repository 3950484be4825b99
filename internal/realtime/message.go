package realtime

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SSEEvent string

const (
	SSEEventSessionProgress SSEEvent = "SessionProgress"
)

// ProgressPayload is the normalized view of an analysis session pushed to
// subscribers on every tracker mutation.
type ProgressPayload struct {
	SessionID          uuid.UUID `json:"sessionId"`
	ProjectID          uuid.UUID `json:"projectId"`
	Status             string    `json:"status"`
	Progress           int       `json:"progress"`
	CurrentStep        string    `json:"currentStep"`
	EstimatedRemaining *int      `json:"estimatedRemaining,omitempty"`
	Error              string    `json:"error,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type SSEMessage struct {
	Channel string          `json:"channel"`
	Event   SSEEvent        `json:"event"`
	Data    ProgressPayload `json:"data"`
}

// SubscriptionKey names a channel: "project:<id>" or "session:<id>".
type SubscriptionKey string

func ProjectKey(id uuid.UUID) SubscriptionKey { return SubscriptionKey("project:" + id.String()) }

func SessionKey(id uuid.UUID) SubscriptionKey { return SubscriptionKey("session:" + id.String()) }

func (k SubscriptionKey) String() string { return string(k) }

func (k SubscriptionKey) valid() bool {
	s := string(k)
	return strings.HasPrefix(s, "project:") || strings.HasPrefix(s, "session:")
}
