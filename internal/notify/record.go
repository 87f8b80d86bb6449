package notify

import (
	"time"

	"numwatch/internal/transport"
)

// Record describes a notification already posted to the chat.
type Record struct {
	SiteID     string
	Ref        transport.MessageRef
	Multiple   bool
	InitialRun bool
	Photo      bool
	Values     []string
	Value      string
	ImageURL   string
	SentAt     time.Time
}
