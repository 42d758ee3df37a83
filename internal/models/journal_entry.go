package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JournalEntry is one applied mutation as persisted by the mirror.
type JournalEntry struct {
	ID             uuid.UUID       `json:"id"`
	Collection     string          `json:"collection"`
	RecordID       string          `json:"record_id"`
	Action         Action          `json:"action"`
	SequenceNumber int64           `json:"sequence_number"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}
