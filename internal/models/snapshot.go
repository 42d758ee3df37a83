package models

import "time"

// Snapshot is a stored copy of a collection's local view.
type Snapshot struct {
	Collection string    `json:"collection"`
	Records    []Record  `json:"records"`
	SavedAt    time.Time `json:"saved_at"`
}
