package repository

import "time"

// Call is the durable record that a call exists. Live membership is not stored.
type Call struct {
	ID               string
	CID              string
	CallType         string
	CallID           string
	CreatedBy        string
	RecordingQuality string
	RecordingMode    string
	CreatedAt        time.Time
}
