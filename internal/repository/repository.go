package repository

import "context"

type CreateCallInput struct {
	CallType         string
	CallID           string
	CreatedBy        string
	RecordingQuality string
	RecordingMode    string
}

type CallRepository interface {
	// CreateCall inserts the call if it does not exist yet and returns the stored record.
	CreateCall(ctx context.Context, input CreateCallInput) (*Call, error)
	// GetCall returns nil, nil when the call does not exist.
	GetCall(ctx context.Context, callType, callID string) (*Call, error)
}

type Repository interface {
	CallRepository
}
