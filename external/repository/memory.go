package repository

import (
	"context"
	"sync"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/repository"
	"github.com/google/uuid"
)

// MemoryRepository keeps call records for the lifetime of the process.
type MemoryRepository struct {
	mu    sync.RWMutex
	calls map[string]repository.Call
}

func NewMemoryRepository() repository.Repository {
	return &MemoryRepository{calls: make(map[string]repository.Call)}
}

func (r *MemoryRepository) CreateCall(_ context.Context, input repository.CreateCallInput) (*repository.Call, error) {
	cid := call.CID(input.CallType, input.CallID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.calls[cid]; ok {
		return &c, nil
	}
	c := repository.Call{
		ID:               uuid.NewString(),
		CID:              cid,
		CallType:         input.CallType,
		CallID:           input.CallID,
		CreatedBy:        input.CreatedBy,
		RecordingQuality: input.RecordingQuality,
		RecordingMode:    input.RecordingMode,
		CreatedAt:        time.Now().UTC(),
	}
	r.calls[cid] = c
	return &c, nil
}

func (r *MemoryRepository) GetCall(_ context.Context, callType, callID string) (*repository.Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[call.CID(callType, callID)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
