package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

// OpenPool connects and pings the database.
func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) CreateCall(ctx context.Context, input repository.CreateCallInput) (*repository.Call, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO calls (call_type, call_id, created_by, recording_quality, recording_mode)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (call_type, call_id) DO NOTHING`,
		input.CallType, input.CallID, input.CreatedBy, input.RecordingQuality, input.RecordingMode)
	if err != nil {
		return nil, err
	}
	c, err := r.GetCall(ctx, input.CallType, input.CallID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("call %s vanished after insert", call.CID(input.CallType, input.CallID))
	}
	return c, nil
}

func (r *PostgresRepository) GetCall(ctx context.Context, callType, callID string) (*repository.Call, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, call_type, call_id, created_by, recording_quality, recording_mode, created_at
		 FROM calls WHERE call_type = $1 AND call_id = $2`,
		callType, callID)
	var c repository.Call
	err := row.Scan(&c.ID, &c.CallType, &c.CallID, &c.CreatedBy, &c.RecordingQuality, &c.RecordingMode, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.CID = call.CID(c.CallType, c.CallID)
	return &c, nil
}
