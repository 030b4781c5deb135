package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"energytrade/internal/eventing"
)

const defaultDLQTable = "event_dlq"

// DLQStore persists events that could not be delivered.
type DLQStore struct {
	db    *sql.DB
	table string
}

// NewDLQStore constructs a dead-letter store.
func NewDLQStore(db *sql.DB, opts ...DLQOption) *DLQStore {
	store := &DLQStore{db: db, table: defaultDLQTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// DLQOption configures the dead-letter store.
type DLQOption func(*DLQStore)

// WithDLQTable overrides the table name.
func WithDLQTable(table string) DLQOption {
	return func(store *DLQStore) {
		if table != "" {
			store.table = table
		}
	}
}

// RecordFailure writes the failed envelope with the delivery error.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, deliveryErr error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	reason := ""
	if deliveryErr != nil {
		reason = deliveryErr.Error()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (event_id, event_type, payload, reason, failed_at)
VALUES ($1, $2, $3, $4, $5)`, s.table)

	_, err = s.db.ExecContext(ctx, query, env.EventID, env.EventType, payload, reason, time.Now().UTC())
	return err
}
