package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DurableStore persists identity-scoped search history in the dalili
// database. An empty identity means an anonymous session: reads return
// nothing and writes are no-ops.
type DurableStore struct {
	db *sql.DB
}

// NewDurableStore wraps an already-opened dalili database.
func NewDurableStore(db *sql.DB) *DurableStore {
	return &DurableStore{db: db}
}

// Get returns the identity's history for a scope, newest first.
func (s *DurableStore) Get(ctx context.Context, identity string, scope Scope) ([]Entry, error) {
	if identity == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, filters, created_at
		FROM search_history
		WHERE identity = ? AND scope = ?
		ORDER BY created_at DESC
	`, identity, string(scope))
	if err != nil {
		return nil, fmt.Errorf("querying search history: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var filtersJSON string
		if err := rows.Scan(&e.ID, &e.Query, &filtersJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if err := json.Unmarshal([]byte(filtersJSON), &e.Filters); err != nil {
			return nil, fmt.Errorf("unmarshaling filters for entry %s: %w", e.ID, err)
		}
		e.Scope = scope
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Put records a search for an identity. A case-insensitive duplicate of
// the same text is replaced rather than accumulated, which moves the text
// to the front of the newest-first order.
func (s *DurableStore) Put(ctx context.Context, identity string, scope Scope, text string, filters map[string]string) error {
	if identity == "" {
		return nil
	}
	if text == "" {
		return fmt.Errorf("refusing to record empty query text")
	}

	if filters == nil {
		filters = map[string]string{}
	}
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("marshaling filters: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				fmt.Printf("Warning: failed to rollback transaction: %v\n", err)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM search_history
		WHERE identity = ? AND scope = ? AND LOWER(query) = LOWER(?)
	`, identity, string(scope), text); err != nil {
		return fmt.Errorf("removing duplicate history entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO search_history (id, identity, scope, query, filters, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), identity, string(scope), text, string(filtersJSON), time.Now().UTC()); err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Delete removes a history entry by its durable id.
func (s *DurableStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM search_history WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting history entry %s: %w", id, err)
	}
	return nil
}
