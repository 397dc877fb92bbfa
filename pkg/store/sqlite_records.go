package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LoadHighlights returns highlights grouped by PairKey, oldest first.
// An empty filter slice matches every value.
func (s *Store) LoadHighlights(ctx context.Context, ownerIDs, documentIDs []string) (map[string][]Highlight, error) {
	return loadGrouped(ctx, s.db, "highlights", "ts_created", ownerIDs, documentIDs, func(h Highlight) string {
		return PairKey(h.OwnerID, h.DocumentID)
	})
}

// SaveHighlights upserts all highlights in one transaction.
func (s *Store) SaveHighlights(ctx context.Context, highlights []Highlight) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO highlights (id, owner_id, document_id, ts_created, payload)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id,
				document_id = excluded.document_id,
				ts_created = excluded.ts_created,
				payload = excluded.payload
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare highlight upsert: %w", err)
		}
		defer stmt.Close()

		for _, h := range highlights {
			payload, err := json.Marshal(h)
			if err != nil {
				return fmt.Errorf("failed to marshal highlight %s: %w", h.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, h.ID, h.OwnerID, h.DocumentID, h.Timestamp.UTC(), string(payload)); err != nil {
				return fmt.Errorf("failed to save highlight %s: %w", h.ID, err)
			}
		}
		return nil
	})
}

// DeleteHighlights removes highlights by id. Unknown ids are ignored.
func (s *Store) DeleteHighlights(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := "DELETE FROM highlights WHERE id IN (" + placeholders(len(ids)) + ")"
	if _, err := s.db.ExecContext(ctx, query, toArgs(ids)...); err != nil {
		return fmt.Errorf("failed to delete highlights: %w", err)
	}
	return nil
}

// LoadPurposes returns purposes grouped by PairKey in insertion order.
func (s *Store) LoadPurposes(ctx context.Context, ownerIDs, documentIDs []string) (map[string][]Purpose, error) {
	return loadGrouped(ctx, s.db, "purposes", "rowid", ownerIDs, documentIDs, func(p Purpose) string {
		return PairKey(p.OwnerID, p.DocumentID)
	})
}

// SavePurposes upserts all purposes in one transaction.
func (s *Store) SavePurposes(ctx context.Context, purposes []Purpose) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO purposes (id, owner_id, document_id, payload)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id,
				document_id = excluded.document_id,
				payload = excluded.payload
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare purpose upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range purposes {
			payload, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to marshal purpose %s: %w", p.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, p.ID, p.OwnerID, p.DocumentID, string(payload)); err != nil {
				return fmt.Errorf("failed to save purpose %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// DeletePurpose removes one purpose. Highlights and sessions that reference it are kept.
func (s *Store) DeletePurpose(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM purposes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete purpose %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadSessions returns sessions grouped by PairKey, ordered by start time.
func (s *Store) LoadSessions(ctx context.Context, ownerIDs, documentIDs []string) (map[string][]Session, error) {
	return loadGrouped(ctx, s.db, "sessions", "start_time", ownerIDs, documentIDs, func(sess Session) string {
		return PairKey(sess.OwnerID, sess.DocumentID)
	})
}

// SaveSessions upserts all sessions in one transaction.
func (s *Store) SaveSessions(ctx context.Context, sessions []Session) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sessions (id, owner_id, document_id, start_time, payload)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				start_time = excluded.start_time,
				payload = excluded.payload
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare session upsert: %w", err)
		}
		defer stmt.Close()

		for _, sess := range sessions {
			payload, err := json.Marshal(sess)
			if err != nil {
				return fmt.Errorf("failed to marshal session %s: %w", sess.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, sess.ID, sess.OwnerID, sess.DocumentID, sess.StartTime.UTC(), string(payload)); err != nil {
				return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
			}
		}
		return nil
	})
}

// LoadCanvas returns the stored graph for the pair, or ErrNotFound.
func (s *Store) LoadCanvas(ctx context.Context, ownerID, documentID string) (*Canvas, error) {
	var (
		c     Canvas
		graph string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, document_id, updated_at, graph FROM canvases WHERE owner_id = ? AND document_id = ?",
		ownerID, documentID,
	).Scan(&c.ID, &c.OwnerID, &c.DocumentID, &c.UpdatedAt, &graph)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load canvas: %w", err)
	}
	c.SerializedGraph = json.RawMessage(graph)
	return &c, nil
}

// SaveCanvas replaces the stored graph for the canvas pair.
func (s *Store) SaveCanvas(ctx context.Context, c *Canvas) error {
	if c == nil {
		return errors.New("canvas is nil")
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	graph := string(c.SerializedGraph)
	if graph == "" {
		graph = "null"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canvases (owner_id, document_id, id, updated_at, graph)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, document_id) DO UPDATE SET
			id = excluded.id,
			updated_at = excluded.updated_at,
			graph = excluded.graph
	`, c.OwnerID, c.DocumentID, c.ID, updated.UTC(), graph)
	if err != nil {
		return fmt.Errorf("failed to save canvas: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func loadGrouped[T any](ctx context.Context, db *sql.DB, table, orderBy string, ownerIDs, documentIDs []string, key func(T) string) (map[string][]T, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(ownerIDs) > 0 {
		where = append(where, "owner_id IN ("+placeholders(len(ownerIDs))+")")
		args = append(args, toArgs(ownerIDs)...)
	}
	if len(documentIDs) > 0 {
		where = append(where, "document_id IN ("+placeholders(len(documentIDs))+")")
		args = append(args, toArgs(documentIDs)...)
	}

	query := "SELECT payload FROM " + table
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderBy + " ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string][]T)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		var rec T
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", table, err)
		}
		k := key(rec)
		out[k] = append(out[k], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(vals []string) []interface{} {
	args := make([]interface{}, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}
