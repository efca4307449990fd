// README: Event store backed by PostgreSQL.
package events

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO record_transitions (
			domain, record_id, kind, from_status, to_status, collection, actor_uid, actor_name, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.Domain,
		e.RecordID,
		string(e.Kind),
		e.FromStatus,
		e.ToStatus,
		e.Collection,
		e.ActorUID,
		e.ActorName,
		e.CreatedAt,
	)
	return err
}

// ListByRecord returns a record's events oldest first.
func (s *Store) ListByRecord(ctx context.Context, domain, recordID string) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, domain, record_id, kind, from_status, to_status, collection, actor_uid, actor_name, created_at
		FROM record_transitions
		WHERE domain = $1 AND record_id = $2
		ORDER BY created_at ASC, id ASC`, domain, recordID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(
			&e.ID, &e.Domain, &e.RecordID, &kind, &e.FromStatus, &e.ToStatus,
			&e.Collection, &e.ActorUID, &e.ActorName, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
