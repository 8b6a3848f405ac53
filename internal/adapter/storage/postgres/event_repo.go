package postgres

import (
	"context"
	"fmt"
	"strings"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository on top of event_log and the
// single-row event_head table that serializes appends.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Append seals events after the current head and stores them.
// This MUST be called within a transaction.
func (r *EventRepo) Append(ctx context.Context, tx pgx.Tx, events ...*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	var seq int64
	var prev string
	err := tx.QueryRow(ctx, `SELECT seq, hash FROM event_head WHERE id = 1 FOR UPDATE`).Scan(&seq, &prev)
	if err != nil {
		return lockError(fmt.Errorf("lock event head: %w", err))
	}

	insert := `INSERT INTO event_log (seq, id, event_type, instance_id, owner_id, actor_id, payload, prev_hash, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, e := range events {
		seq++
		e.Seal(seq, prev)
		_, err := tx.Exec(ctx, insert,
			e.Seq, e.ID, e.Type, e.InstanceID, e.OwnerID, e.ActorID,
			[]byte(e.Payload), e.PrevHash, e.Hash, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
		prev = e.Hash
	}

	if _, err := tx.Exec(ctx, `UPDATE event_head SET seq = $1, hash = $2 WHERE id = 1`, seq, prev); err != nil {
		return fmt.Errorf("advance event head: %w", err)
	}
	return nil
}

// List fetches events matching params in seq order.
func (r *EventRepo) List(ctx context.Context, params ports.EventListParams) ([]domain.Event, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("seq > $%d", argIdx))
	args = append(args, params.AfterSeq)
	argIdx++

	if params.Viewer != nil {
		conditions = append(conditions, fmt.Sprintf("(owner_id = $%d OR actor_id = $%d)", argIdx, argIdx))
		args = append(args, *params.Viewer)
		argIdx++
	}
	if params.InstanceID != nil {
		conditions = append(conditions, fmt.Sprintf("instance_id = $%d", argIdx))
		args = append(args, *params.InstanceID)
		argIdx++
	}
	if params.OwnerID != nil {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argIdx))
		args = append(args, *params.OwnerID)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}

	query := fmt.Sprintf(`SELECT seq, id, event_type, instance_id, owner_id, actor_id, payload, prev_hash, hash, created_at
		FROM event_log WHERE %s ORDER BY seq`, strings.Join(conditions, " AND "))
	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, params.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var payload []byte
		if err := rows.Scan(
			&e.Seq, &e.ID, &e.Type, &e.InstanceID, &e.OwnerID, &e.ActorID,
			&payload, &e.PrevHash, &e.Hash, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.Payload = payload
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}
