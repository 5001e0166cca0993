package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Polqt/braidcore/internal/messagelog"
)

// Postgres is the durable Store, backed by pgx against the schema in
// spec.md §6.6. Grounded on
// original_source/src/backend/chat/db.rs's "ON CONFLICT ... DO UPDATE"
// upsert pattern, translated from sqlx's query builder to pgx's
// Pool.Exec/Query.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool. Neither this package nor
// cmd/server applies schema.sql; the tables must already exist.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) UpsertMessage(ctx context.Context, conversation string, principal uuid.UUID, msg messagelog.Message, version string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, type, timestamp, is_read, is_delivered, crdt_timestamp, braid_version, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, 'text', $4, false, true, 0, $5, NOW())
		ON CONFLICT (conversation_id, braid_version) DO UPDATE SET
			content = EXCLUDED.content,
			timestamp = EXCLUDED.timestamp
	`, conversation, principal, msg.Text, msg.Timestamp, version)
	return err
}

func (p *Postgres) UpsertVersionEdge(ctx context.Context, conversation string, version string, parents []string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO version_history (id, resource_id, version_id, parent_versions, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, NOW())
		ON CONFLICT (resource_id, version_id) DO UPDATE SET
			parent_versions = EXCLUDED.parent_versions
	`, conversation, version, parents)
	return err
}

func (p *Postgres) LoadMessages(ctx context.Context, conversation string) ([]messagelog.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT content, timestamp, braid_version
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, conversation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []messagelog.Message
	for rows.Next() {
		var msg messagelog.Message
		var version string
		var timestamp string
		if err := rows.Scan(&msg.Text, &timestamp, &version); err != nil {
			return nil, err
		}
		msg.Timestamp = timestamp
		msg.Version = &version
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (p *Postgres) LoadVersionEdges(ctx context.Context, conversation string) (map[string][]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT version_id, parent_versions
		FROM version_history
		WHERE resource_id = $1
	`, conversation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var version string
		var parents []string
		if err := rows.Scan(&version, &parents); err != nil {
			return nil, err
		}
		out[version] = parents
	}
	return out, rows.Err()
}

func (p *Postgres) IsParticipant(ctx context.Context, principal uuid.UUID, conversation string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversation, principal).Scan(&exists)
	return exists, err
}
