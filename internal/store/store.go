// Package store implements the Persistence Layer (C5): a black-box
// best-effort durability layer (spec.md §4.8). Every call may fail;
// callers (internal/ingress) log a warning and continue — in-memory
// state and the broadcast fabric remain canonical for the process
// lifetime. Grounded on
// original_source/src/backend/chat/db.rs and
// .../messaging/db.rs for the method shapes and
// "ON CONFLICT ... DO UPDATE" upsert semantics.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/Polqt/braidcore/internal/messagelog"
)

// Store is the persistence contract. Implementations: Memory (default,
// no durability) and Postgres (pgx-backed, spec.md §6.6 schema).
type Store interface {
	UpsertMessage(ctx context.Context, conversation string, principal uuid.UUID, msg messagelog.Message, version string) error
	UpsertVersionEdge(ctx context.Context, conversation string, version string, parents []string) error
	LoadMessages(ctx context.Context, conversation string) ([]messagelog.Message, error)
	LoadVersionEdges(ctx context.Context, conversation string) (map[string][]string, error)
	IsParticipant(ctx context.Context, principal uuid.UUID, conversation string) (bool, error)
}
