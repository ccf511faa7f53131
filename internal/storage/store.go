// Package storage defines the unified Store interface over the chatops
// entitlement tables and conversation history. Two backends are provided:
// SQLite (default, zero-config) and PostgreSQL (the production deployment,
// shared with the provisioning pipeline that loads the entitlement tables).
package storage

import (
	"context"

	"github.com/nguyenhx22/chatops-ai-bot/internal/agent"
	"github.com/nguyenhx22/chatops-ai-bot/internal/entitlement"
)

// Store is the unified persistence interface. Both backends implement it;
// the returned sub-stores share the underlying connection.
type Store interface {
	// Entitlements answers who may operate which application where.
	Entitlements() entitlement.Store

	// Conversations persists per-conversation message history.
	Conversations() agent.ConversationStore

	// Ping checks the connection for health/readiness probes.
	Ping(ctx context.Context) error

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	Close() error

	// Driver returns the storage driver name ("sqlite" or "postgres").
	Driver() string
}

// DriverSQLite is the SQLite driver name.
const DriverSQLite = "sqlite"

// DriverPostgres is the PostgreSQL driver name.
const DriverPostgres = "postgres"
