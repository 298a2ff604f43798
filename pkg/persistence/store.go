package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"appgen/pkg/session"
)

// Store implements session.Store against a *sql.DB, serializing the full
// AgentState as one JSON blob per row. Schema-version migration and
// connection setup live in schema.go/db.go; Store is pure read/write.
type Store struct {
	db *sql.DB
}

// NewStore wraps db (typically persistence.GetDB()) as a session.Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveAgentState upserts state's full JSON projection, keyed by AgentID.
func (s *Store) SaveAgentState(ctx context.Context, state *session.AgentState) error {
	if state == nil {
		return fmt.Errorf("persistence: cannot save nil agent state")
	}

	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("persistence: marshal agent state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_states (agent_id, current_state, state_data, schema_version, updated_at)
		VALUES (?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(agent_id) DO UPDATE SET
			current_state = excluded.current_state,
			state_data = excluded.state_data,
			schema_version = excluded.schema_version,
			updated_at = excluded.updated_at
	`, state.AgentID, string(state.CurrentDevState), blob, CurrentSchemaVersion)
	if err != nil {
		return fmt.Errorf("persistence: save agent state %s: %w", state.AgentID, err)
	}
	return nil
}

// LoadAgentState returns the persisted state for agentID, or (nil, nil)
// if no row exists, matching session.Agent.Initialize's "no restored
// state, start fresh" contract.
func (s *Store) LoadAgentState(ctx context.Context, agentID string) (*session.AgentState, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state_data FROM agent_states WHERE agent_id = ?
	`, agentID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: load agent state %s: %w", agentID, err)
	}

	var state session.AgentState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal agent state %s: %w", agentID, err)
	}
	return &state, nil
}

// DeleteAgentState removes agentID's row, used when a session is
// permanently discarded rather than merely evicted from the in-memory
// registry (an evicted-but-not-deleted agent reloads from its saved row
// when the registry recreates it with GetOrCreate and it is initialized
// again; Registry.Get alone does not recreate it).
func (s *Store) DeleteAgentState(ctx context.Context, agentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agent_states WHERE agent_id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("persistence: delete agent state %s: %w", agentID, err)
	}
	return nil
}
