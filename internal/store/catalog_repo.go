package store

import (
	"context"
	"fmt"
	"time"

	"agentorders/internal/core"
)

// InsertModel stores an inference model and fills in its ID and timestamps.
func (s *Store) InsertModel(ctx context.Context, m *core.InferenceModel) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO models (name, provider, api_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.Name, string(m.Provider), m.Credential, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert model id: %w", err)
	}
	m.ID = id
	return nil
}

// InsertAgent stores an agent bound to an existing model.
func (s *Store) InsertAgent(ctx context.Context, a *core.Agent) error {
	if a.Model != nil && a.ModelID == 0 {
		a.ModelID = a.Model.ID
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO agents (name, description, model_id, prompt, is_active, periodicity_value, periodicity_unit,
			start_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.Name, a.Description, a.ModelID, a.Prompt, boolToInt(a.Active), a.Periodicity.Value, string(a.Periodicity.Unit),
		a.Window.Start.String(), a.Window.End.String(), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert agent id: %w", err)
	}
	a.ID = id
	return nil
}
