package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"agentorders/internal/backend"
	"agentorders/internal/core"
)

var ErrWorkOrderNotFound = errors.New("work order not found")

const sequencePrefix = "OT-"

const workOrderColumns = `
	w.id, w.sequence, w.prompt, w.status, w.start_time, w.end_time, w.created_at, w.updated_at,
	a.id, a.name, a.description, a.prompt, a.is_active, a.periodicity_value, a.periodicity_unit,
	a.start_time, a.end_time, a.created_at, a.updated_at,
	m.id, m.name, m.provider, m.api_key, m.created_at, m.updated_at
	FROM work_orders w
	JOIN agents a ON a.id = w.agent_id
	JOIN models m ON m.id = a.model_id`

// InsertWorkOrder stores a work order. A blank Sequence is assigned the next OT-NNNNNN label
// and a blank Status defaults to draft.
func (s *Store) InsertWorkOrder(ctx context.Context, wo *core.WorkOrder) error {
	if wo.Agent != nil && wo.AgentID == 0 {
		wo.AgentID = wo.Agent.ID
	}
	if wo.Status == "" {
		wo.Status = core.WorkOrderStatusDraft
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert work order: %w", err)
	}
	defer tx.Rollback()

	if wo.Sequence == "" {
		seq, err := nextSequence(ctx, tx)
		if err != nil {
			return err
		}
		wo.Sequence = seq
	}
	now := time.Now().UTC()
	wo.CreatedAt = now
	wo.UpdatedAt = now
	res, err := tx.ExecContext(ctx, `
		INSERT INTO work_orders (sequence, agent_id, prompt, status, start_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, wo.Sequence, wo.AgentID, wo.Prompt, string(wo.Status), wo.Window.Start.String(), wo.Window.End.String(),
		formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert work order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert work order id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit work order: %w", err)
	}
	wo.ID = id
	return nil
}

// nextSequence continues the numbering of the most recently inserted work order.
func nextSequence(ctx context.Context, tx *sql.Tx) (string, error) {
	var last string
	err := tx.QueryRowContext(ctx, `SELECT sequence FROM work_orders ORDER BY id DESC LIMIT 1`).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read last sequence: %w", err)
	}
	next := 1
	if n, err := strconv.Atoi(strings.TrimPrefix(last, sequencePrefix)); err == nil && strings.HasPrefix(last, sequencePrefix) {
		next = n + 1
	}
	return fmt.Sprintf("%s%06d", sequencePrefix, next), nil
}

// GetWorkOrder loads a work order with its agent and model.
func (s *Store) GetWorkOrder(ctx context.Context, id int64) (*core.WorkOrder, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+workOrderColumns+` WHERE w.id = ?`, id)
	wo, err := scanWorkOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkOrderNotFound
		}
		return nil, err
	}
	return wo, nil
}

// ListPendingWorkOrders returns draft and working orders, newest first.
func (s *Store) ListPendingWorkOrders(ctx context.Context) ([]*core.WorkOrder, error) {
	return s.queryWorkOrders(ctx, `SELECT `+workOrderColumns+`
		WHERE w.status IN (?, ?)
		ORDER BY w.created_at DESC, w.id DESC
	`, string(core.WorkOrderStatusDraft), string(core.WorkOrderStatusWorking))
}

// ListWorkOrders returns every work order, or only those with the given status, newest first.
func (s *Store) ListWorkOrders(ctx context.Context, status *core.WorkOrderStatus) ([]*core.WorkOrder, error) {
	if status != nil {
		return s.queryWorkOrders(ctx, `SELECT `+workOrderColumns+`
			WHERE w.status = ?
			ORDER BY w.created_at DESC, w.id DESC
		`, string(*status))
	}
	return s.queryWorkOrders(ctx, `SELECT `+workOrderColumns+`
		ORDER BY w.created_at DESC, w.id DESC
	`)
}

// UpdateWorkOrderStatus sets the status of a work order.
func (s *Store) UpdateWorkOrderStatus(ctx context.Context, id int64, status core.WorkOrderStatus) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE work_orders
		SET status = ?, updated_at = ?
		WHERE id = ?
	`, string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update work order status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update work order status rows: %w", err)
	}
	if rows == 0 {
		return ErrWorkOrderNotFound
	}
	return nil
}

func (s *Store) queryWorkOrders(ctx context.Context, query string, args ...any) ([]*core.WorkOrder, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query work orders: %w", err)
	}
	defer rows.Close()
	var out []*core.WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanWorkOrder(scanner interface {
	Scan(dest ...any) error
}) (*core.WorkOrder, error) {
	var (
		wo                         core.WorkOrder
		agent                      core.Agent
		model                      core.InferenceModel
		woStatus, woStart, woEnd   string
		woCreated, woUpdated       string
		active                     int
		unit, agentStart, agentEnd string
		agentCreated, agentUpdated string
		provider                   string
		modelCreated, modelUpdated string
	)
	if err := scanner.Scan(
		&wo.ID, &wo.Sequence, &wo.Prompt, &woStatus, &woStart, &woEnd, &woCreated, &woUpdated,
		&agent.ID, &agent.Name, &agent.Description, &agent.Prompt, &active, &agent.Periodicity.Value, &unit,
		&agentStart, &agentEnd, &agentCreated, &agentUpdated,
		&model.ID, &model.Name, &provider, &model.Credential, &modelCreated, &modelUpdated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan work order: %w", err)
	}

	var err error
	if wo.Window, err = parseWindow(woStart, woEnd); err != nil {
		return nil, fmt.Errorf("work order %s: %w", wo.Sequence, err)
	}
	if agent.Window, err = parseWindow(agentStart, agentEnd); err != nil {
		return nil, fmt.Errorf("agent %d: %w", agent.ID, err)
	}
	if err := parseTimes(
		timeField{woCreated, &wo.CreatedAt}, timeField{woUpdated, &wo.UpdatedAt},
		timeField{agentCreated, &agent.CreatedAt}, timeField{agentUpdated, &agent.UpdatedAt},
		timeField{modelCreated, &model.CreatedAt}, timeField{modelUpdated, &model.UpdatedAt},
	); err != nil {
		return nil, err
	}

	wo.Status = core.WorkOrderStatus(woStatus)
	agent.Active = active != 0
	agent.Periodicity.Unit = core.PeriodUnit(unit)
	model.Provider = backend.Kind(provider)
	agent.ModelID = model.ID
	agent.Model = &model
	wo.AgentID = agent.ID
	wo.Agent = &agent
	return &wo, nil
}

func parseWindow(start, end string) (core.Window, error) {
	s, err := core.ParseTimeOfDay(start)
	if err != nil {
		return core.Window{}, err
	}
	e, err := core.ParseTimeOfDay(end)
	if err != nil {
		return core.Window{}, err
	}
	return core.Window{Start: s, End: e}, nil
}

type timeField struct {
	raw string
	dst *time.Time
}

func parseTimes(fields ...timeField) error {
	for _, f := range fields {
		t, err := parseTime(f.raw)
		if err != nil {
			return err
		}
		*f.dst = t
	}
	return nil
}
