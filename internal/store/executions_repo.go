package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agentorders/internal/core"
)

var ErrExecutionNotFound = errors.New("execution not found")

const executionColumns = `id, work_order_id, sequence, status, error_kind, response, error, started_at, ended_at, created_at`

// InsertExecution records one dispatch attempt. A blank ID is assigned a random UUID.
func (s *Store) InsertExecution(ctx context.Context, exec *core.Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	exec.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, exec.ID, exec.WorkOrderID, exec.Sequence, string(exec.Status),
		nullableString(exec.ErrorKind), nullableString(exec.Response), nullableString(exec.Error),
		formatTime(exec.StartedAt), formatTime(exec.EndedAt), formatTime(exec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*core.Execution, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	return exec, nil
}

// ListExecutions returns the newest executions of a work order, or of all work orders when
// workOrderID is 0.
func (s *Store) ListExecutions(ctx context.Context, workOrderID int64, limit, offset int) ([]*core.Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var (
		rows *sql.Rows
		err  error
	)
	if workOrderID > 0 {
		rows, err = s.DB.QueryContext(ctx, `
			SELECT `+executionColumns+`
			FROM executions
			WHERE work_order_id = ?
			ORDER BY started_at DESC, created_at DESC
			LIMIT ? OFFSET ?
		`, workOrderID, limit, offset)
	} else {
		rows, err = s.DB.QueryContext(ctx, `
			SELECT `+executionColumns+`
			FROM executions
			ORDER BY started_at DESC, created_at DESC
			LIMIT ? OFFSET ?
		`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	var out []*core.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PruneExecutions keeps the newest keep executions of each work order and deletes the rest.
func (s *Store) PruneExecutions(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM executions
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY work_order_id
					ORDER BY started_at DESC, created_at DESC
				) AS rn
				FROM executions
			)
			WHERE rn > ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune executions rows: %w", err)
	}
	return removed, nil
}

func scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*core.Execution, error) {
	var (
		exec                          core.Execution
		status                        string
		errorKind, response, errMsg   sql.NullString
		startedAt, endedAt, createdAt string
	)
	if err := scanner.Scan(&exec.ID, &exec.WorkOrderID, &exec.Sequence, &status,
		&errorKind, &response, &errMsg, &startedAt, &endedAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	exec.Status = core.ExecutionStatus(status)
	if errorKind.Valid {
		exec.ErrorKind = &errorKind.String
	}
	if response.Valid {
		exec.Response = &response.String
	}
	if errMsg.Valid {
		exec.Error = &errMsg.String
	}
	if err := parseTimes(
		timeField{startedAt, &exec.StartedAt},
		timeField{endedAt, &exec.EndedAt},
		timeField{createdAt, &exec.CreatedAt},
	); err != nil {
		return nil, err
	}
	return &exec, nil
}
