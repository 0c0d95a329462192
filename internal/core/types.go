package core

import (
	"fmt"
	"time"

	"agentorders/internal/backend"
)

// WorkOrderStatus describes the lifecycle state of a work order.
type WorkOrderStatus string

const (
	WorkOrderStatusDraft     WorkOrderStatus = "draft"
	WorkOrderStatusWorking   WorkOrderStatus = "working"
	WorkOrderStatusCompleted WorkOrderStatus = "completed"
)

// PeriodUnit is the unit of an agent periodicity.
type PeriodUnit string

const (
	PeriodMinutes PeriodUnit = "minutes"
	PeriodHours   PeriodUnit = "hours"
	PeriodDays    PeriodUnit = "days"
)

// Periodicity is the minimum interval between successful executions of the same work order.
type Periodicity struct {
	Value int
	Unit  PeriodUnit
}

// Duration converts the periodicity to a time.Duration. Units other than minutes and hours count as days.
func (p Periodicity) Duration() time.Duration {
	n := time.Duration(p.Value)
	switch p.Unit {
	case PeriodMinutes:
		return n * time.Minute
	case PeriodHours:
		return n * time.Hour
	default:
		return n * 24 * time.Hour
	}
}

func (p Periodicity) String() string {
	return fmt.Sprintf("every %d %s", p.Value, p.Unit)
}

// InferenceModel is a configured inference backend and its credential.
type InferenceModel struct {
	ID         int64
	Name       string
	Provider   backend.Kind
	Credential string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Agent pairs a system prompt with an inference model and a run schedule.
type Agent struct {
	ID          int64
	Name        string
	Description string
	Prompt      string
	Active      bool
	Periodicity Periodicity
	Window      Window
	ModelID     int64
	Model       *InferenceModel
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkOrder is one unit of prompted work submitted against an agent.
type WorkOrder struct {
	ID        int64
	Sequence  string
	AgentID   int64
	Agent     *Agent
	Prompt    string
	Status    WorkOrderStatus
	Window    Window
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExecutionStatus describes the result of a single dispatch.
type ExecutionStatus string

const (
	ExecutionStatusSucceeded ExecutionStatus = "succeeded"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusSkipped   ExecutionStatus = "skipped"
)

// Execution is the persisted record of one dispatch attempt.
type Execution struct {
	ID          string
	WorkOrderID int64
	Sequence    string
	Status      ExecutionStatus
	ErrorKind   *string
	Response    *string
	Error       *string
	StartedAt   time.Time
	EndedAt     time.Time
	CreatedAt   time.Time
}
