package core

import (
	"context"
	"time"
)

// Eligibility is the evaluation of one candidate work order at a given instant.
type Eligibility struct {
	WorkOrder       *WorkOrder
	WorkOrderWindow bool
	AgentWindow     bool
	AgentActive     bool
	ThrottleElapsed bool
	LastSuccess     *time.Time
	NextEligibleAt  *time.Time
}

// Eligible reports whether every check passed.
func (e Eligibility) Eligible() bool {
	return e.WorkOrderWindow && e.AgentWindow && e.AgentActive && e.ThrottleElapsed
}

// Reason names the first failing check, in evaluation order.
func (e Eligibility) Reason() string {
	switch {
	case e.WorkOrder == nil || e.WorkOrder.Agent == nil:
		return "work order has no agent"
	case !e.WorkOrderWindow:
		return "outside work order window"
	case !e.AgentWindow:
		return "outside agent window"
	case !e.AgentActive:
		return "agent inactive"
	case !e.ThrottleElapsed:
		return "periodicity not elapsed"
	default:
		return "eligible"
	}
}

// Selector picks the work orders that may run at a given instant.
type Selector struct {
	store    Store
	throttle Throttle
	location *time.Location
}

// NewSelector builds a selector. Windows are evaluated in location (time.Local when nil).
func NewSelector(store Store, throttle Throttle, location *time.Location) *Selector {
	if location == nil {
		location = time.Local
	}
	return &Selector{store: store, throttle: throttle, location: location}
}

// Select returns the eligible work orders in store order. It only reads from the store.
func (s *Selector) Select(ctx context.Context, now time.Time) ([]*WorkOrder, error) {
	evaluated, err := s.Explain(ctx, now)
	if err != nil {
		return nil, err
	}
	eligible := make([]*WorkOrder, 0, len(evaluated))
	for _, e := range evaluated {
		if e.Eligible() {
			eligible = append(eligible, e.WorkOrder)
		}
	}
	return eligible, nil
}

// Explain evaluates every pending work order without filtering.
func (s *Selector) Explain(ctx context.Context, now time.Time) ([]Eligibility, error) {
	candidates, err := s.store.ListPendingWorkOrders(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list pending work orders", Err: err}
	}
	out := make([]Eligibility, 0, len(candidates))
	for _, wo := range candidates {
		out = append(out, s.Evaluate(wo, now))
	}
	return out, nil
}

// Evaluate runs the window, activity, and throttle checks for a single work order.
func (s *Selector) Evaluate(wo *WorkOrder, now time.Time) Eligibility {
	e := Eligibility{WorkOrder: wo}
	agent := wo.Agent
	if agent == nil {
		return e
	}
	local := now.In(s.location)
	e.WorkOrderWindow = wo.Window.Contains(local)
	e.AgentWindow = agent.Window.Contains(local)
	e.AgentActive = agent.Active
	e.ThrottleElapsed = s.throttle.ElapsedEnough(wo.ID, now, agent.Periodicity)
	if last, ok := s.throttle.LastSuccess(wo.ID); ok {
		next := last.Add(agent.Periodicity.Duration())
		e.LastSuccess = &last
		e.NextEligibleAt = &next
	}
	return e
}

// Location is the zone windows are evaluated in.
func (s *Selector) Location() *time.Location {
	return s.location
}
