package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	mu    sync.Mutex
	keeps []int
	n     int64
	err   error
}

func (p *fakePruner) PruneExecutions(ctx context.Context, keep int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keeps = append(p.keeps, keep)
	return p.n, p.err
}

func TestParseCron(t *testing.T) {
	_, err := ParseCron("0 3 * * *")
	require.NoError(t, err)

	_, err = ParseCron("@daily")
	assert.ErrorContains(t, err, "only 5-field")

	_, err = ParseCron("0 0 3 * * *")
	assert.ErrorContains(t, err, "invalid cron expression")
}

func TestNextOccurrences(t *testing.T) {
	schedule, err := ParseCron("*/15 * * * *")
	require.NoError(t, err)

	got := NextOccurrences(schedule, at(10, 2), 3)
	assert.Equal(t, []time.Time{at(10, 15), at(10, 30), at(10, 45)}, got)
}

func TestHousekeeper_PruneNow(t *testing.T) {
	pruner := &fakePruner{n: 7}
	h, err := NewHousekeeper(pruner, 50, "0 3 * * *", discardLogger(), time.UTC)
	require.NoError(t, err)

	removed, err := h.PruneNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)
	assert.Equal(t, []int{50}, pruner.keeps)
}

func TestHousekeeper_PruneError(t *testing.T) {
	pruner := &fakePruner{err: errors.New("database is locked")}
	h, err := NewHousekeeper(pruner, 0, "0 3 * * *", discardLogger(), time.UTC)
	require.NoError(t, err)

	_, err = h.PruneNow(context.Background())
	assert.ErrorContains(t, err, "database is locked")
	assert.Equal(t, []int{1}, pruner.keeps, "keep is raised to one")
}

func TestHousekeeper_InvalidSchedule(t *testing.T) {
	_, err := NewHousekeeper(&fakePruner{}, 10, "every night", discardLogger(), time.UTC)
	assert.Error(t, err)
}

func TestHousekeeper_NextRun(t *testing.T) {
	h, err := NewHousekeeper(&fakePruner{}, 10, "0 3 * * *", discardLogger(), time.UTC)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC), h.NextRun(at(10, 0)))
}

func TestHousekeeper_StartStop(t *testing.T) {
	h, err := NewHousekeeper(&fakePruner{}, 10, "0 3 * * *", discardLogger(), time.UTC)
	require.NoError(t, err)

	h.Start(context.Background())
	select {
	case <-h.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("housekeeper did not stop")
	}
}
