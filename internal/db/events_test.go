package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSaveAndQueryEvents(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	e1 := &Event{TrackID: "TRK-001", Unit: "TRK-001/P1/A", EventType: EventCommitRecorded, Commit: "c1"}
	require.NoError(t, d.SaveEvent(ctx, e1))
	assert.NotZero(t, e1.ID)

	e2 := &Event{TrackID: "TRK-001", Unit: "TRK-001/P1/A", EventType: EventStatusChanged,
		Data: map[string]string{"from": "pending", "to": "in_progress"}}
	require.NoError(t, d.SaveEvent(ctx, e2))

	events, err := d.QueryEvents(ctx, QueryOptions{TrackID: "TRK-001"})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first
	assert.Equal(t, EventStatusChanged, events[0].EventType)
	assert.Equal(t, EventCommitRecorded, events[1].EventType)
	assert.Equal(t, "c1", events[1].Commit)

	detail, ok := events[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "in_progress", detail["to"])
}

func TestQueryEventsUnitPrefix(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	for _, unit := range []string{"TRK-001", "TRK-001/P1", "TRK-001/P1/A", "TRK-001/P2/A"} {
		require.NoError(t, d.SaveEvent(ctx, &Event{
			TrackID: "TRK-001", Unit: unit, EventType: EventStatusChanged,
		}))
	}

	events, err := d.QueryEvents(ctx, QueryOptions{UnitPrefix: "TRK-001/P1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "TRK-001/P1/A", events[0].Unit)
	assert.Equal(t, "TRK-001/P1", events[1].Unit)
}

func TestQueryEventsFilters(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, d.SaveEvent(ctx, &Event{
		TrackID: "TRK-001", Unit: "TRK-001/P1/A",
		EventType: EventCommitRecorded, Commit: "c1", CreatedAt: old,
	}))
	require.NoError(t, d.SaveEvent(ctx, &Event{
		TrackID: "TRK-001", Unit: "TRK-001/P1/A",
		EventType: EventCommitReverted, Commit: "c1",
	}))
	require.NoError(t, d.SaveEvent(ctx, &Event{
		TrackID: "TRK-002", Unit: "TRK-002/P1/A",
		EventType: EventCommitRecorded, Commit: "c2",
	}))

	byType, err := d.QueryEvents(ctx, QueryOptions{EventTypes: []string{EventCommitReverted}})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "c1", byType[0].Commit)

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	recent, err := d.QueryEvents(ctx, QueryOptions{TrackID: "TRK-001", Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, EventCommitReverted, recent[0].EventType)

	limited, err := d.QueryEvents(ctx, QueryOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReplaceTrackEvents(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	require.NoError(t, d.SaveEvent(ctx, &Event{
		TrackID: "TRK-001", Unit: "TRK-001/P1/A", EventType: EventCommitRecorded, Commit: "stale",
	}))
	require.NoError(t, d.SaveEvent(ctx, &Event{
		TrackID: "TRK-002", Unit: "TRK-002/P1/A", EventType: EventCommitRecorded, Commit: "keep",
	}))

	rebuilt := []Event{
		{Unit: "TRK-001/P1/A", EventType: EventCommitRecorded, Commit: "c1", CreatedAt: time.Now()},
		{Unit: "TRK-001/P1/A", EventType: EventCommitReverted, Commit: "c1", CreatedAt: time.Now()},
	}
	require.NoError(t, d.ReplaceTrackEvents(ctx, "TRK-001", rebuilt))

	events, err := d.QueryEvents(ctx, QueryOptions{TrackID: "TRK-001"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "c1", events[0].Commit)

	other, err := d.QueryEvents(ctx, QueryOptions{TrackID: "TRK-002"})
	require.NoError(t, err)
	assert.Len(t, other, 1, "rebuild must not touch other tracks")
}
