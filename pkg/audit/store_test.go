package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_LogAssignsIDAndTimestamp(t *testing.T) {
	store := newTestStore(t)

	event := &Event{
		EventType: EventTypeProvisionCreate,
		Status:    EventStatusSuccess,
		Email:     "ada@example.com",
	}
	require.NoError(t, store.Log(context.Background(), event))

	assert.NotZero(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestStore_SearchByEmailAndType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Log(ctx, &Event{
		EventType: EventTypeProvisionCreate,
		Status:    EventStatusSuccess,
		Email:     "ada@example.com",
		Stage:     "report_store",
	}))
	require.NoError(t, store.Log(ctx, &Event{
		EventType: EventTypeCompensation,
		Status:    EventStatusFailure,
		Email:     "ada@example.com",
		Stage:     "report_store",
		Message:   "compensating delete failed; report store user orphaned",
	}))
	require.NoError(t, store.Log(ctx, &Event{
		EventType: EventTypeProvisionDelete,
		Status:    EventStatusSuccess,
		Email:     "bob@example.com",
	}))

	events, err := store.Search(ctx, Filter{Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	failures, err := store.Search(ctx, Filter{
		EventTypes: []EventType{EventTypeCompensation},
		Status:     EventStatusFailure,
	})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Message, "orphaned")
}

func TestStore_MetadataRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Log(ctx, &Event{
		EventType: EventTypeOrphanDetected,
		Status:    EventStatusFailure,
		Email:     "ghost@example.com",
		Metadata:  map[string]interface{}{"backend": "report_store", "user_id": float64(12)},
	}))

	events, err := store.Search(ctx, Filter{EventTypes: []EventType{EventTypeOrphanDetected}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "report_store", events[0].Metadata["backend"])
	assert.Equal(t, float64(12), events[0].Metadata["user_id"])
}

func TestStore_SearchSinceFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.Log(ctx, &Event{
		Timestamp: old,
		EventType: EventTypePermissionGrant,
		Status:    EventStatusSuccess,
		Email:     "ada@example.com",
	}))
	require.NoError(t, store.Log(ctx, &Event{
		EventType: EventTypePermissionRevoke,
		Status:    EventStatusSuccess,
		Email:     "ada@example.com",
	}))

	since := time.Now().UTC().Add(-time.Hour)
	recent, err := store.Search(ctx, Filter{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, EventTypePermissionRevoke, recent[0].EventType)
}

func TestStore_Count(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Log(ctx, &Event{
			EventType: EventTypePermissionGrant,
			Status:    EventStatusSuccess,
			Email:     "ada@example.com",
		}))
	}

	count, err := store.Count(ctx, Filter{Status: EventStatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestNopLogger(t *testing.T) {
	assert.NoError(t, NopLogger{}.Log(context.Background(), &Event{}))
}
