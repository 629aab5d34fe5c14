package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/permsync/pkg/reportstore"
)

type fakePermissionStore struct {
	mu          sync.Mutex
	permissions []reportstore.Permission
	nextID      int

	createCalls []reportstore.Permission
	deleteCalls []string

	failCreateItem map[string]bool
	failDeleteID   map[string]bool
	listErr        error
}

func (f *fakePermissionStore) ListUserPermissions(ctx context.Context, userID int64) ([]reportstore.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]reportstore.Permission, len(f.permissions))
	copy(out, f.permissions)
	return out, nil
}

func (f *fakePermissionStore) CreatePermission(ctx context.Context, perm reportstore.Permission) (*reportstore.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, perm)
	if f.failCreateItem[perm.ItemID] {
		return nil, errors.New("create rejected")
	}
	f.nextID++
	perm.ID = fmt.Sprintf("new-%d", f.nextID)
	f.permissions = append(f.permissions, perm)
	return &perm, nil
}

func (f *fakePermissionStore) DeletePermission(ctx context.Context, permissionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, permissionID)
	if f.failDeleteID[permissionID] {
		return errors.New("delete rejected")
	}
	for i, p := range f.permissions {
		if p.ID == permissionID {
			f.permissions = append(f.permissions[:i], f.permissions[i+1:]...)
			break
		}
	}
	return nil
}

func TestGrant_DropsItemlessSpecificGrantsAndRejectsEmptyBatch(t *testing.T) {
	store := &fakePermissionStore{}
	rec := NewReconciler(store, nil, nil, nil)

	_, err := rec.Grant(context.Background(), 7, []GrantRequest{
		{EntityKind: reportstore.KindSpecificReports, AccessLevel: reportstore.AccessRead},
		{EntityKind: reportstore.KindReportsInCategory, AccessLevel: reportstore.AccessRead},
	})

	require.ErrorIs(t, err, ErrNothingSelected)
	assert.Empty(t, store.createCalls, "rejection must happen before any network call")
}

func TestGrant_MixedBatchDropsInvalidKeepsValid(t *testing.T) {
	store := &fakePermissionStore{}
	rec := NewReconciler(store, nil, nil, nil)

	result, err := rec.Grant(context.Background(), 7, []GrantRequest{
		{EntityKind: reportstore.KindSpecificReports, AccessLevel: reportstore.AccessRead}, // dropped
		{EntityKind: reportstore.KindSpecificReports, AccessLevel: reportstore.AccessRead, ItemID: "R1"},
		{EntityKind: reportstore.KindBlanketAllReports, AccessLevel: reportstore.AccessRead},
	})
	require.NoError(t, err)

	assert.Equal(t, FullSuccess, result.Outcome)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 2, result.Succeeded)
	assert.Len(t, store.createCalls, 2)
}

func TestGrant_MiddleItemFailureIsPartial(t *testing.T) {
	store := &fakePermissionStore{failCreateItem: map[string]bool{"R2": true}}
	rec := NewReconciler(store, nil, nil, nil)

	result, err := rec.Grant(context.Background(), 7, []GrantRequest{
		{EntityKind: reportstore.KindSpecificReports, AccessLevel: reportstore.AccessRead, ItemID: "R1"},
		{EntityKind: reportstore.KindSpecificReports, AccessLevel: reportstore.AccessRead, ItemID: "R2"},
		{EntityKind: reportstore.KindSpecificReports, AccessLevel: reportstore.AccessRead, ItemID: "R3"},
	})
	require.NoError(t, err)

	assert.Len(t, store.createCalls, 3, "every item must be attempted")
	assert.Equal(t, PartialSuccess, result.Outcome)
	assert.Equal(t, 207, result.HTTPStatus())
	assert.Equal(t, "2 succeeded, 1 failed", result.Message)

	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[1].Success)
	assert.NotEmpty(t, result.Results[1].Error)
	assert.True(t, result.Results[2].Success)
}

func TestGrant_AllItemsFailIsFullFailure(t *testing.T) {
	store := &fakePermissionStore{failCreateItem: map[string]bool{"R1": true}}
	rec := NewReconciler(store, nil, nil, nil)

	result, err := rec.Grant(context.Background(), 7, []GrantRequest{
		{EntityKind: reportstore.KindSpecificReports, AccessLevel: reportstore.AccessRead, ItemID: "R1"},
	})
	require.NoError(t, err)

	assert.Equal(t, FullFailure, result.Outcome)
	assert.Equal(t, 0, result.Succeeded)
}

func TestRevoke_EmptySelectionRejected(t *testing.T) {
	store := &fakePermissionStore{}
	rec := NewReconciler(store, nil, nil, nil)

	_, err := rec.Revoke(context.Background(), nil)
	require.ErrorIs(t, err, ErrNothingSelected)
	assert.Empty(t, store.deleteCalls)
}

func TestRevoke_PerItemResults(t *testing.T) {
	store := &fakePermissionStore{failDeleteID: map[string]bool{"p2": true}}
	rec := NewReconciler(store, nil, nil, nil)

	result, err := rec.Revoke(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)

	assert.Equal(t, PartialSuccess, result.Outcome)
	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[1].Success)
	assert.Len(t, store.deleteCalls, 2)
}

func TestChangeAccessLevel_DeleteThenRecreateNeverInPlace(t *testing.T) {
	store := &fakePermissionStore{
		permissions: []reportstore.Permission{
			{ID: "p1", EntityKind: reportstore.KindSpecificReports, AccessLevel: reportstore.AccessRead, ItemID: "R1", UserID: 7},
		},
	}
	rec := NewReconciler(store, nil, nil, nil)

	result, err := rec.ChangeAccessLevel(context.Background(), 7, []string{"p1"}, reportstore.AccessReadWrite)
	require.NoError(t, err)

	assert.Equal(t, FullSuccess, result.Outcome)
	require.Len(t, result.Results, 1)
	assert.Equal(t, Replaced, result.Results[0].Change)

	// The original row was deleted and a fresh row created with the same
	// entity kind and item id at the new level.
	assert.Equal(t, []string{"p1"}, store.deleteCalls)
	require.Len(t, store.createCalls, 1)
	created := store.createCalls[0]
	assert.Empty(t, created.ID)
	assert.Equal(t, reportstore.KindSpecificReports, created.EntityKind)
	assert.Equal(t, "R1", created.ItemID)
	assert.Equal(t, reportstore.AccessReadWrite, created.AccessLevel)
	assert.NotEqual(t, "p1", result.Results[0].PermissionID)
}

func TestChangeAccessLevel_CreateFailureReportsDeletedOnly(t *testing.T) {
	store := &fakePermissionStore{
		permissions: []reportstore.Permission{
			{ID: "p1", EntityKind: reportstore.KindSpecificReports, AccessLevel: reportstore.AccessRead, ItemID: "R1", UserID: 7},
		},
		failCreateItem: map[string]bool{"R1": true},
	}
	rec := NewReconciler(store, nil, nil, nil)

	result, err := rec.ChangeAccessLevel(context.Background(), 7, []string{"p1"}, reportstore.AccessReadWrite)
	require.NoError(t, err)

	assert.Equal(t, FullFailure, result.Outcome)
	require.Len(t, result.Results, 1)
	assert.Equal(t, DeletedOnly, result.Results[0].Change,
		"a vanished row must not be reported as changed or unchanged")
}

func TestChangeAccessLevel_DeleteFailureLeavesRowUnchanged(t *testing.T) {
	store := &fakePermissionStore{
		permissions: []reportstore.Permission{
			{ID: "p1", EntityKind: reportstore.KindSpecificReports, AccessLevel: reportstore.AccessRead, ItemID: "R1", UserID: 7},
		},
		failDeleteID: map[string]bool{"p1": true},
	}
	rec := NewReconciler(store, nil, nil, nil)

	result, err := rec.ChangeAccessLevel(context.Background(), 7, []string{"p1"}, reportstore.AccessReadWrite)
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, Unchanged, result.Results[0].Change)
	assert.Empty(t, store.createCalls, "no recreate after a failed delete")
}

func TestChangeAccessLevel_UnknownPermission(t *testing.T) {
	store := &fakePermissionStore{}
	rec := NewReconciler(store, nil, nil, nil)

	result, err := rec.ChangeAccessLevel(context.Background(), 7, []string{"ghost"}, reportstore.AccessRead)
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, Unchanged, result.Results[0].Change)
	assert.Contains(t, result.Results[0].Error, "not found")
	assert.Empty(t, store.deleteCalls)
}

func TestChangeAccessLevel_EmptySelectionRejected(t *testing.T) {
	store := &fakePermissionStore{}
	rec := NewReconciler(store, nil, nil, nil)

	_, err := rec.ChangeAccessLevel(context.Background(), 7, nil, reportstore.AccessRead)
	require.ErrorIs(t, err, ErrNothingSelected)
}
