package provision

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/permsync/pkg/audit"
	"github.com/platinummonkey/permsync/pkg/identitystore"
	"github.com/platinummonkey/permsync/pkg/reportstore"
)

type fakeReportStore struct {
	createErr       error
	deleteErr       error
	deleteByEmail   []string
	deletedIDs      []int64
	updateErr       error
	updated         []reportstore.User
	lookupUser      *reportstore.User
	lookupErr       error
	deleteByEmailErr error
}

func (f *fakeReportStore) GetUserByEmail(ctx context.Context, email string) (*reportstore.User, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.lookupUser != nil {
		return f.lookupUser, nil
	}
	return &reportstore.User{ID: 7, Email: email}, nil
}

func (f *fakeReportStore) CreateUser(ctx context.Context, user reportstore.User) (*reportstore.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	user.ID = 7
	return &user, nil
}

func (f *fakeReportStore) UpdateUser(ctx context.Context, user reportstore.User) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, user)
	return nil
}

func (f *fakeReportStore) DeleteUser(ctx context.Context, userID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, userID)
	return nil
}

func (f *fakeReportStore) DeleteUserByEmail(ctx context.Context, email string) error {
	f.deleteByEmail = append(f.deleteByEmail, email)
	return f.deleteByEmailErr
}

type fakeIdentityStore struct {
	createErr    error
	lookupErr    error
	lookupUser   *identitystore.User
	deleteErr    error
	deletedIDs   []string
	profileErr   error
	profiles     map[string]string
	resetErr     error
	resetApplied []string
}

func (f *fakeIdentityStore) CreateUser(ctx context.Context, email, displayName, temporaryPassword string) (*identitystore.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &identitystore.User{ID: "uid-1", Email: email, DisplayName: displayName, Confirmed: true}, nil
}

func (f *fakeIdentityStore) GetUserByEmail(ctx context.Context, email string) (*identitystore.User, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.lookupUser != nil {
		return f.lookupUser, nil
	}
	return &identitystore.User{ID: "uid-1", Email: email}, nil
}

func (f *fakeIdentityStore) DeleteUser(ctx context.Context, userID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, userID)
	return nil
}

func (f *fakeIdentityStore) UpdateProfile(ctx context.Context, userID, displayName string) error {
	if f.profileErr != nil {
		return f.profileErr
	}
	if f.profiles == nil {
		f.profiles = map[string]string{}
	}
	f.profiles[userID] = displayName
	return nil
}

func (f *fakeIdentityStore) SetNeedsPasswordReset(ctx context.Context, userID string, needsReset bool) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resetApplied = append(f.resetApplied, userID)
	return nil
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAuditor) Log(ctx context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *recordingAuditor) byType(eventType audit.EventType) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestCreateUser_Success(t *testing.T) {
	reports := &fakeReportStore{}
	identities := &fakeIdentityStore{}
	coord := NewCoordinator(reports, identities, nil, nil, nil)

	result, err := coord.CreateUser(context.Background(), CreateRequest{
		Email:     "Ada@Example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Active:    true,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, int64(7), result.ReportStoreID)
	assert.Equal(t, "uid-1", result.IdentityStoreID)
	assert.True(t, result.PasswordResetPending)
	assert.NotEmpty(t, result.TemporaryPassword)
	assert.Equal(t, []string{"uid-1"}, identities.resetApplied)
	assert.Empty(t, reports.deleteByEmail, "no compensation on success")
}

func TestCreateUser_IdentityFailureCompensatesReportStore(t *testing.T) {
	reports := &fakeReportStore{}
	identities := &fakeIdentityStore{createErr: errors.New("identity store down")}
	auditor := &recordingAuditor{}
	coord := NewCoordinator(reports, identities, nil, auditor, nil)

	result, err := coord.CreateUser(context.Background(), CreateRequest{Email: "ada@example.com"})
	require.Error(t, err)

	var failure *StageFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StageIdentityStore, failure.Stage)

	assert.False(t, result.Success)
	assert.Equal(t, StageIdentityStore, result.Stage)
	assert.False(t, result.CompensationFailed)
	assert.Equal(t, []string{"ada@example.com"}, reports.deleteByEmail,
		"compensating delete must target the same email")

	compensations := auditor.byType(audit.EventTypeCompensation)
	require.Len(t, compensations, 1)
	assert.Equal(t, audit.EventStatusSuccess, compensations[0].Status)
}

func TestCreateUser_CompensationFailureStaysIdentityStage(t *testing.T) {
	reports := &fakeReportStore{deleteByEmailErr: errors.New("report store down too")}
	identities := &fakeIdentityStore{createErr: errors.New("identity store down")}
	auditor := &recordingAuditor{}
	coord := NewCoordinator(reports, identities, nil, auditor, nil)

	result, err := coord.CreateUser(context.Background(), CreateRequest{Email: "ada@example.com"})
	require.Error(t, err)

	var failure *StageFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StageIdentityStore, failure.Stage,
		"a failed rollback must not replace the triggering failure")
	assert.True(t, result.CompensationFailed)

	compensations := auditor.byType(audit.EventTypeCompensation)
	require.Len(t, compensations, 1)
	assert.Equal(t, audit.EventStatusFailure, compensations[0].Status)
	assert.Contains(t, compensations[0].Message, "inconsistent")
}

func TestCreateUser_ResetFlagFailureDegradesGracefully(t *testing.T) {
	reports := &fakeReportStore{}
	identities := &fakeIdentityStore{resetErr: errors.New("profile service down")}
	coord := NewCoordinator(reports, identities, nil, nil, nil)

	result, err := coord.CreateUser(context.Background(), CreateRequest{Email: "ada@example.com"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.PasswordResetPending)
	assert.NotEmpty(t, result.TemporaryPassword,
		"caller needs the temporary password for out-of-band delivery")
}

func TestUpdateUser_ReportStoreFailureStops(t *testing.T) {
	reports := &fakeReportStore{updateErr: errors.New("validation rejected")}
	identities := &fakeIdentityStore{}
	coord := NewCoordinator(reports, identities, nil, nil, nil)

	result, err := coord.UpdateUser(context.Background(), UpdateRequest{
		ReportStoreID: 7,
		Email:         "ada@example.com",
	})
	require.Error(t, err)

	var failure *StageFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StageReportStore, failure.Stage)
	assert.False(t, result.Success)
	assert.Empty(t, identities.profiles, "identity store must not be touched")
}

func TestUpdateUser_IdentityFailureStillSuccess(t *testing.T) {
	reports := &fakeReportStore{}
	identities := &fakeIdentityStore{profileErr: errors.New("profile service down")}
	coord := NewCoordinator(reports, identities, nil, nil, nil)

	result, err := coord.UpdateUser(context.Background(), UpdateRequest{
		ReportStoreID: 7,
		Email:         "ada@example.com",
		FirstName:     "Ada",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, reports.updated, 1)
	assert.Equal(t, "Ada", reports.updated[0].FirstName)
}

func TestDeleteUser_ReportStoreFirstAndAuthoritative(t *testing.T) {
	reports := &fakeReportStore{deleteErr: errors.New("report store down")}
	identities := &fakeIdentityStore{}
	coord := NewCoordinator(reports, identities, nil, nil, nil)

	result, err := coord.DeleteUser(context.Background(), "ada@example.com")
	require.Error(t, err)

	var failure *StageFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StageReportStore, failure.Stage)
	assert.False(t, result.Success)
	assert.Empty(t, identities.deletedIDs, "login identity must survive a failed report store delete")
}

func TestDeleteUser_Success(t *testing.T) {
	reports := &fakeReportStore{}
	identities := &fakeIdentityStore{}
	coord := NewCoordinator(reports, identities, nil, nil, nil)

	result, err := coord.DeleteUser(context.Background(), "ada@example.com")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []int64{7}, reports.deletedIDs)
	assert.Equal(t, []string{"uid-1"}, identities.deletedIDs)
}

func TestDeleteUser_MissingIdentityAccountIsDistinctSuccess(t *testing.T) {
	reports := &fakeReportStore{}
	identities := &fakeIdentityStore{lookupErr: &identitystore.NotFoundError{Key: "ada@example.com"}}
	auditor := &recordingAuditor{}
	coord := NewCoordinator(reports, identities, nil, auditor, nil)

	result, err := coord.DeleteUser(context.Background(), "ada@example.com")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.IdentityAccountMissing)
	assert.Contains(t, result.Message, "no identity store account")

	orphans := auditor.byType(audit.EventTypeOrphanDetected)
	require.Len(t, orphans, 1)
	assert.Equal(t, "ada@example.com", orphans[0].Email)
}

func TestDeleteUser_IdentityDeleteFailureStillSuccess(t *testing.T) {
	reports := &fakeReportStore{}
	identities := &fakeIdentityStore{deleteErr: errors.New("identity store down")}
	coord := NewCoordinator(reports, identities, nil, nil, nil)

	result, err := coord.DeleteUser(context.Background(), "ada@example.com")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "identity store deletion failed")
}
