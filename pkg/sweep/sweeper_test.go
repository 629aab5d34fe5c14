package sweep

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/permsync/pkg/audit"
	"github.com/platinummonkey/permsync/pkg/identitystore"
	"github.com/platinummonkey/permsync/pkg/reportstore"
)

type fakeReports struct {
	users []reportstore.User
	err   error
}

func (f *fakeReports) ListUsers(ctx context.Context) ([]reportstore.User, error) {
	return f.users, f.err
}

type fakeIdentities struct {
	missing map[string]bool
	failing map[string]bool
}

func (f *fakeIdentities) GetUserByEmail(ctx context.Context, email string) (*identitystore.User, error) {
	if f.failing[email] {
		return nil, errors.New("identity store down")
	}
	if f.missing[email] {
		return nil, &identitystore.NotFoundError{Key: email}
	}
	return &identitystore.User{ID: "uid", Email: email}, nil
}

type recordingAuditor struct {
	events []audit.Event
}

func (r *recordingAuditor) Log(ctx context.Context, event *audit.Event) error {
	r.events = append(r.events, *event)
	return nil
}

func TestRun_DetectsOrphans(t *testing.T) {
	reports := &fakeReports{users: []reportstore.User{
		{ID: 1, Email: "ok@example.com"},
		{ID: 2, Email: "ghost@example.com"},
		{ID: 3, Email: "flaky@example.com"},
	}}
	identities := &fakeIdentities{
		missing: map[string]bool{"ghost@example.com": true},
		failing: map[string]bool{"flaky@example.com": true},
	}
	auditor := &recordingAuditor{}
	sweeper := NewSweeper(reports, identities, nil, auditor, nil)

	report, err := sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, []string{"ghost@example.com"}, report.Orphans)
	assert.Equal(t, 1, report.Errors, "lookup failures are not orphans")

	require.Len(t, auditor.events, 1)
	assert.Equal(t, audit.EventTypeOrphanDetected, auditor.events[0].EventType)
	assert.Equal(t, "ghost@example.com", auditor.events[0].Email)
	assert.Equal(t, int64(2), auditor.events[0].Metadata["report_store_id"])
}

func TestRun_ListFailure(t *testing.T) {
	reports := &fakeReports{err: errors.New("report store down")}
	sweeper := NewSweeper(reports, &fakeIdentities{}, nil, nil, nil)

	_, err := sweeper.Run(context.Background())
	require.Error(t, err)
}

func TestRun_NoOrphans(t *testing.T) {
	reports := &fakeReports{users: []reportstore.User{{ID: 1, Email: "ok@example.com"}}}
	auditor := &recordingAuditor{}
	sweeper := NewSweeper(reports, &fakeIdentities{}, nil, auditor, nil)

	report, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Orphans)
	assert.Empty(t, auditor.events)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	sweeper := NewSweeper(&fakeReports{}, &fakeIdentities{}, nil, nil, nil)
	assert.Error(t, sweeper.Start("not a cron expression"))
}
