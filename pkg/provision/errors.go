package provision

import "fmt"

// Stage names the backend a failure occurred in, so callers can explain
// which system is inconsistent
type Stage string

const (
	StageReportStore   Stage = "report_store"
	StageIdentityStore Stage = "identity_store"
)

// StageFailure indicates one backend rejected a write
type StageFailure struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("%s failed at stage %s: %v", e.Op, e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// CompensationFailure records a rollback step that itself failed, leaving an
// operator-visible inconsistency. It is carried on results and in the audit
// trail, never returned as the operation error.
type CompensationFailure struct {
	Step string
	Err  error
}

func (e *CompensationFailure) Error() string {
	return fmt.Sprintf("compensation %q failed: %v", e.Step, e.Err)
}

func (e *CompensationFailure) Unwrap() error { return e.Err }
