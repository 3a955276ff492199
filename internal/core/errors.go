package core

import "errors"

// Job failure kinds recorded on the ingest job row. Per-file download and
// move failures are logged and excluded from counts but never carry a kind;
// they fail the job only by emptying the batch.
const (
	KindNoFilesAvailable   = "NoFilesAvailable"
	KindVerificationFailed = "VerificationFailed"
	KindUnexpectedFailure  = "UnexpectedFailure"
)

type JobError struct {
	Kind string
	Err  error
}

func (e *JobError) Error() string {
	return e.Err.Error()
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// ErrorKind extracts the failure kind from an error chain, defaulting to
// UnexpectedFailure for anything that is not a JobError.
func ErrorKind(err error) string {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	return KindUnexpectedFailure
}
