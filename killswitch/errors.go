package killswitch

import "errors"

var (
	// ErrBackendUnavailable means no backend implementation is installed or
	// reachable. Transitions fail, CurrentMode keeps returning the last
	// confirmed value.
	ErrBackendUnavailable = errors.New("no kill switch backend available")

	// ErrPermissionDenied means the process lacks the privilege to install
	// OS-level filter rules. The mode is left unchanged.
	ErrPermissionDenied = errors.New("not permitted to change filter rules")

	// ErrOperationFailed means the backend failed or timed out while
	// installing or removing rules. The backend rolls back any partially
	// applied rules before this is returned.
	ErrOperationFailed = errors.New("kill switch operation failed")

	// ErrPersistenceFailed means the durable mode write failed after the
	// backend confirmed the change; the backend change is rolled back so
	// persisted and enforced state never diverge.
	ErrPersistenceFailed = errors.New("kill switch state not persisted")

	// ErrClosed is returned for requests submitted after Close.
	ErrClosed = errors.New("kill switch is closed")
)
