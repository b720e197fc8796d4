package session

import "errors"

var (
	// ErrReactivationInProgress is returned by Process while a
	// deactivate-all re-activation sequence is outstanding; the host
	// must drive DeactivateAll's ActivationSequence to completion and
	// call ResumeReactivation before feeding more frames.
	ErrReactivationInProgress = errors.New("session: reactivation in progress")

	// ErrNotReactivating is returned by ResumeReactivation when no
	// deactivate-all sequence is outstanding.
	ErrNotReactivating = errors.New("session: no reactivation in progress")

	// ErrReactivationNotDone is returned by ResumeReactivation when the
	// outstanding ActivationSequence has not reached Done().
	ErrReactivationNotDone = errors.New("session: reactivation sequence not complete")

	// ErrEmptyFrame is returned by Process when given a zero-length frame.
	ErrEmptyFrame = errors.New("session: empty frame")
)
