package llmdispatch

import "errors"

// Transient wraps a provider error that should be retried with backoff
// (timeout, 5xx, rate-limit — spec §7 TransientProvider).
type Transient struct{ err error }

func (t *Transient) Error() string { return t.err.Error() }
func (t *Transient) Unwrap() error { return t.err }

// NewTransient wraps err as a retryable provider error.
func NewTransient(err error) error { return &Transient{err: err} }

// Permanent wraps a provider error that must not be retried (auth, quota
// — spec §7 PermanentProvider).
type Permanent struct{ err error }

func (p *Permanent) Error() string { return p.err.Error() }
func (p *Permanent) Unwrap() error { return p.err }

// NewPermanent wraps err as a non-retryable provider error.
func NewPermanent(err error) error { return &Permanent{err: err} }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}
