package circuit

import (
	"context"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

// ReadyToTripOnBackendErrors trips the breaker once 5 consecutive
// calls in the current window have failed with a
// ferrors.KindBackend or ferrors.KindIO error — the two
// kinds that indicate the remote side, not the caller, is at fault.
// NotFound, AlreadyExists, and similar caller errors never count
// toward a trip.
func ReadyToTripOnBackendErrors(counts Counts) bool {
	return counts.Requests >= 5 && counts.ConsecutiveFailures >= 5
}

// ReadyToTripAfter returns a ReadyToTrip function that trips once n
// consecutive calls have failed with a backend-kind error, for
// callers that want the threshold configurable (for example, from
// config.CircuitBreakerConfig.FailureThreshold) instead of the fixed
// default of 5.
func ReadyToTripAfter(n uint32) func(Counts) bool {
	if n == 0 {
		n = 5
	}
	return func(counts Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

// Connector wraps an inner connector.Connector with a circuit
// breaker: once the breaker trips open, every call fails fast with a
// ferrors.KindBackend error instead of reaching the inner connector,
// giving a dead backend time to recover instead of being hammered by
// the reconciler or the FUSE frontend. Calls that don't reach inner
// (the breaker is open) are themselves reported as backend failures,
// so an open breaker stays open until its timeout elapses regardless
// of call volume.
type Connector struct {
	inner   connector.Connector
	breaker *CircuitBreaker
}

var _ connector.Connector = (*Connector)(nil)

// Wrap returns a Connector that guards every call to inner with a
// named circuit breaker. Only ferrors.KindBackend and ferrors.KindIO
// failures count toward tripping the breaker; every other error kind
// (NotFound, AlreadyExists, InvalidPath, ...) passes through
// unaffected, since those indicate the caller's request was bad, not
// that the backend is unhealthy.
func Wrap(inner connector.Connector, name string, config Config) *Connector {
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = ReadyToTripOnBackendErrors
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = isSuccessfulOrCallerError
	}
	return &Connector{inner: inner, breaker: NewCircuitBreaker(name, config)}
}

func isSuccessfulOrCallerError(err error) bool {
	if err == nil {
		return true
	}
	switch ferrors.KindOf(err) {
	case ferrors.KindBackend, ferrors.KindIO:
		return false
	default:
		return true
	}
}

// Breaker exposes the underlying breaker for status reporting.
func (c *Connector) Breaker() *CircuitBreaker { return c.breaker }

func (c *Connector) Capabilities() model.Capabilities { return c.inner.Capabilities() }

func (c *Connector) CacheRequirements() model.CacheRequirements { return c.inner.CacheRequirements() }

func (c *Connector) Stat(ctx context.Context, path string) (model.Metadata, error) {
	var md model.Metadata
	err := c.guard(ctx, path, func(ctx context.Context) error {
		var innerErr error
		md, innerErr = c.inner.Stat(ctx, path)
		return innerErr
	})
	return md, err
}

func (c *Connector) Exists(ctx context.Context, path string) (bool, error) {
	var ok bool
	err := c.guard(ctx, path, func(ctx context.Context) error {
		var innerErr error
		ok, innerErr = c.inner.Exists(ctx, path)
		return innerErr
	})
	return ok, err
}

func (c *Connector) Read(ctx context.Context, path string, offset uint64, size uint32) ([]byte, error) {
	var data []byte
	err := c.guard(ctx, path, func(ctx context.Context) error {
		var innerErr error
		data, innerErr = c.inner.Read(ctx, path, offset, size)
		return innerErr
	})
	return data, err
}

func (c *Connector) Write(ctx context.Context, path string, offset uint64, data []byte) (uint64, error) {
	var n uint64
	err := c.guard(ctx, path, func(ctx context.Context) error {
		var innerErr error
		n, innerErr = c.inner.Write(ctx, path, offset, data)
		return innerErr
	})
	return n, err
}

func (c *Connector) CreateFile(ctx context.Context, path string) error {
	return c.guard(ctx, path, func(ctx context.Context) error { return c.inner.CreateFile(ctx, path) })
}

func (c *Connector) CreateFileWithMode(ctx context.Context, path string, mode uint32) error {
	return c.guard(ctx, path, func(ctx context.Context) error { return c.inner.CreateFileWithMode(ctx, path, mode) })
}

func (c *Connector) CreateDir(ctx context.Context, path string) error {
	return c.guard(ctx, path, func(ctx context.Context) error { return c.inner.CreateDir(ctx, path) })
}

func (c *Connector) CreateDirWithMode(ctx context.Context, path string, mode uint32) error {
	return c.guard(ctx, path, func(ctx context.Context) error { return c.inner.CreateDirWithMode(ctx, path, mode) })
}

func (c *Connector) RemoveFile(ctx context.Context, path string) error {
	return c.guard(ctx, path, func(ctx context.Context) error { return c.inner.RemoveFile(ctx, path) })
}

func (c *Connector) RemoveDir(ctx context.Context, path string, recursive bool) error {
	return c.guard(ctx, path, func(ctx context.Context) error { return c.inner.RemoveDir(ctx, path, recursive) })
}

func (c *Connector) ListDir(ctx context.Context, path string, fn connector.DirEntryFn) error {
	return c.guard(ctx, path, func(ctx context.Context) error { return c.inner.ListDir(ctx, path, fn) })
}

func (c *Connector) Rename(ctx context.Context, from, to string) error {
	return c.guard(ctx, from, func(ctx context.Context) error { return c.inner.Rename(ctx, from, to) })
}

func (c *Connector) Truncate(ctx context.Context, path string, size uint64) error {
	return c.guard(ctx, path, func(ctx context.Context) error { return c.inner.Truncate(ctx, path, size) })
}

func (c *Connector) Flush(ctx context.Context, path string) error {
	return c.guard(ctx, path, func(ctx context.Context) error { return c.inner.Flush(ctx, path) })
}

func (c *Connector) SetMode(ctx context.Context, path string, mode uint32) error {
	return c.guard(ctx, path, func(ctx context.Context) error { return c.inner.SetMode(ctx, path, mode) })
}

func (c *Connector) Readlink(ctx context.Context, path string) (string, error) {
	var target string
	err := c.guard(ctx, path, func(ctx context.Context) error {
		var innerErr error
		target, innerErr = c.inner.Readlink(ctx, path)
		return innerErr
	})
	return target, err
}

func (c *Connector) Symlink(ctx context.Context, target, linkPath string) error {
	return c.guard(ctx, linkPath, func(ctx context.Context) error { return c.inner.Symlink(ctx, target, linkPath) })
}

// guard runs fn through the breaker, translating a rejection
// (ErrOpenState / ErrTooManyRequests) into a ferrors.KindBackend error
// carrying path, so callers see the same error shape they'd see from
// a genuinely failing backend.
func (c *Connector) guard(ctx context.Context, path string, fn func(context.Context) error) error {
	err := c.breaker.ExecuteWithContext(ctx, fn)
	if err == ErrOpenState || err == ErrTooManyRequests {
		return ferrors.Backend(path, err)
	}
	return err
}
