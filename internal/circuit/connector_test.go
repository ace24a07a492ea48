package circuit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/internal/connector/faketest"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

// failingConnector always returns a backend-kind error from Stat, so
// tests can drive the breaker into the open state without a real
// unreachable backend.
type failingConnector struct {
	connector.Connector
	err error
}

func (f *failingConnector) Stat(_ context.Context, path string) (model.Metadata, error) {
	return model.Metadata{}, ferrors.Backend(path, f.err)
}

func TestWrapPassesThroughSuccessfulCalls(t *testing.T) {
	inner := faketest.New()
	require.NoError(t, inner.CreateFile(context.Background(), "/a"))

	c := Wrap(inner, "test-backend", Config{})
	md, err := c.Stat(context.Background(), "/a")
	require.NoError(t, err)
	assert.Equal(t, model.File, md.FileType)
	assert.Equal(t, StateClosed, c.Breaker().GetState())
}

func TestWrapTripsOpenAfterConsecutiveBackendFailures(t *testing.T) {
	inner := &failingConnector{err: assertErr}
	c := Wrap(inner, "flaky-backend", Config{})

	for i := 0; i < 5; i++ {
		_, err := c.Stat(context.Background(), "/x")
		assert.Error(t, err)
	}

	assert.Equal(t, StateOpen, c.Breaker().GetState())

	_, err := c.Stat(context.Background(), "/x")
	assert.Error(t, err)
	assert.Equal(t, ferrors.KindBackend, ferrors.KindOf(err))
}

func TestWrapDoesNotTripOnCallerErrors(t *testing.T) {
	inner := faketest.New()
	c := Wrap(inner, "caller-errors", Config{})

	for i := 0; i < 10; i++ {
		_, err := c.Stat(context.Background(), "/does-not-exist")
		assert.Error(t, err)
		assert.Equal(t, ferrors.KindNotFound, ferrors.KindOf(err))
	}

	assert.Equal(t, StateClosed, c.Breaker().GetState())
}

var assertErr = ferrors.IO("", nil)
