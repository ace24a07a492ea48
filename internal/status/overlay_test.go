package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectmount/objectmount/internal/circuit"
	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/internal/connector/faketest"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

type failingConnector struct {
	connector.Connector
	err error
}

func (f *failingConnector) Stat(_ context.Context, path string) (model.Metadata, error) {
	return model.Metadata{}, ferrors.Backend(path, f.err)
}

func TestOverlayStartsHealthy(t *testing.T) {
	o := New(faketest.New(), ".objectmount", 10, nil)
	assert.Equal(t, Healthy, o.Health())
}

func TestOverlayStatVirtualRoot(t *testing.T) {
	o := New(faketest.New(), ".objectmount", 10, nil)
	md, err := o.Stat(context.Background(), "/.objectmount")
	require.NoError(t, err)
	assert.Equal(t, model.Directory, md.FileType)
}

func TestOverlayListDirInjectsVirtualRootAtMountRoot(t *testing.T) {
	o := New(faketest.New(), ".objectmount", 10, nil)
	var names []string
	require.NoError(t, o.ListDir(context.Background(), "/", func(e model.DirEntry) error {
		names = append(names, e.Name)
		return nil
	}))
	assert.Contains(t, names, ".objectmount")
}

func TestOverlayListDirOfVirtualRootListsFourFiles(t *testing.T) {
	o := New(faketest.New(), ".objectmount", 10, nil)
	var names []string
	require.NoError(t, o.ListDir(context.Background(), "/.objectmount", func(e model.DirEntry) error {
		names = append(names, e.Name)
		return nil
	}))
	assert.ElementsMatch(t, []string{"status", "error", "error_log", "circuit_breaker"}, names)
}

func TestOverlayCircuitBreakerFileReportsDisabledByDefault(t *testing.T) {
	o := New(faketest.New(), ".objectmount", 10, nil)
	data, err := o.Read(context.Background(), "/.objectmount/circuit_breaker", 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "disabled\n", string(data))
}

func TestOverlayCircuitBreakerFileReflectsAttachedBreaker(t *testing.T) {
	o := New(faketest.New(), ".objectmount", 10, nil)
	cb := circuit.NewCircuitBreaker("test-backend", circuit.Config{})
	o.SetBreaker(cb)

	data, err := o.Read(context.Background(), "/.objectmount/circuit_breaker", 0, 4096)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: test-backend")
	assert.Contains(t, string(data), "state: CLOSED")
}

func TestOverlayReadStatusReflectsHealth(t *testing.T) {
	o := New(faketest.New(), ".objectmount", 10, nil)
	data, err := o.Read(context.Background(), "/.objectmount/status", 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "healthy\n", string(data))
}

func TestOverlayRecordsBackendFailureAndDegradesHealth(t *testing.T) {
	inner := &failingConnector{err: ferrors.Backend("", nil)}
	o := New(inner, ".objectmount", 10, nil)

	_, err := o.Stat(context.Background(), "/some/file")
	require.Error(t, err)
	assert.Equal(t, Degraded, o.Health())

	data, err := o.Read(context.Background(), "/.objectmount/status", 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "degraded\n", string(data))

	errData, err := o.Read(context.Background(), "/.objectmount/error", 0, 4096)
	require.NoError(t, err)
	assert.NotEmpty(t, string(errData))

	logData, err := o.Read(context.Background(), "/.objectmount/error_log", 0, 4096)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "stat")
}

func TestOverlayNotFoundDoesNotDegradeHealth(t *testing.T) {
	o := New(faketest.New(), ".objectmount", 10, nil)
	_, err := o.Stat(context.Background(), "/does-not-exist")
	require.Error(t, err)
	assert.Equal(t, ferrors.KindNotFound, ferrors.KindOf(err))
	assert.Equal(t, Healthy, o.Health())
}

func TestOverlayRejectsWritesToVirtualFiles(t *testing.T) {
	o := New(faketest.New(), ".objectmount", 10, nil)
	_, err := o.Write(context.Background(), "/.objectmount/status", 0, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, ferrors.KindReadOnly, ferrors.KindOf(err))
}

func TestOverlayErrorLogBoundedByMaxEntries(t *testing.T) {
	inner := &failingConnector{err: ferrors.Backend("", nil)}
	o := New(inner, ".objectmount", 2, nil)

	for i := 0; i < 5; i++ {
		_, _ = o.Stat(context.Background(), "/x")
	}

	o.mu.RLock()
	n := len(o.log)
	o.mu.RUnlock()
	assert.Equal(t, 2, n)
}

func TestOverlayPassesThroughRealPaths(t *testing.T) {
	inner := faketest.New()
	require.NoError(t, inner.CreateFile(context.Background(), "/real.txt"))

	o := New(inner, ".objectmount", 10, nil)
	md, err := o.Stat(context.Background(), "/real.txt")
	require.NoError(t, err)
	assert.Equal(t, model.File, md.FileType)
}
