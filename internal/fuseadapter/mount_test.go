package fuseadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/objectmount/objectmount/internal/connector/faketest"
)

func TestMountManagerUnmountWithoutMountIsNoop(t *testing.T) {
	fsys := New(faketest.New(), DefaultConfig(), nil)
	m := NewMountManager(fsys, "/tmp/does-not-matter", nil)
	assert.NoError(t, m.Unmount())
}

func TestMountManagerBuildOptionsHonorsReadOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadOnly = true
	fsys := New(faketest.New(), cfg, nil)
	m := NewMountManager(fsys, "/tmp/does-not-matter", nil)

	opts := m.buildOptions()
	assert.Contains(t, opts.Options, "ro")
	assert.Equal(t, cfg.AllowOther, opts.MountOptions.AllowOther)
}
