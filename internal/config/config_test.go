package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validS3Config() *Configuration {
	c := NewDefault()
	c.Backend.S3.Bucket = "my-bucket"
	return c
}

func TestNewDefaultPassesValidation(t *testing.T) {
	require.NoError(t, validS3Config().Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	c := validS3Config()
	c.Global.LogLevel = "verbose"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsCollidingPorts(t *testing.T) {
	c := validS3Config()
	c.Global.HealthPort = c.Global.MetricsPort
	assert.Error(t, c.Validate())
}

func TestValidateRejectsMissingMountPoint(t *testing.T) {
	c := validS3Config()
	c.Mount.MountPoint = ""
	assert.Error(t, c.Validate())
}

func TestValidateRejectsFilesystemCacheWithoutDir(t *testing.T) {
	c := validS3Config()
	c.Cache.Variant = "filesystem"
	c.Cache.FilesystemDir = ""
	assert.Error(t, c.Validate())
}

func TestValidateAcceptsFilesystemCacheWithDir(t *testing.T) {
	c := validS3Config()
	c.Cache.Variant = "filesystem"
	c.Cache.FilesystemDir = "/var/cache/objectmount"
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsS3BackendWithoutBucket(t *testing.T) {
	c := NewDefault()
	c.Backend.Kind = "s3"
	c.Backend.S3.Bucket = ""
	assert.Error(t, c.Validate())
}

func TestValidateRejectsDriveBackendWithoutRootFolder(t *testing.T) {
	c := validS3Config()
	c.Backend.Kind = "drive"
	assert.Error(t, c.Validate())
	c.Backend.Drive.RootFolderID = "root-folder-id"
	assert.NoError(t, c.Validate())
}

func TestValidateAcceptsNoneCacheVariantWithoutSizing(t *testing.T) {
	c := validS3Config()
	c.Cache.Variant = "none"
	c.Cache.MaxBytes = 0
	c.Cache.ReconcileInterval = 0
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsUnknownCacheVariant(t *testing.T) {
	c := validS3Config()
	c.Cache.Variant = "disk"
	assert.Error(t, c.Validate())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	c := validS3Config()
	c.Mount.MountPoint = "/mnt/test"
	c.Cache.MetadataTTL = 7 * time.Second

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, c.SaveToFile(path))

	loaded := NewDefault()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "/mnt/test", loaded.Mount.MountPoint)
	assert.Equal(t, 7*time.Second, loaded.Cache.MetadataTTL)
	assert.Equal(t, "my-bucket", loaded.Backend.S3.Bucket)
}

func TestLoadFromEnvOverridesFileValues(t *testing.T) {
	c := validS3Config()
	t.Setenv("OBJECTMOUNT_MOUNT_POINT", "/mnt/from-env")
	t.Setenv("OBJECTMOUNT_CACHE_VARIANT", "filesystem")
	t.Setenv("OBJECTMOUNT_BACKEND_KIND", "drive")

	require.NoError(t, c.LoadFromEnv())
	assert.Equal(t, "/mnt/from-env", c.Mount.MountPoint)
	assert.Equal(t, "filesystem", c.Cache.Variant)
	assert.Equal(t, "drive", c.Backend.Kind)
}

func TestValidateRejectsEnabledStatusWithoutPrefix(t *testing.T) {
	c := validS3Config()
	c.Status.Prefix = ""
	assert.Error(t, c.Validate())

	c.Status.Enabled = false
	assert.NoError(t, c.Validate())
}

func TestLoadFromEnvLeavesUnsetFieldsAlone(t *testing.T) {
	c := validS3Config()
	c.Mount.MountPoint = "/mnt/original"
	require.NoError(t, c.LoadFromEnv())
	assert.Equal(t, "/mnt/original", c.Mount.MountPoint)
}
