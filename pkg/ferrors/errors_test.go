package ferrors

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		kind  Kind
		errno syscall.Errno
	}{
		{KindNotFound, syscall.ENOENT},
		{KindAlreadyExists, syscall.EEXIST},
		{KindNotADirectory, syscall.ENOTDIR},
		{KindIsADirectory, syscall.EISDIR},
		{KindNotEmpty, syscall.ENOTEMPTY},
		{KindInvalidPath, syscall.EINVAL},
		{KindNotSupported, syscall.ENOSYS},
		{KindReadOnly, syscall.EROFS},
		{KindPermissionDenied, syscall.EACCES},
		{KindBackend, syscall.EIO},
		{KindCache, syscall.EIO},
		{KindFileTooLarge, syscall.EFBIG},
		{KindNoSpace, syscall.ENOSPC},
		{KindNameTooLong, syscall.ENAMETOOLONG},
		{KindInterrupted, syscall.EINTR},
	}
	for _, c := range cases {
		assert.Equal(t, int(c.errno), c.kind.Errno(), c.kind.String())
	}
}

func TestIsAndKindOf(t *testing.T) {
	err := NotFound("/a/b")
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindAlreadyExists))
	assert.Equal(t, KindNotFound, KindOf(err))

	wrapped := Backend("/x", err).WithOp("stat")
	assert.Equal(t, KindBackend, KindOf(wrapped))
	assert.Contains(t, wrapped.Error(), "stat")
	assert.Contains(t, wrapped.Error(), "/x")
}

func TestKindOfNonFerrors(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, 0, int(Errno(nil)))
}
