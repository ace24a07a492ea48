package ferrors

import "syscall"

// eio is the fallback errno for kinds without a more specific mapping
// and for KindUnknown.
const eio = int(syscall.EIO)

var errnoTable = map[Kind]int{
	KindNotFound:         int(syscall.ENOENT),
	KindAlreadyExists:    int(syscall.EEXIST),
	KindNotADirectory:    int(syscall.ENOTDIR),
	KindIsADirectory:     int(syscall.EISDIR),
	KindNotEmpty:         int(syscall.ENOTEMPTY),
	KindInvalidPath:      int(syscall.EINVAL),
	KindNotSupported:     int(syscall.ENOSYS),
	KindReadOnly:         int(syscall.EROFS),
	KindPermissionDenied: int(syscall.EACCES),
	KindIO:               int(syscall.EIO),
	KindBackend:          int(syscall.EIO),
	KindCache:            int(syscall.EIO),
	KindInvalidArgument:  int(syscall.EINVAL),
	KindFileTooLarge:     int(syscall.EFBIG),
	KindNoSpace:          int(syscall.ENOSPC),
	KindNameTooLong:      int(syscall.ENAMETOOLONG),
	KindInterrupted:      int(syscall.EINTR),
}

// Errno converts err (which must be, or wrap, a *Error) to a
// syscall.Errno suitable for returning from a go-fuse upcall.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	return syscall.Errno(KindOf(err).Errno())
}
