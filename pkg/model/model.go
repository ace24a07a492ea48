// Package model holds the data types shared by every connector, cache
// layer, and the FUSE frontend: paths, metadata, capabilities, and the
// pending-change records the write-back caches use to track local
// mutations that have not yet reached a backend.
package model

import "time"

// FileType classifies a path's kind.
type FileType int

const (
	File FileType = iota
	Directory
	Symlink
)

func (t FileType) String() string {
	switch t {
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "file"
	}
}

// Metadata describes a path's type, size, and modification time. Mode
// is a 12-bit POSIX permission value when known; HasMode is false when
// the backend does not track it.
type Metadata struct {
	FileType FileType
	Size     uint64
	Mtime    time.Time
	Mode     uint32
	HasMode  bool
}

// DirEntry is one row of a directory listing. Order within a listing
// is not significant.
type DirEntry struct {
	Name     string
	FileType FileType
}

// Capabilities declares what a connector (or cache wrapper promoting
// capabilities it synthesizes) supports.
type Capabilities struct {
	Read       bool
	Write      bool
	RangeRead  bool
	RandomWrite bool
	Rename     bool
	Truncate   bool
	SetMtime   bool
	Seekable   bool
	SetMode    bool
	Symlink    bool
}

// ReadOnlyCapabilities returns the capability set of a connector that
// can only ever be read from.
func ReadOnlyCapabilities() Capabilities {
	return Capabilities{Read: true, RangeRead: true, Seekable: true}
}

// CacheRequirement expresses how strongly a connector wants a cache
// layer in front of it.
type CacheRequirement int

const (
	CacheNone CacheRequirement = iota
	CacheRecommended
	CacheRequired
)

// CacheRequirements is a connector's hint to the assembler about
// whether a write-back cache is mandatory, and for how long metadata
// may be trusted.
type CacheRequirements struct {
	WriteBuffer   CacheRequirement
	ReadCache     bool
	MetadataTTL   time.Duration
	HasMetadataTTL bool
}

// PendingChangeType is the kind of local mutation recorded for a path
// that has not yet reached the backend. Exactly one (or none) exists
// per path at any instant (invariant I1).
type PendingChangeType int

const (
	NewFile PendingChangeType = iota
	ModifiedFile
	DeletedFile
	NewDirectory
	DeletedDirectory
	NewSymlink
)

func (t PendingChangeType) String() string {
	switch t {
	case NewFile:
		return "NewFile"
	case ModifiedFile:
		return "ModifiedFile"
	case DeletedFile:
		return "DeletedFile"
	case NewDirectory:
		return "NewDirectory"
	case DeletedDirectory:
		return "DeletedDirectory"
	case NewSymlink:
		return "NewSymlink"
	default:
		return "Unknown"
	}
}

// IsCreate reports whether t belongs to the reconciler's "creates"
// partition (NewFile, ModifiedFile, NewDirectory, NewSymlink).
func (t PendingChangeType) IsCreate() bool {
	switch t {
	case NewFile, ModifiedFile, NewDirectory, NewSymlink:
		return true
	default:
		return false
	}
}

// IsDelete reports whether t belongs to the reconciler's "deletes"
// partition (DeletedFile, DeletedDirectory).
func (t PendingChangeType) IsDelete() bool {
	switch t {
	case DeletedFile, DeletedDirectory:
		return true
	default:
		return false
	}
}

// IsDir reports whether t concerns a directory, for the reconciler's
// files-before-directories delete ordering.
func (t PendingChangeType) IsDir() bool {
	return t == NewDirectory || t == DeletedDirectory
}

// PendingChange is the record of a path's local, not-yet-synced
// mutation. Mode is the permission bits to apply on sync, when set.
// SymlinkTarget is populated only for NewSymlink. CreatedAt is
// informational only.
type PendingChange struct {
	Type          PendingChangeType
	Mode          uint32
	HasMode       bool
	SymlinkTarget string
	CreatedAt     time.Time
}
