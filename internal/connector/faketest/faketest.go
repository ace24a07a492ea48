// Package faketest provides an in-memory Connector double used across
// the module's test suite: the cache layers, the reconciler, and the
// FUSE frontend are all exercised against it instead of a live S3 or
// Drive backend. It also counts calls per method, which the spec's S4
// scenario ("verify by instrumenting a counting connector") requires.
package faketest

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

type node struct {
	fileType model.FileType
	data     []byte
	mtime    time.Time
	mode     uint32
	hasMode  bool
	target   string // symlink target
}

// Connector is a simple in-memory filesystem satisfying the connector
// contract with full read/write/rename/truncate/symlink capabilities,
// suitable as the "inner" connector beneath a cache wrapper in tests.
type Connector struct {
	mu       sync.Mutex
	nodes    map[string]*node
	calls    map[string]int
	readOnly bool
}

// New returns an empty fake connector rooted at "/".
func New() *Connector {
	c := &Connector{
		nodes: make(map[string]*node),
		calls: make(map[string]int),
	}
	c.nodes["/"] = &node{fileType: model.Directory, mtime: time.Unix(0, 0)}
	return c
}

// CallCount returns how many times method has been invoked.
func (c *Connector) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *Connector) record(method string) {
	c.calls[method]++
}

func clean(p string) string {
	if p == "" {
		return "/"
	}
	p = path.Clean(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func parent(p string) string {
	if p == "/" {
		return "/"
	}
	return clean(path.Dir(p))
}

func (c *Connector) Capabilities() model.Capabilities {
	if c.readOnly {
		return model.ReadOnlyCapabilities()
	}
	return model.Capabilities{
		Read: true, Write: true, RangeRead: true, RandomWrite: true,
		Rename: true, Truncate: true, SetMtime: true, Seekable: true,
		SetMode: true, Symlink: true,
	}
}

func (c *Connector) CacheRequirements() model.CacheRequirements {
	return model.CacheRequirements{WriteBuffer: model.CacheNone, ReadCache: true}
}

func (c *Connector) Stat(_ context.Context, p string) (model.Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("Stat")
	p = clean(p)
	n, ok := c.nodes[p]
	if !ok {
		return model.Metadata{}, ferrors.NotFound(p)
	}
	md := model.Metadata{FileType: n.fileType, Mtime: n.mtime}
	if n.fileType == model.File {
		md.Size = uint64(len(n.data))
	}
	if n.hasMode {
		md.Mode, md.HasMode = n.mode, true
	}
	return md, nil
}

func (c *Connector) Exists(ctx context.Context, p string) (bool, error) {
	c.record("Exists")
	return connector.ExistsViaStat(ctx, c, p)
}

func (c *Connector) Read(_ context.Context, p string, offset uint64, size uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("Read")
	p = clean(p)
	n, ok := c.nodes[p]
	if !ok {
		return nil, ferrors.NotFound(p)
	}
	if n.fileType != model.File {
		return nil, ferrors.IsADirectory(p)
	}
	if offset >= uint64(len(n.data)) {
		return nil, nil
	}
	end := offset + uint64(size)
	if end > uint64(len(n.data)) {
		end = uint64(len(n.data))
	}
	out := make([]byte, end-offset)
	copy(out, n.data[offset:end])
	return out, nil
}

func (c *Connector) Write(_ context.Context, p string, offset uint64, data []byte) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("Write")
	p = clean(p)
	n, ok := c.nodes[p]
	if !ok {
		return 0, ferrors.NotFound(p)
	}
	if n.fileType != model.File {
		return 0, ferrors.IsADirectory(p)
	}
	end := offset + uint64(len(data))
	if end > uint64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:end], data)
	n.mtime = time.Now()
	return uint64(len(data)), nil
}

func (c *Connector) createFile(p string, mode uint32, hasMode bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p = clean(p)
	if _, ok := c.nodes[p]; ok {
		return ferrors.AlreadyExists(p)
	}
	if _, ok := c.nodes[parent(p)]; !ok {
		return ferrors.NotFound(parent(p))
	}
	c.nodes[p] = &node{fileType: model.File, mtime: time.Now(), mode: mode, hasMode: hasMode}
	return nil
}

func (c *Connector) CreateFile(_ context.Context, p string) error {
	c.record("CreateFile")
	return c.createFile(p, 0, false)
}

func (c *Connector) CreateFileWithMode(_ context.Context, p string, mode uint32) error {
	c.record("CreateFileWithMode")
	return c.createFile(p, mode, true)
}

func (c *Connector) createDir(p string, mode uint32, hasMode bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p = clean(p)
	if _, ok := c.nodes[p]; ok {
		return ferrors.AlreadyExists(p)
	}
	c.nodes[p] = &node{fileType: model.Directory, mtime: time.Now(), mode: mode, hasMode: hasMode}
	return nil
}

func (c *Connector) CreateDir(_ context.Context, p string) error {
	c.record("CreateDir")
	return c.createDir(p, 0, false)
}

func (c *Connector) CreateDirWithMode(_ context.Context, p string, mode uint32) error {
	c.record("CreateDirWithMode")
	return c.createDir(p, mode, true)
}

func (c *Connector) RemoveFile(_ context.Context, p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("RemoveFile")
	p = clean(p)
	n, ok := c.nodes[p]
	if !ok {
		return ferrors.NotFound(p)
	}
	if n.fileType == model.Directory {
		return ferrors.IsADirectory(p)
	}
	delete(c.nodes, p)
	return nil
}

func (c *Connector) RemoveDir(_ context.Context, p string, recursive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("RemoveDir")
	p = clean(p)
	n, ok := c.nodes[p]
	if !ok {
		return ferrors.NotFound(p)
	}
	if n.fileType != model.Directory {
		return ferrors.NotADirectory(p)
	}
	prefix := p
	if prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}
	var children []string
	for candidate := range c.nodes {
		if candidate != p && strings.HasPrefix(candidate, prefix) {
			children = append(children, candidate)
		}
	}
	if len(children) > 0 && !recursive {
		return ferrors.NotEmpty(p)
	}
	for _, child := range children {
		delete(c.nodes, child)
	}
	delete(c.nodes, p)
	return nil
}

func (c *Connector) ListDir(_ context.Context, p string, fn connector.DirEntryFn) error {
	c.mu.Lock()
	p = clean(p)
	n, ok := c.nodes[p]
	if !ok {
		c.mu.Unlock()
		return ferrors.NotFound(p)
	}
	if n.fileType != model.Directory {
		c.mu.Unlock()
		return ferrors.NotADirectory(p)
	}
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	seen := map[string]model.FileType{}
	for candidate, cn := range c.nodes {
		if candidate == p || !strings.HasPrefix(candidate, prefix) {
			continue
		}
		rel := strings.TrimPrefix(candidate, prefix)
		if idx := strings.Index(rel, "/"); idx >= 0 {
			// nested descendant; its immediate ancestor under p is a dir
			name := rel[:idx]
			seen[name] = model.Directory
			continue
		}
		seen[rel] = cn.fileType
	}
	c.record("ListDir")
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	c.mu.Unlock()
	for _, name := range names {
		if err := fn(model.DirEntry{Name: name, FileType: seen[name]}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) Rename(_ context.Context, from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("Rename")
	from, to = clean(from), clean(to)
	n, ok := c.nodes[from]
	if !ok {
		return ferrors.NotFound(from)
	}
	if _, ok := c.nodes[to]; ok {
		return ferrors.AlreadyExists(to)
	}
	prefix := from
	if prefix != "/" {
		prefix += "/"
	}
	for candidate, cn := range c.nodes {
		if candidate == from {
			continue
		}
		if strings.HasPrefix(candidate, prefix) {
			rel := strings.TrimPrefix(candidate, prefix)
			newPath := clean(to + "/" + rel)
			delete(c.nodes, candidate)
			c.nodes[newPath] = cn
		}
	}
	delete(c.nodes, from)
	c.nodes[to] = n
	return nil
}

func (c *Connector) Truncate(_ context.Context, p string, size uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("Truncate")
	p = clean(p)
	n, ok := c.nodes[p]
	if !ok {
		return ferrors.NotFound(p)
	}
	if n.fileType != model.File {
		return ferrors.IsADirectory(p)
	}
	if size <= uint64(len(n.data)) {
		n.data = n.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, n.data)
		n.data = grown
	}
	return nil
}

func (c *Connector) Flush(_ context.Context, p string) error {
	c.record("Flush")
	return nil
}

func (c *Connector) SetMode(_ context.Context, p string, mode uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("SetMode")
	p = clean(p)
	n, ok := c.nodes[p]
	if !ok {
		return ferrors.NotFound(p)
	}
	n.mode, n.hasMode = mode, true
	return nil
}

func (c *Connector) Readlink(_ context.Context, p string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("Readlink")
	p = clean(p)
	n, ok := c.nodes[p]
	if !ok {
		return "", ferrors.NotFound(p)
	}
	if n.fileType != model.Symlink {
		return "", ferrors.InvalidArgument(p)
	}
	return n.target, nil
}

func (c *Connector) Symlink(_ context.Context, target, linkPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("Symlink")
	linkPath = clean(linkPath)
	if _, ok := c.nodes[linkPath]; ok {
		return ferrors.AlreadyExists(linkPath)
	}
	c.nodes[linkPath] = &node{fileType: model.Symlink, mtime: time.Now(), target: target}
	return nil
}

var _ connector.Connector = (*Connector)(nil)
