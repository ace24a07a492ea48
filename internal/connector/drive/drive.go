// Package drive implements a minimal connector.Connector over a single
// Google Drive folder, used as a second concrete backend exercising
// the same capability profile as the S3 connector (no random write, no
// rename, no truncate — every mutation is whole-object) but through a
// completely different wire API, proving the cache layer's backend
// independence.
package drive

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Config configures the Drive connector.
type Config struct {
	RootFolderID    string
	CredentialsJSON []byte
}

// Connector satisfies connector.Connector against a single Drive
// folder tree. Paths map onto Drive's parent-linked file graph by
// walking from RootFolderID component by component; there is no flat
// key namespace the way S3 has one, so every path operation resolves
// the full ancestor chain first.
type Connector struct {
	svc    *drive.Service
	rootID string
	log    *slog.Logger
}

// New builds a Connector against cfg.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc, err := drive.NewService(ctx, option.WithCredentialsJSON(cfg.CredentialsJSON))
	if err != nil {
		return nil, err
	}
	return &Connector{svc: svc, rootID: cfg.RootFolderID, log: logger.With("component", "drive-connector")}, nil
}

var _ connector.Connector = (*Connector)(nil)

func (c *Connector) Capabilities() model.Capabilities {
	return model.Capabilities{Read: true, Write: true, RangeRead: false, Seekable: false}
}

func (c *Connector) CacheRequirements() model.CacheRequirements {
	return model.CacheRequirements{
		WriteBuffer:    model.CacheRequired,
		ReadCache:      true,
		MetadataTTL:    10 * time.Second,
		HasMetadataTTL: true,
	}
}

func components(path string) []string {
	var out []string
	cur := ""
	for _, r := range path {
		if r == '/' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// resolve walks path component by component from the root folder,
// returning the Drive file ID and whether it is a folder.
func (c *Connector) resolve(ctx context.Context, path string) (id string, isDir bool, err error) {
	parts := components(path)
	cur := c.rootID
	if len(parts) == 0 {
		return cur, true, nil
	}
	for i, name := range parts {
		q := "'" + cur + "' in parents and name = '" + escapeQuery(name) + "' and trashed = false"
		res, err := c.svc.Files.List().Q(q).Fields("files(id, mimeType)").Context(ctx).Do()
		if err != nil {
			return "", false, ferrors.Backend(path, err)
		}
		if len(res.Files) == 0 {
			return "", false, ferrors.NotFound(path)
		}
		f := res.Files[0]
		cur = f.Id
		if i == len(parts)-1 {
			return cur, f.MimeType == folderMimeType, nil
		}
		if f.MimeType != folderMimeType {
			return "", false, ferrors.NotADirectory(path)
		}
	}
	return cur, true, nil
}

func escapeQuery(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func (c *Connector) Stat(ctx context.Context, path string) (model.Metadata, error) {
	id, isDir, err := c.resolve(ctx, path)
	if err != nil {
		return model.Metadata{}, err
	}
	if isDir {
		return model.Metadata{FileType: model.Directory, Mtime: time.Now()}, nil
	}
	f, err := c.svc.Files.Get(id).Fields("size, modifiedTime").Context(ctx).Do()
	if err != nil {
		return model.Metadata{}, ferrors.Backend(path, err)
	}
	md := model.Metadata{FileType: model.File, Size: uint64(f.Size)}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		md.Mtime = t
	}
	return md, nil
}

func (c *Connector) Exists(ctx context.Context, path string) (bool, error) {
	return connector.ExistsViaStat(ctx, c, path)
}

func (c *Connector) Read(ctx context.Context, path string, offset uint64, size uint32) ([]byte, error) {
	id, isDir, err := c.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if isDir {
		return nil, ferrors.IsADirectory(path)
	}
	resp, err := c.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, ferrors.Backend(path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ferrors.IO(path, err)
	}
	if offset >= uint64(len(data)) {
		return nil, nil
	}
	end := offset + uint64(size)
	if size == 0 || end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return data[offset:end], nil
}

func (c *Connector) parentID(ctx context.Context, path string) (string, error) {
	parts := components(path)
	if len(parts) == 0 {
		return c.rootID, nil
	}
	parentPath := "/" + joinComponents(parts[:len(parts)-1])
	id, isDir, err := c.resolve(ctx, parentPath)
	if err != nil {
		return "", err
	}
	if !isDir {
		return "", ferrors.NotADirectory(parentPath)
	}
	return id, nil
}

func joinComponents(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

func baseName(path string) string {
	parts := components(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Write always replaces the whole object: Drive has no partial-write
// API, so the cache layer's CacheRequired hint ensures this is only
// ever called with offset 0 and the full resulting content.
func (c *Connector) Write(ctx context.Context, path string, offset uint64, data []byte) (uint64, error) {
	if offset != 0 {
		return 0, ferrors.NotSupported(path)
	}
	id, isDir, err := c.resolve(ctx, path)
	if err == nil {
		if isDir {
			return 0, ferrors.IsADirectory(path)
		}
		_, err := c.svc.Files.Update(id, &drive.File{}).Media(bytes.NewReader(data)).Context(ctx).Do()
		if err != nil {
			return 0, ferrors.Backend(path, err)
		}
		return uint64(len(data)), nil
	}
	if !ferrors.Is(err, ferrors.KindNotFound) {
		return 0, err
	}
	parentID, err := c.parentID(ctx, path)
	if err != nil {
		return 0, err
	}
	f := &drive.File{Name: baseName(path), Parents: []string{parentID}}
	_, err = c.svc.Files.Create(f).Media(bytes.NewReader(data)).Context(ctx).Do()
	if err != nil {
		return 0, ferrors.Backend(path, err)
	}
	return uint64(len(data)), nil
}

func (c *Connector) CreateFile(ctx context.Context, path string) error {
	_, err := c.Write(ctx, path, 0, []byte{})
	return err
}

func (c *Connector) CreateFileWithMode(ctx context.Context, path string, mode uint32) error {
	return c.CreateFile(ctx, path)
}

func (c *Connector) CreateDir(ctx context.Context, path string) error {
	parentID, err := c.parentID(ctx, path)
	if err != nil {
		return err
	}
	f := &drive.File{Name: baseName(path), Parents: []string{parentID}, MimeType: folderMimeType}
	_, err = c.svc.Files.Create(f).Context(ctx).Do()
	if err != nil {
		return ferrors.Backend(path, err)
	}
	return nil
}

func (c *Connector) CreateDirWithMode(ctx context.Context, path string, mode uint32) error {
	return c.CreateDir(ctx, path)
}

func (c *Connector) RemoveFile(ctx context.Context, path string) error {
	id, isDir, err := c.resolve(ctx, path)
	if err != nil {
		return err
	}
	if isDir {
		return ferrors.IsADirectory(path)
	}
	if err := c.svc.Files.Delete(id).Context(ctx).Do(); err != nil {
		return ferrors.Backend(path, err)
	}
	return nil
}

func (c *Connector) RemoveDir(ctx context.Context, path string, recursive bool) error {
	id, isDir, err := c.resolve(ctx, path)
	if err != nil {
		return err
	}
	if !isDir {
		return ferrors.NotADirectory(path)
	}
	if !recursive {
		res, err := c.svc.Files.List().Q("'" + id + "' in parents and trashed = false").Fields("files(id)").Context(ctx).Do()
		if err != nil {
			return ferrors.Backend(path, err)
		}
		if len(res.Files) > 0 {
			return ferrors.NotEmpty(path)
		}
	}
	if err := c.svc.Files.Delete(id).Context(ctx).Do(); err != nil {
		return ferrors.Backend(path, err)
	}
	return nil
}

func (c *Connector) ListDir(ctx context.Context, path string, fn connector.DirEntryFn) error {
	id, isDir, err := c.resolve(ctx, path)
	if err != nil {
		return err
	}
	if !isDir {
		return ferrors.NotADirectory(path)
	}
	res, err := c.svc.Files.List().Q("'" + id + "' in parents and trashed = false").Fields("files(name, mimeType)").Context(ctx).Do()
	if err != nil {
		return ferrors.Backend(path, err)
	}
	entries := make([]model.DirEntry, 0, len(res.Files))
	for _, f := range res.Files {
		ft := model.File
		if f.MimeType == folderMimeType {
			ft = model.Directory
		}
		entries = append(entries, model.DirEntry{Name: f.Name, FileType: ft})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) Rename(ctx context.Context, from, to string) error {
	return ferrors.NotSupported(from)
}

func (c *Connector) Truncate(ctx context.Context, path string, size uint64) error {
	return ferrors.NotSupported(path)
}

func (c *Connector) Flush(ctx context.Context, path string) error {
	return nil
}

func (c *Connector) SetMode(ctx context.Context, path string, mode uint32) error {
	return ferrors.NotSupported(path)
}

func (c *Connector) Readlink(ctx context.Context, path string) (string, error) {
	return "", ferrors.NotSupported(path)
}

func (c *Connector) Symlink(ctx context.Context, target, linkPath string) error {
	return ferrors.NotSupported(linkPath)
}
