// Package s3 implements the connector.Connector contract against an
// S3-compatible object store, using an S3 key layout where every
// Connector path maps to an S3 key with its leading slash stripped
// (the root "/" has no corresponding object; directories are
// synthesized from key prefixes, matching how flat object stores
// represent hierarchy).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	cargoshipconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"
	"github.com/aws/smithy-go"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

// Config configures the S3 connector.
type Config struct {
	Bucket                      string
	Region                      string
	Endpoint                    string
	AccessKeyID                 string
	SecretAccessKey             string
	SessionToken                string
	ForcePathStyle              bool
	UseAccelerate               bool
	UseDualStack                bool
	EnableCargoShipOptimization bool
	OptimizationLevel           string
}

// Connector satisfies connector.Connector over a single S3 bucket.
// Large uploads on sync are routed through the cargoship Transporter
// when enabled, falling back to a plain PutObject call on any
// transporter error (the transporter is a performance optimization,
// never a correctness dependency).
type Connector struct {
	client      *s3.Client
	bucket      string
	transporter *cargoships3.Transporter
	log         *slog.Logger
}

// New builds a Connector against cfg, verifying bucket access with a
// HeadBucket call before returning.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 connector: bucket is required")
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     cfg.AccessKeyID,
					SecretAccessKey: cfg.SecretAccessKey,
					SessionToken:    cfg.SessionToken,
				}, nil
			}),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
		o.UseAccelerate = cfg.UseAccelerate
		o.UseDualstack = cfg.UseDualStack
	})

	c := &Connector{client: client, bucket: cfg.Bucket, log: logger.With("component", "s3-connector", "bucket", cfg.Bucket)}

	if cfg.EnableCargoShipOptimization {
		cargoCfg := cargoshipconfig.S3Config{
			Bucket:             cfg.Bucket,
			StorageClass:       cargoshipconfig.StorageClassIntelligentTiering,
			MultipartThreshold: 32 * 1024 * 1024,
			MultipartChunkSize: 16 * 1024 * 1024,
			Concurrency:        4,
		}
		c.transporter = cargoships3.NewTransporter(client, cargoCfg)
		c.log.Info("cargoship S3 optimization enabled", "chunk_size", "16MB")
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("s3 connector: bucket %q unreachable: %w", cfg.Bucket, err)
	}
	return c, nil
}

var _ connector.Connector = (*Connector)(nil)

func toKey(path string) string {
	return strings.TrimPrefix(path, "/")
}

func (c *Connector) Capabilities() model.Capabilities {
	return model.Capabilities{
		Read: true, Write: true, RangeRead: true, RandomWrite: false,
		Rename: false, Truncate: false, SetMtime: false, Seekable: true,
		SetMode: false, Symlink: false,
	}
}

func (c *Connector) CacheRequirements() model.CacheRequirements {
	return model.CacheRequirements{
		WriteBuffer:    model.CacheRequired,
		ReadCache:      true,
		MetadataTTL:    5 * time.Second,
		HasMetadataTTL: true,
	}
}

func (c *Connector) translateError(path string, err error) error {
	if err == nil {
		return nil
	}
	var nf *s3types.NoSuchKey
	if errors.As(err, &nf) {
		return ferrors.NotFound(path)
	}
	var nb *s3types.NoSuchBucket
	if errors.As(err, &nb) {
		return ferrors.Backend(path, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return ferrors.NotFound(path)
		case "AccessDenied":
			return ferrors.PermissionDenied(path)
		}
	}
	return ferrors.Backend(path, err)
}

func (c *Connector) isDirMarkerKey(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

func (c *Connector) Stat(ctx context.Context, path string) (model.Metadata, error) {
	key := toKey(path)
	if key == "" {
		return model.Metadata{FileType: model.Directory, Mtime: time.Now()}, nil
	}
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)})
	if err == nil {
		md := model.Metadata{FileType: model.File, Mtime: time.Now()}
		if out.ContentLength != nil {
			md.Size = uint64(*out.ContentLength)
		}
		if out.LastModified != nil {
			md.Mtime = *out.LastModified
		}
		return md, nil
	}
	// Not a plain object; check whether it's a synthesized "directory"
	// (any object exists with this key as a prefix).
	listOut, listErr := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket), Prefix: aws.String(c.isDirMarkerKey(key)), MaxKeys: aws.Int32(1),
	})
	if listErr == nil && len(listOut.Contents) > 0 {
		return model.Metadata{FileType: model.Directory, Mtime: time.Now()}, nil
	}
	return model.Metadata{}, c.translateError(path, err)
}

func (c *Connector) Exists(ctx context.Context, path string) (bool, error) {
	return connector.ExistsViaStat(ctx, c, path)
}

func (c *Connector) Read(ctx context.Context, path string, offset uint64, size uint32) ([]byte, error) {
	key := toKey(path)
	in := &s3.GetObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)}
	if size != 0 && size != wholeFileSentinel {
		rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+uint64(size)-1)
		in.Range = aws.String(rangeHeader)
	} else if offset > 0 {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	out, err := c.client.GetObject(ctx, in)
	if err != nil {
		return nil, c.translateError(path, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

const wholeFileSentinel = ^uint32(0)

func (c *Connector) Write(ctx context.Context, path string, offset uint64, data []byte) (uint64, error) {
	if offset != 0 {
		return 0, ferrors.NotSupported(path)
	}
	key := toKey(path)

	if c.transporter != nil {
		archive := cargoships3.Archive{
			Key:          key,
			Reader:       bytes.NewReader(data),
			Size:         int64(len(data)),
			StorageClass: cargoshipconfig.StorageClassStandard,
		}
		if _, err := c.transporter.Upload(ctx, archive); err == nil {
			return uint64(len(data)), nil
		}
		c.log.Warn("cargoship upload failed, falling back to standard put", "path", path)
	}

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket), Key: aws.String(key), Body: bytes.NewReader(data),
	})
	if err != nil {
		return 0, c.translateError(path, err)
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

// CreateDir writes a zero-byte marker object under the directory's
// key-with-trailing-slash, the conventional way flat object stores
// represent an otherwise-empty "directory".
func (c *Connector) CreateDir(ctx context.Context, path string) error {
	key := c.isDirMarkerKey(toKey(path))
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket), Key: aws.String(key), Body: bytes.NewReader(nil),
	})
	if err != nil {
		return c.translateError(path, err)
	}
	return nil
}

func (c *Connector) CreateDirWithMode(ctx context.Context, path string, mode uint32) error {
	return c.CreateDir(ctx, path)
}

func (c *Connector) RemoveFile(ctx context.Context, path string) error {
	key := toKey(path)
	if _, err := c.Stat(ctx, path); err != nil {
		return err
	}
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)})
	if err != nil {
		return c.translateError(path, err)
	}
	return nil
}

func (c *Connector) RemoveDir(ctx context.Context, path string, recursive bool) error {
	prefix := c.isDirMarkerKey(toKey(path))
	var keys []string
	var token *string
	for {
		out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(c.bucket), Prefix: aws.String(prefix), ContinuationToken: token,
		})
		if err != nil {
			return c.translateError(path, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	if len(keys) == 0 {
		return ferrors.NotFound(path)
	}
	if len(keys) > 1 && !recursive {
		return ferrors.NotEmpty(path)
	}
	for _, key := range keys {
		if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)}); err != nil {
			return c.translateError(path, err)
		}
	}
	return nil
}

func (c *Connector) ListDir(ctx context.Context, path string, fn connector.DirEntryFn) error {
	prefix := c.isDirMarkerKey(toKey(path))
	seen := make(map[string]model.FileType)
	var token *string
	for {
		out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(c.bucket), Prefix: aws.String(prefix), Delimiter: aws.String("/"), ContinuationToken: token,
		})
		if err != nil {
			return c.translateError(path, err)
		}
		for _, cp := range out.CommonPrefixes {
			rel := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if rel != "" {
				seen[rel] = model.Directory
			}
		}
		for _, obj := range out.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if rel == "" {
				continue
			}
			seen[rel] = model.File
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := fn(model.DirEntry{Name: name, FileType: seen[name]}); err != nil {
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
