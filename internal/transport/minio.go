package transport

import (
	"context"
	"errors"
	"io"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const minioBackend = "minio"

// MinioAPI is the subset of the MinIO client used for syncing.
type MinioAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type MinioOptions struct {
	Root     string
	Endpoint string
	Bucket   string
	Prefix   string
	Secure   bool
	Source   billy.Filesystem
	Client   MinioAPI
}

// Minio uploads files to a MinIO or other S3-compatible server. Credentials
// come from the MINIO_* or AWS_* environment variables.
type Minio struct {
	client MinioAPI
	bucket string
	source billy.Filesystem
	loc    location
}

func NewMinio(opts MinioOptions) (*Minio, error) {
	if opts.Root == "" {
		return nil, errors.New("minio root is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	client := opts.Client
	if client == nil {
		if opts.Endpoint == "" {
			return nil, errors.New("minio endpoint is required")
		}
		creds := credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvMinio{},
			&credentials.EnvAWS{},
		})
		mc, err := minio.New(opts.Endpoint, &minio.Options{Creds: creds, Secure: opts.Secure})
		if err != nil {
			return nil, NewError(minioBackend, "init", opts.Root, err)
		}
		client = mc
	}
	source := opts.Source
	if source == nil {
		source = osfs.New(opts.Root)
	}
	return &Minio{
		client: client,
		bucket: opts.Bucket,
		source: source,
		loc:    location{root: opts.Root, prefix: opts.Prefix},
	}, nil
}

func (t *Minio) Upload(ctx context.Context, localPath string) error {
	rel, key, err := t.loc.resolve(localPath)
	if err != nil {
		return NewError(minioBackend, "upload", localPath, err)
	}
	info, err := t.source.Stat(rel)
	if err != nil {
		return NewError(minioBackend, "upload", localPath, err).WithKey(key)
	}
	if info.IsDir() {
		return nil
	}

	file, err := t.source.Open(rel)
	if err != nil {
		return NewError(minioBackend, "upload", localPath, err).WithKey(key)
	}
	defer file.Close()

	contentType, err := sniffContentType(file)
	if err != nil {
		return NewError(minioBackend, "upload", localPath, err).WithKey(key)
	}
	_, err = t.client.PutObject(ctx, t.bucket, key, file, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return NewError(minioBackend, "upload", localPath, err).WithKey(key)
	}
	return nil
}

func (t *Minio) Remove(ctx context.Context, localPath string) error {
	_, key, err := t.loc.resolve(localPath)
	if err != nil {
		return NewError(minioBackend, "remove", localPath, err)
	}
	if err := t.client.RemoveObject(ctx, t.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return NewError(minioBackend, "remove", localPath, err).WithKey(key)
	}
	return nil
}
