package transport

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

const s3Backend = "s3"

// S3API is the subset of the S3 client used for syncing.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Options struct {
	Root     string
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
	// PathStyle forces path-style addressing, needed by most S3-compatible
	// servers.
	PathStyle bool
	Source    billy.Filesystem
	// Client overrides the SDK client; the AWS config is not loaded when set.
	Client S3API
}

// S3 uploads files as objects under Bucket/Prefix.
type S3 struct {
	client S3API
	bucket string
	source billy.Filesystem
	loc    location
}

func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Root == "" {
		return nil, errors.New("s3 root is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	client := opts.Client
	if client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, NewError(s3Backend, "init", opts.Root, err)
		}
		if opts.Region != "" {
			cfg.Region = opts.Region
		} else if cfg.Region == "" {
			cfg.Region = "us-east-1"
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = opts.PathStyle
			if opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.Endpoint)
			}
		})
	}
	source := opts.Source
	if source == nil {
		source = osfs.New(opts.Root)
	}
	return &S3{
		client: client,
		bucket: opts.Bucket,
		source: source,
		loc:    location{root: opts.Root, prefix: opts.Prefix},
	}, nil
}

// Upload puts the file at localPath. Directories have no object of their
// own and are skipped.
func (t *S3) Upload(ctx context.Context, localPath string) error {
	rel, key, err := t.loc.resolve(localPath)
	if err != nil {
		return NewError(s3Backend, "upload", localPath, err)
	}
	info, err := t.source.Stat(rel)
	if err != nil {
		return NewError(s3Backend, "upload", localPath, err).WithKey(key)
	}
	if info.IsDir() {
		return nil
	}

	file, err := t.source.Open(rel)
	if err != nil {
		return NewError(s3Backend, "upload", localPath, err).WithKey(key)
	}
	defer file.Close()

	contentType, err := sniffContentType(file)
	if err != nil {
		return NewError(s3Backend, "upload", localPath, err).WithKey(key)
	}
	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return NewError(s3Backend, "upload", localPath, err).WithKey(key)
	}
	return nil
}

func (t *S3) Remove(ctx context.Context, localPath string) error {
	_, key, err := t.loc.resolve(localPath)
	if err != nil {
		return NewError(s3Backend, "remove", localPath, err)
	}
	_, err = t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return NewError(s3Backend, "remove", localPath, err).WithKey(key)
	}
	return nil
}
