package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/resource"
	"github.com/specialistvlad/devmgr/internal/status"
)

// S3API is the subset of the S3 client the loader uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config locates the firmware bucket.
type S3Config struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

// S3Loader reads firmware objects from an S3 bucket.
type S3Loader struct {
	client   S3API
	cfg      S3Config
	supplier *resource.Supplier
}

// NewS3Loader builds a loader using the default AWS credential chain.
func NewS3Loader(ctx context.Context, supplier *resource.Supplier, cfg S3Config) (*S3Loader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("firmware bucket is empty: %w", status.ErrInvalidArgs)
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	return NewS3LoaderWithClient(client, supplier, cfg), nil
}

// NewS3LoaderWithClient builds a loader around an existing client.
func NewS3LoaderWithClient(client S3API, supplier *resource.Supplier, cfg S3Config) *S3Loader {
	return &S3Loader{client: client, cfg: cfg, supplier: supplier}
}

// Load implements Loader.
func (l *S3Loader) Load(ctx context.Context, driver, name string) (*Blob, error) {
	if err := validPath(name); err != nil {
		return nil, err
	}
	key := path.Join(l.cfg.Prefix, name)
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("firmware s3://%s/%s for driver %q: %w", l.cfg.Bucket, key, driver, status.ErrNotFound)
		}
		return nil, fmt.Errorf("get firmware s3://%s/%s: %w", l.cfg.Bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read firmware s3://%s/%s: %w", l.cfg.Bucket, key, err)
	}
	ctxlog.FromContext(ctx).Debug("Loaded firmware from S3.", "driver", driver, "bucket", l.cfg.Bucket, "key", key, "size", len(data))
	return &Blob{Handle: l.supplier.Mint(), Data: data, Source: "s3://" + l.cfg.Bucket + "/" + key}, nil
}
