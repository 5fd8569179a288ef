package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/api"
)

// Options keeps minio connection parameters
type Options struct {
	URL    string
	User   string
	Key    string
	Bucket string
	SSL    bool
}

// Filer loads and saves files in a minio bucket
type Filer struct {
	client *minio.Client
	bucket string
}

// NewFiler creates a bucket scoped minio client, the bucket is created if missing
func NewFiler(ctx context.Context, opts Options) (*Filer, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("no URL")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("no bucket")
	}
	cl, err := minio.New(opts.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.User, opts.Key, ""),
		Secure: opts.SSL,
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	res := &Filer{client: cl, bucket: opts.Bucket}
	exists, err := cl.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "can't check bucket '%s'", opts.Bucket)
	}
	if !exists {
		goapp.Log.Info().Str("bucket", opts.Bucket).Msg("creating bucket")
		if err := cl.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrapf(err, "can't create bucket '%s'", opts.Bucket)
		}
	}
	return res, nil
}

// SaveFile stores data under name
func (f *Filer) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := f.client.PutObject(ctx, f.bucket, name, r, size, minio.PutObjectOptions{})
	if err != nil {
		return errors.Wrapf(mapErr(err), "can't save '%s'", name)
	}
	return nil
}

// LoadFile opens the named object for reading
func (f *Filer) LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	obj, err := f.client.GetObject(ctx, f.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(mapErr(err), "can't load '%s'", name)
	}
	return obj, nil
}

// Stat returns object size. Missing objects map to the retryable
// not-found class, credential problems are immediately fatal
func (f *Filer) Stat(ctx context.Context, name string) (int64, error) {
	info, err := f.client.StatObject(ctx, f.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return 0, mapErr(err)
	}
	return info.Size, nil
}

func mapErr(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return api.NewErrResultNotFound(err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		return api.NewErrConfiguration(fmt.Errorf("storage access rejected (%s) - check filer credentials and bucket policy: %v", resp.Code, err))
	}
	return err
}
