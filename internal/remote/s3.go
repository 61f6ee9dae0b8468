package remote

import (
	"bytes"
	"context"
	stderr "errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/stratacache/stratacache/pkg/errors"
	"github.com/stratacache/stratacache/pkg/types"
)

const defaultS3RequestTimeout = 5 * time.Second

// S3Config holds settings for the blob-store side of the L3 tier.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`

	// Endpoint overrides the AWS endpoint, for MinIO and LocalStack.
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`

	// KeyPrefix namespaces this cache's objects inside a shared bucket.
	KeyPrefix string `yaml:"key_prefix"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// s3API is the slice of the S3 client the store uses. Test seam.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Store keeps oversized payloads in an object bucket. TTLs are tracked
// per object via an expiry header checked on read; S3 itself has no
// per-object TTL.
type S3Store struct {
	client  s3API
	bucket  string
	prefix  string
	timeout time.Duration
}

var _ types.RemoteStore = (*S3Store)(nil)

const expiresAtHeader = "stratacache-expires-at"

// NewS3Store loads AWS configuration and builds the blob store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.New(errors.ErrCodeConnectionFailed, "loading AWS config failed").
			WithCause(err).WithComponent("remote.s3")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg), nil
}

func newS3Store(client s3API, cfg S3Config) *S3Store {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultS3RequestTimeout
	}
	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.KeyPrefix,
		timeout: timeout,
	}
}

func (s *S3Store) key(k string) string {
	return s.prefix + k
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, s.wrap(err, "GetObject", key)
	}
	defer out.Body.Close()

	if expired(out.Metadata, time.Now()) {
		// Lazy expiry: drop the object and report a miss.
		_ = s.Delete(context.WithoutCancel(ctx), key)
		return nil, false, nil
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, s.wrap(err, "GetObject", key)
	}
	return data, true, nil
}

func (s *S3Store) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var meta map[string]string
	if ttl > 0 {
		meta = map[string]string{
			expiresAtHeader: time.Now().Add(ttl).UTC().Format(time.RFC3339),
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key(key)),
		Body:     bytes.NewReader(data),
		Metadata: meta,
	})
	if err != nil {
		return s.wrap(err, "PutObject", key)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return s.wrap(err, "DeleteObject", key)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, s.wrap(err, "HeadObject", key)
	}
	return !expired(out.Metadata, time.Now()), nil
}

// FlushAll deletes every object under the store's prefix in batches.
func (s *S3Store) FlushAll(ctx context.Context) error {
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return errors.New(errors.ErrCodeFlushFailed, "listing objects failed").
				WithCause(err).WithComponent("remote.s3")
		}
		if len(out.Contents) > 0 {
			ids := make([]s3types.ObjectIdentifier, len(out.Contents))
			for i, obj := range out.Contents {
				ids[i] = s3types.ObjectIdentifier{Key: obj.Key}
			}
			_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return errors.New(errors.ErrCodeFlushFailed, "deleting objects failed").
					WithCause(err).WithComponent("remote.s3")
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
		token = out.NextContinuationToken
	}
}

func (s *S3Store) wrap(err error, op, key string) error {
	code := errors.ErrCodeConnectionFailed
	if stderr.Is(err, context.DeadlineExceeded) {
		code = errors.ErrCodeConnectionTimeout
	}
	return errors.Newf(code, "s3 %s failed", op).
		WithCause(err).
		WithComponent("remote.s3").
		WithContext("key", key)
}

func isNotFound(err error) bool {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return stderr.As(err, &noKey) || stderr.As(err, &notFound)
}

func expired(meta map[string]string, now time.Time) bool {
	raw, ok := meta[expiresAtHeader]
	if !ok {
		return false
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return false
	}
	return now.After(at)
}
