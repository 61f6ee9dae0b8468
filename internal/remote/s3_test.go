package remote

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 implements s3API over a map.
type fakeS3 struct {
	objects map[string]fakeObject
}

type fakeObject struct {
	data []byte
	meta map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:     io.NopCloser(bytes.NewReader(obj.data)),
		Metadata: obj.meta,
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = fakeObject{data: data, meta: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: obj.meta}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		k := key
		out.Contents = append(out.Contents, s3types.Object{Key: &k})
	}
	truncated := false
	out.IsTruncated = &truncated
	return out, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, id := range in.Delete.Objects {
		delete(f.objects, *id.Key)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func newTestS3Store() (*S3Store, *fakeS3) {
	fake := newFakeS3()
	store := newS3Store(fake, S3Config{Bucket: "cache", KeyPrefix: "blobs/"})
	return store, fake
}

func TestS3StoreRoundTrip(t *testing.T) {
	store, fake := newTestS3Store()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("payload"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := fake.objects["blobs/k"]; !ok {
		t.Error("object not stored under the configured prefix")
	}

	data, ok, err := store.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(data) != "payload" {
		t.Errorf("Get = %q, want %q", data, "payload")
	}

	ok, err = store.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists: ok=%v err=%v", ok, err)
	}
}

func TestS3StoreMiss(t *testing.T) {
	store, _ := newTestS3Store()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "absent"); ok || err != nil {
		t.Errorf("Get(absent): ok=%v err=%v", ok, err)
	}
	if ok, err := store.Exists(ctx, "absent"); ok || err != nil {
		t.Errorf("Exists(absent): ok=%v err=%v", ok, err)
	}
}

func TestS3StoreLazyExpiry(t *testing.T) {
	store, fake := newTestS3Store()
	ctx := context.Background()

	// Plant an object whose expiry header is already in the past.
	fake.objects["blobs/k"] = fakeObject{
		data: []byte("old"),
		meta: map[string]string{
			expiresAtHeader: time.Now().Add(-time.Minute).UTC().Format(time.RFC3339),
		},
	}

	if _, ok, err := store.Get(ctx, "k"); ok || err != nil {
		t.Errorf("Get(expired): ok=%v err=%v", ok, err)
	}
	if _, resident := fake.objects["blobs/k"]; resident {
		t.Error("expired object not removed on read")
	}
}

func TestS3StoreFlushAll(t *testing.T) {
	store, fake := newTestS3Store()
	ctx := context.Background()

	_ = store.Set(ctx, "a", []byte("1"), 0)
	_ = store.Set(ctx, "b", []byte("2"), 0)

	if err := store.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if len(fake.objects) != 0 {
		t.Errorf("FlushAll left %d objects", len(fake.objects))
	}
}

func TestExpiredHeaderParsing(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		meta map[string]string
		want bool
	}{
		{"no metadata", nil, false},
		{"no header", map[string]string{"other": "x"}, false},
		{"future", map[string]string{expiresAtHeader: now.Add(time.Hour).Format(time.RFC3339)}, false},
		{"past", map[string]string{expiresAtHeader: now.Add(-time.Hour).Format(time.RFC3339)}, true},
		{"garbage", map[string]string{expiresAtHeader: "not-a-time"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expired(tt.meta, now); got != tt.want {
				t.Errorf("expired = %v, want %v", got, tt.want)
			}
		})
	}
}
