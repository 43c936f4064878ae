package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
)

type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	putErr  error
	getErr  error
	created []string
}

func newFakeS3(buckets ...string) *fakeS3 {
	f := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
	for _, b := range buckets {
		f.buckets[b] = true
	}
	return f
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[k] = data
	f.types[k] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.buckets[aws.ToString(in.Bucket)] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[aws.ToString(in.Bucket)] = true
	f.created = append(f.created, aws.ToString(in.Bucket))
	return &s3.CreateBucketOutput{}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	fake := newFakeS3("raw-uploads", "processed-results")
	store := newS3Store(fake, "raw-uploads", "processed-results")
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "job-1/main.png", []byte("main"), "image/png"))
	got, err := store.Resolve(ctx, "job-1/main.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("main"), got)

	loc, err := store.Store(ctx, "job-1/result-tl.jpg", []byte("tile"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "s3://processed-results/job-1/result-tl.jpg", loc)
	assert.Equal(t, []byte("tile"), fake.objects["processed-results/job-1/result-tl.jpg"])
	assert.Equal(t, "image/jpeg", fake.types["processed-results/job-1/result-tl.jpg"])

	// Results never land in the raw bucket.
	_, err = store.Resolve(ctx, "job-1/result-tl.jpg")
	assert.True(t, errors.Is(err, pipeline.ErrNotFound))
}

func TestS3StoreErrors(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, "raw", "out")
	ctx := context.Background()

	fake.putErr = errors.New("connection reset")
	_, err := store.Store(ctx, "job/result-br.jpg", []byte("x"), "image/jpeg")
	assert.True(t, errors.Is(err, pipeline.ErrSinkWrite))
	assert.Contains(t, err.Error(), "connection reset")

	fake.getErr = errors.New("timeout")
	_, err = store.Resolve(ctx, "job/main.png")
	require.Error(t, err)
	assert.False(t, errors.Is(err, pipeline.ErrNotFound))
}

func TestEnsureBuckets(t *testing.T) {
	fake := newFakeS3("raw")
	store := newS3Store(fake, "raw", "out")
	require.NoError(t, store.EnsureBuckets(context.Background()))
	assert.Equal(t, []string{"out"}, fake.created)

	require.NoError(t, store.EnsureBuckets(context.Background()))
	assert.Equal(t, []string{"out"}, fake.created)
}

func TestNewS3StoreRequiresBuckets(t *testing.T) {
	_, err := NewS3Store(context.Background(), MinioConfig{Region: "us-east-1", RawBucket: "raw"})
	assert.Error(t, err)
}

func TestNewS3StoreWithEndpoint(t *testing.T) {
	store, err := NewS3Store(context.Background(), MinioConfig{
		Endpoint:     "http://localhost:9000",
		Region:       "us-east-1",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		RawBucket:    "raw-uploads",
		ResultBucket: "processed-results",
	})
	require.NoError(t, err)
	client, ok := store.client.(*s3.Client)
	require.True(t, ok)
	assert.True(t, client.Options().UsePathStyle)
	assert.Equal(t, "http://localhost:9000", aws.ToString(client.Options().BaseEndpoint))
}

func TestRawKey(t *testing.T) {
	assert.Equal(t, "run1/header-tl.png", RawKey("run1", "/tmp/uploads/header-tl.png"))
	assert.Equal(t, "run1/main.jpg", RawKey("run1", "main.jpg"))
}
