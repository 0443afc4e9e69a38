package blob

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	store, err := NewS3Store(context.Background(), "", "eu-west-1", WithS3Client(fake))
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "p1/presentation-1.md", []byte("# Deck"), "")
	require.NoError(t, err)

	assert.Equal(t, "https://flow-artifacts.s3.eu-west-1.amazonaws.com/p1/presentation-1.md", url)
	assert.Equal(t, DefaultBucket, aws.ToString(fake.input.Bucket))
	assert.Equal(t, "p1/presentation-1.md", aws.ToString(fake.input.Key))
	assert.Equal(t, "text/markdown; charset=utf-8", aws.ToString(fake.input.ContentType))
	assert.Equal(t, []byte("# Deck"), fake.body)
}

func TestS3Store_PublicURL(t *testing.T) {
	store, err := NewS3Store(context.Background(), "decks", "", WithS3Client(&fakeS3{}), WithPublicURL("https://cdn.example/"))
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "p1/deck.pptx", []byte("PK"), "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/p1/deck.pptx", url)
}

func TestS3Store_Errors(t *testing.T) {
	store, err := NewS3Store(context.Background(), "decks", "us-east-1", WithS3Client(&fakeS3{err: errors.New("access denied")}))
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "p1/deck.md", []byte("x"), "")
	assert.ErrorContains(t, err, "access denied")

	_, err = store.Put(context.Background(), "../escape", []byte("x"), "")
	assert.ErrorContains(t, err, "invalid object key")
}

func TestFSStore_Put(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFSStore(fs, "/var/flow", "http://localhost:8080/files")

	url, err := store.Put(context.Background(), "p1/presentation-1.md", []byte("# Deck"), "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/p1/presentation-1.md", url)

	data, err := afero.ReadFile(fs, "/var/flow/p1/presentation-1.md")
	require.NoError(t, err)
	assert.Equal(t, "# Deck", string(data))
}

func TestFSStore_FileURL(t *testing.T) {
	store := NewFSStore(afero.NewMemMapFs(), "/data", "")
	url, err := store.Put(context.Background(), "p1/a.md", []byte("a"), "")
	require.NoError(t, err)
	assert.Equal(t, "file:///data/p1/a.md", url)
}

func TestFSStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFSStore(afero.NewMemMapFs(), "/data", "").Put(ctx, "p1/a.md", []byte("a"), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeyAndContentType(t *testing.T) {
	assert.Equal(t, "p1/deck.md", Key("p1", "../../deck.md"))
	assert.Equal(t, "application/json", DetectContentType("x.json", []byte(`{}`)))
	assert.Equal(t, "image/png", DetectContentType("x.bin", []byte("\x89PNG\r\n\x1a\n0000")))
}
