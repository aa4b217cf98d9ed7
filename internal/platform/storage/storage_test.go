package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrbenefits/internal/platform/config"
)

func TestLocalPut(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(dir)
	location, err := store.Put(context.Background(), "tenant-1/2025-03/statement.csv", "text/csv", []byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tenant-1", "2025-03", "statement.csv"), location)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	escaped, err := store.Put(context.Background(), "../../etc/passwd", "text/plain", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "etc", "passwd"), escaped)

	_, err = store.Put(context.Background(), "", "text/plain", nil)
	require.Error(t, err)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Put(t *testing.T) {
	client := &fakeS3{}
	store := NewS3(client, "statements")
	location, err := store.Put(context.Background(), "/tenant-1/2025-03/statement.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "s3://statements/tenant-1/2025-03/statement.pdf", location)
	assert.Equal(t, "statements", aws.ToString(client.input.Bucket))
	assert.Equal(t, "tenant-1/2025-03/statement.pdf", aws.ToString(client.input.Key))
	assert.Equal(t, "application/pdf", aws.ToString(client.input.ContentType))
	assert.Equal(t, "%PDF", string(client.body))
}

func TestNewDefaultsToLocal(t *testing.T) {
	store, err := New(context.Background(), config.Config{StatementsDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)
}
