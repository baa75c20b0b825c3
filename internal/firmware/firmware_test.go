package firmware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/specialistvlad/devmgr/internal/resource"
	"github.com/specialistvlad/devmgr/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, *in.Bucket, *in.Key)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func TestDirLoader(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(second, "nic"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(second, "nic", "fw.bin"), []byte{1, 2, 3}, 0o644))

	l := NewDirLoader(resource.NewSupplier(), first, second)
	blob, err := l.Load(context.Background(), "e1000", "nic/fw.bin")
	require.NoError(t, err)
	assert.Equal(t, 3, blob.Size())
	assert.True(t, blob.Handle.Valid())
	assert.Equal(t, filepath.Join(second, "nic", "fw.bin"), blob.Source)

	_, err = l.Load(context.Background(), "e1000", "missing.bin")
	assert.True(t, errors.Is(err, status.ErrNotFound))

	_, err = l.Load(context.Background(), "e1000", "../etc/passwd")
	assert.True(t, errors.Is(err, status.ErrInvalidArgs))
}

func TestS3Loader(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3)
	client.On("GetObject", mock.Anything, "fw", "boards/a.bin").
		Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("blob")))}, nil)
	client.On("GetObject", mock.Anything, "fw", "boards/none.bin").
		Return(nil, &s3types.NoSuchKey{})
	client.On("GetObject", mock.Anything, "fw", "boards/denied.bin").
		Return(nil, errors.New("access denied"))

	l := NewS3LoaderWithClient(client, resource.NewSupplier(), S3Config{Bucket: "fw", Prefix: "boards"})

	blob, err := l.Load(ctx, "gpu", "a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), blob.Data)
	assert.Equal(t, "s3://fw/boards/a.bin", blob.Source)

	_, err = l.Load(ctx, "gpu", "none.bin")
	assert.True(t, errors.Is(err, status.ErrNotFound))

	_, err = l.Load(ctx, "gpu", "denied.bin")
	require.Error(t, err)
	assert.False(t, errors.Is(err, status.ErrNotFound))
	client.AssertExpectations(t)
}

func TestChain(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte{9}, 0o644))
	supplier := resource.NewSupplier()
	client := new(mockS3)
	client.On("GetObject", mock.Anything, "fw", "a.bin").
		Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte{7}))}, nil)
	client.On("GetObject", mock.Anything, "fw", "c.bin").Return(nil, &s3types.NoSuchKey{})

	chain := Chain{NewDirLoader(supplier, dir), NewS3LoaderWithClient(client, supplier, S3Config{Bucket: "fw"})}

	blob, err := chain.Load(context.Background(), "d", "b.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, blob.Data)

	blob, err = chain.Load(context.Background(), "d", "a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, blob.Data)

	_, err = chain.Load(context.Background(), "d", "c.bin")
	assert.True(t, errors.Is(err, status.ErrNotFound))
}
