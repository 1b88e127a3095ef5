package blob

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stonefire/cloudsync/internal/blob/blobtest"
	"github.com/stonefire/cloudsync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ S3API = (*blobtest.MemoryS3)(nil)

func newTestBackend() (*S3Backend, *blobtest.MemoryS3) {
	mem := blobtest.NewMemoryS3()
	return NewS3Backend(mem, &S3Config{BucketName: "bucket", Region: "eu-north-1"}), mem
}

func TestS3Config_Validate(t *testing.T) {
	assert.Error(t, (&S3Config{Region: "x"}).Validate())
	assert.Error(t, (&S3Config{BucketName: "b"}).Validate())
	assert.Error(t, (&S3Config{BucketName: "b", Region: "r", AccessKey: "a"}).Validate())
	assert.NoError(t, (&S3Config{BucketName: "b", Region: "r"}).Validate())
	assert.NoError(t, (&S3Config{BucketName: "b", Region: "r", AccessKey: "a", SecretKey: "s"}).Validate())
}

func TestValidateKey(t *testing.T) {
	assert.True(t, ValidateKey("Docs/report.pdf"))
	assert.True(t, ValidateKey("a..b.txt"))
	assert.False(t, ValidateKey(""))
	assert.False(t, ValidateKey("/abs/path"))
	assert.False(t, ValidateKey("Docs/../etc"))
	assert.False(t, ValidateKey(`win\path`))
	assert.False(t, ValidateKey("."))
	assert.False(t, ValidateKey("a/./b"))
	assert.False(t, ValidateKey("./a"))
	assert.False(t, ValidateKey("a/."))
	assert.False(t, ValidateKey("a/.."))
	assert.True(t, ValidateKey(".hidden/.config"))
	assert.True(t, ValidateKey("a/.../b"))
}

func TestS3Backend_PutThenHead(t *testing.T) {
	b, mem := newTestBackend()
	ctx := context.Background()

	_, err := b.PutObject(ctx, &PutObjectParams{
		Key:         "Docs/a.txt",
		Size:        5,
		ModifiedAt:  1700000000,
		ContentType: "text/plain",
		Body:        bytes.NewReader([]byte("hello")),
	})
	require.NoError(t, err)

	obj, ok := mem.Object("Docs/a.txt")
	require.True(t, ok)
	assert.Equal(t, "text/plain", obj.ContentType)
	assert.Equal(t, "1700000000", obj.Metadata[MetaModifiedAt])
	assert.Equal(t, "1700000000", obj.Tags[TagModifiedAt])

	info, err := b.HeadObject(ctx, "Docs/a.txt")
	require.NoError(t, err)
	require.NotNil(t, info)
	require.NotNil(t, info.Size)
	assert.Equal(t, int64(5), *info.Size)
	require.NotNil(t, info.StoredModifiedAt)
	assert.Equal(t, int64(1700000000), *info.StoredModifiedAt)
	assert.Zero(t, mem.CallCount("GetObjectTagging"))
}

func TestS3Backend_HeadMissing(t *testing.T) {
	b, _ := newTestBackend()

	info, err := b.HeadObject(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestS3Backend_HeadFallsBackToTags(t *testing.T) {
	b, mem := newTestBackend()
	mem.Seed("old.txt", &blobtest.Object{Data: []byte("x"), Tags: map[string]string{TagModifiedAt: "1600000000"}})
	mem.Seed("legacy.txt", &blobtest.Object{Data: []byte("x"), Tags: map[string]string{TagModifiedAt: "2025-05-02"}})

	info, err := b.HeadObject(context.Background(), "old.txt")
	require.NoError(t, err)
	require.NotNil(t, info.StoredModifiedAt)
	assert.Equal(t, int64(1600000000), *info.StoredModifiedAt)

	info, err = b.HeadObject(context.Background(), "legacy.txt")
	require.NoError(t, err)
	assert.Nil(t, info.StoredModifiedAt, "non-numeric stamps are treated as absent")
}

func TestS3Backend_ListObjectsPaginates(t *testing.T) {
	b, mem := newTestBackend()
	mem.PageSize = 2
	for i := range 5 {
		mem.Seed(fmt.Sprintf("k%d", i), &blobtest.Object{Data: make([]byte, i)})
	}

	objects, err := b.ListObjects(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 5)
	assert.Equal(t, "k3", objects[3].Key)
	require.NotNil(t, objects[3].Size)
	assert.Equal(t, int64(3), *objects[3].Size)
	assert.Nil(t, objects[3].StoredModifiedAt)
	assert.Equal(t, 3, mem.CallCount("ListObjectsV2"))
}

func TestS3Backend_MultipartRoundTrip(t *testing.T) {
	b, mem := newTestBackend()
	ctx := context.Background()

	session, err := b.CreateMultipartUpload(ctx, &CreateMultipartParams{Key: "big.bin", ModifiedAt: 42, ContentType: "application/octet-stream"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.UploadID)

	require.NoError(t, b.UploadPart(ctx, session, 1, []byte("abc")))
	require.NoError(t, b.UploadPart(ctx, session, 2, []byte("de")))

	_, err = b.CompleteMultipartUpload(ctx, session, 2)
	require.NoError(t, err)

	obj, ok := mem.Object("big.bin")
	require.True(t, ok)
	assert.Equal(t, "abcde", string(obj.Data))
	assert.Equal(t, "42", obj.Metadata[MetaModifiedAt])
	assert.Zero(t, mem.PendingUploads())
}

func TestS3Backend_CompleteRejectsBadSessionsWithoutCallingStore(t *testing.T) {
	tests := []struct {
		name     string
		parts    []CompletedPart
		expected int
	}{
		{"out of order", []CompletedPart{{2, "b"}, {1, "a"}}, 2},
		{"gap", []CompletedPart{{1, "a"}, {3, "c"}}, 2},
		{"missing", []CompletedPart{{1, "a"}}, 2},
		{"duplicate", []CompletedPart{{1, "a"}, {1, "a"}}, 2},
		{"no etag", []CompletedPart{{1, "a"}, {2, ""}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, mem := newTestBackend()
			session := &UploadSession{Key: "k", UploadID: "u", Parts: tt.parts}

			_, err := b.CompleteMultipartUpload(context.Background(), session, tt.expected)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSession)
			assert.True(t, syncerr.Is(err, syncerr.KindProtocol))
			assert.Zero(t, mem.CallCount("CompleteMultipartUpload"))
		})
	}
}

func TestS3Backend_AbortIgnoresMissingUpload(t *testing.T) {
	b, mem := newTestBackend()
	ctx := context.Background()

	session, err := b.CreateMultipartUpload(ctx, &CreateMultipartParams{Key: "k"})
	require.NoError(t, err)
	require.NoError(t, b.UploadPart(ctx, session, 1, []byte("x")))

	require.NoError(t, b.AbortMultipartUpload(ctx, session))
	assert.Zero(t, mem.PendingUploads())
	require.NoError(t, b.AbortMultipartUpload(ctx, session))
}

func TestS3Backend_UploadPartFailureIsNetwork(t *testing.T) {
	b, mem := newTestBackend()
	mem.FailUploadPart = 1
	ctx := context.Background()

	session, err := b.CreateMultipartUpload(ctx, &CreateMultipartParams{Key: "k"})
	require.NoError(t, err)

	err = b.UploadPart(ctx, session, 1, []byte("x"))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindNetwork))
	assert.Empty(t, session.Parts)
}
