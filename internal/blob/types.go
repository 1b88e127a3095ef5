package blob

import (
	"context"
	"io"
	"time"
)

const (
	// MetaModifiedAt is the user metadata key holding the source modification time (unix seconds).
	MetaModifiedAt = "ext-mod-date"
	// TagModifiedAt carries the same value as an object tag, the form older uploads used.
	TagModifiedAt = "ext_mod_date"
)

// Store is what the sync pass needs from the destination.
type Store interface {
	ListObjects(ctx context.Context) ([]*ObjectInfo, error)
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)
	PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error)
	CreateMultipartUpload(ctx context.Context, params *CreateMultipartParams) (*UploadSession, error)
	UploadPart(ctx context.Context, session *UploadSession, partNumber int, body []byte) error
	CompleteMultipartUpload(ctx context.Context, session *UploadSession, expectedParts int) (*PutObjectResponse, error)
	AbortMultipartUpload(ctx context.Context, session *UploadSession) error
}

// ObjectInfo describes an object already in the bucket.
// Size and StoredModifiedAt are nil when the listing or metadata did not carry them.
type ObjectInfo struct {
	Key              string
	Size             *int64
	ETag             string
	LastModified     time.Time
	StoredModifiedAt *int64
}

type PutObjectParams struct {
	Key         string
	Size        int64
	ModifiedAt  int64
	ContentType string
	Body        io.Reader
}

type PutObjectResponse struct {
	Key          string
	Version      string
	ETag         string
	Size         int64
	LastModified time.Time
}

type CreateMultipartParams struct {
	Key         string
	ModifiedAt  int64
	ContentType string
}

// CompletedPart is the receipt for one uploaded chunk.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// UploadSession tracks an in-progress multipart upload.
type UploadSession struct {
	Key      string
	UploadID string
	Parts    []CompletedPart
}
