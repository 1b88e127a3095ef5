package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stonefire/cloudsync/internal/syncerr"
)

const DefaultTimeout = 30 * time.Second

var (
	ErrInvalidKey     = errors.New("invalid key")
	ErrInvalidSession = errors.New("upload session parts out of order or incomplete")
)

type S3Backend struct {
	s3Client S3API
	config   *S3Config
}

func NewS3Backend(s3Client S3API, cfg *S3Config) *S3Backend {
	return &S3Backend{
		s3Client: s3Client,
		config:   cfg,
	}
}

// NewS3BackendWithConfig builds the AWS client from static configuration.
// Empty credentials fall back to the default AWS credential chain.
func NewS3BackendWithConfig(ctx context.Context, cfg *S3Config, timeout time.Duration) (*S3Backend, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: timeout,
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	awsClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewS3Backend(awsClient, cfg), nil
}

func (s *S3Backend) Bucket() string {
	return s.config.BucketName
}

// ===================================================================================================

// ListObjects returns the bucket inventory. Listings carry no user metadata,
// so StoredModifiedAt is always nil here; use HeadObject for that.
func (s *S3Backend) ListObjects(ctx context.Context) ([]*ObjectInfo, error) {
	var objects []*ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: &s.config.BucketName,
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, syncerr.Network("ListObjectsV2", "", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			objects = append(objects, &ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         obj.Size,
				ETag:         cleanETag(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

// HeadObject returns the object's size and stored modification time, or nil if it does not exist.
func (s *S3Backend) HeadObject(ctx context.Context, key string) (*ObjectInfo, error) {
	resp, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if isNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, syncerr.Network("HeadObject", key, err)
	}

	info := &ObjectInfo{
		Key:              key,
		Size:             resp.ContentLength,
		ETag:             cleanETag(resp.ETag),
		LastModified:     aws.ToTime(resp.LastModified),
		StoredModifiedAt: parseUnix(resp.Metadata[MetaModifiedAt]),
	}

	if info.StoredModifiedAt == nil {
		info.StoredModifiedAt = s.taggedModifiedAt(ctx, key)
	}

	return info, nil
}

func (s *S3Backend) taggedModifiedAt(ctx context.Context, key string) *int64 {
	resp, err := s.s3Client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if err != nil {
		slog.Debug("get object tagging", "key", key, "error", err)
		return nil
	}
	for _, tag := range resp.TagSet {
		if aws.ToString(tag.Key) == TagModifiedAt {
			return parseUnix(aws.ToString(tag.Value))
		}
	}
	return nil
}

// ===================================================================================================

func (s *S3Backend) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if !ValidateKey(params.Key) {
		return nil, ErrInvalidKey
	}

	resp, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.config.BucketName,
		Key:           &params.Key,
		Body:          params.Body,
		ContentLength: aws.Int64(params.Size),
		ContentType:   contentType(params.ContentType),
		Metadata:      modifiedAtMeta(params.ModifiedAt),
		Tagging:       modifiedAtTag(params.ModifiedAt),
	})
	if err != nil {
		return nil, syncerr.Network("PutObject", params.Key, err)
	}

	return &PutObjectResponse{
		Key:          params.Key,
		Size:         params.Size,
		Version:      aws.ToString(resp.VersionId),
		ETag:         cleanETag(resp.ETag),
		LastModified: time.Now().UTC(),
	}, nil
}

// ===================================================================================================

func (s *S3Backend) CreateMultipartUpload(ctx context.Context, params *CreateMultipartParams) (*UploadSession, error) {
	if !ValidateKey(params.Key) {
		return nil, ErrInvalidKey
	}

	result, err := s.s3Client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      &s.config.BucketName,
		Key:         &params.Key,
		ContentType: contentType(params.ContentType),
		Metadata:    modifiedAtMeta(params.ModifiedAt),
		Tagging:     modifiedAtTag(params.ModifiedAt),
	})
	if err != nil {
		return nil, syncerr.Network("CreateMultipartUpload", params.Key, err)
	}
	if aws.ToString(result.UploadId) == "" {
		return nil, syncerr.Protocol("CreateMultipartUpload", params.Key, errors.New("empty upload id"))
	}

	return &UploadSession{
		Key:      params.Key,
		UploadID: aws.ToString(result.UploadId),
	}, nil
}

// UploadPart uploads one chunk and records its receipt on the session.
func (s *S3Backend) UploadPart(ctx context.Context, session *UploadSession, partNumber int, body []byte) error {
	resp, err := s.s3Client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        &s.config.BucketName,
		Key:           &session.Key,
		UploadId:      &session.UploadID,
		PartNumber:    aws.Int32(int32(partNumber)),
		Body:          newBytesReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return syncerr.Network("UploadPart", session.Key, fmt.Errorf("part %d: %w", partNumber, err))
	}

	session.Parts = append(session.Parts, CompletedPart{
		PartNumber: partNumber,
		ETag:       aws.ToString(resp.ETag),
	})
	return nil
}

// CompleteMultipartUpload assembles the object. The session must hold exactly
// expectedParts receipts numbered 1..expectedParts in order; otherwise the
// store is not called and a protocol error is returned.
func (s *S3Backend) CompleteMultipartUpload(ctx context.Context, session *UploadSession, expectedParts int) (*PutObjectResponse, error) {
	if err := session.Validate(expectedParts); err != nil {
		return nil, syncerr.Protocol("CompleteMultipartUpload", session.Key, err)
	}

	completedParts := make([]types.CompletedPart, len(session.Parts))
	for i, part := range session.Parts {
		completedParts[i] = types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(int32(part.PartNumber)),
		}
	}

	res, err := s.s3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &s.config.BucketName,
		Key:      &session.Key,
		UploadId: &session.UploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	if err != nil {
		return nil, syncerr.Network("CompleteMultipartUpload", session.Key, err)
	}

	return &PutObjectResponse{
		Key:          session.Key,
		Version:      aws.ToString(res.VersionId),
		ETag:         cleanETag(res.ETag),
		LastModified: time.Now().UTC(),
	}, nil
}

// AbortMultipartUpload discards the uploaded parts. An upload that no longer exists is not an error.
func (s *S3Backend) AbortMultipartUpload(ctx context.Context, session *UploadSession) error {
	_, err := s.s3Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   &s.config.BucketName,
		Key:      &session.Key,
		UploadId: &session.UploadID,
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if errors.As(err, &noSuchUpload) {
			return nil
		}
		return syncerr.Network("AbortMultipartUpload", session.Key, err)
	}
	return nil
}

// Validate checks that the receipts are exactly parts 1..expected, in order, each with an ETag.
func (u *UploadSession) Validate(expected int) error {
	if len(u.Parts) != expected {
		return fmt.Errorf("%w: have %d parts, want %d", ErrInvalidSession, len(u.Parts), expected)
	}
	for i, part := range u.Parts {
		if part.PartNumber != i+1 {
			return fmt.Errorf("%w: position %d holds part %d", ErrInvalidSession, i+1, part.PartNumber)
		}
		if part.ETag == "" {
			return fmt.Errorf("%w: part %d has no etag", ErrInvalidSession, part.PartNumber)
		}
	}
	return nil
}

// ===================================================================================================

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

func parseUnix(v string) *int64 {
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func modifiedAtMeta(modifiedAt int64) map[string]string {
	return map[string]string{MetaModifiedAt: strconv.FormatInt(modifiedAt, 10)}
}

func modifiedAtTag(modifiedAt int64) *string {
	v := url.Values{}
	v.Set(TagModifiedAt, strconv.FormatInt(modifiedAt, 10))
	return aws.String(v.Encode())
}

func contentType(ct string) *string {
	if ct == "" {
		return nil
	}
	return aws.String(ct)
}

func cleanETag(etag *string) string {
	return strings.ReplaceAll(aws.ToString(etag), "\"", "")
}

var _ Store = (*S3Backend)(nil)
