// Package blobtest provides an in-memory S3 implementation for tests.
package blobtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type Object struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
	Tags        map[string]string
}

type pendingUpload struct {
	key         string
	contentType string
	metadata    map[string]string
	tags        map[string]string
	parts       map[int32][]byte
}

// MemoryS3 is a single-bucket, in-memory stand-in for the S3 client.
type MemoryS3 struct {
	mu      sync.Mutex
	objects map[string]*Object
	uploads map[string]*pendingUpload
	nextID  int

	// PageSize bounds ListObjectsV2 pages. Defaults to 1000.
	PageSize int
	// FailUploadPart makes UploadPart fail for this part number.
	FailUploadPart int32

	Calls map[string]int
}

func NewMemoryS3() *MemoryS3 {
	return &MemoryS3{
		objects: make(map[string]*Object),
		uploads: make(map[string]*pendingUpload),
		Calls:   make(map[string]int),
	}
}

// Seed places an object directly, bypassing call accounting.
func (m *MemoryS3) Seed(key string, obj *Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = obj
}

func (m *MemoryS3) Object(key string) (*Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

func (m *MemoryS3) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[op]
}

func (m *MemoryS3) PendingUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

func (m *MemoryS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["PutObject"]++

	m.objects[aws.ToString(params.Key)] = &Object{
		Data:        data,
		ContentType: aws.ToString(params.ContentType),
		Metadata:    maps.Clone(params.Metadata),
		Tags:        parseTags(params.Tagging),
	}
	return &s3.PutObjectOutput{ETag: aws.String(fmt.Sprintf("\"%x\"", len(data)))}, nil
}

func (m *MemoryS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["HeadObject"]++

	obj, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("not found")}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.Data))),
		ContentType:   aws.String(obj.ContentType),
		Metadata:      maps.Clone(obj.Metadata),
		LastModified:  aws.Time(time.Now()),
	}, nil
}

func (m *MemoryS3) GetObjectTagging(ctx context.Context, params *s3.GetObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["GetObjectTagging"]++

	obj, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	out := &s3.GetObjectTaggingOutput{}
	for _, k := range slices.Sorted(maps.Keys(obj.Tags)) {
		out.TagSet = append(out.TagSet, types.Tag{Key: aws.String(k), Value: aws.String(obj.Tags[k])})
	}
	return out, nil
}

func (m *MemoryS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["ListObjectsV2"]++

	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	keys := slices.Sorted(maps.Keys(m.objects))
	start := 0
	if tok := aws.ToString(params.ContinuationToken); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, errors.New("bad continuation token")
		}
		start = n
	}
	end := min(start+pageSize, len(keys))

	out := &s3.ListObjectsV2Output{KeyCount: aws.Int32(int32(end - start))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(m.objects[k].Data))),
			ETag: aws.String("\"etag\""),
		})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	} else {
		out.IsTruncated = aws.Bool(false)
	}
	return out, nil
}

func (m *MemoryS3) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["CreateMultipartUpload"]++

	m.nextID++
	id := fmt.Sprintf("upload-%d", m.nextID)
	m.uploads[id] = &pendingUpload{
		key:         aws.ToString(params.Key),
		contentType: aws.ToString(params.ContentType),
		metadata:    maps.Clone(params.Metadata),
		tags:        parseTags(params.Tagging),
		parts:       make(map[int32][]byte),
	}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id), Key: params.Key}, nil
}

func (m *MemoryS3) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["UploadPart"]++

	part := aws.ToInt32(params.PartNumber)
	if m.FailUploadPart != 0 && part == m.FailUploadPart {
		return nil, errors.New("injected upload failure")
	}

	up, ok := m.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	up.parts[part] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("\"etag-%d\"", part))}, nil
}

func (m *MemoryS3) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["CompleteMultipartUpload"]++

	id := aws.ToString(params.UploadId)
	up, ok := m.uploads[id]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}

	var data []byte
	for _, p := range params.MultipartUpload.Parts {
		chunk, ok := up.parts[aws.ToInt32(p.PartNumber)]
		if !ok {
			return nil, fmt.Errorf("part %d was never uploaded", aws.ToInt32(p.PartNumber))
		}
		data = append(data, chunk...)
	}

	m.objects[up.key] = &Object{
		Data:        data,
		ContentType: up.contentType,
		Metadata:    up.metadata,
		Tags:        up.tags,
	}
	delete(m.uploads, id)
	return &s3.CompleteMultipartUploadOutput{Key: aws.String(up.key), ETag: aws.String("\"multipart\"")}, nil
}

func (m *MemoryS3) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["AbortMultipartUpload"]++

	id := aws.ToString(params.UploadId)
	if _, ok := m.uploads[id]; !ok {
		return nil, &types.NoSuchUpload{}
	}
	delete(m.uploads, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func parseTags(tagging *string) map[string]string {
	tags := make(map[string]string)
	values, err := url.ParseQuery(aws.ToString(tagging))
	if err != nil {
		return tags
	}
	for k := range values {
		tags[k] = values.Get(k)
	}
	return tags
}
