package transfer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stonefire/cloudsync/internal/blob"
	"github.com/stonefire/cloudsync/internal/blob/blobtest"
	"github.com/stonefire/cloudsync/internal/chunk"
	"github.com/stonefire/cloudsync/internal/delta"
	"github.com/stonefire/cloudsync/internal/reconcile"
	"github.com/stonefire/cloudsync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	files    map[string][]byte
	locators int
	// truncate shortens every read by one byte
	truncate bool
	onRead   func()
}

func (f *fakeSource) DownloadLocator(ctx context.Context, token, itemID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == "" {
		return "", fmt.Errorf("no token")
	}
	f.locators++
	return fmt.Sprintf("%s#%d", itemID, f.locators), nil
}

func (f *fakeSource) content(locator string) []byte {
	for id, data := range f.files {
		if len(locator) > len(id) && locator[:len(id)] == id && locator[len(id)] == '#' {
			return data
		}
	}
	return nil
}

func (f *fakeSource) ReadRange(ctx context.Context, locator string, r chunk.Range) ([]byte, error) {
	if f.onRead != nil {
		f.onRead()
	}
	data := f.content(locator)[r.From : r.To+1]
	if f.truncate {
		data = data[:len(data)-1]
	}
	return data, nil
}

func (f *fakeSource) ReadAll(ctx context.Context, locator string) ([]byte, error) {
	data := f.content(locator)
	if f.truncate && len(data) > 0 {
		data = data[:len(data)-1]
	}
	return data, nil
}

type countingTokens struct {
	calls int
}

func (c *countingTokens) AccessToken(ctx context.Context) (string, error) {
	c.calls++
	return "tok", nil
}

func setup(t *testing.T, files map[string][]byte, opts *Options) (*Engine, *fakeSource, *blobtest.MemoryS3) {
	t.Helper()
	src := &fakeSource{files: files}
	mem := blobtest.NewMemoryS3()
	store := blob.NewS3Backend(mem, &blob.S3Config{BucketName: "b", Region: "r"})
	return NewEngine(src, store, opts), src, mem
}

func rec(id, path string, size int64) delta.ChangeRecord {
	return delta.ChangeRecord{ID: id, Path: path, Size: size, ModifiedAt: time.Unix(1700000000, 0), IsFile: true}
}

func TestTransfer_SingleShot(t *testing.T) {
	e, _, mem := setup(t, map[string][]byte{"id1": []byte("%PDF-1.4 hello")}, &Options{ChunkSize: 100})

	res, err := e.Transfer(context.Background(), &countingTokens{}, rec("id1", "Docs/a.pdf", 14))
	require.NoError(t, err)
	assert.Equal(t, reconcile.SingleShot, res.Strategy)
	assert.Equal(t, 1, res.Parts)

	obj, ok := mem.Object("Docs/a.pdf")
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.4 hello", string(obj.Data))
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, "1700000000", obj.Metadata[blob.MetaModifiedAt])
	assert.Zero(t, mem.CallCount("CreateMultipartUpload"))
}

func TestTransfer_SingleShotIntegrity(t *testing.T) {
	e, src, mem := setup(t, map[string][]byte{"id1": []byte("hello")}, &Options{ChunkSize: 100})
	src.truncate = true

	_, err := e.Transfer(context.Background(), &countingTokens{}, rec("id1", "a.txt", 5))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindIntegrity))
	_, ok := mem.Object("a.txt")
	assert.False(t, ok)
}

func TestTransfer_Multipart(t *testing.T) {
	content := []byte("0123456789abcdefghijKLMNO")
	e, src, mem := setup(t, map[string][]byte{"id1": content}, &Options{ChunkSize: 10, VerifySize: true})
	tokens := &countingTokens{}

	r := rec("id1", "big.bin", int64(len(content)))
	r.ContentType = "application/zip"
	res, err := e.Transfer(context.Background(), tokens, r)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Multipart, res.Strategy)
	assert.Equal(t, 3, res.Parts)

	obj, ok := mem.Object("big.bin")
	require.True(t, ok)
	assert.Equal(t, content, obj.Data)
	assert.Equal(t, "application/zip", obj.ContentType)
	assert.Equal(t, "1700000000", obj.Tags[blob.TagModifiedAt])

	assert.Equal(t, 3, tokens.calls, "token checked before every chunk")
	assert.Equal(t, 1, src.locators)
	assert.Equal(t, 3, mem.CallCount("UploadPart"))
	assert.Equal(t, 1, mem.CallCount("CompleteMultipartUpload"))
	assert.Equal(t, 1, mem.CallCount("HeadObject"))
}

func TestTransfer_MultipartRefreshesStaleLocator(t *testing.T) {
	content := make([]byte, 30)
	e, src, _ := setup(t, map[string][]byte{"id1": content}, &Options{ChunkSize: 10, LocatorMaxAge: time.Minute})

	clock := time.Unix(0, 0)
	e.now = func() time.Time { return clock }
	src.onRead = func() { clock = clock.Add(2 * time.Minute) }

	_, err := e.Transfer(context.Background(), &countingTokens{}, rec("id1", "big.bin", 30))
	require.NoError(t, err)
	assert.Equal(t, 3, src.locators, "a fresh locator for every chunk once the old one aged out")
}

func TestTransfer_MultipartIntegrityAborts(t *testing.T) {
	e, src, mem := setup(t, map[string][]byte{"id1": make([]byte, 25)}, &Options{ChunkSize: 10})
	src.truncate = true

	_, err := e.Transfer(context.Background(), &countingTokens{}, rec("id1", "big.bin", 25))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindIntegrity))
	assert.Equal(t, 1, mem.CallCount("AbortMultipartUpload"))
	assert.Zero(t, mem.PendingUploads())
	assert.Zero(t, mem.CallCount("CompleteMultipartUpload"))
	_, ok := mem.Object("big.bin")
	assert.False(t, ok)
}

func TestTransfer_UploadPartFailureAborts(t *testing.T) {
	e, _, mem := setup(t, map[string][]byte{"id1": make([]byte, 25)}, &Options{ChunkSize: 10})
	mem.FailUploadPart = 2

	_, err := e.Transfer(context.Background(), &countingTokens{}, rec("id1", "big.bin", 25))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindNetwork))
	assert.Equal(t, 2, mem.CallCount("UploadPart"), "part 3 never attempted")
	assert.Zero(t, mem.PendingUploads())
}

func TestTransfer_CapacityCheckedBeforeNetwork(t *testing.T) {
	e, src, mem := setup(t, map[string][]byte{"id1": make([]byte, 31)}, &Options{ChunkSize: 10, MaxParts: 3})
	tokens := &countingTokens{}

	_, err := e.Transfer(context.Background(), tokens, rec("id1", "big.bin", 31))
	require.Error(t, err)
	assert.ErrorIs(t, err, chunk.ErrTooManyParts)
	assert.Zero(t, mem.CallCount("CreateMultipartUpload"))
	assert.Zero(t, src.locators)
	assert.Zero(t, tokens.calls)
}

func TestContentTypeByName(t *testing.T) {
	assert.Equal(t, "image/jpeg", contentTypeByName(delta.ChangeRecord{Path: "a/b.jpg"}))
	assert.Equal(t, defaultContentType, contentTypeByName(delta.ChangeRecord{Path: "a/b.unknownext"}))
	assert.Equal(t, "x/y", contentTypeByName(delta.ChangeRecord{Path: "a/b.jpg", ContentType: "x/y"}))
}
