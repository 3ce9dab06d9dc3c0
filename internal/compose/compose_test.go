package compose

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"thoth/internal/database"
	"thoth/internal/models"
	"thoth/internal/posts"
	"thoth/internal/storage"
	"thoth/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ana = models.Identity{UID: "u-ana", Name: "Ana"}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]string
	failOn  string
}

func (f *fakeUploader) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if f.failOn != "" && strings.HasSuffix(path, f.failOn) {
		return "", errors.New("bucket unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[path] = string(data)
	return "https://cdn.example/" + path, nil
}

func TestProblems(t *testing.T) {
	d := NewDraft(NewPreviews())
	assert.Equal(t, []Problem{{Field: "content", Message: "write something first"}}, d.Problems())

	d.Content = strings.Repeat("é", MaxContentLength)
	assert.Empty(t, d.Problems(), "the limit counts characters, not bytes")

	d.Content += "!"
	d.Tags = []string{"1", "2", "3", "4", "5", "6"}
	d.ExternalLink = "javascript:alert(1)"
	fields := []string{}
	for _, p := range d.Problems() {
		fields = append(fields, p.Field)
	}
	assert.Equal(t, []string{"content", "tags", "externalLink"}, fields)
}

func TestStagingManagesPreviewHandles(t *testing.T) {
	previews := NewPreviews()
	d := NewDraft(previews)

	h1, err := d.StageImage("a.png", "image/png", []byte("a"))
	require.NoError(t, err)
	h2, err := d.StageImage("b.png", "image/png", []byte("b"))
	require.NoError(t, err)
	f1 := d.StageFile("notes.pdf", "application/pdf", []byte("pdf"))
	assert.Equal(t, 3, previews.Live())

	staged, ok := previews.Open(h2)
	require.True(t, ok)
	assert.Equal(t, "b.png", staged.Name)

	f2 := d.StageFile("notes-v2.pdf", "application/pdf", []byte("pdf2"))
	_, ok = previews.Open(f1)
	assert.False(t, ok, "replaced file handle is revoked")
	assert.Equal(t, 3, previews.Live())

	require.NoError(t, d.Unstage(h1))
	assert.Len(t, d.Images(), 1)
	assert.True(t, utils.IsErrorCode(d.Unstage(h1), utils.ErrNotFound))

	_, err = d.StageImage("doc.pdf", "application/pdf", nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	d.Release()
	assert.Equal(t, 0, previews.Live())
	_, ok = previews.Open(f2)
	assert.False(t, ok)
}

func TestStageImageLimit(t *testing.T) {
	d := NewDraft(NewPreviews())
	for i := 0; i < MaxImages; i++ {
		_, err := d.StageImage("x.png", "image/png", nil)
		require.NoError(t, err)
	}
	_, err := d.StageImage("x.png", "image/png", nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestPublishUploadsAndCreatesPost(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	up := &fakeUploader{}
	previews := NewPreviews()
	pub := NewPublisher(up, posts.NewService(store, nil, nil))

	d := NewDraft(previews)
	d.Content = "Lecture notes"
	d.Tags = []string{"calc"}
	d.PostType = models.PostTypeResource
	_, err := d.StageImage("one.png", "image/png", []byte("1"))
	require.NoError(t, err)
	_, err = d.StageImage("two.png", "image/png", []byte("2"))
	require.NoError(t, err)
	d.StageFile("notes.pdf", "application/pdf", []byte("pdf"))

	post, err := pub.Publish(ctx, ana, d)
	require.NoError(t, err)

	require.Len(t, post.Images, 2)
	assert.True(t, strings.HasSuffix(post.Images[0], "/one.png"))
	assert.True(t, strings.HasSuffix(post.Images[1], "/two.png"))
	require.NotNil(t, post.AttachmentFile)
	assert.Equal(t, "notes.pdf", post.AttachmentFile.Name)
	assert.Equal(t, int64(3), post.AttachmentFile.Size)
	assert.Len(t, up.objects, 3)

	stored, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostTypeResource, stored.PostType)

	assert.Equal(t, 0, previews.Live(), "publishing releases previews")
	assert.Empty(t, d.Content)
}

func TestPublishAcceptsAwkwardFileNames(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	up, err := storage.NewLocalUploader(t.TempDir(), "http://files.test/uploads")
	require.NoError(t, err)
	pub := NewPublisher(up, posts.NewService(store, nil, nil))

	d := NewDraft(NewPreviews())
	d.Content = "scans"
	_, err = d.StageImage("100%.png", "image/png", []byte("1"))
	require.NoError(t, err)
	_, err = d.StageImage("a#b.png", "image/png", []byte("2"))
	require.NoError(t, err)

	post, err := pub.Publish(ctx, ana, d)
	require.NoError(t, err)
	require.Len(t, post.Images, 2)
	assert.True(t, strings.HasSuffix(post.Images[0], "/100%25.png"))
	assert.True(t, strings.HasSuffix(post.Images[1], "/a%23b.png"))
}

func TestPublishFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	previews := NewPreviews()
	pub := NewPublisher(&fakeUploader{failOn: "two.png"}, posts.NewService(store, nil, nil))

	d := NewDraft(previews)
	d.Content = "with pictures"
	_, _ = d.StageImage("one.png", "image/png", []byte("1"))
	_, _ = d.StageImage("two.png", "image/png", []byte("2"))

	_, err := pub.Publish(ctx, ana, d)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUpstream))
	assert.Equal(t, 2, previews.Live())
	assert.Equal(t, "with pictures", d.Content)

	n, _ := store.CountPosts(ctx)
	assert.Zero(t, n)
}

func TestPublishRefusesDraftWithProblems(t *testing.T) {
	up := &fakeUploader{}
	pub := NewPublisher(up, posts.NewService(database.NewMemoryStore(), nil, nil))
	d := NewDraft(NewPreviews())
	d.Content = strings.Repeat("x", MaxContentLength+1)
	_, _ = d.StageImage("one.png", "image/png", []byte("1"))

	_, err := pub.Publish(context.Background(), ana, d)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
	assert.Empty(t, up.objects, "nothing is uploaded")
}
