// Package compose backs the post composer: drafts, staged attachments with
// preview handles, and publishing.
package compose

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"thoth/internal/models"
	"thoth/internal/utils"

	"github.com/google/uuid"
)

// Composer limits. The store does not enforce them.
const (
	MaxContentLength = 2000
	MaxTags          = 5
	MaxImages        = 4
)

// Previews hands out preview handles for staged bytes, the server-side
// counterpart of browser object URLs. Handles must be revoked.
type Previews struct {
	mu      sync.Mutex
	handles map[string]*Staged
}

func NewPreviews() *Previews {
	return &Previews{handles: make(map[string]*Staged)}
}

func (p *Previews) create(s *Staged) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := "preview:" + uuid.NewString()
	p.handles[h] = s
	return h
}

// Open returns the staged item behind a live handle.
func (p *Previews) Open(handle string) (*Staged, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.handles[handle]
	return s, ok
}

func (p *Previews) revoke(handle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handles, handle)
}

// Live counts handles not yet revoked.
func (p *Previews) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Staged is an attachment held locally until publish.
type Staged struct {
	Handle      string
	Name        string
	ContentType string
	Data        []byte
}

// Problem is a composer rule the draft breaks.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Draft struct {
	Content      string
	Tags         []string
	PostType     models.PostType
	ExternalLink string

	previews *Previews
	images   []*Staged
	file     *Staged
}

func NewDraft(previews *Previews) *Draft {
	return &Draft{previews: previews, PostType: models.PostTypeGeneral}
}

// StageImage holds an image for upload and returns its preview handle.
func (d *Draft) StageImage(name, contentType string, data []byte) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", utils.NewAppError(utils.ErrInvalidInput, "not an image: "+contentType, nil)
	}
	if len(d.images) >= MaxImages {
		return "", utils.NewAppError(utils.ErrInvalidInput, fmt.Sprintf("at most %d images", MaxImages), nil)
	}
	s := &Staged{Name: name, ContentType: contentType, Data: data}
	s.Handle = d.previews.create(s)
	d.images = append(d.images, s)
	return s.Handle, nil
}

// StageFile holds the single file attachment, replacing any earlier one.
func (d *Draft) StageFile(name, contentType string, data []byte) string {
	if d.file != nil {
		d.previews.revoke(d.file.Handle)
	}
	s := &Staged{Name: name, ContentType: contentType, Data: data}
	s.Handle = d.previews.create(s)
	d.file = s
	return s.Handle
}

// Unstage drops a staged image or the file and revokes its handle.
func (d *Draft) Unstage(handle string) error {
	for i, s := range d.images {
		if s.Handle == handle {
			d.previews.revoke(handle)
			d.images = append(d.images[:i], d.images[i+1:]...)
			return nil
		}
	}
	if d.file != nil && d.file.Handle == handle {
		d.previews.revoke(handle)
		d.file = nil
		return nil
	}
	return utils.NewNotFoundError("staged attachment", handle)
}

func (d *Draft) Images() []*Staged {
	return append([]*Staged(nil), d.images...)
}

func (d *Draft) File() *Staged {
	return d.file
}

// Release revokes every handle and empties the draft.
func (d *Draft) Release() {
	for _, s := range d.images {
		d.previews.revoke(s.Handle)
	}
	if d.file != nil {
		d.previews.revoke(d.file.Handle)
	}
	d.images, d.file = nil, nil
	d.Content, d.Tags, d.ExternalLink = "", nil, ""
	d.PostType = models.PostTypeGeneral
}

// Problems lists the composer rules the draft breaks.
func (d *Draft) Problems() []Problem {
	var out []Problem
	if strings.TrimSpace(d.Content) == "" {
		out = append(out, Problem{Field: "content", Message: "write something first"})
	}
	if n := utf8.RuneCountInString(d.Content); n > MaxContentLength {
		out = append(out, Problem{Field: "content", Message: fmt.Sprintf("%d characters over the limit", n-MaxContentLength)})
	}
	if len(d.Tags) > MaxTags {
		out = append(out, Problem{Field: "tags", Message: fmt.Sprintf("at most %d tags", MaxTags)})
	}
	if d.ExternalLink != "" {
		u, err := url.ParseRequestURI(d.ExternalLink)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			out = append(out, Problem{Field: "externalLink", Message: "not a web address"})
		}
	}
	if d.PostType != "" && !d.PostType.Valid() {
		out = append(out, Problem{Field: "postType", Message: "unknown post type"})
	}
	return out
}
