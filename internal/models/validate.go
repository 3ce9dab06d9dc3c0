package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterStructValidation(postShape, Post{})
	})
	return validate
}

// postShape enforces the original/repost union and the post type enum.
func postShape(sl validator.StructLevel) {
	p := sl.Current().Interface().(Post)

	if !p.PostType.Valid() {
		sl.ReportError(p.PostType, "postType", "PostType", "posttype", string(p.PostType))
	}
	if strings.TrimSpace(p.Content) == "" {
		sl.ReportError(p.Content, "content", "Content", "notblank", "")
	}

	switch p.Kind() {
	case KindOriginal:
		if p.OriginalAuthor != nil {
			sl.ReportError(p.OriginalAuthor, "originalAuthor", "OriginalAuthor", "original_only", "")
		}
		if p.OriginalTimestamp != nil {
			sl.ReportError(p.OriginalTimestamp, "originalTimestamp", "OriginalTimestamp", "original_only", "")
		}
	case KindRepost:
		if p.OriginalPostID == p.ID {
			sl.ReportError(p.OriginalPostID, "originalPostId", "OriginalPostID", "self_reference", "")
		}
		if p.OriginalAuthor == nil || p.OriginalAuthor.ID == "" {
			sl.ReportError(p.OriginalAuthor, "originalAuthor", "OriginalAuthor", "repost_required", "")
		}
		if p.OriginalTimestamp == nil {
			sl.ReportError(p.OriginalTimestamp, "originalTimestamp", "OriginalTimestamp", "repost_required", "")
		}
	}
}

// ValidatePost checks a post document against the schema. It is applied to
// documents on their way into and out of the store.
func ValidatePost(p *Post) error {
	if p == nil {
		return errors.New("post is nil")
	}
	return describe(validatorInstance().Struct(p))
}

func ValidateEvent(e *Event) error {
	return describe(validatorInstance().Struct(e))
}

func ValidateProfile(p *Profile) error {
	return describe(validatorInstance().Struct(p))
}

func describe(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}
