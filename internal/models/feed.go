package models

import "fmt"

type FeedFilter string

const (
	FilterAll       FeedFilter = "all"
	FilterStudy     FeedFilter = "study"
	FilterResource  FeedFilter = "resource"
	FilterQuestion  FeedFilter = "question"
	FilterEvent     FeedFilter = "event"
	FilterBookmarks FeedFilter = "bookmarks"
)

func ParseFeedFilter(s string) (FeedFilter, error) {
	switch f := FeedFilter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterStudy, FilterResource, FilterQuestion, FilterEvent, FilterBookmarks:
		return f, nil
	}
	return "", fmt.Errorf("unknown feed filter %q", s)
}

// PostType is the post type a filter narrows to. ok is false for all and bookmarks.
func (f FeedFilter) PostType() (PostType, bool) {
	switch f {
	case FilterStudy, FilterResource, FilterQuestion, FilterEvent:
		return PostType(f), true
	}
	return "", false
}
