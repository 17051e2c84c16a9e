package models

import "time"

// PageSize is the fixed number of items the remote listing returns per page.
const PageSize = 5

// MediaKind distinguishes images from videos.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Account is a search match for an official account. FakeID is the
// opaque handle the listing endpoint expects.
type Account struct {
	Name      string `json:"name"`
	FakeID    string `json:"fakeid"`
	Alias     string `json:"alias,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// ItemStub is one entry of a listing page.
type ItemStub struct {
	RemoteID     string `json:"remote_id"`
	Title        string `json:"title"`
	CanonicalURL string `json:"url"`
	UpdateEpoch  int64  `json:"update_time"`
	CreateEpoch  int64  `json:"create_time,omitempty"`
	Digest       string `json:"digest,omitempty"`
	Cover        string `json:"cover,omitempty"`
}

// UpdateTime returns the stub's update timestamp as a time.Time.
func (s ItemStub) UpdateTime() time.Time {
	return time.Unix(s.UpdateEpoch, 0)
}

// RawContent is the unprocessed body of one article page.
type RawContent struct {
	URL  string
	HTML string
}

// NormalizedContent is the result of normalizing a RawContent.
type NormalizedContent struct {
	Title  string
	Markup string
	HTML   string
	Author string
	Images []string
	Videos []string
}

// MediaRef points at a remote media resource. LocalPath is set only after
// a successful download.
type MediaRef struct {
	RemoteURL string    `json:"url"`
	Kind      MediaKind `json:"kind"`
	LocalPath string    `json:"local_path,omitempty"`
}

// Downloaded reports whether the resource was stored locally.
func (m MediaRef) Downloaded() bool {
	return m.LocalPath != ""
}

// Article is one harvested article. Content, Author, Images and Videos are
// empty when content retrieval was skipped or failed.
type Article struct {
	AccountName  string   `json:"account"`
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	PublishEpoch int64    `json:"publish_time"`
	Digest       string   `json:"digest,omitempty"`
	Author       string   `json:"author,omitempty"`
	Content      string   `json:"content,omitempty"`
	HTML         string   `json:"-"`
	Images       []string `json:"images,omitempty"`
	Videos       []string `json:"videos,omitempty"`
}

// PublishTime returns the article's publish timestamp.
func (a Article) PublishTime() time.Time {
	return time.Unix(a.PublishEpoch, 0)
}

// HasContent reports whether the body was retrieved.
func (a Article) HasContent() bool {
	return a.Content != ""
}

// MediaRefs lists the article's media as unresolved references, images
// first.
func (a Article) MediaRefs() []MediaRef {
	refs := make([]MediaRef, 0, len(a.Images)+len(a.Videos))
	for _, u := range a.Images {
		refs = append(refs, MediaRef{RemoteURL: u, Kind: MediaImage})
	}
	for _, u := range a.Videos {
		refs = append(refs, MediaRef{RemoteURL: u, Kind: MediaVideo})
	}
	return refs
}

// DateWindow is the inclusive publish-time range of a run.
type DateWindow struct {
	Start   time.Time
	End     time.Time
	Enabled bool
}

// Contains reports whether t falls within the window. A disabled window
// contains everything.
func (w DateWindow) Contains(t time.Time) bool {
	if !w.Enabled {
		return true
	}
	return !t.Before(w.Start) && !t.After(w.End)
}
