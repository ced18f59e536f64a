package linkedin

import "time"

// ContentType tags a single extracted attachment or contact entry.
type ContentType string

const (
	ContentImage   ContentType = "image"
	ContentVideo   ContentType = "video"
	ContentArticle ContentType = "article"
	ContentJob     ContentType = "job"
	ContentEmail   ContentType = "email"
	ContentPhone   ContentType = "phone"
)

// ContentItem is one attachment or contact extracted from a post. Exactly one
// of URL/ThumbnailURL is set; video posts only expose a poster image, so they
// carry ThumbnailURL.
type ContentItem struct {
	Type         ContentType `json:"type"`
	URL          string      `json:"url,omitempty"`
	ThumbnailURL string      `json:"thumbnailUrl,omitempty"`
}

// PostAuthor is the post's author block. Either field may be missing on
// company updates or collapsed headers.
type PostAuthor struct {
	Name *string `json:"name"`
	URL  *string `json:"url"`
}

// PostRecord is the normalized unit produced by extraction and persisted by
// the store, keyed by PostID.
type PostRecord struct {
	PostID       string        `json:"postId"`
	PostURL      string        `json:"postUrl"`
	PostBody     string        `json:"postBody"`
	PostAuthor   *PostAuthor   `json:"postAuthor"`
	PostContents []ContentItem `json:"postContents"`
	// PostedAt is decoded from the activity id. For reshared posts the id we
	// can reach may belong to the resharing act rather than the original
	// content, so this value is not guaranteed accurate for reshares.
	PostedAt       *time.Time `json:"postedAt"`
	FirstScrapedAt time.Time  `json:"firstScrapedAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Candidate is an extraction result that has not been through store
// validation yet. FirstScrapedAt/UpdatedAt are assigned by the store.
type Candidate struct {
	PostID       string
	PostURL      string
	PostBody     string
	PostAuthor   *PostAuthor
	PostContents []ContentItem
	PostedAt     *time.Time
}
