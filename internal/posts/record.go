package posts

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostType string

const (
	PostTypeVideo    PostType = "video"
	PostTypeCarousel PostType = "carousel"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
)

// MediaEntry is one item of a post, in upload order.
type MediaEntry struct {
	URL         string    `json:"url"`
	Type        MediaType `json:"type"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Sprite      string    `json:"sprite,omitempty"`
	SpriteParts int       `json:"sprite_parts,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Duration    float64   `json:"duration,omitempty"`
}

// MediaEntries is stored as a JSONB array.
type MediaEntries []MediaEntry

func (m MediaEntries) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	// lib/pq sends []byte as bytea, which jsonb rejects.
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (m *MediaEntries) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = MediaEntries{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan media entries: unsupported type %T", src)
	}
	return json.Unmarshal(raw, m)
}

// Record is the persisted result of one ingestion.
type Record struct {
	ID               string       `db:"id" json:"id"`
	OwnerID          string       `db:"user_id" json:"user_id"`
	VideoURL         string       `db:"video_url" json:"video_url"`
	ThumbnailURL     string       `db:"thumbnail_url" json:"thumbnail_url"`
	SpriteURL        *string      `db:"sprite_url" json:"sprite_url"`
	SpriteParts      int          `db:"sprite_parts" json:"sprite_parts"`
	MediaURLs        MediaEntries `db:"media_urls" json:"media_urls"`
	PostType         PostType     `db:"post_type" json:"post_type"`
	Description      string       `db:"description" json:"description"`
	BrandName        *string      `db:"brand_name" json:"brand_name"`
	BrandURL         *string      `db:"brand_url" json:"brand_url"`
	CommercialType   *string      `db:"commercial_type" json:"commercial_type"`
	IsCommercial     bool         `db:"is_commercial" json:"is_commercial"`
	Width            int          `db:"width" json:"width"`
	Height           int          `db:"height" json:"height"`
	ProcessingStatus Status       `db:"processing_status" json:"processing_status"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
}

// ErrNotFound is returned when no post has the requested id.
var ErrNotFound = errors.New("post not found")

// PersistenceError reports a failed database operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s post: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// StringPtr returns nil for empty strings so optional columns stay NULL.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
