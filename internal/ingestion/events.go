package ingestion

import (
	"context"
	"time"
)

const (
	EventPostCreated = "post.created"
	EventPostDeleted = "post.deleted"
)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, key, eventType string, payload any) error
	Close(ctx context.Context) error
}

// PostCreatedEvent is emitted once a post record is durable.
type PostCreatedEvent struct {
	PostID       string    `json:"post_id"`
	OwnerID      string    `json:"owner_id"`
	UploadID     string    `json:"upload_id"`
	PostType     string    `json:"post_type"`
	VideoURL     string    `json:"video_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	MediaCount   int       `json:"media_count"`
	IsCommercial bool      `json:"is_commercial"`
	CreatedAt    time.Time `json:"created_at"`
}

// PostDeletedEvent is emitted after a post's objects and row are gone.
type PostDeletedEvent struct {
	PostID         string    `json:"post_id"`
	OwnerID        string    `json:"owner_id"`
	ObjectsRemoved int       `json:"objects_removed"`
	DeletedAt      time.Time `json:"deleted_at"`
}
