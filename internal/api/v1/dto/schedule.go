package dto

import "time"

// ScheduleCreateRequest schedules a post or email for deferred delivery.
// Platforms applies to posts, Recipients and Subject to emails.
type ScheduleCreateRequest struct {
	ProjectID   string   `json:"project_id"`
	Kind        string   `json:"kind" validate:"required,oneof=post email"`
	ScheduledAt int64    `json:"scheduled_at" validate:"required"`
	Platforms   []string `json:"platforms,omitempty"`
	Recipients  []string `json:"recipients,omitempty" validate:"omitempty,dive,email"`
	MediaKeys   []string `json:"media_keys,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Body        string   `json:"body" validate:"required"`
}

// ScheduledItemResponse is a scheduled item in API responses.
type ScheduledItemResponse struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Kind        string     `json:"kind"`
	ScheduledAt int64      `json:"scheduled_at"`
	Status      string     `json:"status"`
	Platforms   []string   `json:"platforms,omitempty"`
	Recipients  []string   `json:"recipients,omitempty"`
	MediaKeys   []string   `json:"media_keys,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	Body        string     `json:"body"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// DispatchExecuteRequest is the signed callback body fired by the dispatcher
// when a scheduled item becomes due.
type DispatchExecuteRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

// MediaUploadRequest asks for a presigned upload URL for a post attachment.
type MediaUploadRequest struct {
	Filename string `json:"filename" validate:"required"`
}

// MediaUploadResponse carries the storage key and the presigned PUT URL.
type MediaUploadResponse struct {
	Key       string `json:"key"`
	UploadURL string `json:"upload_url"`
}

// PlatformTokenRequest stores a user's access token for a social platform.
type PlatformTokenRequest struct {
	Platform string `json:"platform" validate:"required"`
	Token    string `json:"token" validate:"required"`
}
