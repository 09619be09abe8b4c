package models

import "time"

// UploadedDocument is metadata for reference material attached to a
// character. Content is never persisted here; ProviderFileHandle is the
// opaque id issued by the provider that stores the file, and is only
// meaningful to an adapter of matching provider scope.
type UploadedDocument struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Size               int64     `json:"size"`
	MimeType           string    `json:"mime_type"`
	ProviderScope      Provider  `json:"provider_scope"`
	ProviderFileHandle string    `json:"provider_file_handle,omitempty"`
	UploadedAt         time.Time `json:"uploaded_at"`
}
