package types

import "time"

// UploadStatus is the state of a file after an upload attempt
type UploadStatus string

const (
	// UploadStatusUploaded means the file was stored in the session
	UploadStatusUploaded UploadStatus = "uploaded"
	// UploadStatusRejected means the file was refused and not stored
	UploadStatusRejected UploadStatus = "rejected"
)

// UploadedFile describes a document stored in a session directory.
type UploadedFile struct {
	ID     string       `json:"id"`   // Storage-unique name within the session
	Name   string       `json:"name"` // Display name supplied by the user
	Size   int64        `json:"size"`
	Pages  int          `json:"pages,omitempty"`
	Status UploadStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// Session is a client-scoped storage area for uploaded documents.
type Session struct {
	ID        string    `json:"id"`
	Dir       string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
