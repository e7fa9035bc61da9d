package model

import (
	"time"
)

// Attachment is a file stored alongside a message. FilePath is the opaque
// reference returned by the attachment store.
type Attachment struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID int64     `json:"message_id" gorm:"index;not null"`
	FileName  string    `json:"file_name" gorm:"size:255;not null"`
	FilePath  string    `json:"file_path" gorm:"size:1000;not null"`
	MimeType  string    `json:"mime_type" gorm:"size:100"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	Message Message `json:"-" gorm:"foreignKey:MessageID"`
}

// AttachmentInput is a file received with a send request, before it is stored
type AttachmentInput struct {
	FileName string
	MimeType string
	Data     []byte
}

// FileMeta describes a file handed to the attachment store
type FileMeta struct {
	FileName    string
	ContentType string
	Size        int64
}
