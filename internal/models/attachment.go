package models

import "time"

// AttachmentPurpose distinguishes a plain photo from the client signature.
type AttachmentPurpose string

const (
	PurposePhoto     AttachmentPurpose = "photo"
	PurposeSignature AttachmentPurpose = "client_signature"
)

// AttachmentRecord is a binary blob captured offline (photo, signature),
// exclusively owned by the queued item identified by ItemID. Records are
// deleted together with their item once it syncs.
type AttachmentRecord struct {
	ItemID    string            `json:"item_id"`
	FileID    string            `json:"file_id"`
	Purpose   AttachmentPurpose `json:"purpose"`
	Content   []byte            `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}
