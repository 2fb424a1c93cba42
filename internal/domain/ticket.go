// Package domain holds the ticket data model shared across the bot.
package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a ticket.
type Status int

const (
	// StatusOpen marks a ticket awaiting a staff response.
	StatusOpen Status = 1
	// StatusClosed is reserved for a future closure feature; nothing sets it yet.
	StatusClosed Status = 2
)

// AttachmentKind tags the Telegram media type of an attachment.
type AttachmentKind string

const (
	KindDocument AttachmentKind = "document"
	KindPhoto    AttachmentKind = "photo"
)

// Attachment is one user-supplied file reference with its media kind.
type Attachment struct {
	FileID string
	Kind   AttachmentKind
}

// Ticket represents one submitted service request as persisted in the store.
// Files and FileTypes are parallel lists with equal length and matching order.
type Ticket struct {
	Timestamp time.Time `json:"timestamp"`
	Number    int64     `json:"number"`
	User      string    `json:"user"`
	UserID    int64     `json:"user_id"`
	Address   string    `json:"address"`
	Text      string    `json:"text"`
	Phone     string    `json:"phone"`
	Files     []string  `json:"files"`
	FileTypes []string  `json:"file_types"`
	Status    Status    `json:"status"`
}

// SplitAttachments converts the in-memory attachment list into the parallel
// file-id and kind lists the store persists. Both slices are non-nil so the
// ticket always serializes with explicit arrays.
func SplitAttachments(attachments []Attachment) (files []string, kinds []string) {
	files = make([]string, 0, len(attachments))
	kinds = make([]string, 0, len(attachments))

	for _, a := range attachments {
		files = append(files, a.FileID)
		kinds = append(kinds, string(a.Kind))
	}

	return files, kinds
}

// DisplayName resolves a human-readable submitter name, preferring the
// username and falling back to the concatenated first and last names.
func DisplayName(username, firstName, lastName string) string {
	if name := strings.TrimSpace(username); name != "" {
		return name
	}

	full := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	return full
}
