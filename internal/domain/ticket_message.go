package domain

import "time"

// MessageAuthorType indicates who authored a comment or change.
type MessageAuthorType string

const (
	AuthorTypeUser   MessageAuthorType = "USER"
	AuthorTypeStaff  MessageAuthorType = "STAFF"
	AuthorTypeSystem MessageAuthorType = "SYSTEM"
)

// TicketComment captures communications in a ticket thread.
type TicketComment struct {
	ID         string
	TicketID   string
	AuthorType MessageAuthorType
	AuthorID   *string
	Content    string
	IsInternal bool
	CreatedAt  time.Time
}

// CountsAsResponse reports whether the comment can satisfy a ticket's first-response SLA.
// Any public reply counts, whether the requester or a staff member wrote it. Internal
// notes and SYSTEM comments (automation, the sweep) never do.
func (c *TicketComment) CountsAsResponse() bool {
	return !c.IsInternal && c.AuthorType != AuthorTypeSystem
}
