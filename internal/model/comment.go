package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type CommentCategory string

const (
	CommentObservation  CommentCategory = "observation"
	CommentDiagnosis    CommentCategory = "diagnosis"
	CommentTreatment    CommentCategory = "treatment"
	CommentStatusChange CommentCategory = "status_change"
	CommentTransfer     CommentCategory = "transfer"
	CommentDischarge    CommentCategory = "discharge"
)

func (c CommentCategory) IsValid() bool {
	switch c {
	case CommentObservation, CommentDiagnosis, CommentTreatment,
		CommentStatusChange, CommentTransfer, CommentDischarge:
		return true
	}
	return false
}

const minCommentLength = 5

// Comment is an append-only clinical note.
type Comment struct {
	ID         string          `json:"id"`
	AuthorID   string          `json:"author_id"`
	AuthorName string          `json:"author_name"`
	AuthorRole StaffRole       `json:"author_role"`
	Content    string          `json:"content"`
	Category   CommentCategory `json:"category"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewComment validates and builds a comment.
func NewComment(author Staff, content string, category CommentCategory, at time.Time) (Comment, error) {
	content = strings.TrimSpace(content)
	switch {
	case author.ID == "":
		return Comment{}, &CommentValidationError{Field: "author", Reason: "is required"}
	case !author.Role.IsValid():
		return Comment{}, &CommentValidationError{Field: "author_role", Reason: "must be doctor, nurse or admin"}
	case len(content) < minCommentLength:
		return Comment{}, &CommentValidationError{Field: "content", Reason: "must be at least 5 characters"}
	case !category.IsValid():
		return Comment{}, &CommentValidationError{Field: "category", Reason: "unknown category " + string(category)}
	}

	return Comment{
		ID:         uuid.NewString(),
		AuthorID:   author.ID,
		AuthorName: author.Name,
		AuthorRole: author.Role,
		Content:    content,
		Category:   category,
		CreatedAt:  at.UTC(),
	}, nil
}
