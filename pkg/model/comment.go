package model

// CommentCategory is the semantic meaning assigned to a free-text comment.
type CommentCategory string

const (
	CommentHostname     CommentCategory = "hostname"
	CommentRole         CommentCategory = "role"
	CommentGuidRef      CommentCategory = "guid_ref"
	CommentRationale    CommentCategory = "rationale"
	CommentCustom       CommentCategory = "custom"
	CommentUnclassified CommentCategory = "unclassified"
)

// ClassifiedComment is a comment line with its inferred meaning attached.
// DisplayOrder controls where the generator renders it relative to fields.
type ClassifiedComment struct {
	Category        CommentCategory `json:"category"`
	Text            string          `json:"text"`
	DisplayOrder    int             `json:"displayOrder"`
	RoleTag         string          `json:"roleTag,omitempty"`         // set for Role comments
	RationaleTarget string          `json:"rationaleTarget,omitempty"` // pattern name a Rationale comment describes
	GuidReference   string          `json:"guidReference,omitempty"`   // captured key for GuidRef comments
}
