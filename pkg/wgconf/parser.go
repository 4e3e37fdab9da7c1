package wgconf

import (
	"fmt"
	"strings"

	"wg-fleet/pkg/model"
)

// Section tags the parser cares about. Anything else is a structure error.
const (
	TagInterface = "[Interface]"
	TagPeer      = "[Peer]"
)

// StructureError reports a malformed section layout. It always aborts the
// import: guessing intent here risks corrupting an operational network.
type StructureError struct {
	Index int    // entity index the problem was found at, -1 for whole-file problems
	Tag   string // offending section tag, if any
	Msg   string
}

func (e *StructureError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("config structure: %s", e.Msg)
	}
	return fmt.Sprintf("config structure: entity %d (%s): %s", e.Index, e.Tag, e.Msg)
}

// Split cuts raw configuration text into ordered entities. A line is a
// boundary iff its trimmed form begins with '['; the full trimmed line
// becomes the section tag. A '[' elsewhere in a line (an IPv6 endpoint like
// "[2001:db8::1]:51820") is never a boundary. Lines before the first
// boundary are dropped; they can only be file-level comments.
func Split(raw string) []model.RawEntity {
	var entities []model.RawEntity
	cur := -1
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			entities = append(entities, model.RawEntity{
				SectionTag: trimmed,
				StartLine:  i + 1,
				EndLine:    i + 1,
			})
			cur = len(entities) - 1
			continue
		}
		if cur < 0 {
			continue
		}
		entities[cur].BodyLines = append(entities[cur].BodyLines, line)
		entities[cur].EndLine = i + 1
	}
	return entities
}

// Validate checks the section layout: exactly one [Interface], first, then
// only [Peer] blocks. Returns a *StructureError on violation.
func Validate(entities []model.RawEntity) error {
	if len(entities) == 0 {
		return &StructureError{Index: -1, Msg: "no entities"}
	}
	if entities[0].SectionTag != TagInterface {
		return &StructureError{Index: 0, Tag: entities[0].SectionTag, Msg: "first entity must be [Interface]"}
	}
	for i, e := range entities[1:] {
		switch e.SectionTag {
		case TagInterface:
			return &StructureError{Index: i + 1, Tag: e.SectionTag, Msg: "duplicate [Interface]"}
		case TagPeer:
		default:
			return &StructureError{Index: i + 1, Tag: e.SectionTag, Msg: "unknown section tag"}
		}
	}
	return nil
}

// Parse is Split followed by Validate.
func Parse(raw string) ([]model.RawEntity, error) {
	entities := Split(raw)
	if err := Validate(entities); err != nil {
		return nil, err
	}
	return entities, nil
}
