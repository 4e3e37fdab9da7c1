package model

// RawEntity is one `[Interface]` or `[Peer]` block of configuration text,
// exactly as split by the block parser. No semantic interpretation yet.
type RawEntity struct {
	SectionTag string   `json:"sectionTag"` // full trimmed boundary line, e.g. "[Interface]"
	BodyLines  []string `json:"bodyLines"`
	StartLine  int      `json:"startLine"` // 1-based line of the boundary itself
	EndLine    int      `json:"endLine"`   // last body line, inclusive
}
