package model

import "time"

// EntityResult is the per-entity outcome of one import run.
type EntityResult struct {
	Index      int    `json:"index"` // position in the source file, 0 = interface
	SectionTag string `json:"sectionTag"`
	Guid       string `json:"guid,omitempty"` // assigned permanent identity, if any
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

// ImportReport summarizes one import run: which entities passed, which were
// skipped, and why. A structure or identity conflict aborts the whole run;
// a field error only fails its own entity.
type ImportReport struct {
	Source    string         `json:"source,omitempty"` // file name or label
	Kind      EntityKind     `json:"kind"`
	Results   []EntityResult `json:"results"`
	Passed    int            `json:"passed"`
	Failed    int            `json:"failed"`
	Timestamp time.Time      `json:"timestamp"`
}
