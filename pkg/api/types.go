package api

import "wg-fleet/pkg/model"

// ImportRequest carries one raw configuration file into the engine.
type ImportRequest struct {
	Source string `json:"source"` // label for the report, usually the file name
	Config string `json:"config"` // the raw [Interface]/[Peer] text
}

// ImportResponse is the per-entity pass/fail summary of one import run.
type ImportResponse struct {
	Report model.ImportReport `json:"report"`
	Guid   string             `json:"guid,omitempty"` // device identity, when the interface parsed
}

// RotateRequest replaces the current key of an identity. NewKey must be a
// valid encoded key; Guid must name an existing permanent identity.
type RotateRequest struct {
	Guid   string `json:"guid"`
	NewKey string `json:"newKey"`
	Reason string `json:"reason,omitempty"`
}

// KeypairResponse is a freshly generated keypair from the crypto utility.
type KeypairResponse struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}
