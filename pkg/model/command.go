package model

// RuleScope says whether a firewall idiom applies to the whole environment
// (e.g. NAT masquerade on the egress interface) or to a single peer.
type RuleScope string

const (
	ScopeEnvironment RuleScope = "environment"
	ScopePeer        RuleScope = "peer"
)

// CommandPair is a recognized bring-up command set together with the
// tear-down set that undoes it. Both halves were matched against the same
// catalog entry and captured identical variable values.
type CommandPair struct {
	PatternName  string            `json:"patternName"`
	Rationale    string            `json:"rationale,omitempty"`
	Scope        RuleScope         `json:"scope"`
	UpCommands   []string          `json:"upCommands"`
	DownCommands []string          `json:"downCommands"`
	Variables    map[string]string `json:"variables,omitempty"`
}

// CommandSingleton is a recognized one-shot bring-up idiom with no tear-down
// counterpart (e.g. flipping a kernel forwarding flag).
type CommandSingleton struct {
	PatternName string            `json:"patternName"`
	Rationale   string            `json:"rationale,omitempty"`
	Scope       RuleScope         `json:"scope"`
	UpCommands  []string          `json:"upCommands"`
	Variables   map[string]string `json:"variables,omitempty"`
}
