package comment

import (
	"regexp"
	"strings"

	"wg-fleet/pkg/model"
)

// Context says which section a comment appeared in. Some rules only make
// sense for one of them (hostnames on peers, rule rationales on interfaces).
type Context string

const (
	ContextInterface Context = "interface"
	ContextPeer      Context = "peer"
)

// Display-order slots used by the generator. Custom comments always render
// last, after every field; unclassified ones keep a middle slot so they land
// before fields in original relative order.
const (
	orderHostname     = 1
	orderRationale    = 1
	orderRole         = 2
	orderGuidRef      = 3
	orderUnclassified = 500
	orderCustom       = 999
)

// rule is one predicate in the chain. First rule to claim a comment wins, so
// insertion order is the priority order; append new rules where they belong
// instead of editing existing predicates.
type rule struct {
	name  string
	apply func(text string, ctx Context) (model.ClassifiedComment, bool)
}

var (
	hostnameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)
	guidRefRe  = regexp.MustCompile(`(?:permanent_guid|GUID):\s*([A-Za-z0-9+/=]{43,45})`)
)

// rolePhrasings maps known role wordings to their tag. Matched as lowercase
// substrings; the comment keeps its original text either way.
var rolePhrasings = []struct {
	phrase string
	tag    string
}{
	{"initiates connections only", "initiator-only"},
	{"no reachable address", "initiator-only"},
	{"behind nat", "initiator-only"},
	{"address changes", "roaming"},
	{"dynamic endpoint", "roaming"},
	{"roaming", "roaming"},
}

// rationalePhrasings maps interface-comment wordings to the rule family they
// describe. Targets line up with the firewall catalog's pattern families.
var rationalePhrasings = []struct {
	phrase string
	target string
}{
	{"masquerade", "nat-masquerade"},
	{"nat", "nat-masquerade"},
	{"forwarding", "lan-forwarding"},
	{"forward", "lan-forwarding"},
	{"mss", "mss-clamp"},
	{"mtu", "mss-clamp"},
	{"clamp", "mss-clamp"},
	{"expose", "service-port"},
	{"allow inbound", "service-port"},
	{"service port", "service-port"},
	{"cleanup", "cleanup"},
	{"clean up", "cleanup"},
}

// customMarkers are first-person and temporal words that mark a personal
// note. Best effort; false negatives just fall through to unclassified.
var customMarkers = []string{
	" i ", " my ", " me ", " we ", " our ",
	"todo", "fixme", "remember", "don't forget",
	" every ", "yesterday", "tomorrow", "last week", "next week",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

var chain = []rule{
	{name: "hostname", apply: func(text string, ctx Context) (model.ClassifiedComment, bool) {
		if ctx != ContextPeer {
			return model.ClassifiedComment{}, false
		}
		if len(text) < 2 || len(text) > 30 || !hostnameRe.MatchString(text) {
			return model.ClassifiedComment{}, false
		}
		return model.ClassifiedComment{Category: model.CommentHostname, Text: text, DisplayOrder: orderHostname}, true
	}},
	{name: "guid-ref", apply: func(text string, _ Context) (model.ClassifiedComment, bool) {
		m := guidRefRe.FindStringSubmatch(text)
		if m == nil {
			return model.ClassifiedComment{}, false
		}
		return model.ClassifiedComment{Category: model.CommentGuidRef, Text: text, DisplayOrder: orderGuidRef, GuidReference: m[1]}, true
	}},
	{name: "role", apply: func(text string, _ Context) (model.ClassifiedComment, bool) {
		lower := strings.ToLower(text)
		for _, r := range rolePhrasings {
			if strings.Contains(lower, r.phrase) {
				return model.ClassifiedComment{Category: model.CommentRole, Text: text, DisplayOrder: orderRole, RoleTag: r.tag}, true
			}
		}
		return model.ClassifiedComment{}, false
	}},
	{name: "rationale", apply: func(text string, ctx Context) (model.ClassifiedComment, bool) {
		if ctx != ContextInterface {
			return model.ClassifiedComment{}, false
		}
		lower := strings.ToLower(text)
		for _, r := range rationalePhrasings {
			if strings.Contains(lower, r.phrase) {
				return model.ClassifiedComment{Category: model.CommentRationale, Text: text, DisplayOrder: orderRationale, RationaleTarget: r.target}, true
			}
		}
		return model.ClassifiedComment{}, false
	}},
	{name: "custom", apply: func(text string, _ Context) (model.ClassifiedComment, bool) {
		lower := " " + strings.ToLower(text) + " "
		for _, marker := range customMarkers {
			if strings.Contains(lower, marker) {
				return model.ClassifiedComment{Category: model.CommentCustom, Text: text, DisplayOrder: orderCustom}, true
			}
		}
		return model.ClassifiedComment{}, false
	}},
}

// Classify assigns a semantic category to one comment line (without its
// leading '#'). The chain is best effort: anything no rule claims comes back
// unclassified and the generator renders it verbatim.
func Classify(text string, ctx Context) model.ClassifiedComment {
	text = strings.TrimSpace(text)
	for _, r := range chain {
		if c, ok := r.apply(text, ctx); ok {
			return c
		}
	}
	return model.ClassifiedComment{Category: model.CommentUnclassified, Text: text, DisplayOrder: orderUnclassified}
}
