package extract

import (
	"fmt"
	"log"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"wg-fleet/pkg/comment"
	"wg-fleet/pkg/firewall"
	"wg-fleet/pkg/keys"
	"wg-fleet/pkg/model"
)

// FieldError reports a required field that is absent or malformed. The
// entity it belongs to is skipped; the rest of the import continues.
type FieldError struct {
	Field string
	Value string
	Msg   string
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("field %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("field %s (%q): %s", e.Field, e.Value, e.Msg)
}

// fields is one entity body split into key/value assignments (a key may
// repeat) and comment lines, both in original order.
type fields struct {
	pairs    []kv
	comments []string
}

type kv struct {
	key   string // lowercased
	value string
}

func splitBody(lines []string) fields {
	var f fields
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			f.comments = append(f.comments, strings.TrimSpace(strings.TrimPrefix(trimmed, "#")))
			continue
		}
		eq := strings.Index(trimmed, "=")
		if eq <= 0 {
			log.Printf("extract: skipping malformed line %q", trimmed)
			continue
		}
		f.pairs = append(f.pairs, kv{
			key:   strings.ToLower(strings.TrimSpace(trimmed[:eq])),
			value: strings.TrimSpace(trimmed[eq+1:]),
		})
	}
	return f
}

// values returns every value for key, in order.
func (f fields) values(key string) []string {
	var out []string
	for _, p := range f.pairs {
		if p.key == key {
			out = append(out, p.value)
		}
	}
	return out
}

func (f fields) first(key string) string {
	for _, p := range f.pairs {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

// commaSplit flattens possibly comma-joined values, preserving order and
// dropping duplicates.
func commaSplit(values []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" && !seen[part] {
				out = append(out, part)
				seen[part] = true
			}
		}
	}
	return out
}

func validateCIDR(field, value string) error {
	if _, err := netip.ParsePrefix(value); err == nil {
		return nil
	}
	if _, err := netip.ParseAddr(value); err == nil {
		return nil // bare address; wg-quick accepts it
	}
	return &FieldError{Field: field, Value: value, Msg: "not a valid address or CIDR"}
}

func parsePort(field, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 || n > 65535 {
		return 0, &FieldError{Field: field, Value: value, Msg: "port must be in 1..65535"}
	}
	return n, nil
}

// ExtractInterface turns an [Interface] raw entity into its typed section:
// fields validated, commands split and matched against the firewall catalog,
// comments classified and rationales attached to the rules they describe.
func ExtractInterface(e model.RawEntity) (model.InterfaceSection, []firewall.Mismatch, error) {
	var out model.InterfaceSection
	f := splitBody(e.BodyLines)

	out.Addresses = commaSplit(f.values("address"))
	if len(out.Addresses) == 0 {
		return out, nil, &FieldError{Field: "Address", Msg: "at least one address is required"}
	}
	for _, a := range out.Addresses {
		if err := validateCIDR("Address", a); err != nil {
			return out, nil, err
		}
	}

	out.PrivateKey = f.first("privatekey")
	if out.PrivateKey == "" {
		return out, nil, &FieldError{Field: "PrivateKey", Msg: "required"}
	}
	if err := keys.Validate(out.PrivateKey); err != nil {
		return out, nil, &FieldError{Field: "PrivateKey", Msg: err.Error()}
	}

	if v := f.first("listenport"); v != "" {
		port, err := parsePort("ListenPort", v)
		if err != nil {
			return out, nil, err
		}
		out.ListenPort = port
	}
	if v := f.first("mtu"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return out, nil, &FieldError{Field: "MTU", Value: v, Msg: "must be a positive integer"}
		}
		out.MTU = n
	}
	out.DNSServers = commaSplit(f.values("dns"))

	up := firewall.SplitCommands(append(f.values("preup"), f.values("postup")...))
	down := firewall.SplitCommands(append(f.values("predown"), f.values("postdown")...))
	res := firewall.Recognize(up, down)
	out.Singletons = res.Singletons
	out.Pairs = res.Pairs
	out.Unrecognized = res.UnmatchedUp
	out.UnrecognizedDown = res.UnmatchedDown
	for _, m := range res.Mismatches {
		log.Printf("extract: pattern %s bring-up matched but pair rejected: %s", m.PatternName, m.Reason)
	}

	for _, text := range f.comments {
		c := comment.Classify(text, comment.ContextInterface)
		if c.Category == model.CommentRationale && attachRationale(&out, c) {
			continue // rendered with its commands, not as a free comment
		}
		out.Comments = append(out.Comments, c)
	}
	return out, res.Mismatches, nil
}

// attachRationale binds a rationale comment to the first rule of its family
// that has none yet. Singletons first, matching the generator's ordering.
func attachRationale(s *model.InterfaceSection, c model.ClassifiedComment) bool {
	for i := range s.Singletons {
		if s.Singletons[i].Rationale == "" && firewall.Family(s.Singletons[i].PatternName) == c.RationaleTarget {
			s.Singletons[i].Rationale = c.Text
			return true
		}
	}
	for i := range s.Pairs {
		if s.Pairs[i].Rationale == "" && firewall.Family(s.Pairs[i].PatternName) == c.RationaleTarget {
			s.Pairs[i].Rationale = c.Text
			return true
		}
	}
	return false
}

// ExtractPeer turns a [Peer] raw entity into its typed section. The
// PermanentGuid is left empty; the importer promotes the public key through
// the ledger.
func ExtractPeer(e model.RawEntity) (model.PeerSection, error) {
	var out model.PeerSection
	f := splitBody(e.BodyLines)

	out.PublicKey = f.first("publickey")
	if out.PublicKey == "" {
		return out, &FieldError{Field: "PublicKey", Msg: "required"}
	}
	if err := keys.Validate(out.PublicKey); err != nil {
		return out, &FieldError{Field: "PublicKey", Msg: err.Error()}
	}

	if v := f.first("presharedkey"); v != "" {
		if err := keys.Validate(v); err != nil {
			return out, &FieldError{Field: "PresharedKey", Msg: err.Error()}
		}
		out.PresharedKey = v
	}

	out.AllowedIPs = commaSplit(f.values("allowedips"))
	if len(out.AllowedIPs) == 0 {
		return out, &FieldError{Field: "AllowedIPs", Msg: "at least one network is required"}
	}
	for _, a := range out.AllowedIPs {
		if err := validateCIDR("AllowedIPs", a); err != nil {
			return out, err
		}
	}

	if v := f.first("endpoint"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil || host == "" {
			return out, &FieldError{Field: "Endpoint", Value: v, Msg: "must be host:port"}
		}
		if _, err := parsePort("Endpoint", port); err != nil {
			return out, err
		}
		out.Endpoint = v
	}

	if v := f.first("persistentkeepalive"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 65535 {
			return out, &FieldError{Field: "PersistentKeepalive", Value: v, Msg: "must be in 0..65535"}
		}
		out.Keepalive = n
	}

	for _, text := range f.comments {
		c := comment.Classify(text, comment.ContextPeer)
		switch c.Category {
		case model.CommentHostname:
			// only one hostname comment per peer; later lookalikes stay verbatim
			if out.Hostname != "" {
				c.Category = model.CommentUnclassified
				c.DisplayOrder = 500
				break
			}
			out.Hostname = c.Text
		case model.CommentRole:
			if out.RoleTag == "" {
				out.RoleTag = c.RoleTag
			}
		}
		out.Comments = append(out.Comments, c)
	}
	return out, nil
}
