package generate

import (
	"fmt"
	"sort"
	"strings"

	"wg-fleet/pkg/model"
)

// Generate produces canonical configuration text for one device: interface
// fields in fixed order, recognized commands grouped under their rationale
// comments, peers in caller-supplied order. Pure function of the model;
// fields absent from the model are omitted, never emitted empty.
func Generate(d model.Device) string {
	var b strings.Builder
	writeInterface(&b, d.Interface, nil)
	for _, p := range d.Peers {
		writePeer(&b, p)
	}
	return b.String()
}

// ExportServer is Generate for coordination servers and subnet routers: the
// interface block additionally carries each peer's own firewall rules,
// marked with a hostname comment so operators can tell whose rule group is
// whose.
func ExportServer(d model.Device) string {
	var b strings.Builder
	writeInterface(&b, d.Interface, d.Peers)
	for _, p := range d.Peers {
		writePeer(&b, p)
	}
	return b.String()
}

func writeInterface(b *strings.Builder, s model.InterfaceSection, peers []model.PeerSection) {
	b.WriteString("[Interface]\n")

	// unattributed comments keep their original relative order, before fields
	for _, c := range s.Comments {
		if c.DisplayOrder < orderCustom {
			fmt.Fprintf(b, "# %s\n", c.Text)
		}
	}

	for _, a := range s.Addresses {
		fmt.Fprintf(b, "Address = %s\n", a)
	}
	if s.PrivateKey != "" {
		fmt.Fprintf(b, "PrivateKey = %s\n", s.PrivateKey)
	}
	if s.ListenPort > 0 {
		fmt.Fprintf(b, "ListenPort = %d\n", s.ListenPort)
	}
	if s.MTU > 0 {
		fmt.Fprintf(b, "MTU = %d\n", s.MTU)
	}
	if len(s.DNSServers) > 0 {
		fmt.Fprintf(b, "DNS = %s\n", strings.Join(s.DNSServers, ", "))
	}

	upLines, downLines := commandLines(s, peers)
	if len(upLines) > 0 || len(downLines) > 0 {
		b.WriteString("\n")
	}
	for _, line := range upLines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, line := range downLines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	for _, c := range s.Comments {
		if c.DisplayOrder >= orderCustom {
			fmt.Fprintf(b, "# %s\n", c.Text)
		}
	}
}

const orderCustom = 999

// commandLines renders the bring-up block (singletons, then pairs, then
// unrecognized lines, each group in original relative order) and the
// tear-down block in the mirrored order. Rationale comments sit immediately
// above the commands they explain.
func commandLines(s model.InterfaceSection, peers []model.PeerSection) (up, down []string) {
	for _, sg := range s.Singletons {
		if sg.Rationale != "" {
			up = append(up, "# "+sg.Rationale)
		}
		for _, cmd := range sg.UpCommands {
			up = append(up, "PostUp = "+cmd)
		}
	}
	for _, p := range s.Pairs {
		if p.Rationale != "" {
			up = append(up, "# "+p.Rationale)
		}
		for _, cmd := range p.UpCommands {
			up = append(up, "PostUp = "+cmd)
		}
	}
	for _, cmd := range s.Unrecognized {
		up = append(up, "PostUp = "+cmd)
	}
	for _, peer := range peers {
		if len(peer.Rules) == 0 {
			continue
		}
		up = append(up, "# Peer-specific rule for: "+peer.Hostname)
		for _, r := range peer.Rules {
			for _, cmd := range r.UpCommands {
				up = append(up, "PostUp = "+cmd)
			}
		}
	}

	// tear-down mirrors bring-up: peer rules first, then pairs in reverse
	for i := len(peers) - 1; i >= 0; i-- {
		if len(peers[i].Rules) == 0 {
			continue
		}
		down = append(down, "# Peer-specific rule for: "+peers[i].Hostname)
		for _, r := range peers[i].Rules {
			for _, cmd := range r.DownCommands {
				down = append(down, "PostDown = "+cmd)
			}
		}
	}
	for i := len(s.Pairs) - 1; i >= 0; i-- {
		for _, cmd := range s.Pairs[i].DownCommands {
			down = append(down, "PostDown = "+cmd)
		}
	}
	for _, cmd := range s.UnrecognizedDown {
		down = append(down, "PostDown = "+cmd)
	}
	return up, down
}

func writePeer(b *strings.Builder, p model.PeerSection) {
	b.WriteString("\n[Peer]\n")

	comments := orderedComments(p)
	for _, c := range comments {
		if c.DisplayOrder < orderCustom {
			fmt.Fprintf(b, "# %s\n", c.Text)
		}
	}

	if p.PublicKey != "" {
		fmt.Fprintf(b, "PublicKey = %s\n", p.PublicKey)
	}
	if p.PresharedKey != "" {
		fmt.Fprintf(b, "PresharedKey = %s\n", p.PresharedKey)
	}
	if len(p.AllowedIPs) > 0 {
		fmt.Fprintf(b, "AllowedIPs = %s\n", strings.Join(p.AllowedIPs, ", "))
	}
	if p.Endpoint != "" {
		fmt.Fprintf(b, "Endpoint = %s\n", p.Endpoint)
	}
	if p.Keepalive > 0 {
		fmt.Fprintf(b, "PersistentKeepalive = %d\n", p.Keepalive)
	}

	for _, c := range comments {
		if c.DisplayOrder >= orderCustom {
			fmt.Fprintf(b, "# %s\n", c.Text)
		}
	}
}

// orderedComments sorts a peer's comments by display order (stable, so
// same-order comments keep their original sequence) and documents the
// identity binding when the current key is no longer the permanent one.
func orderedComments(p model.PeerSection) []model.ClassifiedComment {
	out := make([]model.ClassifiedComment, len(p.Comments))
	copy(out, p.Comments)

	if p.PermanentGuid != "" && p.PermanentGuid != p.PublicKey && !hasGuidRef(out) {
		out = append(out, model.ClassifiedComment{
			Category:      model.CommentGuidRef,
			Text:          "permanent_guid: " + p.PermanentGuid,
			DisplayOrder:  3,
			GuidReference: p.PermanentGuid,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

func hasGuidRef(comments []model.ClassifiedComment) bool {
	for _, c := range comments {
		if c.Category == model.CommentGuidRef {
			return true
		}
	}
	return false
}
