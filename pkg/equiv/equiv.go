package equiv

import (
	"fmt"
	"sort"

	"wg-fleet/pkg/extract"
	"wg-fleet/pkg/model"
	"wg-fleet/pkg/wgconf"
)

// Check compares two configuration texts for functional equivalence: same
// keys, same routes, same commands. Formatting, comment placement and field
// order are ignored on purpose; byte equality is explicitly not the goal.
// The returned diffs are empty iff the two texts are equivalent.
func Check(a, b string) ([]string, error) {
	da, err := semantics(a)
	if err != nil {
		return nil, fmt.Errorf("first text: %w", err)
	}
	db, err := semantics(b)
	if err != nil {
		return nil, fmt.Errorf("second text: %w", err)
	}
	return diff(da, db), nil
}

type deviceView struct {
	iface model.InterfaceSection
	peers map[string]model.PeerSection // by public key
	up    map[string]bool
	down  map[string]bool
}

func semantics(raw string) (deviceView, error) {
	entities, err := wgconf.Parse(raw)
	if err != nil {
		return deviceView{}, err
	}
	iface, _, err := extract.ExtractInterface(entities[0])
	if err != nil {
		return deviceView{}, err
	}
	v := deviceView{
		iface: iface,
		peers: map[string]model.PeerSection{},
		up:    map[string]bool{},
		down:  map[string]bool{},
	}
	for _, e := range entities[1:] {
		p, err := extract.ExtractPeer(e)
		if err != nil {
			return deviceView{}, err
		}
		v.peers[p.PublicKey] = p
	}
	for _, sg := range iface.Singletons {
		addAll(v.up, sg.UpCommands)
	}
	for _, p := range iface.Pairs {
		addAll(v.up, p.UpCommands)
		addAll(v.down, p.DownCommands)
	}
	addAll(v.up, iface.Unrecognized)
	addAll(v.down, iface.UnrecognizedDown)
	return v, nil
}

func addAll(set map[string]bool, cmds []string) {
	for _, c := range cmds {
		set[c] = true
	}
}

func diff(a, b deviceView) []string {
	var diffs []string
	add := func(format string, args ...any) {
		diffs = append(diffs, fmt.Sprintf(format, args...))
	}

	if !sameSet(a.iface.Addresses, b.iface.Addresses) {
		add("interface addresses differ: %v vs %v", a.iface.Addresses, b.iface.Addresses)
	}
	if a.iface.PrivateKey != b.iface.PrivateKey {
		add("interface private keys differ")
	}
	if a.iface.ListenPort != b.iface.ListenPort {
		add("listen ports differ: %d vs %d", a.iface.ListenPort, b.iface.ListenPort)
	}
	if !sameSet(a.iface.DNSServers, b.iface.DNSServers) {
		add("DNS servers differ: %v vs %v", a.iface.DNSServers, b.iface.DNSServers)
	}
	if !sameKeys(a.up, b.up) {
		add("bring-up command sets differ: %v vs %v", keysOf(a.up), keysOf(b.up))
	}
	if !sameKeys(a.down, b.down) {
		add("tear-down command sets differ: %v vs %v", keysOf(a.down), keysOf(b.down))
	}

	for key, pa := range a.peers {
		pb, ok := b.peers[key]
		if !ok {
			add("peer %s missing from second text", short(key))
			continue
		}
		if !sameSet(pa.AllowedIPs, pb.AllowedIPs) {
			add("peer %s allowed IPs differ: %v vs %v", short(key), pa.AllowedIPs, pb.AllowedIPs)
		}
		if pa.Endpoint != pb.Endpoint {
			add("peer %s endpoints differ: %q vs %q", short(key), pa.Endpoint, pb.Endpoint)
		}
		if pa.Keepalive != pb.Keepalive {
			add("peer %s keepalives differ: %d vs %d", short(key), pa.Keepalive, pb.Keepalive)
		}
	}
	for key := range b.peers {
		if _, ok := a.peers[key]; !ok {
			add("peer %s missing from first text", short(key))
		}
	}

	sort.Strings(diffs)
	return diffs
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}

func sameKeys(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func keysOf(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
