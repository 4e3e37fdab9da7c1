package extract

import (
	"wg-fleet/pkg/firewall"
	"wg-fleet/pkg/model"
)

// Options tunes the device-kind heuristic. The defaults encode the
// convention this fleet has always used; they are a convention, not a
// structural necessity, which is why they are configurable.
type Options struct {
	// CoordinationMinPeers is the peer count at or above which a config
	// with forwarding rules is treated as the coordination server. The
	// boundary case (exactly this many peers) goes to coordination-server
	// by convention.
	CoordinationMinPeers int
}

// DefaultOptions matches the historical convention: 2+ peers with
// forwarding rules means coordination server.
func DefaultOptions() Options {
	return Options{CoordinationMinPeers: 2}
}

// DetectKind classifies a config file by what it can do, not what it says:
//
//   - forwarding rules + at least CoordinationMinPeers peers -> coordination server
//   - forwarding rules with fewer peers                      -> subnet router
//   - no forwarding rules                                    -> remote
//
// The result is a guess; callers may override it.
func DetectKind(iface model.InterfaceSection, peerCount int, opts Options) model.EntityKind {
	if opts.CoordinationMinPeers <= 0 {
		opts = DefaultOptions()
	}
	if !hasForwarding(iface) {
		return model.KindRemote
	}
	if peerCount >= opts.CoordinationMinPeers {
		return model.KindCoordinationServer
	}
	return model.KindSubnetRouter
}

var forwardingFamilies = map[string]bool{
	"nat-masquerade":    true,
	"lan-forwarding":    true,
	"kernel-forwarding": true,
}

func hasForwarding(iface model.InterfaceSection) bool {
	for _, s := range iface.Singletons {
		if forwardingFamilies[firewall.Family(s.PatternName)] {
			return true
		}
	}
	for _, p := range iface.Pairs {
		if forwardingFamilies[firewall.Family(p.PatternName)] {
			return true
		}
	}
	return false
}
