package model

// InterfaceSection is the typed form of an [Interface] block.
type InterfaceSection struct {
	Addresses        []string            `json:"addresses"`            // CIDRs, insertion order, no duplicates
	PrivateKey       string              `json:"-"`                    // never serialized outward
	ListenPort       int                 `json:"listenPort,omitempty"` // 0 = absent
	MTU              int                 `json:"mtu,omitempty"`        // 0 = absent
	DNSServers       []string            `json:"dnsServers,omitempty"`
	Pairs            []CommandPair       `json:"pairs,omitempty"`
	Singletons       []CommandSingleton  `json:"singletons,omitempty"`
	Unrecognized     []string            `json:"unrecognized,omitempty"`     // bring-up lines no pattern claimed
	UnrecognizedDown []string            `json:"unrecognizedDown,omitempty"` // tear-down lines no pattern claimed
	Comments         []ClassifiedComment `json:"comments,omitempty"`
}

// PeerSection is the typed form of a [Peer] block. It is keyed by the public
// key observed at parse time; the extractor promotes that to a permanent GUID
// through the ledger before anything references the peer.
type PeerSection struct {
	PermanentGuid string              `json:"permanentGuid"`
	PublicKey     string              `json:"publicKey"`
	PresharedKey  string              `json:"-"`
	AllowedIPs    []string            `json:"allowedIPs"`
	Endpoint      string              `json:"endpoint,omitempty"` // host:port, "" = absent
	Keepalive     int                 `json:"keepaliveSeconds,omitempty"`
	Hostname      string              `json:"hostname,omitempty"` // from Hostname comment, else the GUID
	RoleTag       string              `json:"roleTag,omitempty"`
	Comments      []ClassifiedComment `json:"comments,omitempty"`
	Rules         []CommandPair       `json:"rules,omitempty"` // peer-specific firewall rules, rendered in server exports
}

// Device is one logical device's full semantic model: its interface section
// plus its peers in file order.
type Device struct {
	Kind      EntityKind       `json:"kind"`
	Interface InterfaceSection `json:"interface"`
	Peers     []PeerSection    `json:"peers"`
}
