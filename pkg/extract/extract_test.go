package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"wg-fleet/pkg/model"
)

func testKey(c byte) string { return strings.Repeat(string(c), 43) + "=" }

func rawEntity(tag string, body ...string) model.RawEntity {
	return model.RawEntity{SectionTag: tag, BodyLines: body}
}

func TestExtractInterface(t *testing.T) {
	e := rawEntity("[Interface]",
		"# NAT so the lab can reach the internet",
		"Address = 10.66.0.1/24, fd42::1/64",
		"PrivateKey = "+testKey('P'),
		"ListenPort = 51820",
		"DNS = 1.1.1.1, 9.9.9.9",
		"PostUp = iptables -A FORWARD -i wg0 -j ACCEPT",
		"PostUp = iptables -t nat -A POSTROUTING -o eth0 -j MASQUERADE",
		"PostUp = sysctl -w net.ipv4.ip_forward=1",
		"PostUp = wg set wg0 fwmark 1234",
		"PostDown = iptables -D FORWARD -i wg0 -j ACCEPT",
		"PostDown = iptables -t nat -D POSTROUTING -o eth0 -j MASQUERADE",
	)
	iface, mismatches, err := ExtractInterface(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mismatches) != 0 {
		t.Errorf("unexpected mismatches: %+v", mismatches)
	}
	if diff := cmp.Diff([]string{"10.66.0.1/24", "fd42::1/64"}, iface.Addresses); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}
	if iface.ListenPort != 51820 {
		t.Errorf("listen port = %d, want 51820", iface.ListenPort)
	}
	if diff := cmp.Diff([]string{"1.1.1.1", "9.9.9.9"}, iface.DNSServers); diff != "" {
		t.Errorf("DNS mismatch (-want +got):\n%s", diff)
	}
	if len(iface.Singletons) != 1 || iface.Singletons[0].PatternName != "kernel-forwarding-v4" {
		t.Errorf("singletons = %+v", iface.Singletons)
	}
	if len(iface.Pairs) != 1 || iface.Pairs[0].PatternName != "nat-masquerade-v4" {
		t.Fatalf("pairs = %+v", iface.Pairs)
	}
	if iface.Pairs[0].Rationale != "NAT so the lab can reach the internet" {
		t.Errorf("rationale not attached to its pair: %+v", iface.Pairs[0])
	}
	// an attached rationale must not also render as a free comment
	for _, c := range iface.Comments {
		if c.Category == model.CommentRationale {
			t.Errorf("rationale left in free comment list: %+v", c)
		}
	}
	if diff := cmp.Diff([]string{"wg set wg0 fwmark 1234"}, iface.Unrecognized); diff != "" {
		t.Errorf("unrecognized mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractInterfaceFieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      []string
		wantField string
	}{
		{
			name:      "missing address",
			body:      []string{"PrivateKey = " + testKey('P')},
			wantField: "Address",
		},
		{
			name:      "bad address",
			body:      []string{"Address = not-an-address", "PrivateKey = " + testKey('P')},
			wantField: "Address",
		},
		{
			name:      "missing private key",
			body:      []string{"Address = 10.66.0.1/24"},
			wantField: "PrivateKey",
		},
		{
			name:      "malformed private key",
			body:      []string{"Address = 10.66.0.1/24", "PrivateKey = short"},
			wantField: "PrivateKey",
		},
		{
			name:      "port out of range",
			body:      []string{"Address = 10.66.0.1/24", "PrivateKey = " + testKey('P'), "ListenPort = 70000"},
			wantField: "ListenPort",
		},
		{
			name:      "bad mtu",
			body:      []string{"Address = 10.66.0.1/24", "PrivateKey = " + testKey('P'), "MTU = -1"},
			wantField: "MTU",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ExtractInterface(rawEntity("[Interface]", tt.body...))
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fe.Field != tt.wantField {
				t.Errorf("field = %q, want %q", fe.Field, tt.wantField)
			}
		})
	}
}

func TestExtractPeer(t *testing.T) {
	e := rawEntity("[Peer]",
		"# alice-laptop",
		"# behind NAT, initiates connections only",
		"# bob-desktop",
		"PublicKey = "+testKey('A'),
		"AllowedIPs = 10.66.0.20/32",
		"Endpoint = vpn.example.org:51820",
		"PersistentKeepalive = 25",
	)
	p, err := ExtractPeer(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Hostname != "alice-laptop" {
		t.Errorf("hostname = %q, want alice-laptop", p.Hostname)
	}
	if p.RoleTag != "initiator-only" {
		t.Errorf("role tag = %q, want initiator-only", p.RoleTag)
	}
	if p.Endpoint != "vpn.example.org:51820" || p.Keepalive != 25 {
		t.Errorf("endpoint/keepalive: %+v", p)
	}
	// only the first hostname-shaped comment names the peer
	var demoted *model.ClassifiedComment
	for i := range p.Comments {
		if p.Comments[i].Text == "bob-desktop" {
			demoted = &p.Comments[i]
		}
	}
	if demoted == nil || demoted.Category != model.CommentUnclassified {
		t.Errorf("second hostname-shaped comment should be unclassified: %+v", demoted)
	}
}

func TestExtractPeerFieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      []string
		wantField string
	}{
		{
			name:      "missing public key",
			body:      []string{"AllowedIPs = 10.66.0.20/32"},
			wantField: "PublicKey",
		},
		{
			name:      "missing allowed ips",
			body:      []string{"PublicKey = " + testKey('A')},
			wantField: "AllowedIPs",
		},
		{
			name:      "bad endpoint",
			body:      []string{"PublicKey = " + testKey('A'), "AllowedIPs = 10.66.0.20/32", "Endpoint = no-port"},
			wantField: "Endpoint",
		},
		{
			name:      "bad keepalive",
			body:      []string{"PublicKey = " + testKey('A'), "AllowedIPs = 10.66.0.20/32", "PersistentKeepalive = never"},
			wantField: "PersistentKeepalive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractPeer(rawEntity("[Peer]", tt.body...))
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fe.Field != tt.wantField {
				t.Errorf("field = %q, want %q", fe.Field, tt.wantField)
			}
		})
	}
}

func TestDetectKind(t *testing.T) {
	forwarding := model.InterfaceSection{Pairs: []model.CommandPair{{PatternName: "nat-masquerade-v4"}}}
	plain := model.InterfaceSection{Pairs: []model.CommandPair{{PatternName: "service-port-v4"}}}

	tests := []struct {
		name  string
		iface model.InterfaceSection
		peers int
		opts  Options
		want  model.EntityKind
	}{
		{name: "no forwarding", iface: plain, peers: 10, opts: DefaultOptions(), want: model.KindRemote},
		{name: "forwarding one peer", iface: forwarding, peers: 1, opts: DefaultOptions(), want: model.KindSubnetRouter},
		{name: "forwarding at boundary", iface: forwarding, peers: 2, opts: DefaultOptions(), want: model.KindCoordinationServer},
		{name: "forwarding many peers", iface: forwarding, peers: 7, opts: DefaultOptions(), want: model.KindCoordinationServer},
		{name: "raised boundary", iface: forwarding, peers: 3, opts: Options{CoordinationMinPeers: 5}, want: model.KindSubnetRouter},
		{name: "zero opts fall back to defaults", iface: forwarding, peers: 2, opts: Options{}, want: model.KindCoordinationServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectKind(tt.iface, tt.peers, tt.opts); got != tt.want {
				t.Errorf("DetectKind = %s, want %s", got, tt.want)
			}
		})
	}
}
