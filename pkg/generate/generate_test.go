package generate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"wg-fleet/pkg/equiv"
	"wg-fleet/pkg/extract"
	"wg-fleet/pkg/model"
	"wg-fleet/pkg/wgconf"
)

func testKey(c byte) string { return strings.Repeat(string(c), 43) + "=" }

func TestGenerateOmitsAbsentFields(t *testing.T) {
	d := model.Device{
		Interface: model.InterfaceSection{
			Addresses:  []string{"10.66.0.2/32"},
			PrivateKey: testKey('P'),
		},
		Peers: []model.PeerSection{{
			PublicKey:  testKey('A'),
			AllowedIPs: []string{"10.66.0.0/24"},
		}},
	}
	want := fmt.Sprintf(`[Interface]
Address = 10.66.0.2/32
PrivateKey = %s

[Peer]
PublicKey = %s
AllowedIPs = 10.66.0.0/24
`, testKey('P'), testKey('A'))
	if diff := cmp.Diff(want, Generate(d)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	d := model.Device{
		Interface: model.InterfaceSection{
			Addresses:  []string{"10.66.0.1/24"},
			PrivateKey: testKey('P'),
			ListenPort: 51820,
			Pairs: []model.CommandPair{{
				PatternName:  "nat-masquerade-v4",
				Rationale:    "NAT for the lab",
				UpCommands:   []string{"iptables -A FORWARD -i wg0 -j ACCEPT", "iptables -t nat -A POSTROUTING -o eth0 -j MASQUERADE"},
				DownCommands: []string{"iptables -D FORWARD -i wg0 -j ACCEPT", "iptables -t nat -D POSTROUTING -o eth0 -j MASQUERADE"},
			}},
		},
	}
	first := Generate(d)
	for i := 0; i < 5; i++ {
		if got := Generate(d); got != first {
			t.Fatalf("output varies between runs:\n%s\nvs\n%s", first, got)
		}
	}
	if !strings.Contains(first, "# NAT for the lab\nPostUp = iptables -A FORWARD") {
		t.Errorf("rationale not rendered above its commands:\n%s", first)
	}
}

func TestGenerateMirrorsTearDown(t *testing.T) {
	d := model.Device{
		Interface: model.InterfaceSection{
			Addresses:  []string{"10.66.0.1/24"},
			PrivateKey: testKey('P'),
			Pairs: []model.CommandPair{
				{
					PatternName:  "service-port-v4",
					UpCommands:   []string{"iptables -A INPUT -p udp --dport 51820 -j ACCEPT"},
					DownCommands: []string{"iptables -D INPUT -p udp --dport 51820 -j ACCEPT"},
				},
				{
					PatternName:  "nat-masquerade-subnet-v4",
					UpCommands:   []string{"iptables -t nat -A POSTROUTING -s 10.66.0.0/24 -o eth0 -j MASQUERADE"},
					DownCommands: []string{"iptables -t nat -D POSTROUTING -s 10.66.0.0/24 -o eth0 -j MASQUERADE"},
				},
			},
		},
	}
	out := Generate(d)
	first := strings.Index(out, "PostDown = iptables -t nat -D POSTROUTING")
	second := strings.Index(out, "PostDown = iptables -D INPUT")
	if first < 0 || second < 0 || first > second {
		t.Errorf("tear-down should run in reverse bring-up order:\n%s", out)
	}
}

func TestGenerateDocumentsRotatedIdentity(t *testing.T) {
	d := model.Device{
		Interface: model.InterfaceSection{
			Addresses:  []string{"10.66.0.1/24"},
			PrivateKey: testKey('P'),
		},
		Peers: []model.PeerSection{{
			PermanentGuid: testKey('A'),
			PublicKey:     testKey('C'),
			AllowedIPs:    []string{"10.66.0.20/32"},
			Hostname:      "alice-laptop",
			Comments: []model.ClassifiedComment{
				{Category: model.CommentHostname, Text: "alice-laptop", DisplayOrder: 1},
			},
		}},
	}
	out := Generate(d)
	ref := "# permanent_guid: " + testKey('A')
	if !strings.Contains(out, ref) {
		t.Fatalf("rotated peer should document its permanent identity:\n%s", out)
	}
	if strings.Index(out, ref) > strings.Index(out, "PublicKey = "+testKey('C')) {
		t.Errorf("identity comment should precede the key field:\n%s", out)
	}
	if strings.Index(out, "# alice-laptop") > strings.Index(out, ref) {
		t.Errorf("hostname comment should come first:\n%s", out)
	}

	// no duplicate when the source already carried the reference
	d.Peers[0].Comments = append(d.Peers[0].Comments, model.ClassifiedComment{
		Category: model.CommentGuidRef, Text: "permanent_guid: " + testKey('A'),
		DisplayOrder: 3, GuidReference: testKey('A'),
	})
	if strings.Count(Generate(d), ref) != 1 {
		t.Errorf("guid reference duplicated:\n%s", Generate(d))
	}
}

func TestGenerateCustomCommentsRenderLast(t *testing.T) {
	d := model.Device{
		Interface: model.InterfaceSection{
			Addresses:  []string{"10.66.0.1/24"},
			PrivateKey: testKey('P'),
		},
		Peers: []model.PeerSection{{
			PublicKey:  testKey('A'),
			AllowedIPs: []string{"10.66.0.20/32"},
			Comments: []model.ClassifiedComment{
				{Category: model.CommentCustom, Text: "I rotate this every Sunday", DisplayOrder: 999},
				{Category: model.CommentHostname, Text: "alice-laptop", DisplayOrder: 1},
			},
		}},
	}
	out := Generate(d)
	if strings.Index(out, "# I rotate this every Sunday") < strings.Index(out, "AllowedIPs") {
		t.Errorf("custom comment should render after the fields:\n%s", out)
	}
	if strings.Index(out, "# alice-laptop") > strings.Index(out, "PublicKey") {
		t.Errorf("hostname comment should render before the fields:\n%s", out)
	}
}

func TestExportServerCarriesPeerRules(t *testing.T) {
	d := model.Device{
		Kind: model.KindCoordinationServer,
		Interface: model.InterfaceSection{
			Addresses:  []string{"10.66.0.1/24"},
			PrivateKey: testKey('P'),
		},
		Peers: []model.PeerSection{{
			PublicKey:  testKey('A'),
			AllowedIPs: []string{"10.66.0.20/32"},
			Hostname:   "alice-laptop",
			Rules: []model.CommandPair{{
				PatternName:  "service-port-v4",
				Scope:        model.ScopePeer,
				UpCommands:   []string{"iptables -A INPUT -p tcp --dport 443 -j ACCEPT"},
				DownCommands: []string{"iptables -D INPUT -p tcp --dport 443 -j ACCEPT"},
			}},
		}},
	}
	out := ExportServer(d)
	if !strings.Contains(out, "# Peer-specific rule for: alice-laptop") {
		t.Errorf("peer rule group not marked:\n%s", out)
	}
	if !strings.Contains(out, "PostUp = iptables -A INPUT -p tcp --dport 443 -j ACCEPT") {
		t.Errorf("peer rule missing:\n%s", out)
	}
	if strings.Contains(Generate(d), "Peer-specific") {
		t.Errorf("plain generation must not inline peer rules")
	}
}

const roundTripInput = `[Interface]
# NAT so the lab can reach the internet
Address = 10.66.0.1/24
PrivateKey = {P}
ListenPort = 51820
DNS = 1.1.1.1, 9.9.9.9
PostUp = sysctl -w net.ipv4.ip_forward=1
PostUp = iptables -A FORWARD -i wg0 -j ACCEPT; iptables -t nat -A POSTROUTING -o eth0 -j MASQUERADE
PostUp = wg set wg0 fwmark 1234
PostDown = iptables -D FORWARD -i wg0 -j ACCEPT
PostDown = iptables -t nat -D POSTROUTING -o eth0 -j MASQUERADE

[Peer]
# alice-laptop
PublicKey = {A}
AllowedIPs = 10.66.0.20/32
PersistentKeepalive = 25

[Peer]
# bob-desktop
# behind NAT, initiates connections only
PublicKey = {B}
AllowedIPs = 10.66.0.21/32
Endpoint = bob.example.org:51820
`

func TestGenerateRoundTrip(t *testing.T) {
	input := strings.NewReplacer(
		"{P}", testKey('P'), "{A}", testKey('A'), "{B}", testKey('B'),
	).Replace(roundTripInput)

	entities, err := wgconf.Parse(input)
	if err != nil {
		t.Fatal(err)
	}
	iface, _, err := extract.ExtractInterface(entities[0])
	if err != nil {
		t.Fatal(err)
	}
	d := model.Device{Interface: iface}
	for _, e := range entities[1:] {
		p, err := extract.ExtractPeer(e)
		if err != nil {
			t.Fatal(err)
		}
		d.Peers = append(d.Peers, p)
	}

	out := Generate(d)
	diffs, err := equiv.Check(input, out)
	if err != nil {
		t.Fatalf("equivalence check: %v", err)
	}
	if len(diffs) != 0 {
		t.Errorf("regenerated config is not equivalent to its source:\n%s\noutput:\n%s",
			strings.Join(diffs, "\n"), out)
	}

	// the canonical form is a fixed point
	diffs, err = equiv.Check(out, Generate(d))
	if err != nil {
		t.Fatal(err)
	}
	if len(diffs) != 0 {
		t.Errorf("canonical form drifted: %v", diffs)
	}
}
