package firewall

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"wg-fleet/pkg/model"
)

func TestSplitCommands(t *testing.T) {
	got := SplitCommands([]string{
		"iptables -A INPUT -p udp --dport 51820 -j ACCEPT; iptables -A INPUT -p tcp --dport 443 -j ACCEPT",
		"  sysctl -w net.ipv4.ip_forward=1  ",
		"echo a && echo b",
		"",
	})
	want := []string{
		"iptables -A INPUT -p udp --dport 51820 -j ACCEPT",
		"iptables -A INPUT -p tcp --dport 443 -j ACCEPT",
		"sysctl -w net.ipv4.ip_forward=1",
		"echo a",
		"echo b",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitCommands mismatch (-want +got):\n%s", diff)
	}
}

func TestFamily(t *testing.T) {
	tests := []struct{ in, want string }{
		{"nat-masquerade-v4", "nat-masquerade"},
		{"nat-masquerade-subnet-v4", "nat-masquerade"},
		{"kernel-forwarding-proc-v4", "kernel-forwarding"},
		{"service-port-v4", "service-port"},
		{"mss-clamp-v6", "mss-clamp"},
	}
	for _, tt := range tests {
		if got := Family(tt.in); got != tt.want {
			t.Errorf("Family(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecognizeMasqueradePair(t *testing.T) {
	up := []string{
		"iptables -A FORWARD -i wg0 -j ACCEPT",
		"iptables -t nat -A POSTROUTING -o eth0 -j MASQUERADE",
	}
	down := []string{
		"iptables -D FORWARD -i wg0 -j ACCEPT",
		"iptables -t nat -D POSTROUTING -o eth0 -j MASQUERADE",
	}
	res := Recognize(up, down)
	if len(res.Pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d (unmatched up %v)", len(res.Pairs), res.UnmatchedUp)
	}
	p := res.Pairs[0]
	if p.PatternName != "nat-masquerade-v4" {
		t.Errorf("pattern = %q, want nat-masquerade-v4", p.PatternName)
	}
	// the tunnel interface is a matching constraint, not a parameter
	if diff := cmp.Diff(map[string]string{"wan_iface": "eth0"}, p.Variables); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(up, p.UpCommands); diff != "" {
		t.Errorf("bring-up commands mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(down, p.DownCommands); diff != "" {
		t.Errorf("tear-down commands mismatch (-want +got):\n%s", diff)
	}
	if len(res.UnmatchedUp) != 0 || len(res.UnmatchedDown) != 0 || len(res.Mismatches) != 0 {
		t.Errorf("expected clean match, got %+v", res)
	}
}

func TestRecognizeSubnetMasqueradePreferred(t *testing.T) {
	up := []string{"iptables -t nat -A POSTROUTING -s 10.66.0.0/24 -o eth0 -j MASQUERADE"}
	down := []string{"iptables -t nat -D POSTROUTING -s 10.66.0.0/24 -o eth0 -j MASQUERADE"}
	res := Recognize(up, down)
	if len(res.Pairs) != 1 || res.Pairs[0].PatternName != "nat-masquerade-subnet-v4" {
		t.Fatalf("expected nat-masquerade-subnet-v4, got %+v", res.Pairs)
	}
	want := map[string]string{"subnet": "10.66.0.0/24", "wan_iface": "eth0"}
	if diff := cmp.Diff(want, res.Pairs[0].Variables); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}
}

func TestRecognizeRepeatedServicePorts(t *testing.T) {
	up := []string{
		"iptables -A INPUT -p udp --dport 51820 -j ACCEPT",
		"iptables -A INPUT -p tcp --dport 443 -j ACCEPT",
	}
	down := []string{
		"iptables -D INPUT -p udp --dport 51820 -j ACCEPT",
		"iptables -D INPUT -p tcp --dport 443 -j ACCEPT",
	}
	res := Recognize(up, down)
	if len(res.Pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(res.Pairs))
	}
	vars := []map[string]string{res.Pairs[0].Variables, res.Pairs[1].Variables}
	want := []map[string]string{
		{"proto": "udp", "port": "51820"},
		{"proto": "tcp", "port": "443"},
	}
	if diff := cmp.Diff(want, vars); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}
}

func TestRecognizeSingleton(t *testing.T) {
	res := Recognize([]string{"sysctl -w net.ipv4.ip_forward=1"}, nil)
	if len(res.Singletons) != 1 {
		t.Fatalf("expected 1 singleton, got %+v", res)
	}
	sg := res.Singletons[0]
	if sg.PatternName != "kernel-forwarding-v4" || sg.Scope != model.ScopeEnvironment {
		t.Errorf("unexpected singleton %+v", sg)
	}
	if sg.Variables != nil {
		t.Errorf("singleton should have no variables, got %v", sg.Variables)
	}
}

func TestRecognizeMissingTearDown(t *testing.T) {
	up := []string{
		"iptables -A FORWARD -i wg0 -j ACCEPT",
		"iptables -t nat -A POSTROUTING -o eth0 -j MASQUERADE",
	}
	res := Recognize(up, nil)
	if len(res.Pairs) != 0 {
		t.Fatalf("pair should not form without its tear-down half: %+v", res.Pairs)
	}
	if len(res.Mismatches) != 1 || res.Mismatches[0].PatternName != "nat-masquerade-v4" {
		t.Fatalf("expected one nat-masquerade-v4 mismatch, got %+v", res.Mismatches)
	}
	if diff := cmp.Diff(up, res.UnmatchedUp); diff != "" {
		t.Errorf("unmatched lines must survive intact (-want +got):\n%s", diff)
	}
}

func TestRecognizeVariableDisagreement(t *testing.T) {
	up := []string{"iptables -t mangle -A FORWARD -o wg0 -p tcp --tcp-flags SYN,RST SYN -j TCPMSS --clamp-mss-to-pmtu"}
	down := []string{"iptables -t mangle -D FORWARD -o wg1 -p tcp --tcp-flags SYN,RST SYN -j TCPMSS --clamp-mss-to-pmtu"}
	res := Recognize(up, down)
	if len(res.Pairs) != 0 {
		t.Fatalf("disagreeing captures must not pair: %+v", res.Pairs)
	}
	if len(res.Mismatches) != 1 || res.Mismatches[0].PatternName != "mss-clamp-v4" {
		t.Fatalf("expected mss-clamp-v4 mismatch, got %+v", res.Mismatches)
	}
	if len(res.UnmatchedUp) != 1 || len(res.UnmatchedDown) != 1 {
		t.Errorf("both halves should stay unmatched: %+v", res)
	}
}

func TestRecognizeFlexibleSpacing(t *testing.T) {
	up := []string{"iptables  -A  FORWARD -i wg0 -o eth1 -j ACCEPT", "iptables -A FORWARD -i eth1 -o wg0 -j ACCEPT"}
	down := []string{"iptables -D FORWARD -i wg0 -o eth1 -j ACCEPT", "iptables -D FORWARD -i eth1 -o wg0 -j ACCEPT"}
	res := Recognize(up, down)
	if len(res.Pairs) != 1 || res.Pairs[0].PatternName != "lan-forwarding-v4" {
		t.Fatalf("expected lan-forwarding-v4 despite uneven spacing, got %+v", res)
	}
	want := map[string]string{"tun_iface": "wg0", "lan_iface": "eth1"}
	if diff := cmp.Diff(want, res.Pairs[0].Variables); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}
}

func TestRecognizeUnknownCommand(t *testing.T) {
	res := Recognize([]string{"wg set wg0 fwmark 1234"}, []string{"true"})
	if len(res.Pairs) != 0 || len(res.Singletons) != 0 {
		t.Fatalf("nothing should match: %+v", res)
	}
	if len(res.UnmatchedUp) != 1 || len(res.UnmatchedDown) != 1 {
		t.Errorf("unknown lines must be preserved: %+v", res)
	}
}
