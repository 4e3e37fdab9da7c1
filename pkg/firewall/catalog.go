package firewall

import "wg-fleet/pkg/model"

// Entry is one named firewall idiom: an ordered list of bring-up line
// templates and, unless the idiom is a one-shot, the tear-down templates
// that undo it. Templates are literal command skeletons with `{name}`
// placeholders; a placeholder whose name starts with '_' still has to match
// consistently but is left out of the extracted variables.
//
// The catalog is data evaluated by one generic matcher (see matcher.go);
// adding an idiom means adding an Entry here, not writing new code.
type Entry struct {
	Name  string
	Scope model.RuleScope
	Up    []string
	Down  []string // empty = singleton
}

// Catalog lists the recognized idioms. Order matters only for which entry
// claims a line first; more specific templates sit above looser ones.
var Catalog = []Entry{
	{
		Name:  "nat-masquerade-subnet-v4",
		Scope: model.ScopeEnvironment,
		Up: []string{
			"iptables -t nat -A POSTROUTING -s {subnet} -o {wan_iface} -j MASQUERADE",
		},
		Down: []string{
			"iptables -t nat -D POSTROUTING -s {subnet} -o {wan_iface} -j MASQUERADE",
		},
	},
	{
		Name:  "nat-masquerade-v4",
		Scope: model.ScopeEnvironment,
		Up: []string{
			"iptables -A FORWARD -i {_tun_iface} -j ACCEPT",
			"iptables -t nat -A POSTROUTING -o {wan_iface} -j MASQUERADE",
		},
		Down: []string{
			"iptables -D FORWARD -i {_tun_iface} -j ACCEPT",
			"iptables -t nat -D POSTROUTING -o {wan_iface} -j MASQUERADE",
		},
	},
	{
		Name:  "nat-masquerade-v6",
		Scope: model.ScopeEnvironment,
		Up: []string{
			"ip6tables -A FORWARD -i {_tun_iface} -j ACCEPT",
			"ip6tables -t nat -A POSTROUTING -o {wan_iface} -j MASQUERADE",
		},
		Down: []string{
			"ip6tables -D FORWARD -i {_tun_iface} -j ACCEPT",
			"ip6tables -t nat -D POSTROUTING -o {wan_iface} -j MASQUERADE",
		},
	},
	{
		Name:  "lan-forwarding-v4",
		Scope: model.ScopeEnvironment,
		Up: []string{
			"iptables -A FORWARD -i {tun_iface} -o {lan_iface} -j ACCEPT",
			"iptables -A FORWARD -i {lan_iface} -o {tun_iface} -j ACCEPT",
		},
		Down: []string{
			"iptables -D FORWARD -i {tun_iface} -o {lan_iface} -j ACCEPT",
			"iptables -D FORWARD -i {lan_iface} -o {tun_iface} -j ACCEPT",
		},
	},
	{
		Name:  "lan-forwarding-v6",
		Scope: model.ScopeEnvironment,
		Up: []string{
			"ip6tables -A FORWARD -i {tun_iface} -o {lan_iface} -j ACCEPT",
			"ip6tables -A FORWARD -i {lan_iface} -o {tun_iface} -j ACCEPT",
		},
		Down: []string{
			"ip6tables -D FORWARD -i {tun_iface} -o {lan_iface} -j ACCEPT",
			"ip6tables -D FORWARD -i {lan_iface} -o {tun_iface} -j ACCEPT",
		},
	},
	{
		Name:  "mss-clamp-v4",
		Scope: model.ScopeEnvironment,
		Up: []string{
			"iptables -t mangle -A FORWARD -o {tun_iface} -p tcp --tcp-flags SYN,RST SYN -j TCPMSS --clamp-mss-to-pmtu",
		},
		Down: []string{
			"iptables -t mangle -D FORWARD -o {tun_iface} -p tcp --tcp-flags SYN,RST SYN -j TCPMSS --clamp-mss-to-pmtu",
		},
	},
	{
		Name:  "mss-clamp-v6",
		Scope: model.ScopeEnvironment,
		Up: []string{
			"ip6tables -t mangle -A FORWARD -o {tun_iface} -p tcp --tcp-flags SYN,RST SYN -j TCPMSS --clamp-mss-to-pmtu",
		},
		Down: []string{
			"ip6tables -t mangle -D FORWARD -o {tun_iface} -p tcp --tcp-flags SYN,RST SYN -j TCPMSS --clamp-mss-to-pmtu",
		},
	},
	{
		Name:  "service-port-v4",
		Scope: model.ScopeEnvironment,
		Up: []string{
			"iptables -A INPUT -p {proto} --dport {port} -j ACCEPT",
		},
		Down: []string{
			"iptables -D INPUT -p {proto} --dport {port} -j ACCEPT",
		},
	},
	{
		Name:  "kernel-forwarding-v4",
		Scope: model.ScopeEnvironment,
		Up:    []string{"sysctl -w net.ipv4.ip_forward=1"},
	},
	{
		Name:  "kernel-forwarding-v6",
		Scope: model.ScopeEnvironment,
		Up:    []string{"sysctl -w net.ipv6.conf.all.forwarding=1"},
	},
	{
		Name:  "kernel-forwarding-proc-v4",
		Scope: model.ScopeEnvironment,
		Up:    []string{"echo 1 > /proc/sys/net/ipv4/ip_forward"},
	},
}
