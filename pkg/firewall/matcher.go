package firewall

import (
	"fmt"
	"regexp"
	"strings"

	"wg-fleet/pkg/model"
)

// Mismatch records an idiom whose bring-up half matched but whose tear-down
// half did not, or disagreed on a captured value. The lines involved stay in
// the unrecognized buckets; forcing a pair would silently misattribute them.
type Mismatch struct {
	PatternName string
	Reason      string
}

// Result is the outcome of matching one section's command lists.
type Result struct {
	Pairs         []model.CommandPair
	Singletons    []model.CommandSingleton
	UnmatchedUp   []string
	UnmatchedDown []string
	Mismatches    []Mismatch
}

var (
	placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	spaceRunRe    = regexp.MustCompile(`\s+`)
	separatorRe   = regexp.MustCompile(`;|&&`)
)

// SplitCommands flattens raw PostUp/PostDown values into individual
// commands: statement separators are split apart, surrounding whitespace is
// trimmed, empty fragments are dropped.
func SplitCommands(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range separatorRe.Split(v, -1) {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Family strips the address-family suffix from a pattern name, so
// "nat-masquerade-v4" and "nat-masquerade-v6" both report "nat-masquerade".
// Rationale comments target families, not individual entries.
func Family(patternName string) string {
	name := strings.TrimSuffix(patternName, "-v4")
	name = strings.TrimSuffix(name, "-v6")
	name = strings.TrimSuffix(name, "-proc")
	name = strings.TrimSuffix(name, "-subnet")
	return name
}

type compiledEntry struct {
	Entry
	up   []*regexp.Regexp
	down []*regexp.Regexp
}

var compiled = compileCatalog(Catalog)

func compileCatalog(entries []Entry) []compiledEntry {
	out := make([]compiledEntry, 0, len(entries))
	for _, e := range entries {
		ce := compiledEntry{Entry: e}
		for _, t := range e.Up {
			ce.up = append(ce.up, compileTemplate(t))
		}
		for _, t := range e.Down {
			ce.down = append(ce.down, compileTemplate(t))
		}
		out = append(out, ce)
	}
	return out
}

// compileTemplate turns a command skeleton into an anchored regex. Literal
// runs of whitespace match any whitespace so hand-edited spacing still
// lines up; placeholders become named captures over one shell word.
func compileTemplate(tmpl string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	rest := tmpl
	for {
		loc := placeholderRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			b.WriteString(quoteFlexible(rest))
			break
		}
		b.WriteString(quoteFlexible(rest[:loc[0]]))
		fmt.Fprintf(&b, `(?P<%s>\S+)`, rest[loc[2]:loc[3]])
		rest = rest[loc[1]:]
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func quoteFlexible(literal string) string {
	return spaceRunRe.ReplaceAllString(regexp.QuoteMeta(literal), `\s+`)
}

// Recognize matches the bring-up and tear-down command lists of one section
// against the catalog. Each line is claimed by at most one matched entry; an
// entry may match repeatedly (two exposed service ports are two pairs).
// Lines nothing claims come back in the unmatched buckets in original order.
func Recognize(up, down []string) Result {
	var res Result
	claimedUp := make([]bool, len(up))
	claimedDown := make([]bool, len(down))

	for _, entry := range compiled {
		for {
			vars := map[string]string{}
			upIdx, ok := matchTemplates(entry.up, up, claimedUp, vars)
			if !ok {
				break
			}
			if len(entry.down) > 0 {
				downIdx, ok := matchTemplates(entry.down, down, claimedDown, vars)
				if !ok {
					res.Mismatches = append(res.Mismatches, Mismatch{
						PatternName: entry.Name,
						Reason:      "tear-down commands missing or captured variables disagree",
					})
					break
				}
				for _, i := range upIdx {
					claimedUp[i] = true
				}
				for _, i := range downIdx {
					claimedDown[i] = true
				}
				res.Pairs = append(res.Pairs, model.CommandPair{
					PatternName:  entry.Name,
					Scope:        entry.Scope,
					UpCommands:   pick(up, upIdx),
					DownCommands: pick(down, downIdx),
					Variables:    exported(vars),
				})
				continue
			}
			for _, i := range upIdx {
				claimedUp[i] = true
			}
			res.Singletons = append(res.Singletons, model.CommandSingleton{
				PatternName: entry.Name,
				Scope:       entry.Scope,
				UpCommands:  pick(up, upIdx),
				Variables:   exported(vars),
			})
		}
	}

	for i, line := range up {
		if !claimedUp[i] {
			res.UnmatchedUp = append(res.UnmatchedUp, line)
		}
	}
	for i, line := range down {
		if !claimedDown[i] {
			res.UnmatchedDown = append(res.UnmatchedDown, line)
		}
	}
	return res
}

// matchTemplates finds, in order, one unclaimed line per template whose
// captures agree with vars (and with each other). On success the captures
// are merged into vars and the chosen indices returned. No lines are claimed
// here; the caller decides once the whole entry has succeeded.
func matchTemplates(templates []*regexp.Regexp, lines []string, claimed []bool, vars map[string]string) ([]int, bool) {
	chosen := make([]int, 0, len(templates))
	taken := make(map[int]bool, len(templates))
	local := map[string]string{}
	for k, v := range vars {
		local[k] = v
	}

	for _, re := range templates {
		found := -1
		for i, line := range lines {
			if claimed[i] || taken[i] {
				continue
			}
			m := re.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			if merged, ok := mergeCaptures(local, re, m); ok {
				local = merged
				found = i
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		chosen = append(chosen, found)
		taken[found] = true
	}

	for k, v := range local {
		vars[k] = v
	}
	return chosen, true
}

func mergeCaptures(vars map[string]string, re *regexp.Regexp, match []string) (map[string]string, bool) {
	merged := make(map[string]string, len(vars))
	for k, v := range vars {
		merged[k] = v
	}
	for i, name := range re.SubexpNames() {
		if name == "" {
			continue
		}
		if prev, ok := merged[name]; ok && prev != match[i] {
			return nil, false
		}
		merged[name] = match[i]
	}
	return merged, true
}

// pick selects lines by matched index, in template order.
func pick(lines []string, idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, strings.TrimSpace(lines[i]))
	}
	return out
}

// exported drops underscore-prefixed placeholders: they constrain matching
// but are not part of the idiom's parameters.
func exported(vars map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range vars {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
