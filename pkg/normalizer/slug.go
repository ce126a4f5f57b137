package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var slotNameRe = regexp.MustCompile(`^[a-z][a-zA-Z0-9_]*$`)

// Slugify lowercases s, replaces every run of non-alphanumeric characters
// with a single underscore and trims underscores from both ends.
//
//	Slugify("Primary Requester!") == "primary_requester"
func Slugify(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// namer hands out unique slugs and remembers every label it has seen.
type namer struct {
	prefix string
	used   map[string]bool
	lookup map[string]string
}

func newNamer(prefix string) *namer {
	return &namer{prefix: prefix, used: map[string]bool{}, lookup: map[string]string{}}
}

// name derives a unique identifier from the first non-empty label.
// keep, when non-nil, accepts a label verbatim instead of slugging it.
func (n *namer) name(index int, keep func(string) bool, labels ...string) string {
	var base string
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if keep != nil && keep(l) {
			base = l
		} else {
			base = Slugify(l)
		}
		if base != "" {
			break
		}
	}
	if base == "" {
		base = fmt.Sprintf("%s_%d", n.prefix, index+1)
	}
	if base[0] >= '0' && base[0] <= '9' {
		base = n.prefix + "_" + base
	}

	name := base
	for i := 2; n.used[name]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	n.used[name] = true

	n.alias(name, name)
	for _, l := range labels {
		n.alias(l, name)
	}
	return name
}

// alias records label as another spelling of name. First writer wins so a
// later duplicate label cannot steal an earlier reference.
func (n *namer) alias(label, name string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return
	}
	for _, k := range []string{label, strings.ToLower(label), Slugify(label)} {
		if k == "" {
			continue
		}
		if _, taken := n.lookup[k]; !taken {
			n.lookup[k] = name
		}
	}
}

// resolve maps a reference to its canonical name. Unknown references are
// returned unchanged so validation can report them.
func (n *namer) resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	for _, k := range []string{ref, strings.ToLower(ref), Slugify(ref)} {
		if name, ok := n.lookup[k]; ok {
			return name, true
		}
	}
	return ref, false
}

func keepSlotName(label string) bool {
	return slotNameRe.MatchString(label)
}
