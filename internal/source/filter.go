package source

import "strings"

// Filter decides which item names a source reports.
type Filter interface {
	Match(name string) bool
}

// AcceptAll matches every name.
type AcceptAll struct{}

func (AcceptAll) Match(string) bool { return true }

// SuffixFilter matches names ending in one of its suffixes. Without suffixes
// it matches everything.
type SuffixFilter struct {
	suffixes      []string
	caseSensitive bool
}

// NewSuffixFilter builds a case-insensitive suffix filter. Blank suffixes are ignored.
func NewSuffixFilter(suffixes ...string) SuffixFilter {
	f := SuffixFilter{}
	for _, s := range suffixes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		f.suffixes = append(f.suffixes, strings.ToLower(s))
	}
	return f
}

// NewCaseSensitiveSuffixFilter builds a suffix filter that compares exactly.
func NewCaseSensitiveSuffixFilter(suffixes ...string) SuffixFilter {
	out := SuffixFilter{caseSensitive: true}
	for _, s := range suffixes {
		if s = strings.TrimSpace(s); s != "" {
			out.suffixes = append(out.suffixes, s)
		}
	}
	return out
}

func (f SuffixFilter) Match(name string) bool {
	if len(f.suffixes) == 0 {
		return true
	}
	if !f.caseSensitive {
		name = strings.ToLower(name)
	}
	for _, s := range f.suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
