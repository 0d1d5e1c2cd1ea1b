// Package filter holds the zero-cost rejection stages: the keyword
// pre-filter and the entity-density screen. Both are pure and synchronous.
package filter

import "strings"

// PreFilter rejects obviously irrelevant items before any paid computation.
type PreFilter struct {
	blocklist []string
}

// NewPreFilter builds a pre-filter from configured blocklist keywords.
func NewPreFilter(blocklist []string) *PreFilter {
	lowered := make([]string, 0, len(blocklist))
	for _, kw := range blocklist {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &PreFilter{blocklist: lowered}
}

// Admit reports whether the (title, url) pair passes the blocklist. Any
// keyword appearing as a case-insensitive substring of either rejects.
func (f *PreFilter) Admit(title, url string) bool {
	title = strings.ToLower(title)
	url = strings.ToLower(url)
	for _, kw := range f.blocklist {
		if strings.Contains(title, kw) || strings.Contains(url, kw) {
			return false
		}
	}
	return true
}
