// Package srcset resolves the download URL for elements that advertise
// responsive variants. Pages that lazy-load imagery typically populate both a
// src attribute and a srcset attribute; the srcset lists candidates in
// ascending fidelity, so the last entry is the richest variant.
//
// Parsing is purely syntactic. Candidate descriptors ("640w", "2x") are
// carried through but never interpreted; selection relies only on position.
package srcset

import "strings"

// Candidate is a single entry from a srcset attribute.
type Candidate struct {
	// URL is the candidate asset URL as written in the markup.
	URL string

	// Descriptor is the optional width or density hint ("640w", "2x").
	// It is never parsed numerically.
	Descriptor string
}

// Parse splits a srcset attribute into its ordered candidates.
// Entries are separated by ", "; within an entry the URL ends at the first
// space and the remainder is the descriptor. Entries with an empty URL are
// dropped. Order is preserved.
func Parse(srcset string) []Candidate {
	if strings.TrimSpace(srcset) == "" {
		return nil
	}
	parts := strings.Split(srcset, ", ")
	candidates := make([]Candidate, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		url, descriptor, _ := strings.Cut(part, " ")
		if url == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			URL:        url,
			Descriptor: strings.TrimSpace(descriptor),
		})
	}
	return candidates
}

// Best picks the asset URL to download for one element. When the srcset
// attribute is absent, empty, or yields no usable candidate, the primary src
// value is returned unchanged. Otherwise the last candidate wins regardless
// of what src holds.
func Best(src, srcset string) string {
	candidates := Parse(srcset)
	if len(candidates) == 0 {
		return src
	}
	return candidates[len(candidates)-1].URL
}
