package reconstruct

import (
	"fmt"
	"regexp"
	"strings"
)

// Citation markers look like "turn0news4" or "turn1search2": turn index,
// reference type, reference index.
var markerRe = regexp.MustCompile(`turn\d+(?:news|search)\d+`)

// refKey derives the lookup key for a Source whose ref-id carries exactly
// the three linking fields. Sources with extra or missing fields are not
// addressable by markers.
func refKey(ref map[string]any) (string, bool) {
	if len(ref) != 3 {
		return "", false
	}
	turn, ok := asFloat(ref["turn_index"])
	if !ok {
		return "", false
	}
	refType, ok := ref["ref_type"].(string)
	if !ok {
		return "", false
	}
	refIdx, ok := asFloat(ref["ref_index"])
	if !ok {
		return "", false
	}
	return fmt.Sprintf("turn%d%s%d", int(turn), refType, int(refIdx)), true
}

// resolveCitations scans the raw text fragments (markers survive there; the
// display text typically has them stripped) for citation markers and
// resolves each unique marker against the source lookup. Returns the
// citations plus the resolved marker ids in first-seen order.
func resolveCitations(fragments []string, sources []Source) ([]Citation, []string) {
	lookup := make(map[string]Source)
	for _, src := range sources {
		if key, ok := refKey(src.Meta.RefID); ok {
			if _, dup := lookup[key]; !dup {
				lookup[key] = src
			}
		}
	}

	raw := strings.Join(fragments, "")
	seen := make(map[string]bool)

	var citations []Citation
	var resolved []string
	for _, marker := range markerRe.FindAllString(raw, -1) {
		if seen[marker] {
			continue
		}
		seen[marker] = true

		src, ok := lookup[marker]
		if !ok {
			continue
		}
		citations = append(citations, Citation{
			URL:   src.URL,
			Title: src.Title,
			Rank:  src.Rank,
			Meta: CitationMeta{
				Marker:     marker,
				RefID:      src.Meta.RefID,
				QueryIndex: src.Meta.QueryIndex,
				Snippet:    src.Snippet,
				PubDate:    src.PubDate,
			},
		})
		resolved = append(resolved, marker)
	}
	return citations, resolved
}
