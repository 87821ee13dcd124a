package reconstruct

import (
	"net/url"
	"regexp"
	"strings"
)

var absoluteURLRe = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)

// normalizeURL strips tracking noise so that response links and source links
// compare equal: utm_* and "source" parameters go; if a "v" parameter is
// present only it survives (video ids identify the page by themselves).
func normalizeURL(raw string) string {
	raw = strings.TrimRight(raw, ".,;:!?")
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	q := u.Query()
	if v := q.Get("v"); v != "" {
		q = url.Values{"v": []string{v}}
	} else {
		for key := range q {
			if strings.HasPrefix(key, "utm_") || key == "source" {
				q.Del(key)
			}
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return u.String()
}

// extraLinkCount counts distinct normalized URLs in the response text that
// resolve to nothing in the source list: links the assistant volunteered
// beyond what retrieval produced.
func extraLinkCount(text string, sources []Source) int {
	known := make(map[string]bool, len(sources))
	for _, src := range sources {
		known[normalizeURL(src.URL)] = true
	}

	seen := make(map[string]bool)
	count := 0
	for _, raw := range absoluteURLRe.FindAllString(text, -1) {
		n := normalizeURL(raw)
		if seen[n] {
			continue
		}
		seen[n] = true
		if !known[n] {
			count++
		}
	}
	return count
}
