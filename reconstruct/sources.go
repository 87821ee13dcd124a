package reconstruct

import (
	"strconv"
	"time"
)

const entryTypeResult = "search_result"

// buildQueries partitions the collected groups across the collected queries
// and materializes Sources. With M groups and N queries, each query receives
// a contiguous chunk of ceil(M/N) groups (possibly empty). Ranks restart at
// 1 per query, not per group.
func buildQueries(st *state) ([]SearchQuery, []Source) {
	n := len(st.queries)
	if n == 0 {
		return nil, nil
	}

	m := len(st.groups)
	chunk := 0
	if m > 0 {
		chunk = (m + n - 1) / n
	}

	queries := make([]SearchQuery, 0, n)
	var flat []Source

	for i, text := range st.queries {
		q := SearchQuery{Text: text, OrderIndex: i}

		start := i * chunk
		end := start + chunk
		if start > m {
			start = m
		}
		if end > m {
			end = m
		}

		rank := 1
		for _, g := range st.groups[start:end] {
			for _, e := range g.entries {
				entry, ok := e.(map[string]any)
				if !ok {
					continue
				}
				if t, _ := entry["type"].(string); t != entryTypeResult {
					continue
				}
				src, ok := buildSource(entry, g, i, rank, st.safeURLs)
				if !ok {
					continue
				}
				rank++
				q.Sources = append(q.Sources, src)
				flat = append(flat, src)
			}
		}
		queries = append(queries, q)
	}
	return queries, flat
}

func buildSource(entry map[string]any, g resultGroup, queryIdx, rank int, safe map[string]bool) (Source, bool) {
	u, _ := entry["url"].(string)
	if u == "" {
		return Source{}, false
	}

	attribution, _ := entry["attribution"].(string)
	domain := g.domain
	if domain == "" {
		domain = attribution
	}
	if attribution == "" {
		attribution = g.domain
	}

	src := Source{
		URL:    u,
		Rank:   rank,
		Domain: domain,
		Meta: SourceMeta{
			Attribution: attribution,
			Safe:        safe[u],
			QueryIndex:  queryIdx,
		},
	}
	src.Title, _ = entry["title"].(string)
	src.Snippet, _ = entry["snippet"].(string)
	if score, ok := asFloat(entry["score"]); ok {
		src.InternalScore = score
	}
	if ref, ok := entry["ref_id"].(map[string]any); ok {
		src.Meta.RefID = ref
	}
	if ts, ok := asFloat(entry["pub_date"]); ok {
		src.PubDate = time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
	}
	return src, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
