package reconstruct

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Wire constants of the captured stream. The protocol is SSE: each record is
// a "data:" line whose remainder is JSON. Heartbeats, the "[DONE]" sentinel
// and records that fail to decode are skipped without error.
const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"

	safeURLMarker  = "safe_urls"
	groupsMarker   = "search_result_groups"
	textPartSuffix = "/message/content/parts/0"
)

var entriesPathRe = regexp.MustCompile(`search_result_groups/(\d+)/entries`)

type patchKind int

const (
	patchOther patchKind = iota
	patchSafeURLs
	patchText
	patchGroupList
	patchGroupAppend
	patchEntries
)

// patchValue is the shape of a patch decided once at decode time, so the
// apply path never sniffs dynamic values again.
type patchValue struct {
	kind patchKind
	op   string

	urls       []any          // patchSafeURLs
	text       string         // patchText
	groupList  []any          // patchGroupList
	group      map[string]any // patchGroupAppend
	entriesIdx int            // patchEntries
	entries    []any          // patchEntries
}

// decodedRecord is one JSON record pulled off the stream: either a message
// update, one or more patches, or nothing recognizable.
type decodedRecord struct {
	message map[string]any
	patches []patchValue
}

// decodeLine turns a single raw stream line into a decodedRecord. The bool
// is false for anything that should be silently skipped.
func decodeLine(line string) (decodedRecord, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return decodedRecord{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" || payload == doneSentinel {
		return decodedRecord{}, false
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return decodedRecord{}, false
	}
	return classifyRecord(rec), true
}

func classifyRecord(rec map[string]any) decodedRecord {
	var out decodedRecord

	// Message update: the payload is itself a dict containing a message.
	if v, ok := rec["v"].(map[string]any); ok {
		if msg, ok := v["message"].(map[string]any); ok {
			out.message = msg
			return out
		}
	}

	// Patch update at the top level.
	if path, ok := rec["p"].(string); ok {
		if pv, ok := classifyPatch(path, opOf(rec), rec["v"]); ok {
			out.patches = append(out.patches, pv)
		}
		return out
	}

	// Batch: {"o":"patch","v":[{p,o,v}, ...]}.
	if opOf(rec) == "patch" {
		if batch, ok := rec["v"].([]any); ok {
			for _, item := range batch {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				path, ok := m["p"].(string)
				if !ok {
					continue
				}
				if pv, ok := classifyPatch(path, opOf(m), m["v"]); ok {
					out.patches = append(out.patches, pv)
				}
			}
		}
	}
	return out
}

// opOf reads the operation of a patch dict. The stream omits it for the
// common case, which behaves like append.
func opOf(m map[string]any) string {
	if o, ok := m["o"].(string); ok && o != "" {
		return o
	}
	return "append"
}

func classifyPatch(path, op string, value any) (patchValue, bool) {
	switch {
	case strings.Contains(path, safeURLMarker):
		urls, ok := value.([]any)
		if !ok {
			return patchValue{}, false
		}
		return patchValue{kind: patchSafeURLs, op: op, urls: urls}, true

	case strings.HasSuffix(path, textPartSuffix):
		s, ok := value.(string)
		if !ok {
			return patchValue{}, false
		}
		return patchValue{kind: patchText, op: op, text: s}, true

	case strings.Contains(path, groupsMarker):
		if m := entriesPathRe.FindStringSubmatch(path); m != nil {
			idx := 0
			for _, c := range m[1] {
				idx = idx*10 + int(c-'0')
			}
			entries, _ := value.([]any)
			return patchValue{kind: patchEntries, op: op, entriesIdx: idx, entries: entries}, true
		}
		switch v := value.(type) {
		case []any:
			return patchValue{kind: patchGroupList, op: op, groupList: v}, true
		case map[string]any:
			return patchValue{kind: patchGroupAppend, op: op, group: v}, true
		}
		return patchValue{}, false
	}
	return patchValue{kind: patchOther, op: op}, false
}
