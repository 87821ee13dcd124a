package reconstruct

// resultGroup is one bundle of retrieved entries, attributed to a domain.
type resultGroup struct {
	domain  string
	entries []any
}

// state is the mutable accumulator for one reconstruction pass. The group
// list may be sparse-extended with empty groups but never shrinks.
type state struct {
	queries   []string
	seenQuery map[string]bool

	groups    []resultGroup
	safeURLs  map[string]bool
	fragments []string

	assistant    map[string]any
	modelSlug    string
	defaultModel string
	classifier   any
}

func newState() *state {
	return &state{
		seenQuery: make(map[string]bool),
		safeURLs:  make(map[string]bool),
	}
}

func (st *state) applyMessage(msg map[string]any) {
	meta, _ := msg["metadata"].(map[string]any)
	if meta != nil {
		if s, ok := meta["model_slug"].(string); ok && s != "" {
			st.modelSlug = s
		}
		if s, ok := meta["default_model_slug"].(string); ok && s != "" {
			st.defaultModel = s
		}
		if c, ok := meta["sonic_classification_result"]; ok {
			st.classifier = c
		}
		if qs, ok := meta["search_queries"].([]any); ok {
			st.addQueries(qs)
		}
		if gs, ok := meta[groupsMarker].([]any); ok {
			st.setGroups(gs)
		}
	}

	if author, ok := msg["author"].(map[string]any); ok {
		if role, _ := author["role"].(string); role == "assistant" {
			// Last-resort text source only.
			st.assistant = msg
		}
	}
}

func (st *state) applyPatch(pv patchValue) {
	switch pv.kind {
	case patchSafeURLs:
		for _, u := range pv.urls {
			if s, ok := u.(string); ok && s != "" {
				st.safeURLs[s] = true
			}
		}
	case patchText:
		st.fragments = append(st.fragments, pv.text)
	case patchGroupList:
		st.setGroups(pv.groupList)
	case patchGroupAppend:
		st.groups = append(st.groups, asGroup(pv.group))
	case patchEntries:
		st.applyEntries(pv.entriesIdx, pv.op, pv.entries)
	}
}

// addQueries appends query strings in order, one per distinct string.
// Entries are either bare strings or dicts with a "q" field.
func (st *state) addQueries(list []any) {
	for _, item := range list {
		var q string
		switch v := item.(type) {
		case string:
			q = v
		case map[string]any:
			q, _ = v["q"].(string)
		}
		if q == "" || st.seenQuery[q] {
			continue
		}
		st.seenQuery[q] = true
		st.queries = append(st.queries, q)
	}
}

func (st *state) setGroups(list []any) {
	groups := make([]resultGroup, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			groups = append(groups, asGroup(m))
		}
	}
	st.groups = groups
}

// applyEntries grows the group list until index idx exists, then replaces
// or appends that group's entries depending on the operation.
func (st *state) applyEntries(idx int, op string, entries []any) {
	for len(st.groups) <= idx {
		st.groups = append(st.groups, resultGroup{})
	}
	if op == "replace" {
		st.groups[idx].entries = entries
		return
	}
	st.groups[idx].entries = append(st.groups[idx].entries, entries...)
}

func asGroup(m map[string]any) resultGroup {
	g := resultGroup{}
	if d, ok := m["domain"].(string); ok {
		g.domain = d
	} else if d, ok := m["attribution"].(string); ok {
		g.domain = d
	}
	if es, ok := m["entries"].([]any); ok {
		g.entries = es
	}
	return g
}
