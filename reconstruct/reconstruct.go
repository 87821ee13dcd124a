// Package reconstruct rebuilds structured capture results from the raw
// patch-style update stream a chat web frontend receives.
//
// The stream interleaves full message updates with incremental patches
// (path, operation, value). Reconstruct replays them into an accumulator,
// partitions the recovered result groups across the recovered search
// queries, resolves citation markers in the text back to sources, and
// returns one immutable CaptureResult.
//
// reconstruct is pure: no I/O, no shared state, and it never fails. A
// malformed record is skipped; anything worse degrades to an explicitly
// empty result with the raw input preserved for offline diagnosis.
package reconstruct

import (
	"sort"
	"strings"
)

// Params are the caller-supplied inputs that accompany a raw frame blob.
type Params struct {
	// FallbackModel is used when the stream itself does not name a model.
	FallbackModel string
	// Provider is copied through to the result.
	Provider string
	// ResponseTimeMS is the measured end-to-end capture duration.
	ResponseTimeMS int64
	// ExtractedText is display text recovered outside the stream (from the
	// DOM). When present it takes priority over stream fragments.
	ExtractedText string
}

// Reconstruct parses a raw frame blob into a CaptureResult. It never
// returns an error: on any internal failure the result carries empty
// queries, sources and citations, the best available text, and the raw
// input.
func Reconstruct(rawFrames string, p Params) (result *CaptureResult) {
	result = emptyResult(rawFrames, p)
	defer func() {
		if r := recover(); r != nil {
			result = emptyResult(rawFrames, p)
		}
	}()

	st := newState()
	for _, line := range strings.Split(rawFrames, "\n") {
		rec, ok := decodeLine(line)
		if !ok {
			continue
		}
		if rec.message != nil {
			st.applyMessage(rec.message)
		}
		for _, pv := range rec.patches {
			st.applyPatch(pv)
		}
	}

	text := finalText(p.ExtractedText, st.fragments, st.assistant)
	queries, flat := buildQueries(st)
	citations, markers := resolveCitations(st.fragments, flat)

	model := st.modelSlug
	if model == "" {
		model = st.defaultModel
	}
	if model == "" {
		model = p.FallbackModel
	}

	safeURLs := make([]string, 0, len(st.safeURLs))
	for u := range st.safeURLs {
		safeURLs = append(safeURLs, u)
	}
	sort.Strings(safeURLs)

	return &CaptureResult{
		ResponseText:   text,
		Queries:        queries,
		Sources:        flat,
		Citations:      citations,
		RawFrames:      rawFrames,
		Model:          model,
		Provider:       p.Provider,
		ResponseTimeMS: p.ResponseTimeMS,
		Meta: ResultMeta{
			ExtraLinkCount: extraLinkCount(text, flat),
			SafeURLs:       safeURLs,
			Classifier:     st.classifier,
			ImageBehavior:  imageBehavior(st.assistant),
			CitedMarkers:   markers,
		},
	}
}

// emptyResult is the documented degraded output: no entities, best-effort
// text, raw input preserved.
func emptyResult(rawFrames string, p Params) *CaptureResult {
	return &CaptureResult{
		ResponseText:   p.ExtractedText,
		RawFrames:      rawFrames,
		Model:          p.FallbackModel,
		Provider:       p.Provider,
		ResponseTimeMS: p.ResponseTimeMS,
	}
}
