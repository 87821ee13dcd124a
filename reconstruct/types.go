package reconstruct

// CaptureResult is the terminal, immutable output of a reconstruction pass.
// Everything downstream (persistence, event folding) consumes it as-is.
type CaptureResult struct {
	ResponseText   string        `json:"response_text"`
	Queries        []SearchQuery `json:"queries"`
	Sources        []Source      `json:"sources"`
	Citations      []Citation    `json:"citations"`
	RawFrames      string        `json:"raw_frames,omitempty"`
	Model          string        `json:"model"`
	Provider       string        `json:"provider"`
	ResponseTimeMS int64         `json:"response_time_ms"`
	Meta           ResultMeta    `json:"metadata"`
}

// ResultMeta carries the diagnostic extras recovered alongside the main
// entities.
type ResultMeta struct {
	ExtraLinkCount int           `json:"extra_link_count"`
	SafeURLs       []string      `json:"safe_urls,omitempty"`
	Classifier     any           `json:"classifier,omitempty"`
	ImageBehavior  ImageBehavior `json:"image_behavior"`
	CitedMarkers   []string      `json:"cited_markers,omitempty"`
}

// ImageBehavior records whether the assistant message carried inline image
// content, with the raw payload kept for offline inspection.
type ImageBehavior struct {
	Present bool `json:"present"`
	Raw     any  `json:"raw,omitempty"`
}

// SearchQuery is one distinct query string recovered from the stream, with
// the sources attributed to it.
type SearchQuery struct {
	Text       string   `json:"text"`
	OrderIndex int      `json:"order_index"`
	Sources    []Source `json:"sources"`
}

// Source is one retrieved result entry. Rank is unique within the owning
// query and assigned in visitation order starting at 1.
type Source struct {
	URL           string     `json:"url"`
	Title         string     `json:"title,omitempty"`
	Domain        string     `json:"domain,omitempty"`
	Rank          int        `json:"rank"`
	PubDate       string     `json:"pub_date,omitempty"`
	Snippet       string     `json:"snippet,omitempty"`
	InternalScore float64    `json:"internal_score,omitempty"`
	Meta          SourceMeta `json:"metadata"`
}

// SourceMeta preserves the linking fields a Source was built from.
type SourceMeta struct {
	RefID       map[string]any `json:"ref_id,omitempty"`
	Attribution string         `json:"attribution,omitempty"`
	Safe        bool           `json:"safe"`
	QueryIndex  int            `json:"query_index"`
}

// Citation is a marker in the response text resolved against a known Source.
// Rank is copied from the resolved Source.
type Citation struct {
	URL   string       `json:"url"`
	Title string       `json:"title,omitempty"`
	Rank  int          `json:"rank"`
	Meta  CitationMeta `json:"metadata"`
}

// CitationMeta ties a citation back to its marker and owning query.
type CitationMeta struct {
	Marker     string         `json:"marker"`
	RefID      map[string]any `json:"ref_id,omitempty"`
	QueryIndex int            `json:"query_index"`
	Snippet    string         `json:"snippet,omitempty"`
	PubDate    string         `json:"pub_date,omitempty"`
}
