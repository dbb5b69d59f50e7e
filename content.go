package relay

import "encoding/json"

// CitationType tags the positional shape of a citation record.
type CitationType string

const (
	CitationPageLocation         CitationType = "page_location"
	CitationCharLocation         CitationType = "char_location"
	CitationContentBlockLocation CitationType = "content_block_location"
)

// Citation is a positional reference to a source document. The raw
// provider record is preserved alongside the tag so callers can read
// whichever positional fields apply.
type Citation struct {
	Type CitationType    `json:"type"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

// CitationPart binds a citation to the text delta it cites.
type CitationPart struct {
	Text     string   `json:"text"`
	Citation Citation `json:"citation"`
}

// AdditionalContent carries turn content that is neither user-visible
// text nor a tool call: thinking, its signature, and citations.
type AdditionalContent struct {
	Thinking          string         `json:"thinking,omitempty"`
	ThinkingSignature string         `json:"thinking_signature,omitempty"`
	Citations         []CitationPart `json:"citations,omitempty"`

	// CitationIndex points at the citation bound to the text delta of
	// the chunk carrying this bag. Nil outside citation-bearing chunks.
	CitationIndex *int `json:"citation_index,omitempty"`
}

// Empty reports whether the bag carries nothing worth surfacing.
func (a *AdditionalContent) Empty() bool {
	if a == nil {
		return true
	}
	return a.Thinking == "" && a.ThinkingSignature == "" && len(a.Citations) == 0 && a.CitationIndex == nil
}
