package models

// ReviewRequest is a single review submission handed to the LLM client.
// It is built once per run and not modified afterwards.
type ReviewRequest struct {
	Files       []SourceFile
	ModelID     string
	MaxTokens   int
	Temperature float64
}

// TokenUsage records the token accounting returned by the LLM endpoint.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// RawReviewResponse is the validated completion returned by the LLM client.
type RawReviewResponse struct {
	Text      string     `json:"text"`
	Usage     TokenUsage `json:"token_usage"`
	ModelID   string     `json:"model_id"`
	LatencyMS int64      `json:"latency_ms"`
	Cached    bool       `json:"cached,omitempty"`
}

// Section is one of the fixed review dimensions.
type Section string

const (
	SectionQuality       Section = "quality"
	SectionArchitecture  Section = "architecture"
	SectionBugs          Section = "bugs"
	SectionSecurity      Section = "security"
	SectionPerformance   Section = "performance"
	SectionBestPractices Section = "best_practices"
	SectionSuggestions   Section = "suggestions"
)

var sectionOrder = []Section{
	SectionQuality,
	SectionArchitecture,
	SectionBugs,
	SectionSecurity,
	SectionPerformance,
	SectionBestPractices,
	SectionSuggestions,
}

var sectionTitles = map[Section]string{
	SectionQuality:       "Code Quality & Readability",
	SectionArchitecture:  "Modularity & Architecture",
	SectionBugs:          "Potential Bugs",
	SectionSecurity:      "Security Issues",
	SectionPerformance:   "Performance Analysis",
	SectionBestPractices: "Best Practices",
	SectionSuggestions:   "Improvement Suggestions",
}

// AllSections returns the recognized sections in report order.
func AllSections() []Section {
	out := make([]Section, len(sectionOrder))
	copy(out, sectionOrder)
	return out
}

// Title returns the display heading for the section.
func (s Section) Title() string {
	if t, ok := sectionTitles[s]; ok {
		return t
	}
	return string(s)
}

// ParsedReview is the model response split into recognized sections.
// Every recognized section has a key, possibly with empty content.
type ParsedReview struct {
	Sections map[Section]string `json:"sections"`
	// Other holds text that appeared before any recognized header.
	Other string `json:"other,omitempty"`
	// ComplexityHints maps a file's base name to the raw lines mentioning
	// a Big-O expression for it.
	ComplexityHints map[string][]string `json:"complexity_hints,omitempty"`
}

// NewParsedReview returns a ParsedReview with every section present and empty.
func NewParsedReview() ParsedReview {
	p := ParsedReview{
		Sections:        make(map[Section]string, len(sectionOrder)),
		ComplexityHints: make(map[string][]string),
	}
	for _, s := range sectionOrder {
		p.Sections[s] = ""
	}
	return p
}
