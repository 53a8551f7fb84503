package research

import "encoding/json"

// StepKind discriminates the variants of Step.
type StepKind string

const (
	StepSearch StepKind = "search"
	StepRead   StepKind = "read"
	StepThink  StepKind = "think"
)

// SearchResult is one hit attached to a search step.
type SearchResult struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// Step is one entry of a research chain.
//
// Only the fields of its Kind are meaningful:
//   - search: Query, ResultCount, Results
//   - read:   Domain, Summary
//   - think:  Content
type Step struct {
	Kind        StepKind       `json:"type"`
	Query       string         `json:"query,omitempty"`
	ResultCount int            `json:"resultCount,omitempty"`
	Results     []SearchResult `json:"results,omitempty"`
	Domain      string         `json:"domain,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Content     string         `json:"content,omitempty"`
}

// MarshalJSON always writes query, resultCount and results for search steps,
// even when the search found nothing. Other kinds omit empty fields.
func (s Step) MarshalJSON() ([]byte, error) {
	type plain Step
	if s.Kind != StepSearch {
		return json.Marshal(plain(s))
	}
	results := s.Results
	if results == nil {
		results = []SearchResult{}
	}
	return json.Marshal(struct {
		Kind        StepKind       `json:"type"`
		Query       string         `json:"query"`
		ResultCount int            `json:"resultCount"`
		Results     []SearchResult `json:"results"`
	}{s.Kind, s.Query, s.ResultCount, results})
}

// Chain is the structured trace of an agent's research for one response.
// Chains are treated as immutable values: Merge and Close return new chains.
type Chain struct {
	Summary   string `json:"summary"`
	Steps     []Step `json:"steps"`
	IsLoading bool   `json:"isLoading"`
}

// Clone returns a deep copy of the chain. A nil chain clones to nil.
func (c *Chain) Clone() *Chain {
	if c == nil {
		return nil
	}
	out := &Chain{
		Summary:   c.Summary,
		IsLoading: c.IsLoading,
		Steps:     make([]Step, len(c.Steps)),
	}
	for i, s := range c.Steps {
		out.Steps[i] = s.clone()
	}
	return out
}

// Terminal reports whether the chain has been closed and must not change any more.
func (c *Chain) Terminal() bool {
	return c != nil && !c.IsLoading
}

// Close returns a copy of the chain with IsLoading cleared.
// Closing a nil or already terminal chain returns it unchanged.
func Close(c *Chain) *Chain {
	if c == nil || c.Terminal() {
		return c
	}
	out := c.Clone()
	out.IsLoading = false
	return out
}

func (s Step) clone() Step {
	if s.Results != nil {
		results := make([]SearchResult, len(s.Results))
		copy(results, s.Results)
		s.Results = results
	}
	return s
}

// key returns the field used to detect consecutive duplicates.
func (s Step) key() string {
	switch s.Kind {
	case StepSearch:
		return s.Query
	case StepRead:
		return s.Domain
	default:
		return s.Content
	}
}

func (s Step) hasResult(url string) bool {
	for _, r := range s.Results {
		if r.URL == url {
			return true
		}
	}
	return false
}
