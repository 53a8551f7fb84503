package research

import (
	"net/url"
	"regexp"
	"strings"
)

// Structured event types understood by Merge.
const (
	EventSearchQuery  = "search_query"
	EventSearchResult = "search_result"
	EventReading      = "reading"
	EventThinking     = "thinking"
	EventSummary      = "summary"
)

// Event is the research-relevant subset of one backend progress event.
type Event struct {
	EventType string
	Query     string
	Title     string
	URL       string
	Domain    string
	Message   string

	// Chain, when set, is an authoritative chain supplied by the backend.
	Chain *Chain
}

// IsZero reports whether the event carries nothing a chain could be built from.
func (e Event) IsZero() bool {
	return e.Chain == nil && e.EventType == "" && e.Query == "" && e.URL == "" &&
		e.Domain == "" && strings.TrimSpace(e.Message) == ""
}

// Merge folds one event into a chain and returns the resulting chain.
//
// Merge never mutates existing. When the event changes nothing (a duplicate, an
// empty log line, or a chain that is already terminal) existing is returned as is,
// so callers can detect changes by pointer identity.
//
// Priority: a pre-formed chain replaces everything; then structured eventType
// handling; then keyword classification of the free-text message.
func Merge(existing *Chain, ev Event) *Chain {
	if existing.Terminal() {
		return existing
	}

	if ev.Chain != nil {
		out := ev.Chain.Clone()
		out.IsLoading = true
		if out.Steps == nil {
			out.Steps = []Step{}
		}
		return out
	}

	switch ev.EventType {
	case EventSearchQuery:
		if ev.Query == "" {
			return existing
		}
		return appendStep(existing, Step{Kind: StepSearch, Query: ev.Query, Results: []SearchResult{}})

	case EventSearchResult:
		return mergeSearchResult(existing, ev)

	case EventReading:
		domain := ev.Domain
		if domain == "" {
			domain = hostname(ev.URL)
		}
		if domain == "" {
			domain = ev.Message
		}
		if domain == "" {
			return existing
		}
		summary := ev.Title
		if summary == "" {
			summary = ev.Message
		}
		return appendStep(existing, Step{Kind: StepRead, Domain: domain, Summary: summary})

	case EventThinking:
		if strings.TrimSpace(ev.Message) == "" {
			return existing
		}
		return appendStep(existing, Step{Kind: StepThink, Content: ev.Message})

	case EventSummary:
		if ev.Message == "" || (existing != nil && existing.Summary == ev.Message) {
			return existing
		}
		out := ensure(existing)
		out.Summary = ev.Message
		return out
	}

	step, ok := Classify(ev.Message)
	if !ok {
		return existing
	}
	return appendStep(existing, step)
}

// ensure returns a fresh copy of c, or a new loading chain when c is nil.
func ensure(c *Chain) *Chain {
	if c == nil {
		return &Chain{Steps: []Step{}, IsLoading: true}
	}
	return c.Clone()
}

// appendStep appends step unless it repeats the last step's key field.
func appendStep(c *Chain, step Step) *Chain {
	if c != nil && len(c.Steps) > 0 {
		last := c.Steps[len(c.Steps)-1]
		if last.Kind == step.Kind && last.key() == step.key() {
			return c
		}
	}
	out := ensure(c)
	out.Steps = append(out.Steps, step)
	return out
}

func mergeSearchResult(c *Chain, ev Event) *Chain {
	if ev.URL == "" {
		return c
	}

	result := SearchResult{Title: ev.Title, URL: ev.URL, Domain: ev.Domain}
	if result.Domain == "" {
		result.Domain = hostname(ev.URL)
	}

	idx := -1
	if c != nil {
		for i := len(c.Steps) - 1; i >= 0; i-- {
			if c.Steps[i].Kind == StepSearch {
				idx = i
				break
			}
		}
	}

	// A result with no preceding query opens an implicit search step.
	if idx < 0 {
		out := ensure(c)
		out.Steps = append(out.Steps, Step{
			Kind:        StepSearch,
			Query:       ev.Query,
			Results:     []SearchResult{result},
			ResultCount: 1,
		})
		return out
	}

	if c.Steps[idx].hasResult(result.URL) {
		return c
	}

	out := c.Clone()
	step := &out.Steps[idx]
	step.Results = append(step.Results, result)
	step.ResultCount = len(step.Results)
	return out
}

var (
	urlPattern = regexp.MustCompile(`https?://[^\s"'<>()\[\]]+`)

	// Leading filler in log lines such as "Searching the web for: cats".
	searchFiller = regexp.MustCompile(`(?i)^\s*(?:now\s+)?(?:i'?m\s+|i\s+am\s+)?(?:searching|search(?:ed)?|googling|googled|google)(?:\s+(?:the\s+)?(?:web|internet|online|google))?(?:\s+(?:for|about|on))?\s*[:\-]?\s*`)

	searchKeywords = []string{"search", "googl"}
	readKeywords   = []string{"read", "brow", "access", "fetch", "extract"}
)

// Classify maps a free-text log line to a step using keyword heuristics.
//
// Search keywords are checked before read keywords, so a line mentioning both
// becomes a search step. Lines matching neither become think steps. Blank lines
// produce no step.
func Classify(message string) (Step, bool) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Step{}, false
	}

	lower := strings.ToLower(message)

	if containsAny(lower, searchKeywords) {
		return Step{Kind: StepSearch, Query: searchQuery(message), Results: []SearchResult{}}, true
	}

	if containsAny(lower, readKeywords) {
		domain := message
		if u := urlPattern.FindString(message); u != "" {
			if host := hostname(u); host != "" {
				domain = host
			}
		}
		return Step{Kind: StepRead, Domain: domain, Summary: message}, true
	}

	return Step{Kind: StepThink, Content: message}, true
}

func searchQuery(message string) string {
	q := searchFiller.ReplaceAllString(message, "")
	q = strings.TrimSpace(q)
	q = strings.TrimRight(q, ". …")
	q = strings.Trim(q, `"'“”`)
	if q == "" {
		return message
	}
	return q
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func hostname(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
