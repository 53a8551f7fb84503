package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/eternisai/research-bridge/internal/client"
	"github.com/eternisai/research-bridge/internal/research"
)

// renderer prints the parts of a message that changed since the last commit.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	printed map[string]string
	steps   map[string]int
}

func newRenderer(out io.Writer, verbose bool) *renderer {
	return &renderer{
		out:     out,
		verbose: verbose,
		printed: make(map[string]string),
		steps:   make(map[string]int),
	}
}

func (r *renderer) commit(id string, m client.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.verbose && m.ResearchChain != nil {
		seen := min(r.steps[id], len(m.ResearchChain.Steps))
		for _, step := range m.ResearchChain.Steps[seen:] {
			fmt.Fprintf(r.out, "  [%s] %s\n", step.Kind, stepLabel(step))
		}
		r.steps[id] = len(m.ResearchChain.Steps)
	}

	prev := r.printed[id]
	switch {
	case m.Content == prev:
	case strings.HasPrefix(m.Content, prev):
		fmt.Fprint(r.out, m.Content[len(prev):])
	default:
		// The content was replaced rather than extended; start it on a new line.
		fmt.Fprint(r.out, "\n"+m.Content)
	}
	r.printed[id] = m.Content
}

func (r *renderer) summary(m client.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.out)
	if m.Status == client.StatusFailed {
		return
	}
	if len(m.SearchResults) > 0 {
		fmt.Fprintf(r.out, "\nSources: %d\n", len(m.SearchResults))
	}
	if m.AudioURL != "" {
		fmt.Fprintf(r.out, "Audio: %s\n", m.AudioURL)
	}
	if m.SessionID != "" {
		fmt.Fprintf(r.out, "Session: %s\n", m.SessionID)
	}
}

func stepLabel(s research.Step) string {
	var parts []string
	for _, v := range []string{s.Query, s.Domain, s.Summary} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return s.Content
	}
	return strings.Join(parts, " | ")
}
