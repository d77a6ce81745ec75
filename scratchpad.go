package dossier

import (
	"fmt"
	"strings"
)

// Scratchpad holds the evolving knowledge for one search topic while the
// Searcher runs follow-up queries.
type Scratchpad struct {
	Topic          string
	Reason         string
	Knowledge      string
	History        []string
	IterationCount int
}

// NewScratchpad initializes a scratchpad for a planned search.
func NewScratchpad(item WebSearchItem) Scratchpad {
	return Scratchpad{Topic: strings.TrimSpace(item.Query), Reason: strings.TrimSpace(item.Reason)}
}

// AppendHistory adds a concise action log entry.
func (s *Scratchpad) AppendHistory(entry string) {
	if entry == "" {
		return
	}
	s.History = append(s.History, entry)
}

// Snapshot renders the scratchpad state for prompting.
func (s Scratchpad) Snapshot() string {
	var b strings.Builder
	b.WriteString("Topic:\n")
	b.WriteString(s.Topic)
	if s.Reason != "" {
		b.WriteString("\n\nWhy it matters:\n")
		b.WriteString(s.Reason)
	}
	b.WriteString("\n\nKnowledge:\n")
	if strings.TrimSpace(s.Knowledge) == "" {
		b.WriteString("(empty)")
	} else {
		b.WriteString(s.Knowledge)
	}
	if len(s.History) > 0 {
		b.WriteString("\n\nHistory:\n")
		b.WriteString(strings.Join(s.History, "\n"))
	}
	b.WriteString(fmt.Sprintf("\n\nIteration: %d", s.IterationCount))
	return b.String()
}
