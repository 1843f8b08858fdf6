// Package observe records structured observations and extracts them
// from session transcripts with rule-based patterns. No LLM involved.
package observe

import (
	"errors"
	"fmt"
)

// ErrUnknownTag is returned when an observation carries a tag outside
// the known vocabulary.
var ErrUnknownTag = errors.New("unknown observation tag")

// Core tags, ordered by extraction priority.
const (
	TagError    = "error"
	TagDecision = "decision"
	TagLearning = "learning"
	TagInsight  = "insight"

	// Extended tags captured from transcripts.
	TagPreference   = "preference"
	TagMistake      = "mistake"
	TagArchitecture = "architecture"
	TagNext         = "next"
)

// Tags lists the full vocabulary accepted by Record and the extractor.
var Tags = []string{
	TagError, TagDecision, TagLearning, TagInsight,
	TagPreference, TagMistake, TagArchitecture, TagNext,
}

var tagSet = func() map[string]struct{} {
	s := make(map[string]struct{}, len(Tags))
	for _, t := range Tags {
		s[t] = struct{}{}
	}
	return s
}()

// ValidateTag checks a tag against the vocabulary.
func ValidateTag(tag string) error {
	if _, ok := tagSet[tag]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	return nil
}
