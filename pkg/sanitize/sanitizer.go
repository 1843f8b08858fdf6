// Package sanitize filters prompt-injection patterns before text is
// stored in memory files or the search index.
package sanitize

import "regexp"

// Replacement marks removed injection content.
const Replacement = "[FILTERED]"

var injectionPatterns = []string{
	// direct instruction injection
	`ignore (?:all )?previous instructions`,
	`disregard (?:all )?(?:previous|above)`,
	`forget (?:everything|all|your)`,
	`you are now`,
	`new instructions:`,
	`system prompt:`,
	`<\|im_start\|>system`,
	// URL-based exfiltration
	`send (?:the |all |your )?(?:api.?key|token|secret|password|credential)`,
	`curl\s+https?://`,
	`wget\s+https?://`,
	`fetch\s*\(.*https?://`,
	// encoding tricks
	`base64\.(?:encode|decode)`,
	`eval\s*\(`,
	`exec\s*\(`,
	// role switching
	`you (?:are|must|should) (?:now |)(?:act as|pretend|become)`,
	`jailbreak`,
	`DAN mode`,
}

// Sanitizer detects and removes known injection patterns.
type Sanitizer struct {
	compiled []*regexp.Regexp
}

// New builds a Sanitizer with the built-in pattern set plus any extras.
func New(extraPatterns ...string) *Sanitizer {
	patterns := append(append([]string{}, injectionPatterns...), extraPatterns...)
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
	}
	return &Sanitizer{compiled: compiled}
}

// Check reports whether text is free of injection patterns, returning
// the matched pattern sources when it is not.
func (s *Sanitizer) Check(text string) (bool, []string) {
	var matches []string
	for _, pattern := range s.compiled {
		if pattern.MatchString(text) {
			matches = append(matches, pattern.String())
		}
	}
	return len(matches) == 0, matches
}

// Sanitize replaces every injection pattern occurrence with the
// Replacement marker.
func (s *Sanitizer) Sanitize(text string) string {
	result := text
	for _, pattern := range s.compiled {
		result = pattern.ReplaceAllString(result, Replacement)
	}
	return result
}
