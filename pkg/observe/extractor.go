package observe

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// taggedPattern pairs a tag with a line pattern. Capture group 1 is the
// observation text.
type taggedPattern struct {
	tag string
	re  *regexp.Regexp
}

// Patterns are tried in order and the first match wins, so the slice
// encodes the tag priority: error, then decision, learning, insight,
// then the extended tags. English and Korean forms are both covered.
var patterns = compilePatterns([]struct{ tag, expr string }{
	{TagError, `에러:\s*(.{10,300})`},
	{TagError, `(?:^|[^"])Error:\s*(.{10,300})`},
	{TagError, `(.{5,}(?:ERROR|FAIL)[:\s].{5,})`},
	{TagError, `(.{5,}실패.{5,})`},
	{TagError, `(.{5,}오류.{5,})`},
	{TagError, `(.+Connection\s+refused.+)`},
	{TagError, `(.+SIGKILL.+)`},
	{TagError, `(.{5,}(?:timeout|Timeout).{10,})`},
	{TagError, `(.+(?:401|403|404|429|500)\s*(?:에러|error|Error|Unauthorized|Forbidden|Not Found).+)`},
	{TagError, `(.*exited\s+with\s+code\s+[1-9]\d*.*)`},

	{TagDecision, `결정:\s*(.{10,300})`},
	{TagDecision, `Decision:\s*(.{10,300})`},
	{TagDecision, `결론:\s*(.{10,300})`},
	{TagDecision, `판정:\s*(.{10,300})`},
	{TagDecision, `(.{5,}→\s*채택.*)`},
	{TagDecision, `(.{5,}→\s*비추.*)`},
	{TagDecision, `(.{10,}.+(?:으로\s*결정).*)`},
	{TagDecision, `(.{10,}.+확정.{5,})`},
	{TagDecision, `(.{10,}.+으로\s*간다.*)`},

	{TagLearning, `배움:\s*(.{10,300})`},
	{TagLearning, `Learned:\s*(.{10,300})`},
	{TagLearning, `교훈:\s*(.{10,300})`},
	{TagLearning, `알게됨:\s*(.{10,300})`},
	{TagLearning, `발견:\s*(.{10,300})`},
	{TagLearning, `(.{5,}알고보니.{10,})`},
	{TagLearning, `(.{5,}사실은.{10,})`},
	{TagLearning, `(.+(?:배포|push|deploy)\s*완료.{3,})`},
	{TagLearning, `(.+테스트\s*통과.{3,})`},
	{TagLearning, `(.{10,}DONE.{3,})`},
	{TagLearning, `(.{5,}✅.{3,})`},
	{TagLearning, `(.{5,}완료.{5,})`},

	{TagInsight, `TODO:?\s+(.{5,300})`},
	{TagInsight, `할일:?\s+(.{5,300})`},
	{TagInsight, `(.{5,}다음에\s+.{10,})`},
	{TagInsight, `(.{5,}나중에\s+.{10,})`},
	{TagInsight, `(.*exited\s+with\s+code\s+0.+(?:completed|success|done).*)`},

	{TagPreference, `선호:\s*(.{10,300})`},
	{TagPreference, `Prefer:\s*(.{10,300})`},
	{TagPreference, `(.{3,}항상\s+.{3,}사용.*)`},

	{TagMistake, `실수:\s*(.{10,300})`},
	{TagMistake, `Mistake:\s*(.{10,300})`},
	{TagMistake, `주의:\s*(.{10,300})`},
	{TagMistake, `(.{5,}⚠️.{5,})`},

	{TagArchitecture, `아키텍처:\s*(.{10,300})`},
	{TagArchitecture, `Architecture:\s*(.{10,300})`},
	{TagArchitecture, `설계:\s*(.{10,300})`},
	{TagArchitecture, `구조:\s*(.{10,300})`},

	{TagNext, `다음:\s*(.{10,300})`},
	{TagNext, `Next:\s*(.{10,300})`},
})

func compilePatterns(raw []struct{ tag, expr string }) []taggedPattern {
	out := make([]taggedPattern, 0, len(raw))
	for _, r := range raw {
		out = append(out, taggedPattern{tag: r.tag, re: regexp.MustCompile(r.expr)})
	}
	return out
}

// skipLineRE filters lines that look like structured noise rather than
// prose: JSON fragments, markdown syntax, heartbeat chatter.
var skipLineRE = regexp.MustCompile(`(?i)^\s*[\{\[` + "`" + `\-\*#>]|"error"\s*:|"timestamp"\s*:|heartbeat|session_status`)

const (
	minLineRunes    = 10
	minCaptureRunes = 8
	maxCaptureRunes = 300
)

// Extract scans a text block line by line and returns the observations
// the patterns pick up. Duplicates within the block (same tag and same
// leading text) are dropped.
func Extract(text string) []Observation {
	var observations []Observation
	seenInBlock := make(map[string]struct{})

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < minLineRunes {
			continue
		}
		if skipLineRE.MatchString(line) {
			continue
		}

		for _, p := range patterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}

			captured := whitespaceRE.ReplaceAllString(strings.TrimSpace(m[1]), " ")
			if utf8.RuneCountInString(captured) < minCaptureRunes {
				continue
			}
			captured = clampRunes(captured, maxCaptureRunes)

			key := fmt.Sprintf("%s:%s", p.tag, prefixRunes(captured, 30))
			if _, seen := seenInBlock[key]; seen {
				continue
			}
			seenInBlock[key] = struct{}{}

			observations = append(observations, Observation{Tag: p.tag, Text: captured})
			break // one match per line
		}
	}

	return observations
}

func clampRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func prefixRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
