// Package brain routes observations into per-project knowledge files
// and checks those files for injection patterns. Routing is keyword
// based: an observation mentioning a configured project keyword lands
// in that project's file instead of the shared observation log.
package brain

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/recall/pkg/observe"
)

// tagSections maps observation tags to the section heading entries are
// filed under. Unknown tags fall back to the generic section.
var tagSections = map[string]string{
	observe.TagDecision:     "## Architecture Decisions",
	observe.TagArchitecture: "## Architecture Decisions",
	observe.TagLearning:     "## Lessons Learned",
	observe.TagError:        "## Common Mistakes",
	observe.TagMistake:      "## Common Mistakes",
	observe.TagInsight:      "## Next Phase",
	observe.TagNext:         "## Next Phase",
	observe.TagPreference:   "## Preferences",
}

const fallbackSection = "## Observations"

// SectionFor returns the project-file section heading for a tag.
func SectionFor(tag string) string {
	if s, ok := tagSections[tag]; ok {
		return s
	}
	return fallbackSection
}

// Router sends observations to project files by keyword match.
type Router struct {
	workspaceRoot string
	keywords      map[string]string // lowercased keyword -> workspace-relative file
	logger        zerolog.Logger
	now           func() time.Time
}

// NewRouter builds a router from the configured keyword map
// (keyword -> workspace-relative project file path).
func NewRouter(workspaceRoot string, keywords map[string]string, logger zerolog.Logger) *Router {
	lowered := make(map[string]string, len(keywords))
	for k, v := range keywords {
		lowered[strings.ToLower(k)] = v
	}
	return &Router{
		workspaceRoot: workspaceRoot,
		keywords:      lowered,
		logger:        logger.With().Str("component", "brain").Logger(),
		now:           time.Now,
	}
}

// DetectProject returns the workspace-relative project file for the
// first keyword found in the text, or "" when nothing matches. Keywords
// are checked in sorted order so ties resolve deterministically.
func (r *Router) DetectProject(text string) string {
	lower := strings.ToLower(text)

	keys := make([]string, 0, len(r.keywords))
	for k := range r.keywords {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.Contains(lower, k) {
			return r.keywords[k]
		}
	}
	return ""
}

// Route files one observation into its project file. Returns the
// project file path when routed, or "" when no keyword matched and the
// caller should fall back to the observation log. With dryRun set the
// match is reported but nothing is written.
func (r *Router) Route(obs observe.Observation, dryRun bool) (string, error) {
	relPath := r.DetectProject(obs.Text)
	if relPath == "" {
		return "", nil
	}
	if dryRun {
		return relPath, nil
	}

	absPath := filepath.Join(r.workspaceRoot, relPath)
	if err := ensureProjectFile(absPath); err != nil {
		return "", err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to read project file: %w", err)
	}
	content := string(data)
	section := SectionFor(obs.Tag)

	if sectionContains(content, section, obs.Text) {
		// Equivalent entry already filed; routing still succeeded.
		return relPath, nil
	}

	entry := observe.FormatEntry(obs.Text, obs.Tag, r.entryTime(obs.Timestamp))
	content, insertPos := findOrCreateSection(content, section)
	content = content[:insertPos] + entry + "\n" + content[insertPos:]

	if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write project file: %w", err)
	}

	r.logger.Debug().Str("file", relPath).Str("tag", obs.Tag).Msg("routed observation")
	return relPath, nil
}

// RouteAll splits observations into routed and fallback sets. Fallback
// observations belong in the shared log.
func (r *Router) RouteAll(observations []observe.Observation, dryRun bool) (routed, fallback []observe.Observation, err error) {
	for _, obs := range observations {
		dest, err := r.Route(obs, dryRun)
		if err != nil {
			return routed, fallback, err
		}
		if dest != "" {
			routed = append(routed, obs)
		} else {
			fallback = append(fallback, obs)
		}
	}
	return routed, fallback, nil
}

func (r *Router) entryTime(ts string) time.Time {
	if ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t.Local()
		}
	}
	return r.now()
}

// ensureProjectFile creates the file with a title derived from its
// name, e.g. payment-service.md gets "# Payment Service Brain".
func ensureProjectFile(absPath string) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	if _, err := os.Stat(absPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat project file: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	title := titleCase(strings.ReplaceAll(name, "-", " "))
	header := fmt.Sprintf("# %s Brain\n\n", title)
	if err := os.WriteFile(absPath, []byte(header), 0644); err != nil {
		return fmt.Errorf("failed to create project file: %w", err)
	}
	return nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// findOrCreateSection locates the section heading, appending it when
// missing, and returns the content plus the insert offset just after
// the heading line and its blank line.
func findOrCreateSection(content, section string) (string, int) {
	pattern := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(section) + `\s*$`)
	if loc := pattern.FindStringIndex(content); loc != nil {
		pos := loc[1]
		// Step past the newline ending the heading and one blank line.
		for i := 0; i < 2 && pos < len(content) && content[pos] == '\n'; i++ {
			pos++
		}
		return content, pos
	}

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += "\n" + section + "\n\n"
	return content, len(content)
}

var entryPrefixRE = regexp.MustCompile(`^-\s*\[.*?\]\s*\*\*\[.*?\]\*\*\s*`)
var bulletPrefixRE = regexp.MustCompile(`^-\s*`)
var spaceRE = regexp.MustCompile(`\s+`)

// sectionContains reports whether an equivalent entry already exists
// in the section, comparing normalized text in both directions.
func sectionContains(content, section, entryText string) bool {
	pattern := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(section) + `\s*$`)
	loc := pattern.FindStringIndex(content)
	if loc == nil {
		return false
	}

	sectionEnd := len(content)
	if next := regexp.MustCompile(`(?m)^## `).FindStringIndex(content[loc[1]:]); next != nil {
		sectionEnd = loc[1] + next[0]
	}
	body := content[loc[1]:sectionEnd]

	want := normalizeLine(entryText)
	for _, line := range strings.Split(body, "\n") {
		clean := entryPrefixRE.ReplaceAllString(strings.TrimSpace(line), "")
		if clean == strings.TrimSpace(line) {
			clean = bulletPrefixRE.ReplaceAllString(clean, "")
		}
		got := normalizeLine(clean)
		if got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return true
		}
	}
	return false
}

func normalizeLine(s string) string {
	return strings.ToLower(spaceRE.ReplaceAllString(strings.TrimSpace(s), " "))
}
