package brain

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/recall/pkg/sanitize"
)

// Finding is one flagged line in a project file.
type Finding struct {
	Line     int      `json:"line"`
	Text     string   `json:"text"`
	Patterns []string `json:"patterns"`
}

// FileReport is the integrity result for one project file.
type FileReport struct {
	Path     string    `json:"path"`
	Findings []Finding `json:"findings,omitempty"`
}

// Passed reports whether the file is clean.
func (r FileReport) Passed() bool {
	return len(r.Findings) == 0
}

// FixResult summarizes an auto-fix pass over one file.
type FixResult struct {
	Path     string `json:"path"`
	Lines    int    `json:"lines"`
	Patterns int    `json:"patterns"`
}

// Checker scans project files for injection patterns.
type Checker struct {
	projectsDir string
	sanitizer   *sanitize.Sanitizer
	logger      zerolog.Logger
}

// NewChecker wires an integrity checker over the projects directory.
func NewChecker(projectsDir string, sanitizer *sanitize.Sanitizer, logger zerolog.Logger) *Checker {
	return &Checker{
		projectsDir: projectsDir,
		sanitizer:   sanitizer,
		logger:      logger.With().Str("component", "brain-check").Logger(),
	}
}

// ScanAll checks every project file. A missing projects directory
// yields an empty report.
func (c *Checker) ScanAll() ([]FileReport, error) {
	matches, err := filepath.Glob(filepath.Join(c.projectsDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to list projects directory: %w", err)
	}
	sort.Strings(matches)

	reports := make([]FileReport, 0, len(matches))
	for _, path := range matches {
		report, err := c.ScanFile(path)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// ScanFile checks one file line by line.
func (c *Checker) ScanFile(path string) (*FileReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	report := &FileReport{Path: path}
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if safe, matched := c.sanitizer.Check(line); !safe {
			report.Findings = append(report.Findings, Finding{
				Line:     i + 1,
				Text:     strings.TrimSpace(line),
				Patterns: matched,
			})
		}
	}
	return report, nil
}

// Fix rewrites a file with every injection pattern replaced by the
// filter marker.
func (c *Checker) Fix(path string) (*FixResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	result := &FixResult{Path: path}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		safe, matched := c.sanitizer.Check(line)
		if safe {
			continue
		}
		lines[i] = c.sanitizer.Sanitize(line)
		result.Lines++
		result.Patterns += len(matched)
	}
	if result.Lines == 0 {
		return result, nil
	}

	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	c.logger.Info().
		Str("file", filepath.Base(path)).
		Int("lines", result.Lines).
		Int("patterns", result.Patterns).
		Msg("removed injection patterns")
	return result, nil
}

// FixAll repairs every flagged file and returns the per-file results.
func (c *Checker) FixAll() ([]FixResult, error) {
	reports, err := c.ScanAll()
	if err != nil {
		return nil, err
	}

	var results []FixResult
	for _, report := range reports {
		if report.Passed() {
			continue
		}
		result, err := c.Fix(report.Path)
		if err != nil {
			return results, err
		}
		results = append(results, *result)
	}
	return results, nil
}
