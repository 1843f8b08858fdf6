package observe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/recall/pkg/sanitize"
)

const logHeader = "# Observations\n\n"

// Observation is a single extracted or recorded note.
type Observation struct {
	Tag        string `json:"tag"`
	Text       string `json:"text"`
	SourceFile string `json:"source_file,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// Recorder appends observations to the markdown log.
type Recorder struct {
	file      string
	sanitizer *sanitize.Sanitizer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRecorder creates a recorder writing to the given log file.
func NewRecorder(file string, sanitizer *sanitize.Sanitizer, logger zerolog.Logger) *Recorder {
	return &Recorder{
		file:      file,
		sanitizer: sanitizer,
		logger:    logger.With().Str("component", "observe").Logger(),
		now:       time.Now,
	}
}

// Record validates the tag, filters injection patterns, and appends a
// formatted entry to the log. Returns the entry as written.
func (r *Recorder) Record(text, tag string) (string, error) {
	return r.RecordAt(text, tag, r.now())
}

// RecordAt is Record with an explicit timestamp, used when replaying
// transcript entries that carry their own time.
func (r *Recorder) RecordAt(text, tag string, at time.Time) (string, error) {
	if err := ValidateTag(tag); err != nil {
		return "", err
	}

	if safe, matched := r.sanitizer.Check(text); !safe {
		r.logger.Warn().
			Strs("patterns", matched).
			Msg("injection pattern detected in observation")
		text = r.sanitizer.Sanitize(text)
	}

	entry := FormatEntry(text, tag, at)

	if err := ensureLog(r.file); err != nil {
		return "", err
	}

	f, err := os.OpenFile(r.file, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open observation log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(entry + "\n"); err != nil {
		return "", fmt.Errorf("failed to append observation: %w", err)
	}

	return entry, nil
}

// FormatEntry renders the markdown log line for an observation.
func FormatEntry(text, tag string, at time.Time) string {
	return fmt.Sprintf("- [%s] **[%s]** %s", at.Format("2006-01-02 15:04"), tag, text)
}

func ensureLog(file string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("failed to create observation directory: %w", err)
	}
	if _, err := os.Stat(file); os.IsNotExist(err) {
		if err := os.WriteFile(file, []byte(logHeader), 0644); err != nil {
			return fmt.Errorf("failed to create observation log: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to stat observation log: %w", err)
	}
	return nil
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// normalize collapses whitespace, trims, and case-folds so trivially
// reworded duplicates hash the same.
func normalize(text string) string {
	return strings.ToLower(whitespaceRE.ReplaceAllString(strings.TrimSpace(text), " "))
}

// DedupHash returns the 16-hex-char content hash used for observation
// deduplication. Computed over the normalized text.
func DedupHash(text string) string {
	sum := sha256.Sum256([]byte(normalize(text)))
	return hex.EncodeToString(sum[:])[:16]
}
