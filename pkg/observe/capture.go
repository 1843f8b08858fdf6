package observe

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// transcriptEntrySchema validates session transcript lines before any
// field is trusted. Lines that fail validation are skipped, never fatal.
const transcriptEntrySchema = `{
	"type": "object",
	"required": ["type", "message"],
	"properties": {
		"type": {"type": "string"},
		"timestamp": {"type": "string"},
		"message": {
			"type": "object",
			"required": ["role"],
			"properties": {
				"role": {"type": "string"},
				"content": {"type": "array"}
			}
		}
	}
}`

var entrySchema = gojsonschema.NewStringLoader(transcriptEntrySchema)

type transcriptEntry struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		Role    string            `json:"role"`
		Content []json.RawMessage `json:"content"`
	} `json:"message"`
}

var allowedRoles = map[string]struct{}{
	"user":      {},
	"assistant": {},
}

// ObservationIndexer pushes a recorded observation into the vector
// index so it is searchable immediately.
type ObservationIndexer interface {
	IndexObservation(ctx context.Context, text, tag string) (string, error)
}

// Router optionally diverts observations into per-project files.
// Route returns the destination path, or "" when the observation
// belongs in the shared log.
type Router interface {
	Route(obs Observation, dryRun bool) (string, error)
}

// Capturer scans session transcripts for observations. Extraction is
// rule-based and runs without any model call.
type Capturer struct {
	sessionDir string
	stateFile  string
	recorder   *Recorder
	indexer    ObservationIndexer
	router     Router
	logger     zerolog.Logger
	now        func() time.Time
}

// NewCapturer wires a transcript capturer. indexer may be nil when
// capture should only append to the log.
func NewCapturer(sessionDir, stateFile string, recorder *Recorder, indexer ObservationIndexer, logger zerolog.Logger) *Capturer {
	return &Capturer{
		sessionDir: sessionDir,
		stateFile:  stateFile,
		recorder:   recorder,
		indexer:    indexer,
		logger:     logger.With().Str("component", "capture").Logger(),
		now:        time.Now,
	}
}

// WithRouter enables per-project routing. Routed observations land in
// their project file instead of the shared log.
func (c *Capturer) WithRouter(r Router) *Capturer {
	c.router = r
	return c
}

// Result summarizes one capture run.
type Result struct {
	ScannedFiles int           `json:"scanned_files"`
	Found        int           `json:"found"`
	Recorded     []Observation `json:"recorded"`
	Routed       []string      `json:"routed,omitempty"` // destination per routed observation
	DryRun       bool          `json:"dry_run"`
}

// Run scans transcripts modified within the given window, extracts new
// observations, and records them. With dryRun set nothing is written,
// not even the dedup state.
func (c *Capturer) Run(ctx context.Context, since time.Duration, dryRun bool) (*Result, error) {
	files, err := c.recentSessions(since)
	if err != nil {
		return nil, err
	}
	return c.capture(ctx, files, dryRun)
}

// RunFile captures from one explicit transcript regardless of age.
func (c *Capturer) RunFile(ctx context.Context, path string, dryRun bool) (*Result, error) {
	return c.capture(ctx, []string{path}, dryRun)
}

func (c *Capturer) capture(ctx context.Context, files []string, dryRun bool) (*Result, error) {
	state, err := c.loadState()
	if err != nil {
		return nil, err
	}

	var found []Observation
	for _, path := range files {
		obs, err := c.scanFile(path)
		if err != nil {
			c.logger.Warn().Err(err).Str("file", path).Msg("failed to scan session file")
			continue
		}
		found = append(found, obs...)
	}

	result := &Result{ScannedFiles: len(files), Found: len(found), DryRun: dryRun}

	for _, obs := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		h := DedupHash(obs.Text)
		if _, seen := state.seen[h]; seen {
			continue
		}
		state.seen[h] = struct{}{}
		result.Recorded = append(result.Recorded, obs)

		if c.router != nil {
			dest, err := c.router.Route(obs, dryRun)
			if err != nil {
				return nil, err
			}
			if dest != "" {
				result.Routed = append(result.Routed, dest)
				continue
			}
		}

		if dryRun {
			continue
		}

		at := c.entryTime(obs.Timestamp)
		if _, err := c.recorder.RecordAt(obs.Text, obs.Tag, at); err != nil {
			return nil, err
		}
		if c.indexer != nil {
			if _, err := c.indexer.IndexObservation(ctx, obs.Text, obs.Tag); err != nil {
				c.logger.Warn().Err(err).Msg("failed to index captured observation")
			}
		}
	}

	if !dryRun && len(result.Recorded) > 0 {
		if err := c.saveState(state); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// recentSessions lists *.jsonl transcripts modified within the window,
// newest first. A missing session directory yields an empty list.
func (c *Capturer) recentSessions(since time.Duration) ([]string, error) {
	entries, err := os.ReadDir(c.sessionDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	cutoff := c.now().Add(-since)

	type candidate struct {
		path  string
		mtime time.Time
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			candidates = append(candidates, candidate{
				path:  filepath.Join(c.sessionDir, entry.Name()),
				mtime: info.ModTime(),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].mtime.After(candidates[j].mtime)
	})

	paths := make([]string, len(candidates))
	for i, cand := range candidates {
		paths[i] = cand.path
	}
	return paths, nil
}

// scanFile extracts observations from one JSONL transcript. Lines that
// are not valid message entries are skipped.
func (c *Capturer) scanFile(path string) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	var observations []Observation
	sessionSeen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		validation, err := gojsonschema.Validate(entrySchema, gojsonschema.NewBytesLoader(line))
		if err != nil || !validation.Valid() {
			continue
		}

		var entry transcriptEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Type != "message" {
			continue
		}
		if _, ok := allowedRoles[entry.Message.Role]; !ok {
			continue
		}

		text := collectText(entry.Message.Content)
		if text == "" {
			continue
		}

		for _, obs := range Extract(text) {
			key := fmt.Sprintf("%s:%s", obs.Tag, prefixRunes(obs.Text, 40))
			if _, seen := sessionSeen[key]; seen {
				continue
			}
			sessionSeen[key] = struct{}{}

			obs.SourceFile = filepath.Base(path)
			obs.Timestamp = entry.Timestamp
			observations = append(observations, obs)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	return observations, nil
}

// collectText joins the text of message content items. Items are either
// objects with a text field or bare strings.
func collectText(items []json.RawMessage) string {
	var b []byte
	for _, item := range items {
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Text != "" {
			b = append(b, obj.Text...)
			b = append(b, '\n')
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil && s != "" {
			b = append(b, s...)
			b = append(b, '\n')
		}
	}
	return string(b)
}

func (c *Capturer) entryTime(ts string) time.Time {
	if ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t.Local()
		}
	}
	return c.now()
}

type captureState struct {
	seen map[string]struct{}
}

type captureStateFile struct {
	SeenHashes []string `json:"seen_hashes"`
}

// loadState reads the dedup state. Missing or corrupt state starts
// fresh instead of failing the run.
func (c *Capturer) loadState() (*captureState, error) {
	state := &captureState{seen: make(map[string]struct{})}

	data, err := os.ReadFile(c.stateFile)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read capture state: %w", err)
	}

	var sf captureStateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		c.logger.Warn().Err(err).Msg("capture state corrupt, starting fresh")
		return state, nil
	}
	for _, h := range sf.SeenHashes {
		state.seen[h] = struct{}{}
	}
	return state, nil
}

func (c *Capturer) saveState(state *captureState) error {
	hashes := make([]string, 0, len(state.seen))
	for h := range state.seen {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	data, err := json.MarshalIndent(captureStateFile{SeenHashes: hashes}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode capture state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.stateFile), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp := c.stateFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write capture state: %w", err)
	}
	if err := os.Rename(tmp, c.stateFile); err != nil {
		return fmt.Errorf("failed to replace capture state: %w", err)
	}
	return nil
}
