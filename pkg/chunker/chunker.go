// Package chunker splits markdown documents into retrieval units.
//
// Splitting happens along three boundaries, in priority order: markdown
// headings (level 2+), blank-line paragraphs, and fixed-size character
// windows. Offsets always refer to the original document so that chunking
// the same content twice yields byte-identical chunks.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrBadChunkConfig is returned when chunking parameters are invalid,
// e.g. overlap >= max size.
var ErrBadChunkConfig = errors.New("invalid chunk configuration")

// Chunk is a contiguous span of text extracted from one source document.
type Chunk struct {
	ID          string `json:"id"`
	SourcePath  string `json:"source_path"`
	Index       int    `json:"chunk_index"`
	Text        string `json:"text"`
	CharStart   int    `json:"char_start"`
	CharEnd     int    `json:"char_end"`
	ContentHash string `json:"content_hash"`
}

var (
	markdown     = goldmark.New()
	paragraphSep = regexp.MustCompile(`\n[ \t]*\n+`)
)

// Split chunks a markdown document into ordered retrieval units.
//
// Sections are delimited by level-2+ headings. A section larger than
// maxSize is split on paragraph boundaries; paragraphs are greedily
// grouped while the combined span stays within maxSize. A single
// paragraph larger than maxSize falls back to character windows of
// length maxSize with overlap characters repeated at the start of the
// next window.
//
// An empty document yields an empty sequence.
func Split(content, sourcePath string, maxSize, overlap int) ([]Chunk, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrBadChunkConfig, maxSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrBadChunkConfig, overlap)
	}
	if overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than max size %d", ErrBadChunkConfig, overlap, maxSize)
	}

	var chunks []Chunk
	for _, sec := range sectionSpans(content) {
		start, end := trimSpan(content, sec.start, sec.end)
		if start >= end {
			continue
		}
		if runeLen(content, start, end) <= maxSize {
			chunks = appendChunk(chunks, content, sourcePath, start, end)
			continue
		}
		chunks = splitSection(chunks, content, sourcePath, start, end, maxSize, overlap)
	}
	return chunks, nil
}

type span struct {
	start, end int
}

// sectionSpans locates heading boundaries via the markdown AST and
// returns the document cut into heading-delimited sections. A document
// with no headings is one section.
func sectionSpans(content string) []span {
	if content == "" {
		return nil
	}

	doc := markdown.Parser().Parse(text.NewReader([]byte(content)))

	boundarySet := map[int]struct{}{0: {}}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level < 2 || h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		boundarySet[lineStart(content, h.Lines().At(0).Start)] = struct{}{}
		return ast.WalkContinue, nil
	})

	boundaries := make([]int, 0, len(boundarySet))
	for b := range boundarySet {
		boundaries = append(boundaries, b)
	}
	sort.Ints(boundaries)

	spans := make([]span, 0, len(boundaries))
	for i, b := range boundaries {
		end := len(content)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		spans = append(spans, span{start: b, end: end})
	}
	return spans
}

// splitSection breaks an oversized section on paragraph boundaries,
// greedily packing consecutive paragraphs into one chunk while the
// combined span fits maxSize.
func splitSection(chunks []Chunk, content, sourcePath string, start, end, maxSize, overlap int) []Chunk {
	paras := paragraphSpans(content, start, end)

	groupStart := -1
	groupEnd := -1
	flush := func() []Chunk {
		if groupStart >= 0 {
			chunks = appendChunk(chunks, content, sourcePath, groupStart, groupEnd)
			groupStart, groupEnd = -1, -1
		}
		return chunks
	}

	for _, p := range paras {
		if runeLen(content, p.start, p.end) > maxSize {
			// Paragraph alone exceeds the limit: character windows.
			chunks = flush()
			chunks = splitWindows(chunks, content, sourcePath, p.start, p.end, maxSize, overlap)
			continue
		}
		if groupStart >= 0 && runeLen(content, groupStart, p.end) > maxSize {
			chunks = flush()
		}
		if groupStart < 0 {
			groupStart = p.start
		}
		groupEnd = p.end
	}
	return flush()
}

// splitWindows emits fixed-size character windows over [start, end),
// repeating overlap characters at the start of each subsequent window.
// Sizes count runes and window edges land on rune boundaries, so a
// multi-byte character is never cut in half.
func splitWindows(chunks []Chunk, content, sourcePath string, start, end, maxSize, overlap int) []Chunk {
	offsets := runeOffsets(content, start, end)
	runes := len(offsets) - 1
	step := maxSize - overlap
	for winStart := 0; winStart < runes; winStart += step {
		winEnd := winStart + maxSize
		if winEnd >= runes {
			chunks = appendChunk(chunks, content, sourcePath, offsets[winStart], end)
			break
		}
		chunks = appendChunk(chunks, content, sourcePath, offsets[winStart], offsets[winEnd])
	}
	return chunks
}

// runeLen counts the runes in content[start:end].
func runeLen(content string, start, end int) int {
	return utf8.RuneCountInString(content[start:end])
}

// runeOffsets returns the byte offset of every rune boundary in
// content[start:end], with end appended as the final element.
func runeOffsets(content string, start, end int) []int {
	offsets := make([]int, 0, end-start+1)
	for i := start; i < end; {
		offsets = append(offsets, i)
		_, size := utf8.DecodeRuneInString(content[i:end])
		i += size
	}
	return append(offsets, end)
}

func paragraphSpans(content string, start, end int) []span {
	section := content[start:end]
	seps := paragraphSep.FindAllStringIndex(section, -1)

	var spans []span
	prev := 0
	emit := func(from, to int) {
		s, e := trimSpan(content, start+from, start+to)
		if s < e {
			spans = append(spans, span{start: s, end: e})
		}
	}
	for _, sep := range seps {
		emit(prev, sep[0])
		prev = sep[1]
	}
	emit(prev, end-start)
	return spans
}

func appendChunk(chunks []Chunk, content, sourcePath string, start, end int) []Chunk {
	chunkText := content[start:end]
	hash := HashText(chunkText)
	index := len(chunks)
	return append(chunks, Chunk{
		ID:          FormatID(sourcePath, index, hash),
		SourcePath:  sourcePath,
		Index:       index,
		Text:        chunkText,
		CharStart:   start,
		CharEnd:     end,
		ContentHash: hash,
	})
}

// FormatID builds the stable chunk identifier
// "<source_path>:<chunk_index>:<content_hash>".
func FormatID(sourcePath string, index int, contentHash string) string {
	return fmt.Sprintf("%s:%d:%s", sourcePath, index, contentHash)
}

// HashText returns the short content hash used as the chunk id suffix.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// trimSpan narrows a span to exclude surrounding ASCII whitespace.
// Only single-byte whitespace is considered so multi-byte runes are
// never split.
func trimSpan(content string, start, end int) (int, int) {
	for start < end && isSpaceByte(content[start]) {
		start++
	}
	for end > start && isSpaceByte(content[end-1]) {
		end--
	}
	return start, end
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func lineStart(content string, pos int) int {
	if pos > len(content) {
		pos = len(content)
	}
	for pos > 0 && content[pos-1] != '\n' {
		pos--
	}
	return pos
}
