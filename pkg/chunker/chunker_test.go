package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_EmptyDocument(t *testing.T) {
	chunks, err := Split("", "memory/empty.md", 500, 50)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = Split("   \n\n  \n", "memory/blank.md", 500, 50)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		overlap int
	}{
		{name: "zero max size", maxSize: 0, overlap: 0},
		{name: "negative max size", maxSize: -1, overlap: 0},
		{name: "negative overlap", maxSize: 100, overlap: -1},
		{name: "overlap equals max size", maxSize: 50, overlap: 50},
		{name: "overlap exceeds max size", maxSize: 50, overlap: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split("# Doc\n\ncontent", "a.md", tt.maxSize, tt.overlap)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBadChunkConfig)
		})
	}
}

func TestSplit_NoHeadings(t *testing.T) {
	content := "Just a short note without any headings.\n\nSecond paragraph."
	chunks, err := Split(content, "memory/note.md", 500, 50)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, 0, c.Index)
	assert.Equal(t, "memory/note.md", c.SourcePath)
	assert.Equal(t, strings.TrimSpace(content), c.Text)
	assert.Equal(t, content[c.CharStart:c.CharEnd], c.Text)
}

func TestSplit_HeadingBoundaries(t *testing.T) {
	para := strings.Repeat("lorem ipsum dolor sit amet ", 15) // ~400 chars
	content := "# Title\n\nintro text\n\n" +
		"## First\n\n" + para + "\n\n" +
		"## Second\n\n" + para + "\n\n" +
		"### Third\n\n" + para + "\n"
	require.Greater(t, len(content), 1200)

	chunks, err := Split(content, "memory/2024-01-15.md", 500, 50)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len(c.Text), 500)
		assert.Equal(t, content[c.CharStart:c.CharEnd], c.Text)
	}

	// Each section starts its own chunk.
	joined := ""
	for _, c := range chunks {
		joined += c.Text + "\n"
	}
	assert.Contains(t, joined, "## First")
	assert.Contains(t, joined, "## Second")
	assert.Contains(t, joined, "### Third")
}

func TestSplit_OversizedParagraphWindows(t *testing.T) {
	big := strings.Repeat("x", 1200)
	content := "## Huge\n\n" + big + "\n"

	chunks, err := Split(content, "memory/huge.md", 500, 50)
	require.NoError(t, err)

	var windows []Chunk
	for _, c := range chunks {
		if strings.HasPrefix(c.Text, "x") {
			windows = append(windows, c)
		}
	}
	require.GreaterOrEqual(t, len(windows), 3)

	for i, w := range windows {
		assert.LessOrEqual(t, len(w.Text), 500)
		if i > 0 {
			// Overlap: each window starts 450 chars after the previous.
			assert.Equal(t, windows[i-1].CharStart+450, w.CharStart)
		}
	}
	// Windows jointly cover the whole paragraph.
	last := windows[len(windows)-1]
	assert.Equal(t, windows[0].CharStart+1200, last.CharEnd)
}

func TestSplit_MultiByteWindows(t *testing.T) {
	// 300 hangul runes (900 bytes) in one paragraph, windowed at 100
	// runes with 10 overlap: windows start at runes 0, 90, 180, 270.
	para := strings.Repeat("가나다라마바사아자차", 30)
	content := "## 메모\n\n" + para + "\n"

	chunks, err := Split(content, "memory/korean.md", 100, 10)
	require.NoError(t, err)

	var windows []Chunk
	for _, c := range chunks {
		if strings.HasPrefix(c.Text, "가") {
			windows = append(windows, c)
		}
	}
	require.Len(t, windows, 4)

	for i, w := range windows {
		assert.True(t, utf8.ValidString(w.Text), "window %d holds invalid UTF-8", i)
		assert.LessOrEqual(t, utf8.RuneCountInString(w.Text), 100)
		assert.Equal(t, content[w.CharStart:w.CharEnd], w.Text)
	}
	for _, w := range windows[:3] {
		assert.Equal(t, 100, utf8.RuneCountInString(w.Text))
	}

	// Each window repeats the last 10 runes of its predecessor.
	for i := 1; i < len(windows); i++ {
		prev := []rune(windows[i-1].Text)
		tail := string(prev[len(prev)-10:])
		assert.True(t, strings.HasPrefix(windows[i].Text, tail))
	}

	// Windows jointly cover the whole paragraph.
	assert.Equal(t, para, content[windows[0].CharStart:windows[3].CharEnd])
}

func TestSplit_MultiByteSectionFits(t *testing.T) {
	// 300 runes is 900 bytes; a 400-rune limit must keep it whole.
	para := strings.Repeat("메모리는기록된다보존", 30)
	chunks, err := Split("## 기록\n\n"+para+"\n", "memory/k.md", 400, 40)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, utf8.ValidString(chunks[0].Text))
}

func TestSplit_Deterministic(t *testing.T) {
	content := "## Alpha\n\nSome text here.\n\n## Beta\n\n" +
		strings.Repeat("repeated sentence. ", 40)

	first, err := Split(content, "memory/a.md", 300, 30)
	require.NoError(t, err)
	second, err := Split(content, "memory/a.md", 300, 30)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].CharStart, second[i].CharStart)
		assert.Equal(t, first[i].CharEnd, second[i].CharEnd)
		assert.Equal(t, first[i].ContentHash, second[i].ContentHash)
	}
}

func TestSplit_ChunkIDFormat(t *testing.T) {
	chunks, err := Split("## Head\n\nbody text here", "memory/x.md", 500, 50)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, FormatID("memory/x.md", 0, c.ContentHash), c.ID)
	assert.Len(t, c.ContentHash, 8)
	assert.Equal(t, HashText(c.Text), c.ContentHash)
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "memory/a.md:3:deadbeef", FormatID("memory/a.md", 3, "deadbeef"))
}
