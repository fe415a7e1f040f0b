package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// runExtractor feeds the segments through a fresh extractor and returns the
// final display text.
func runExtractor(t *testing.T, segments ...string) (*DirectiveExtractor, string) {
	t.Helper()
	e := NewDirectiveExtractor()
	var display strings.Builder
	for _, seg := range segments {
		display.WriteString(e.Process(seg).DisplayDelta)
	}
	display.WriteString(e.Finish().DisplayDelta)
	return e, display.String()
}

func TestExtractorHighlightMarker(t *testing.T) {
	e, display := runExtractor(t, "The right to privacy [[HIGHLIGHT: Article 21]] is protected.")
	assert.Equal(t, "The right to privacy  is protected.", display)
	assert.Equal(t, []string{"Article 21"}, e.Highlights())
}

func TestExtractorStatusLine(t *testing.T) {
	e, display := runExtractor(t, "[STATUS]: Loading...\nvisible text\n")
	assert.Equal(t, "visible text\n", display)
	assert.Equal(t, "Loading...", e.Status())
}

func TestExtractorStatusLatestWins(t *testing.T) {
	e, _ := runExtractor(t, "[STATUS]: Indexing (1/3)\n[STATUS]: Comparing (2/3)\n")
	assert.Equal(t, "Comparing (2/3)", e.Status())
}

func TestExtractorHighlightDedup(t *testing.T) {
	e, _ := runExtractor(t,
		"see [[HIGHLIGHT: Article 21]] and again [[HIGHLIGHT: Article 21]] then [[HIGHLIGHT: Section 5]]")
	assert.Equal(t, []string{"Article 21", "Section 5"}, e.Highlights())
}

func TestExtractorStatusMidLineIsText(t *testing.T) {
	_, display := runExtractor(t, "not a status [STATUS]: really\n")
	assert.Equal(t, "not a status [STATUS]: really\n", display)
}

func TestExtractorPartialMarkerNeverLeaks(t *testing.T) {
	e := NewDirectiveExtractor()
	res := e.Process("intro [[HIGHLIGHT: Arti")
	assert.Equal(t, "intro ", res.DisplayDelta, "partial marker must be withheld")

	res = e.Process("cle 21]] outro")
	assert.Equal(t, " outro", res.DisplayDelta)
	assert.Equal(t, []string{"Article 21"}, e.Highlights())
}

func TestExtractorSplitStatusTag(t *testing.T) {
	e := NewDirectiveExtractor()
	assert.Empty(t, e.Process("[STA").DisplayDelta)
	res := e.Process("TUS]: Ranking documents\nafter")
	assert.Equal(t, "Ranking documents", e.Status())
	assert.Equal(t, "after", res.DisplayDelta+e.Finish().DisplayDelta)
}

func TestExtractorUnterminatedMarkerAtStreamEnd(t *testing.T) {
	// Once the stream ends, an unclosed opener is literal text, not a marker.
	e, display := runExtractor(t, "tail [[HIGHLIGHT: never closed")
	assert.Equal(t, "tail [[HIGHLIGHT: never closed", display)
	assert.Empty(t, e.Highlights())
}

func TestExtractorStatusLineWithoutNewlineAtEnd(t *testing.T) {
	e, display := runExtractor(t, "[STATUS]: Final pass")
	assert.Empty(t, display)
	assert.Equal(t, "Final pass", e.Status())
}

func TestExtractorChunkBoundaryInvariance(t *testing.T) {
	body := "[STATUS]: Loading (1/2)\nThe right to privacy [[HIGHLIGHT: Article 21]] is protected.\n[STATUS]: Done (2/2)\nSee [[HIGHLIGHT: Section 5]] too.\n"

	ref, refDisplay := runExtractor(t, body)

	for cut := 0; cut <= len(body); cut++ {
		e, display := runExtractor(t, body[:cut], body[cut:])
		if display != refDisplay {
			t.Fatalf("cut=%d: display %q, want %q", cut, display, refDisplay)
		}
		assert.Equal(t, ref.Highlights(), e.Highlights(), "cut=%d", cut)
		assert.Equal(t, ref.Status(), e.Status(), "cut=%d", cut)
	}
}

func TestExtractorThreeWaySplits(t *testing.T) {
	body := "a [[HIGHLIGHT: X]] b\n[STATUS]: s\nc"
	ref, refDisplay := runExtractor(t, body)

	for i := 0; i <= len(body); i++ {
		for j := i; j <= len(body); j++ {
			e, display := runExtractor(t, body[:i], body[i:j], body[j:])
			if display != refDisplay {
				t.Fatalf("i=%d j=%d: display %q, want %q", i, j, display, refDisplay)
			}
			if got, want := e.Highlights(), ref.Highlights(); len(got) != len(want) {
				t.Fatalf("i=%d j=%d: highlights %v, want %v", i, j, got, want)
			}
		}
	}
}

func TestExtractorEmptyPayloadIgnored(t *testing.T) {
	e, display := runExtractor(t, "x [[HIGHLIGHT: ]] y")
	assert.Equal(t, "x  y", display)
	assert.Empty(t, e.Highlights())
}
