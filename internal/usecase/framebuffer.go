package usecase

import (
	"strings"
	"unicode/utf8"
)

// FrameBuffer turns raw network chunks into text incrementally. Chunk
// boundaries are arbitrary and may split a multi-byte UTF-8 sequence; Feed
// holds such trailing bytes back and completes them on the next call, so a
// split rune never decodes to a replacement character. Bytes are decoded
// exactly once.
type FrameBuffer struct {
	pending []byte // undecoded tail carried between Feed calls
	decoded int    // total bytes decoded so far, fed to the progress heuristic
}

// NewFrameBuffer creates an empty buffer for one session.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Feed appends a chunk and returns the newly decodable text. Trailing bytes
// that could still be the start of a valid multi-byte rune are retained for
// the next call rather than decoded. Provably invalid bytes decode to the
// replacement character, never silently dropped.
func (b *FrameBuffer) Feed(chunk []byte) string {
	if len(chunk) == 0 && len(b.pending) == 0 {
		return ""
	}
	b.pending = append(b.pending, chunk...)

	var sb strings.Builder
	consumed := 0
	for i := 0; i < len(b.pending); {
		r, size := utf8.DecodeRune(b.pending[i:])
		if r == utf8.RuneError && size == 1 {
			if !utf8.FullRune(b.pending[i:]) && len(b.pending)-i < utf8.UTFMax {
				// Possibly an incomplete sequence; wait for more bytes.
				break
			}
			// Invalid lead or continuation byte: replacement policy.
			sb.WriteRune(utf8.RuneError)
			i++
			consumed = i
			continue
		}
		sb.Write(b.pending[i : i+size])
		i += size
		consumed = i
	}

	if consumed == 0 {
		return ""
	}
	b.pending = b.pending[consumed:]
	b.decoded += consumed
	return sb.String()
}

// Flush decodes whatever is still pending at stream end. Truly incomplete
// sequences render as replacement characters; they are never dropped.
func (b *FrameBuffer) Flush() string {
	if len(b.pending) == 0 {
		return ""
	}
	out := strings.ToValidUTF8(string(b.pending), string(utf8.RuneError))
	b.decoded += len(b.pending)
	b.pending = nil
	return out
}

// BytesDecoded returns the total number of raw bytes decoded so far.
func (b *FrameBuffer) BytesDecoded() int {
	return b.decoded
}
