package vcontrold

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Limits protecting the reader from a misbehaving peer. Real replies are
// small; the longest documented line is a command description.
const (
	maxLineLength = 4096
	maxBlockLines = 4096
)

// framerState is the position of the Framer within the current line.
type framerState int

const (
	// stateInLine: payload bytes are being collected. The prompt is not
	// recognised again until the next newline, so a payload that contains
	// the prompt text is kept intact.
	stateInLine framerState = iota

	// stateAfterPromptCandidate: at the start of a line. Everything
	// buffered so far is still a prefix of the prompt.
	stateAfterPromptCandidate
)

// Framer splits a byte stream of prompt-prefixed reply lines into lines and
// detects the end of a multi-line block.
//
// A block ends when a prompt is recognised at the start of a line and the
// previous unit was itself a bare prompt: either a prompt line with an empty
// payload ("vctrld>\nvctrld>") or two prompts back to back ("vctrld>vctrld>").
//
// The terminator is ambiguous. A block line with an empty payload that is
// followed by another prompt, and a payload that starts with the prompt text,
// both look like the end of the block and are reported as such.
type Framer struct {
	prompt []byte
	state  framerState
	buf    []byte

	// prompted: a prompt was consumed at the start of the current line and
	// no payload byte has followed yet.
	prompted bool

	// bare: the previous unit was a prompt line with an empty payload.
	bare bool

	done bool
}

// NewFramer returns a Framer for replies prefixed with prompt.
func NewFramer(prompt string) *Framer {
	return &Framer{
		prompt: []byte(prompt),
		state:  stateAfterPromptCandidate,
	}
}

// Done reports whether the block terminator has been seen.
func (f *Framer) Done() bool { return f.done }

// Feed advances the framer by one byte. It returns a line, without prompt
// and line ending, whenever one is completed. Bytes fed after the
// terminator are ignored.
func (f *Framer) Feed(b byte) (line string, emitted bool, err error) {
	if f.done {
		return "", false, nil
	}

	switch f.state {
	case stateInLine:
		if b == '\n' {
			line = string(bytes.TrimSuffix(f.buf, []byte{'\r'}))
			f.buf = f.buf[:0]
			f.state = stateAfterPromptCandidate
			return line, true, nil
		}
		f.buf = append(f.buf, b)
		if len(f.buf) > maxLineLength {
			return "", false, fmt.Errorf("%w: line exceeds %d bytes", ErrProtocol, maxLineLength)
		}
		return "", false, nil

	default:
		if b == '\n' {
			return f.endOfCandidate()
		}

		f.buf = append(f.buf, b)
		if bytes.Equal(f.buf, f.prompt) {
			f.buf = f.buf[:0]
			if f.prompted || f.bare {
				f.done = true
				return "", false, nil
			}
			f.prompted = true
			return "", false, nil
		}
		if bytes.HasPrefix(f.prompt, f.buf) {
			return "", false, nil
		}
		if len(f.buf) == 1 && b == '\r' {
			return "", false, nil
		}

		f.state = stateInLine
		f.prompted = false
		f.bare = false
		return "", false, nil
	}
}

// endOfCandidate handles a newline that arrives while the buffered bytes
// could still have been a prompt.
func (f *Framer) endOfCandidate() (string, bool, error) {
	rest := bytes.TrimSuffix(f.buf, []byte{'\r'})
	f.buf = f.buf[:0]

	if len(rest) == 0 {
		// Bare prompt line. A blank line without a prompt carries nothing
		// and leaves the state untouched.
		if f.prompted {
			f.prompted = false
			f.bare = true
		}
		return "", false, nil
	}

	// A truncated prompt followed by a newline is ordinary payload.
	f.prompted = false
	f.bare = false
	return string(rest), true, nil
}

// ReadBlock reads lines from r until the block terminator for prompt has
// been consumed and returns them in order. Read errors, including io.EOF
// before the terminator, are returned unchanged.
func ReadBlock(r io.ByteReader, prompt string) ([]string, error) {
	f := NewFramer(prompt)
	var lines []string
	for !f.Done() {
		b, err := r.ReadByte()
		if err != nil {
			return lines, err
		}
		line, ok, err := f.Feed(b)
		if err != nil {
			return lines, err
		}
		if ok {
			if len(lines) >= maxBlockLines {
				return lines, fmt.Errorf("%w: block exceeds %d lines", ErrProtocol, maxBlockLines)
			}
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// readLine reads one newline-terminated line from r, without its line
// ending. Blank lines are skipped; they are left over when a block
// terminator was followed by a newline.
func readLine(r io.ByteReader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b != '\n' {
			buf = append(buf, b)
			if len(buf) > maxLineLength {
				return "", fmt.Errorf("%w: line exceeds %d bytes", ErrProtocol, maxLineLength)
			}
			continue
		}
		buf = bytes.TrimSuffix(buf, []byte{'\r'})
		if len(buf) == 0 {
			continue
		}
		return string(buf), nil
	}
}

// stripPrompt removes the leading prompt from a single reply line.
func stripPrompt(line, prompt string) (string, error) {
	payload, ok := strings.CutPrefix(line, prompt)
	if !ok {
		return "", fmt.Errorf("%w: reply %q does not start with prompt %q", ErrProtocol, line, prompt)
	}
	return payload, nil
}
