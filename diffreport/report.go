// Package diffreport renders a unified-diff preview of the two sides of a
// conflict, so an operator (or a log line) can see what a CONFLICT_COPY
// backup is about to shadow before it's written. It does not drive any
// propagation decision; byte-equality on the REMOTE direction (spec.md
// §4.5) is decided directly on the raw content elsewhere.
package diffreport

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andreyvit/diff"
)

const bytesForBinaryFileCheck = 1 << 16

const defaultContextLines = 3

// Preview returns a unified diff of the local and remote content of a
// conflicting entry, using defaultContextLines lines of context. An empty
// string means the two sides are byte-identical.
func Preview(local, remote []byte) (string, error) {
	return PreviewContext(local, remote, defaultContextLines)
}

// PreviewContext is Preview with an explicit number of context lines.
func PreviewContext(local, remote []byte, contextLines int) (string, error) {
	var buf bytes.Buffer
	if err := PreviewTo(&buf, local, remote, contextLines); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PreviewTo writes a unified diff of local and remote to w. Output should
// match the system diff tool closely enough to be useful in a log or a
// conflict report, without shelling out to one.
func PreviewTo(w io.Writer, local, remote []byte, contextLines int) error {
	if bytes.Equal(local, remote) {
		return nil
	}
	lines := diff.LineDiffAsLines(string(local), string(remote))
	if len(lines) == 0 {
		return nil
	}
	return unified(w, lines, contextLines)
}

func unified(w io.Writer, lines []string, contextLines int) error {
	// While processing lines we're either in a hunk or in a common segment.
	// The hunk is nil while in a common segment.
	var h *hunk

	// Outside of a hunk, the most recent common lines are kept in a ring
	// buffer so a new hunk can be backfilled with context when it opens.
	common := newRing(contextLines)

	if isLikelyBinaryFile(lines) {
		_, err := fmt.Fprintln(w, "Binary files differ")
		return err
	}

	var leftOffset, rightOffset int
	for _, line := range lines {
		if line[0] == ' ' {
			if h != nil {
				h.appendCommon(line)
				if h.isComplete() {
					for _, l := range h.trim() {
						common.enqueue(l)
					}
					if err := h.printTo(w); err != nil {
						return err
					}
					h = nil
				}
			} else {
				common.enqueue(line)
			}
		} else {
			if h == nil {
				h = newHunk(leftOffset, rightOffset, common.dequeueAll(), contextLines)
			}
			if line[0] == '-' {
				h.appendLeft(line)
			} else {
				h.appendRight(line)
			}
		}
		switch line[0] {
		case '-':
			leftOffset++
		case ' ':
			leftOffset++
			rightOffset++
		case '+':
			rightOffset++
		}
	}
	if h != nil {
		h.trim()
		return h.printTo(w)
	}
	return nil
}

// isLikelyBinaryFile looks at the first bytesForBinaryFileCheck bytes and
// reports whether any of them is a nul.
func isLikelyBinaryFile(lines []string) bool {
	count := 0
	for _, line := range lines {
		if strings.Contains(line, "\x00") {
			return true
		}
		count += len(line)
		if count >= bytesForBinaryFileCheck {
			break
		}
	}
	return false
}
