package protocol

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Writer serializes outbound lines and speech frames onto a connection. Every
// method writes one complete unit while holding a lock, so frames from the
// session read loop and from playback workers never interleave.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteLine writes s followed by a newline. Embedded CR and LF are replaced
// by spaces so one call always produces exactly one line.
func (pw *Writer) WriteLine(s string) error {
	line := flatten(s) + "\n"

	pw.mu.Lock()
	defer pw.mu.Unlock()
	if _, err := io.WriteString(pw.w, line); err != nil {
		return fmt.Errorf("protocol: write line: %w", err)
	}
	return nil
}

// WriteSpeech writes a complete speech frame carrying pcm. An empty payload
// still produces a well-formed frame with length zero.
func (pw *Writer) WriteSpeech(pcm []byte) error {
	header := TokenSpeakingOn + "\n" + audioLenPrefix + strconv.Itoa(len(pcm)) + "\n"

	pw.mu.Lock()
	defer pw.mu.Unlock()
	if _, err := io.WriteString(pw.w, header); err != nil {
		return fmt.Errorf("protocol: write speech header: %w", err)
	}
	if _, err := pw.w.Write(pcm); err != nil {
		return fmt.Errorf("protocol: write speech payload: %w", err)
	}
	if _, err := io.WriteString(pw.w, TokenSpeakingOff+"\n"); err != nil {
		return fmt.Errorf("protocol: write speech trailer: %w", err)
	}
	return nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flatten(s string) string {
	return lineBreaks.Replace(s)
}
