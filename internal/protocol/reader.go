package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformed is returned by [Reader.Next] when the stream violates the
// outbound format.
var ErrMalformed = errors.New("protocol: malformed stream")

// FrameKind tells the two outbound units apart.
type FrameKind int

const (
	// FrameLine is a control token or a plain text line.
	FrameLine FrameKind = iota + 1

	// FrameSpeech is a complete speech frame.
	FrameSpeech
)

// Frame is one parsed outbound unit.
type Frame struct {
	Kind FrameKind

	// Line holds the line without its newline. Set for FrameLine.
	Line string

	// Audio holds the PCM payload. Set for FrameSpeech.
	Audio []byte
}

// Reader parses the server-to-device stream. It is the device side of
// [Writer] and is strict: a speech frame must be exactly the on token, the
// length line, the payload, and the off token.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the next frame. It returns [io.EOF] at a clean end of stream
// and an error wrapping [ErrMalformed] on a protocol violation.
func (r *Reader) Next() (Frame, error) {
	line, err := r.readLine()
	if err != nil {
		return Frame{}, err
	}
	if line != TokenSpeakingOn {
		return Frame{Kind: FrameLine, Line: line}, nil
	}

	lenLine, err := r.readLine()
	if err != nil {
		return Frame{}, unexpectedEOF(err)
	}
	n, err := parseAudioLen(lenLine)
	if err != nil {
		return Frame{}, err
	}

	audio := make([]byte, n)
	if _, err := io.ReadFull(r.br, audio); err != nil {
		return Frame{}, fmt.Errorf("protocol: read %d audio bytes: %w", n, unexpectedEOF(err))
	}

	off, err := r.readLine()
	if err != nil {
		return Frame{}, unexpectedEOF(err)
	}
	if off != TokenSpeakingOff {
		return Frame{}, fmt.Errorf("%w: want %q after payload, got %q", ErrMalformed, TokenSpeakingOff, off)
	}
	return Frame{Kind: FrameSpeech, Audio: audio}, nil
}

func (r *Reader) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", fmt.Errorf("%w: unterminated line %q", ErrMalformed, line)
		}
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func parseAudioLen(line string) (int, error) {
	digits, ok := strings.CutPrefix(line, audioLenPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: want audio length line, got %q", ErrMalformed, line)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad audio length %q", ErrMalformed, digits)
	}
	if n > MaxFrameBytes {
		return 0, fmt.Errorf("%w: audio length %d exceeds %d", ErrMalformed, n, MaxFrameBytes)
	}
	return n, nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
