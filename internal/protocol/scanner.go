package protocol

import (
	"bytes"
)

// Segment is one piece of the inbound stream: either audio bytes or a marker.
type Segment struct {
	// Marker is the matched marker, or "" for an audio segment.
	Marker string

	// Audio is set when Marker is empty. It may alias the chunk passed to
	// [Scanner.Feed] and is only valid until the next call.
	Audio []byte
}

// IsMarker reports whether s is a marker segment.
func (s Segment) IsMarker() bool { return s.Marker != "" }

// Scanner splits the inbound byte stream into audio and markers. A marker
// split across two reads is still recognized: trailing bytes that could be
// the start of a marker are held back until the next chunk decides. The
// concatenated audio of all segments plus [Scanner.Flush] equals the input
// with every marker removed.
//
// A Scanner is owned by one connection and is not safe for concurrent use.
type Scanner struct {
	markers [][]byte
	maxLen  int
	pending []byte
}

// NewScanner returns a Scanner for [Markers].
func NewScanner() *Scanner {
	s := &Scanner{}
	for _, m := range Markers {
		s.markers = append(s.markers, []byte(m))
		s.maxLen = max(s.maxLen, len(m))
	}
	return s
}

// Feed consumes chunk and returns the segments it completes, in stream order.
func (s *Scanner) Feed(chunk []byte) []Segment {
	buf := chunk
	if len(s.pending) > 0 {
		buf = append(s.pending, chunk...)
		s.pending = nil
	}

	var out []Segment
	for {
		at, marker := s.earliest(buf)
		if marker == nil {
			break
		}
		if at > 0 {
			out = append(out, Segment{Audio: buf[:at]})
		}
		out = append(out, Segment{Marker: string(marker)})
		buf = buf[at+len(marker):]
	}

	hold := s.heldTail(buf)
	if audio := buf[:len(buf)-hold]; len(audio) > 0 {
		out = append(out, Segment{Audio: audio})
	}
	if hold > 0 {
		s.pending = bytes.Clone(buf[len(buf)-hold:])
	}
	return out
}

// Flush returns bytes held back as a possible marker prefix. It is called
// when the stream ends; the bytes are audio after all.
func (s *Scanner) Flush() []byte {
	p := s.pending
	s.pending = nil
	return p
}

// Pending reports how many bytes are currently held back.
func (s *Scanner) Pending() int { return len(s.pending) }

func (s *Scanner) earliest(buf []byte) (int, []byte) {
	at, found := -1, []byte(nil)
	for _, m := range s.markers {
		i := bytes.Index(buf, m)
		if i >= 0 && (at < 0 || i < at) {
			at, found = i, m
		}
	}
	return at, found
}

// heldTail returns the length of the longest suffix of buf that is a proper
// prefix of some marker.
func (s *Scanner) heldTail(buf []byte) int {
	for n := min(len(buf), s.maxLen-1); n > 0; n-- {
		tail := buf[len(buf)-n:]
		for _, m := range s.markers {
			if n < len(m) && bytes.HasPrefix(m, tail) {
				return n
			}
		}
	}
	return 0
}
