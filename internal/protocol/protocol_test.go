package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)

	pcm := []byte{0x01, '\n', 0x00, 0xff, '_', '_'}
	steps := []func() error{
		func() error { return w.WriteLine(TokenAwake) },
		func() error { return w.WriteLine("Yes?") },
		func() error { return w.WriteSpeech(pcm) },
		func() error { return w.WriteLine("two\nlines") },
		func() error { return w.WriteSpeech(nil) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	r := NewReader(&buf)
	want := []Frame{
		{Kind: FrameLine, Line: TokenAwake},
		{Kind: FrameLine, Line: "Yes?"},
		{Kind: FrameSpeech, Audio: pcm},
		{Kind: FrameLine, Line: "two lines"},
		{Kind: FrameSpeech, Audio: []byte{}},
	}
	for i, wf := range want {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got.Kind != wf.Kind || got.Line != wf.Line || !bytes.Equal(got.Audio, wf.Audio) {
			t.Fatalf("frame %d = %+v, want %+v", i, got, wf)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next at end = %v, want io.EOF", err)
	}
}

func TestWriteSpeechExactBytes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteSpeech([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	want := "__speaking_on__\n__audio_len__ 3\nabc__speaking_off__\n"
	if buf.String() != want {
		t.Errorf("wire = %q, want %q", buf.String(), want)
	}
}

func TestWriterConcurrentFramesDoNotInterleave(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	payload := bytes.Repeat([]byte{7}, 4096)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = w.WriteSpeech(payload)
		}()
		go func() {
			defer wg.Done()
			_ = w.WriteLine(TokenListeningOn)
		}()
	}
	wg.Wait()

	r := NewReader(&buf)
	var speech, lines int
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		switch f.Kind {
		case FrameSpeech:
			speech++
			if len(f.Audio) != len(payload) {
				t.Fatalf("payload len = %d", len(f.Audio))
			}
		case FrameLine:
			lines++
		}
	}
	if speech != 8 || lines != 8 {
		t.Errorf("speech = %d, lines = %d, want 8 and 8", speech, lines)
	}
}

func TestReaderMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "missing length line", in: "__speaking_on__\nhello\n", want: ErrMalformed},
		{name: "bad length", in: "__speaking_on__\n__audio_len__ x\n", want: ErrMalformed},
		{name: "negative length", in: "__speaking_on__\n__audio_len__ -1\n", want: ErrMalformed},
		{name: "short payload", in: "__speaking_on__\n__audio_len__ 5\nab", want: io.ErrUnexpectedEOF},
		{name: "missing off", in: "__speaking_on__\n__audio_len__ 2\nab__awake__\n", want: ErrMalformed},
		{name: "unterminated line", in: "__awake__", want: ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewReader(strings.NewReader(tt.in)).Next()
			if !errors.Is(err, tt.want) {
				t.Errorf("Next() error = %v, want %v", err, tt.want)
			}
		})
	}
}

// collect runs chunks through a scanner and returns the audio stream and the
// markers in order.
func collect(chunks ...[]byte) ([]byte, []string) {
	s := NewScanner()
	var audio []byte
	var markers []string
	for _, c := range chunks {
		for _, seg := range s.Feed(c) {
			if seg.IsMarker() {
				markers = append(markers, seg.Marker)
				continue
			}
			audio = append(audio, seg.Audio...)
		}
	}
	audio = append(audio, s.Flush()...)
	return audio, markers
}

func TestScanner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		chunks  []string
		audio   string
		markers []string
	}{
		{name: "plain audio", chunks: []string{"abcdef"}, audio: "abcdef"},
		{name: "marker alone", chunks: []string{"__lang_en__"}, markers: []string{MarkerLangEN}},
		{name: "marker inside chunk", chunks: []string{"ab__lang_ru__cd"}, audio: "abcd", markers: []string{MarkerLangRU}},
		{name: "two markers", chunks: []string{"__lang_en__x__lang_ru__"}, audio: "x", markers: []string{MarkerLangEN, MarkerLangRU}},
		{name: "split across chunks", chunks: []string{"abc__lan", "g_en__def"}, audio: "abcdef", markers: []string{MarkerLangEN}},
		{name: "split byte by byte", chunks: strings.Split("q__lang_ru__w", ""), audio: "qw", markers: []string{MarkerLangRU}},
		{name: "false prefix released", chunks: []string{"ab__la", "zz"}, audio: "ab__lazz"},
		{name: "prefix at end of stream", chunks: []string{"ab__lang_"}, audio: "ab__lang_"},
		{name: "underscores in audio", chunks: []string{"____", "__lang_en__"}, audio: "____", markers: []string{MarkerLangEN}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chunks := make([][]byte, len(tt.chunks))
			for i, c := range tt.chunks {
				chunks[i] = []byte(c)
			}
			audio, markers := collect(chunks...)
			if string(audio) != tt.audio {
				t.Errorf("audio = %q, want %q", audio, tt.audio)
			}
			if strings.Join(markers, ",") != strings.Join(tt.markers, ",") {
				t.Errorf("markers = %q, want %q", markers, tt.markers)
			}
		})
	}
}

func TestScannerOrdersAudioBeforeMarker(t *testing.T) {
	t.Parallel()

	s := NewScanner()
	segs := s.Feed([]byte("old__lang_en__new"))
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3", len(segs))
	}
	if string(segs[0].Audio) != "old" || segs[1].Marker != MarkerLangEN || string(segs[2].Audio) != "new" {
		t.Errorf("segments = %+v", segs)
	}
}

func TestScannerHoldsAtMostMarkerPrefix(t *testing.T) {
	t.Parallel()

	s := NewScanner()
	s.Feed([]byte("xxxx__lang_r"))
	if got, limit := s.Pending(), len(MarkerLangRU)-1; got == 0 || got > limit {
		t.Errorf("Pending() = %d, want 1..%d", got, limit)
	}
	s.Feed([]byte("x"))
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after mismatch, want 0", s.Pending())
	}
}
