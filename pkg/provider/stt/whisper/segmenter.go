package whisper

import "github.com/MrWong99/earshot/pkg/audio"

// action is what the segmenter asks the session to do after a chunk.
type action int

const (
	actNone action = iota
	// actPartial asks for an interim transcription of the speech so far.
	actPartial
	// actFinal asks for a final transcription; the buffer has been handed
	// over and reset.
	actFinal
)

// segmenter groups a PCM stream into utterances with an RMS energy gate. It
// has no dependency on whisper.cpp so the policy can be tested on its own.
type segmenter struct {
	sampleRate   int
	threshold    float64
	silenceMs    int
	maxMs        int
	partialEvery int

	buf          []byte
	hadSpeech    bool
	trailingMs   int
	sincePartial int
}

// push appends chunk and reports what to do next. For actPartial the
// returned audio is a snapshot of the buffered utterance; for actFinal it is
// the whole utterance.
func (g *segmenter) push(chunk []byte) (action, []byte) {
	ms := audio.DurationMs(len(chunk), g.sampleRate)

	if rms(chunk) < g.threshold {
		if !g.hadSpeech {
			return actNone, nil
		}
		g.buf = append(g.buf, chunk...)
		g.trailingMs += ms
		if g.trailingMs >= g.silenceMs {
			return actFinal, g.take()
		}
		return actNone, nil
	}

	g.hadSpeech = true
	g.trailingMs = 0
	g.buf = append(g.buf, chunk...)
	g.sincePartial += ms

	if g.maxMs > 0 && audio.DurationMs(len(g.buf), g.sampleRate) >= g.maxMs {
		return actFinal, g.take()
	}
	if g.partialEvery > 0 && g.sincePartial >= g.partialEvery {
		g.sincePartial = 0
		return actPartial, append([]byte(nil), g.buf...)
	}
	return actNone, nil
}

// flush hands over any buffered speech, used when the stream closes.
func (g *segmenter) flush() []byte {
	if !g.hadSpeech {
		g.reset()
		return nil
	}
	return g.take()
}

func (g *segmenter) take() []byte {
	out := g.buf
	g.reset()
	return out
}

func (g *segmenter) reset() {
	g.buf = nil
	g.hadSpeech = false
	g.trailingMs = 0
	g.sincePartial = 0
}
