package whisper

import (
	"math"

	"github.com/MrWong99/earshot/pkg/audio"
)

// pcmToFloat32 converts 16-bit little-endian PCM to samples in [-1, 1). A
// trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / audio.BytesPerSample
	samples := make([]float32, n)
	for i := range n {
		samples[i] = float32(audio.Sample(pcm, i)) / 32768.0
	}
	return samples
}

// rms is the root-mean-square energy of a PCM chunk in raw sample units.
func rms(pcm []byte) float64 {
	n := len(pcm) / audio.BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(audio.Sample(pcm, i))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
