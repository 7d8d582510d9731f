// Package audio holds helpers for the raw audio devices stream: 16-bit
// little-endian mono PCM.
package audio

import "encoding/binary"

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// Resample converts 16-bit mono PCM from srcRate to dstRate by linear
// interpolation. The input is returned unchanged when the rates match or
// either rate is not positive. A trailing odd byte is ignored.
func Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	src := len(pcm) / BytesPerSample
	if src == 0 {
		return nil
	}
	dst := int(int64(src) * int64(dstRate) / int64(srcRate))
	if dst == 0 {
		return nil
	}

	out := make([]byte, dst*BytesPerSample)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dst {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := Sample(pcm, idx)
		s1 := s0
		if idx+1 < src {
			s1 = Sample(pcm, idx+1)
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(v))
	}
	return out
}

// Sample returns the i-th sample of pcm.
func Sample(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
}

// DurationMs converts a byte count of mono PCM at sampleRate to milliseconds.
func DurationMs(n, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return n * 1000 / (sampleRate * BytesPerSample)
}
