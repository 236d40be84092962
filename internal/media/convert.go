package media

// DecodePCM16 converts little-endian int16 PCM bytes to float32 samples in
// [-1, 1). A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768
	}
	return out
}

// EncodePCM16 converts float32 samples to little-endian int16 PCM bytes,
// clamping to the int16 range.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		v := f * 32768
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		s := int16(v)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DownmixStereo averages interleaved stereo samples into mono. Input length
// is expected to be even; a trailing orphan sample is dropped.
func DownmixStereo(samples []float32) []float32 {
	n := len(samples) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. The input is returned unchanged when the rates already
// match or are invalid.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}
