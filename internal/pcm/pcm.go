package pcm

// Downmix converts interleaved multi-channel PCM to mono. Mono input is
// copied through unchanged. Stereo mixes each sample pair as the
// arithmetic mean, widened to int32 before averaging and clamped back
// to the 16-bit range. More than two channels are treated as
// left/right plus extras, and the extras are ignored; this is an
// accepted approximation, not spectral-correct downmixing.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		l := int32(samples[i*channels])
		r := int32(samples[i*channels+1])
		out[i] = clamp((l + r) / 2)
	}
	return out
}

// Resample converts samples from one rate to another by linear
// interpolation. Good enough for the best-effort merge and for feeding
// recognition engines; not intended for fidelity-critical paths.
func Resample(samples []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	if n == 0 {
		n = 1
	}
	out := make([]int16, n)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(samples[j])*(1-frac) + float64(samples[j+1])*frac)
	}
	return out
}

// Mix overlays two mono streams sample-wise, averaging where both have
// data and passing the longer tail through unchanged.
func Mix(a, b []int16) []int16 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int16, n)
	for i := range out {
		switch {
		case i < len(a) && i < len(b):
			out[i] = clamp((int32(a[i]) + int32(b[i])) / 2)
		case i < len(a):
			out[i] = a[i]
		default:
			out[i] = b[i]
		}
	}
	return out
}

// ToFloat32 converts signed 16-bit samples to [-1, 1] float32, the
// format whisper.cpp consumes.
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

func clamp(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
