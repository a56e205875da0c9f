// ABOUTME: Channel count conversion for interleaved samples
// ABOUTME: Averages down to mono, duplicates mono up, otherwise maps channels cyclically
package playlist

// remix converts interleaved samples from one channel count to another
func remix(samples []int32, from, to int) []int32 {
	if from == to || from <= 0 || to <= 0 {
		return samples
	}
	frames := len(samples) / from
	out := make([]int32, frames*to)

	for i := 0; i < frames; i++ {
		in := samples[i*from : (i+1)*from]
		dst := out[i*to : (i+1)*to]

		if to == 1 {
			var sum int64
			for _, s := range in {
				sum += int64(s)
			}
			dst[0] = int32(sum / int64(from))
			continue
		}
		for ch := range dst {
			dst[ch] = in[ch%from]
		}
	}
	return out
}
