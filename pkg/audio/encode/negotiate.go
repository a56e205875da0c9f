// ABOUTME: Format negotiation against backend capabilities
// ABOUTME: Picks the nearest supported value per axis, rounding up rather than down
package encode

import "github.com/Sendspin/sendspin-transcode/pkg/audio"

// Negotiate maps a requested format onto the nearest format the backend supports.
// Each axis is resolved independently.
func Negotiate(caps Capabilities, target audio.Format) audio.Format {
	return audio.Format{
		SampleFormat: ClosestSampleFormat(caps, target.SampleFormat),
		SampleRate:   ClosestSampleRate(caps, target.SampleRate),
		Layout:       ClosestChannelLayout(caps, target.Layout),
	}
}

// closer reports whether candidate should replace best for target. A best that
// falls short of the target yields to anything larger; otherwise only values at
// or above the target that are strictly nearer win.
func closer(target, best, candidate int) bool {
	return (best < target && candidate > best) ||
		(candidate >= target && absDiff(target, candidate) < absDiff(target, best))
}

// ClosestSampleFormat returns target if supported, otherwise the format whose
// sample width is nearest at or above the target width, preferring the packed variant
func ClosestSampleFormat(caps Capabilities, target audio.SampleFormat) audio.SampleFormat {
	if len(caps.SampleFormats) == 0 {
		return target
	}

	targetSize := target.BytesPerSample()
	best := caps.SampleFormats[0]
	bestSize := best.BytesPerSample()
	for _, f := range caps.SampleFormats {
		if f == target {
			return target
		}
		size := f.BytesPerSample()
		if closer(targetSize, bestSize, size) {
			best, bestSize = f, size
		}
	}

	packed := best.Packed()
	for _, f := range caps.SampleFormats {
		if f == packed {
			return packed
		}
	}
	return best
}

// ClosestSampleRate returns target if supported, otherwise the minimum rate at or
// above target, falling back to the highest rate below it
func ClosestSampleRate(caps Capabilities, target int) int {
	if len(caps.SampleRates) == 0 {
		return target
	}

	best := caps.SampleRates[0]
	for _, rate := range caps.SampleRates {
		if rate == target {
			return target
		}
		if closer(target, best, rate) {
			best = rate
		}
	}
	return best
}

// ClosestChannelLayout returns target if supported, otherwise the layout with the
// minimum channel count at or above the target count
func ClosestChannelLayout(caps Capabilities, target audio.ChannelLayout) audio.ChannelLayout {
	if len(caps.ChannelLayouts) == 0 {
		return target
	}

	targetCount := target.Channels()
	best := caps.ChannelLayouts[0]
	bestCount := best.Channels()
	for _, l := range caps.ChannelLayouts {
		if l == target {
			return target
		}
		count := l.Channels()
		if closer(targetCount, bestCount, count) {
			best, bestCount = l, count
		}
	}
	return best
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
