// ABOUTME: Streaming linear resampler for converting audio sample rates
// ABOUTME: Carries the last input frame across calls so chunk boundaries interpolate cleanly
package resample

// Resampler performs linear interpolation to convert between sample rates.
// It is not safe for concurrent use.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64

	// position of the next output frame, in input frames relative to lastFrame
	position  float64
	lastFrame []int32 // previous chunk's final frame
	primed    bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]int32, channels),
	}
}

// InputRate returns the rate the resampler expects
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the rate the resampler produces
func (r *Resampler) OutputRate() int { return r.outputRate }

// Process converts interleaved input at inputRate to interleaved output at outputRate.
// Output for the last input frame is produced once the next chunk arrives.
func (r *Resampler) Process(input []int32) []int32 {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return nil
	}

	// frame i of the virtual stream [lastFrame, input...]
	offset := 0
	if r.primed {
		offset = 1
	}
	total := inputFrames + offset
	at := func(i, ch int) int32 {
		if i < offset {
			return r.lastFrame[ch]
		}
		return input[(i-offset)*r.channels+ch]
	}

	output := make([]int32, 0, (int(float64(total)/r.ratio)+1)*r.channels)
	for {
		idx := int(r.position)
		if idx+1 >= total {
			break
		}
		frac := r.position - float64(idx)
		for ch := 0; ch < r.channels; ch++ {
			s1 := float64(at(idx, ch))
			s2 := float64(at(idx+1, ch))
			output = append(output, int32(s1*(1.0-frac)+s2*frac))
		}
		r.position += r.ratio
	}

	// Rebase so the final input frame becomes frame 0 of the next call
	r.position -= float64(total - 1)
	copy(r.lastFrame, input[(inputFrames-1)*r.channels:inputFrames*r.channels])
	r.primed = true

	return output
}

// Reset drops the carried frame and restarts at position zero
func (r *Resampler) Reset() {
	r.position = 0.0
	r.primed = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}
