// ABOUTME: Tests for audio resampler
// ABOUTME: Tests linear interpolation resampling between sample rates
package resample

import (
	"testing"
)

func ramp(samples, step int) []int32 {
	input := make([]int32, samples)
	for i := range input {
		input[i] = int32(i * step)
	}
	return input
}

func TestNewResampler(t *testing.T) {
	r := New(44100, 48000, 2)

	if r.InputRate() != 44100 {
		t.Errorf("expected inputRate 44100, got %d", r.InputRate())
	}
	if r.OutputRate() != 48000 {
		t.Errorf("expected outputRate 48000, got %d", r.OutputRate())
	}
	if r.channels != 2 {
		t.Errorf("expected channels 2, got %d", r.channels)
	}
}

func TestResampleRatios(t *testing.T) {
	tests := []struct {
		name     string
		in, out  int
		channels int
	}{
		{"upsampling", 44100, 48000, 2},
		{"downsampling", 48000, 44100, 2},
		{"mono", 44100, 48000, 1},
		{"large ratio up", 44100, 192000, 2},
		{"large ratio down", 192000, 48000, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.in, tt.out, tt.channels)
			input := ramp(1000*tt.channels, 10)

			output := r.Process(input)
			expected := r.OutputSamplesNeeded(len(input))

			// Allow some tolerance due to the frame held back for the next chunk
			tolerance := 10 * tt.channels
			if len(output) < expected-tolerance || len(output) > expected+tolerance {
				t.Errorf("expected ~%d samples, got %d", expected, len(output))
			}
			if len(output)%tt.channels != 0 {
				t.Errorf("output of %d samples is not whole frames", len(output))
			}
		})
	}
}

func TestResampleSameRate(t *testing.T) {
	r := New(48000, 48000, 2)
	input := ramp(200, 100)

	output := r.Process(input)

	// The last frame waits for the next chunk
	if len(output) != len(input)-2 {
		t.Fatalf("expected %d samples, got %d", len(input)-2, len(output))
	}
	for i := range output {
		if output[i] != input[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, input[i], output[i])
		}
	}
}

func TestResampleChunkBoundary(t *testing.T) {
	// Splitting the stream must not change the output
	input := ramp(2000, 7)

	whole := New(44100, 48000, 2).Process(input)

	r := New(44100, 48000, 2)
	var split []int32
	for i := 0; i < len(input); i += 250 {
		split = append(split, r.Process(input[i:i+250])...)
	}

	if len(split) != len(whole) {
		t.Fatalf("chunked output has %d samples, whole has %d", len(split), len(whole))
	}
	for i := range whole {
		if diff := abs(int(split[i]) - int(whole[i])); diff > 1 {
			t.Fatalf("sample %d: chunked %d, whole %d", i, split[i], whole[i])
		}
	}
}

func TestResampleStereo(t *testing.T) {
	// Test that stereo channels are handled correctly
	r := New(44100, 48000, 2)

	// Create input with different L/R patterns
	input := make([]int32, 20) // 10 stereo samples
	for i := 0; i < 10; i++ {
		input[i*2] = 1000    // Left channel
		input[i*2+1] = -1000 // Right channel
	}

	output := r.Process(input)
	if len(output) == 0 {
		t.Fatal("resampler produced no output")
	}

	for i := 0; i < len(output)/2; i++ {
		if abs(int(output[i*2])-1000) > 1 || abs(int(output[i*2+1])+1000) > 1 {
			t.Fatalf("frame %d: got %d/%d, want 1000/-1000", i, output[i*2], output[i*2+1])
		}
	}
}

func TestResampleEmptyInput(t *testing.T) {
	r := New(44100, 48000, 2)

	if out := r.Process(nil); len(out) != 0 {
		t.Errorf("expected 0 samples from empty input, got %d", len(out))
	}
}

func TestResampleReset(t *testing.T) {
	r := New(48000, 48000, 1)
	r.Process([]int32{1, 2, 3})
	r.Reset()

	out := r.Process([]int32{10, 20})
	if len(out) != 1 || out[0] != 10 {
		t.Errorf("after Reset got %v, want [10]", out)
	}
}

// Helper function
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
