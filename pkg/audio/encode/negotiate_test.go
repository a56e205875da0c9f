// ABOUTME: Tests for format negotiation
// ABOUTME: Covers exact matches, rounding up, fallback below target and packed preference
package encode

import (
	"slices"
	"testing"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
)

func TestClosestSampleRate(t *testing.T) {
	tests := []struct {
		name   string
		rates  []int
		target int
		want   int
	}{
		{"exact", []int{8000, 48000, 24000}, 24000, 24000},
		{"round up", []int{48000, 24000, 16000, 12000, 8000}, 44100, 48000},
		{"nearest above", []int{96000, 48000, 24000}, 44100, 48000},
		{"fallback below", []int{8000, 16000, 12000}, 44100, 16000},
		{"first entry below", []int{8000, 96000}, 44100, 96000},
		{"unconstrained", nil, 44100, 44100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClosestSampleRate(Capabilities{SampleRates: tt.rates}, tt.target)
			if got != tt.want {
				t.Errorf("ClosestSampleRate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClosestSampleFormat(t *testing.T) {
	tests := []struct {
		name    string
		formats []audio.SampleFormat
		target  audio.SampleFormat
		want    audio.SampleFormat
	}{
		{"exact", []audio.SampleFormat{audio.SampleFormatS16, audio.SampleFormatF32}, audio.SampleFormatF32, audio.SampleFormatF32},
		{"round up width", []audio.SampleFormat{audio.SampleFormatS16, audio.SampleFormatF32}, audio.SampleFormatS24, audio.SampleFormatF32},
		{"prefer packed", []audio.SampleFormat{audio.SampleFormatF32P, audio.SampleFormatF32}, audio.SampleFormatS32, audio.SampleFormatF32},
		{"planar only", []audio.SampleFormat{audio.SampleFormatF32P}, audio.SampleFormatS16, audio.SampleFormatF32P},
		{"fallback below", []audio.SampleFormat{audio.SampleFormatU8, audio.SampleFormatS16}, audio.SampleFormatF64, audio.SampleFormatS16},
		{"unconstrained", nil, audio.SampleFormatS24, audio.SampleFormatS24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClosestSampleFormat(Capabilities{SampleFormats: tt.formats}, tt.target)
			if got != tt.want {
				t.Errorf("ClosestSampleFormat() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClosestChannelLayout(t *testing.T) {
	tests := []struct {
		name    string
		layouts []audio.ChannelLayout
		target  audio.ChannelLayout
		want    audio.ChannelLayout
	}{
		{"exact", []audio.ChannelLayout{audio.LayoutMono, audio.LayoutStereo}, audio.LayoutStereo, audio.LayoutStereo},
		{"round up", []audio.ChannelLayout{audio.LayoutStereo, audio.Layout5Point1}, audio.LayoutSurround, audio.Layout5Point1},
		{"fallback below", []audio.ChannelLayout{audio.LayoutMono, audio.LayoutStereo}, audio.Layout5Point1, audio.LayoutStereo},
		{"unconstrained", nil, audio.Layout7Point1, audio.Layout7Point1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClosestChannelLayout(Capabilities{ChannelLayouts: tt.layouts}, tt.target)
			if got != tt.want {
				t.Errorf("ClosestChannelLayout() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNegotiateAlwaysSupported(t *testing.T) {
	caps := OpusBackend{}.Capabilities()
	targets := []audio.Format{
		{SampleFormat: audio.SampleFormatS16, SampleRate: 44100, Layout: audio.LayoutStereo},
		{SampleFormat: audio.SampleFormatF64P, SampleRate: 96000, Layout: audio.Layout7Point1},
		{SampleFormat: audio.SampleFormatU8, SampleRate: 4000, Layout: audio.LayoutMono},
	}

	for _, target := range targets {
		got := Negotiate(caps, target)
		if !slices.Contains(caps.SampleFormats, got.SampleFormat) {
			t.Errorf("Negotiate(%s) sample format %s not supported", target, got.SampleFormat)
		}
		if !slices.Contains(caps.SampleRates, got.SampleRate) {
			t.Errorf("Negotiate(%s) rate %d not supported", target, got.SampleRate)
		}
		if !slices.Contains(caps.ChannelLayouts, got.Layout) {
			t.Errorf("Negotiate(%s) layout %s not supported", target, got.Layout)
		}
	}

	want := audio.Format{SampleFormat: audio.SampleFormatS16, SampleRate: 48000, Layout: audio.LayoutStereo}
	if got := Negotiate(caps, targets[0]); got != want {
		t.Errorf("Negotiate() = %s, want %s", got, want)
	}
}

func TestNegotiateUnconstrained(t *testing.T) {
	target := audio.Format{SampleFormat: audio.SampleFormatS24, SampleRate: 88200, Layout: audio.Layout5Point1}
	if got := Negotiate(Capabilities{}, target); got != target {
		t.Errorf("Negotiate() = %s, want %s", got, target)
	}
}
