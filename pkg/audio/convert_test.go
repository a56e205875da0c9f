// ABOUTME: Tests for sample packing and conversion
// ABOUTME: Covers interleaving, planar layouts and format conversion
package audio

import (
	"encoding/binary"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	// Values representable exactly in every width down to 16-bit
	samples := []int32{0, 0x7FFF00, -0x800000, 0x123400, -0x567800, 256}

	formats := []SampleFormat{
		SampleFormatS16, SampleFormatS16P,
		SampleFormatS24,
		SampleFormatS32, SampleFormatS32P,
		SampleFormatF32, SampleFormatF32P,
		SampleFormatF64, SampleFormatF64P,
	}

	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			planes := Pack(samples, 2, f)
			if f.Planar() && len(planes) != 2 {
				t.Fatalf("expected 2 planes, got %d", len(planes))
			}
			if !f.Planar() && len(planes) != 1 {
				t.Fatalf("expected 1 plane, got %d", len(planes))
			}

			got := Unpack(planes, 3, 2, f)
			for i := range samples {
				if got[i] != samples[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], samples[i])
				}
			}
		})
	}
}

func TestPackS16Layout(t *testing.T) {
	planes := Pack([]int32{SampleFromInt16(1), SampleFromInt16(-2)}, 2, SampleFormatS16)
	data := planes[0]
	if len(data) != 4 {
		t.Fatalf("len = %d, want 4", len(data))
	}
	if v := int16(binary.LittleEndian.Uint16(data[0:])); v != 1 {
		t.Errorf("left = %d, want 1", v)
	}
	if v := int16(binary.LittleEndian.Uint16(data[2:])); v != -2 {
		t.Errorf("right = %d, want -2", v)
	}
}

func TestPackU8(t *testing.T) {
	planes := Pack([]int32{0, Max24Bit, Min24Bit}, 1, SampleFormatU8)
	want := []byte{128, 255, 0}
	for i, b := range planes[0] {
		if b != want[i] {
			t.Errorf("byte %d = %d, want %d", i, b, want[i])
		}
	}
}

func TestInterleave(t *testing.T) {
	samples := []int32{SampleFromInt16(1), SampleFromInt16(2), SampleFromInt16(3), SampleFromInt16(4)}
	planar := Pack(samples, 2, SampleFormatS16P)
	packed := Pack(samples, 2, SampleFormatS16)

	got := Interleave(planar, 2, SampleFormatS16P)
	if string(got) != string(packed[0]) {
		t.Errorf("Interleave() = %v, want %v", got, packed[0])
	}
}
