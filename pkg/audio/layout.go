// ABOUTME: Channel layout bitmask definitions
// ABOUTME: Describes speaker positions and named layouts (mono, stereo, 5.1, ...)
package audio

import (
	"fmt"
	"math/bits"
	"strings"
)

// ChannelLayout is a bitmask of speaker positions
type ChannelLayout uint64

// Speaker positions
const (
	FrontLeft ChannelLayout = 1 << iota
	FrontRight
	FrontCenter
	LowFrequency
	BackLeft
	BackRight
	FrontLeftOfCenter
	FrontRightOfCenter
	BackCenter
	SideLeft
	SideRight
)

// Named layouts
const (
	LayoutMono     = FrontCenter
	LayoutStereo   = FrontLeft | FrontRight
	Layout2Point1  = LayoutStereo | LowFrequency
	LayoutSurround = LayoutStereo | FrontCenter
	LayoutQuad     = LayoutStereo | BackLeft | BackRight
	Layout5Point0  = LayoutSurround | SideLeft | SideRight
	Layout5Point1  = Layout5Point0 | LowFrequency
	Layout7Point1  = Layout5Point1 | BackLeft | BackRight
)

var layoutNames = []struct {
	layout ChannelLayout
	name   string
}{
	{LayoutMono, "mono"},
	{LayoutStereo, "stereo"},
	{Layout2Point1, "2.1"},
	{LayoutSurround, "3.0"},
	{LayoutQuad, "quad"},
	{Layout5Point0, "5.0"},
	{Layout5Point1, "5.1"},
	{Layout7Point1, "7.1"},
}

// Channels returns the number of speaker positions in the layout
func (l ChannelLayout) Channels() int {
	return bits.OnesCount64(uint64(l))
}

func (l ChannelLayout) String() string {
	for _, n := range layoutNames {
		if n.layout == l {
			return n.name
		}
	}
	return fmt.Sprintf("%d channels (0x%x)", l.Channels(), uint64(l))
}

// ParseChannelLayout parses a layout name ("stereo", "5.1") or a channel count ("2")
func ParseChannelLayout(name string) (ChannelLayout, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range layoutNames {
		if n.name == name {
			return n.layout, nil
		}
	}
	var count int
	if _, err := fmt.Sscanf(name, "%d", &count); err == nil {
		if l := DefaultLayout(count); l != 0 {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown channel layout: %q", name)
}

// DefaultLayout returns the conventional layout for a channel count, or 0 if there is none
func DefaultLayout(channels int) ChannelLayout {
	switch channels {
	case 1:
		return LayoutMono
	case 2:
		return LayoutStereo
	case 3:
		return LayoutSurround
	case 4:
		return LayoutQuad
	case 5:
		return Layout5Point0
	case 6:
		return Layout5Point1
	case 8:
		return Layout7Point1
	}
	return 0
}
