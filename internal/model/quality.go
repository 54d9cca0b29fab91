package model

import (
	"fmt"
	"sort"
)

// VideoQuality describes the encoder output.
type VideoQuality struct {
	Width   uint32 `json:"width"`
	Height  uint32 `json:"height"`
	FPS     uint32 `json:"fps"`
	Bitrate uint32 `json:"bitrate"`
}

// Presets offered by the UI quality selector.
var Presets = map[string]VideoQuality{
	"high":   {Width: 1280, Height: 720, FPS: 30, Bitrate: 2500},
	"medium": {Width: 854, Height: 480, FPS: 25, Bitrate: 2000},
	"low":    {Width: 640, Height: 360, FPS: 20, Bitrate: 1500},
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Valid reports whether every field is positive.
func (q VideoQuality) Valid() bool {
	return q.Width > 0 && q.Height > 0 && q.FPS > 0 && q.Bitrate > 0
}

// Name returns the preset name matching q, or a compact description.
func (q VideoQuality) Name() string {
	for name, p := range Presets {
		if p == q {
			return name
		}
	}
	return q.String()
}

func (q VideoQuality) String() string {
	return fmt.Sprintf("%dx%d@%d/%d", q.Width, q.Height, q.FPS, q.Bitrate)
}

// ParseVideoQuality accepts a preset name or the String form.
func ParseVideoQuality(s string) (VideoQuality, error) {
	if p, ok := Presets[s]; ok {
		return p, nil
	}
	var q VideoQuality
	if _, err := fmt.Sscanf(s, "%dx%d@%d/%d", &q.Width, &q.Height, &q.FPS, &q.Bitrate); err != nil {
		return VideoQuality{}, fmt.Errorf("invalid video quality %q: %w", s, err)
	}
	if !q.Valid() {
		return VideoQuality{}, fmt.Errorf("invalid video quality %q", s)
	}
	return q, nil
}
