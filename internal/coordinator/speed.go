package coordinator

import (
	"fmt"
	"math"
	"strings"
)

// SpeedPreset selects one of the discrete global playback speeds.
type SpeedPreset uint8

const (
	Slowest SpeedPreset = iota
	Slower
	Normal
	Faster
	Fastest
)

// presetCount is the number of discrete presets.
const presetCount = int(Fastest) + 1

var presetNames = [presetCount]string{"slowest", "slower", "normal", "faster", "fastest"}

func (p SpeedPreset) String() string {
	if p.Valid() {
		return presetNames[p]
	}
	return fmt.Sprintf("preset(%d)", uint8(p))
}

// Valid reports whether p names a known preset.
func (p SpeedPreset) Valid() bool { return int(p) < presetCount }

// Presets lists every preset from slowest to fastest.
func Presets() []SpeedPreset {
	return []SpeedPreset{Slowest, Slower, Normal, Faster, Fastest}
}

// ParsePreset maps a case-insensitive preset name onto SpeedPreset.
func ParsePreset(raw string) (SpeedPreset, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for i, candidate := range presetNames {
		if candidate == name {
			return SpeedPreset(i), nil
		}
	}
	return Normal, fmt.Errorf("unknown speed preset %q", raw)
}

// SpeedTable maps each preset onto an unsigned playback multiplier.
type SpeedTable [presetCount]float64

// DefaultSpeedTable returns 0.25x, 0.5x, 1x, 2x and 4x.
func DefaultSpeedTable() SpeedTable {
	return SpeedTable{0.25, 0.5, 1, 2, 4}
}

// NewSpeedTable validates one positive multiplier per preset, slowest first.
func NewSpeedTable(multipliers []float64) (SpeedTable, error) {
	var table SpeedTable
	if len(multipliers) != presetCount {
		return table, fmt.Errorf("speed table needs %d multipliers, got %d", presetCount, len(multipliers))
	}
	for i, value := range multipliers {
		if !(value > 0) || math.IsInf(value, 0) {
			return table, fmt.Errorf("speed multiplier for %s must be positive, got %v", SpeedPreset(i), value)
		}
		table[i] = value
	}
	return table, nil
}

// Multiplier returns the unsigned multiplier for preset, falling back to Normal.
func (t SpeedTable) Multiplier(preset SpeedPreset) float64 {
	if !preset.Valid() {
		preset = Normal
	}
	return t[preset]
}
