// SPDX-License-Identifier: MIT
package analysis

// ShockConfig sets when a frame counts as a shock: its spectral energy is
// above Threshold and has grown by more than Ratio since the last frame.
type ShockConfig struct {
	Threshold float64 `yaml:"threshold"`
	Ratio     float64 `yaml:"ratio"`
}

// ShockDetector flags sudden rises of the total spectral energy.
type ShockDetector struct {
	cfg        ShockConfig
	lastEnergy float64
}

func NewShockDetector(cfg ShockConfig) *ShockDetector {
	if cfg.Ratio <= 0 {
		cfg.Ratio = 1
	}
	return &ShockDetector{cfg: cfg}
}

// Detect reports whether energy is a shock relative to the previous frame.
func (d *ShockDetector) Detect(energy float64) bool {
	shock := energy > d.cfg.Threshold &&
		(d.lastEnergy == 0 || energy/d.lastEnergy > d.cfg.Ratio)
	d.lastEnergy = energy
	return shock
}
