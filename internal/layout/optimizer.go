package layout

import (
	"math"
	"strings"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

// DefaultFontSize is returned when a block has no usable bbox or content.
const DefaultFontSize = 12.0

// MinFontSize is the readability floor applied to every result.
const MinFontSize = 8.0

// targetHeightRatio leaves headroom inside the container so descenders and
// MathJax output do not clip.
const targetHeightRatio = 0.9

// Optimizer converges on the largest font size whose simulated height fits
// a block's bounding box.
type Optimizer struct {
	sim         *Simulator
	defaultSize float64
}

// NewOptimizer creates an Optimizer over a shared Simulator.
func NewOptimizer(sim *Simulator) *Optimizer {
	return &Optimizer{sim: sim, defaultSize: DefaultFontSize}
}

// OptimalSize finds the largest size such that the simulated total height
// stays within 90% of the scaled container height.
//
// The search runs in two phases rather than a plain binary search. Phase
// one climbs from 6.0 with a step that starts at 8.0 and halves on each
// overflow until it reaches 1.0. Phase two probes upward in whole steps;
// at the first overflow the size one step down is re-checked, and if even
// that overflows the size two steps down is the last safe point. The exact
// tie-break when the probe lands back on the recorded best is kept as-is:
// changing it changes visual output.
func (o *Optimizer) OptimalSize(bbox []float64, content string, scale float64) float64 {
	if len(bbox) != 4 || strings.TrimSpace(content) == "" {
		return o.defaultSize
	}

	containerWidth := (bbox[2] - bbox[0]) * scale
	containerHeight := (bbox[3] - bbox[1]) * scale
	targetHeight := containerHeight * targetHeightRatio

	fontSize := 6.0
	step := 8.0
	bestSize := fontSize

	fits := func(size float64) bool {
		layout := o.sim.Simulate(content, size, containerWidth)
		return layout.TotalHeight <= targetHeight
	}

	// phase 1: coarse ascent with halving step
	for step >= 1 {
		if fits(fontSize) {
			bestSize = fontSize
			fontSize += step
		} else {
			fontSize -= step
			step = math.Max(1.0, step/2)
			fontSize += step
			if step == 1.0 {
				break
			}
		}
	}

	// phase 2: fine probe at step 1
	if step == 1.0 {
		for {
			if fits(fontSize) {
				bestSize = fontSize
				fontSize += 1.0
				continue
			}
			if fontSize > bestSize {
				candidate := fontSize - 1.0
				if candidate == bestSize {
					bestSize = candidate
				} else if fits(candidate) {
					// first overflow was at fontSize, candidate is safe
					bestSize = candidate
				} else {
					// two steps back is the last known safe point
					bestSize = fontSize - 2.0
				}
			}
			break
		}
	}

	final := math.Max(bestSize, MinFontSize)
	final = math.Round(final*10) / 10
	logger.Debug("font size optimized",
		logger.Float64("size", final),
		logger.Float64("width", containerWidth),
		logger.Float64("height", containerHeight))
	return final
}
