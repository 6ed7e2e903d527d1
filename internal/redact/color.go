package redact

import "math"

// Color is an RGB triple with components in [0,1].
type Color struct {
	R, G, B float64
}

// DefaultBackground is used when no light sample is available around a
// region.
var DefaultBackground = Color{R: 0.9, G: 0.9, B: 0.9}

// Sampler provides pixel samples from the area surrounding a region on
// a given 0-based page, so the mask color can match the page background.
type Sampler interface {
	Sample(pageIdx int, r Rect) []Color
}

// IsLight reports whether a color is bright enough to pass as page
// background, using the perceived-luminance formula.
func IsLight(c Color) bool {
	return 0.299*c.R+0.587*c.G+0.114*c.B > 0.7
}

func roundComponent(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// BackgroundColor 从采样像素中估算背景色：只保留浅色样本，按
// 3 位小数聚类后取众数，无可用样本时退回默认浅灰。
func BackgroundColor(samples []Color) Color {
	counts := make(map[Color]int)
	for _, s := range samples {
		if !IsLight(s) {
			continue
		}
		key := Color{
			R: roundComponent(s.R),
			G: roundComponent(s.G),
			B: roundComponent(s.B),
		}
		counts[key]++
	}

	best := DefaultBackground
	bestCount := 0
	for c, n := range counts {
		if n > bestCount {
			best = c
			bestCount = n
		}
	}
	return best
}
