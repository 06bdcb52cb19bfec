package output

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/mine-impact-monitor/internal/delta"
	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
)

const (
	legendHeight = 40
	minMapSize   = 256
)

var (
	noDataColor     = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	persistentColor = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0.5
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

// valueToColor maps 0 to red, 0.5 to white and 1 to green.
func valueToColor(norm float64) color.RGBA {
	if norm <= 0.5 {
		ratio := norm / 0.5
		return color.RGBA{R: 255, G: uint8(255 * ratio), B: uint8(255 * ratio), A: 255}
	}
	ratio := (norm - 0.5) / 0.5
	return color.RGBA{R: uint8(255 * (1 - ratio)), G: 255, B: uint8(255 * (1 - ratio)), A: 255}
}

// symmetricLimit is the largest magnitude among the values so that zero
// change stays white.
func symmetricLimit(values []float64) float64 {
	lo, hi := delta.ValueRange(values)
	if math.IsNaN(lo) {
		return 1
	}
	limit := math.Max(math.Abs(lo), math.Abs(hi))
	if limit == 0 {
		return 1
	}
	return limit
}

// drawChange paints each grid cell as a scale x scale block of img.
func drawChange(img *image.RGBA, grid sentinel.Grid, change []float64, mask []bool, scale int) {
	limit := symmetricLimit(change)
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			i := y*grid.Width + x
			var c color.RGBA
			switch {
			case mask != nil && mask[i]:
				c = persistentColor
			case math.IsNaN(change[i]):
				c = noDataColor
			default:
				c = valueToColor(normalize(change[i], -limit, limit))
			}
			block := image.Rect(x*scale, y*scale, (x+1)*scale, (y+1)*scale)
			draw.Draw(img, block, &image.Uniform{C: c}, image.Point{}, draw.Src)
		}
	}
}

func mapScale(grid sentinel.Grid) int {
	side := max(grid.Width, grid.Height)
	if side >= minMapSize {
		return 1
	}
	return (minMapSize + side - 1) / side
}

// CreateChangeMap renders a per pixel index change as a PNG with a legend.
// Loss is red, gain green and pixels of the persistent change mask, when
// given, magenta.
func CreateChangeMap(outputPath string, grid sentinel.Grid, change []float64, mask []bool, title string) error {
	if len(change) != grid.Size() {
		return fmt.Errorf("change map has %d values, grid %s expects %d", len(change), grid, grid.Size())
	}
	if mask != nil && len(mask) != grid.Size() {
		return fmt.Errorf("mask has %d values, grid %s expects %d", len(mask), grid, grid.Size())
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create map folder: %w", err)
	}

	scale := mapScale(grid)
	width := grid.Width * scale
	height := grid.Height * scale

	img := image.NewRGBA(image.Rect(0, 0, width, height+legendHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	drawChange(img, grid, change, mask, scale)

	dc := gg.NewContextForRGBA(img)

	limit := symmetricLimit(change)
	barWidth := float64(width) - 20
	for i := 0; i < int(barWidth); i++ {
		c := valueToColor(float64(i) / barWidth)
		dc.SetRGB255(int(c.R), int(c.G), int(c.B))
		dc.DrawRectangle(10+float64(i), float64(height)+6, 1, 10)
		dc.Fill()
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("%.2f", -limit), 10, float64(height)+28, 0, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("+%.2f", limit), float64(width)-10, float64(height)+28, 1, 0.5)
	if title != "" {
		dc.DrawStringAnchored(title, float64(width)/2, float64(height)+28, 0.5, 0.5)
	}

	if err := dc.SavePNG(outputPath); err != nil {
		return fmt.Errorf("failed to save change map: %w", err)
	}
	return nil
}
