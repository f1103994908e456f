// Package preprocess normalizes raster page images before OCR.
package preprocess

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

const (
	// ThresholdWindow is the side length of the local binarization window.
	ThresholdWindow = 31
	// ThresholdOffset is subtracted from the local mean before comparing.
	ThresholdOffset = 2
	// UpscaleFactor raises effective DPI for small fonts.
	UpscaleFactor = 2
)

// Preprocess runs the full normalization chain: grayscale, adaptive
// threshold, median blur, 2x upscale. It is deterministic and never
// fails; invalid input is returned unchanged so acquisition can proceed
// with degraded pages instead of aborting.
func Preprocess(img image.Image) image.Image {
	if img == nil || img.Bounds().Empty() {
		return img
	}
	gray := Grayscale(img)
	gray = AdaptiveThreshold(gray, ThresholdWindow, ThresholdOffset)
	gray = MedianBlur(gray, 1)
	return Upscale(gray, UpscaleFactor)
}

// Grayscale converts an image to single-channel grayscale.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// AdaptiveThreshold binarizes against the local mean over a
// window x window neighborhood, minus offset. Separates ink from paper
// under uneven lighting where a global threshold fails.
func AdaptiveThreshold(src *image.Gray, window, offset int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || window < 3 {
		return src
	}

	// Integral image, one row/column of padding for clean edge handling.
	sums := make([]uint64, (w+1)*(h+1))
	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			sums[(y+1)*stride+x+1] = sums[y*stride+x+1] + rowSum
		}
	}

	r := window / 2
	dst := image.NewGray(b)
	for y := 0; y < h; y++ {
		y0, y1 := max(y-r, 0), min(y+r+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-r, 0), min(x+r+1, w)
			area := uint64((y1 - y0) * (x1 - x0))
			sum := sums[y1*stride+x1] - sums[y0*stride+x1] - sums[y1*stride+x0] + sums[y0*stride+x0]
			mean := int(sum / area)
			v := int(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			if v > mean-offset {
				dst.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 255})
			} else {
				dst.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 0})
			}
		}
	}
	return dst
}

// MedianBlur applies a (2*radius+1)^2 median filter. Radius 1 removes
// speckle noise without eroding glyph strokes.
func MedianBlur(src *image.Gray, radius int) *image.Gray {
	if radius < 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewGray(b)
	var window []uint8
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					window = append(window, src.GrayAt(px, py).Y)
				}
			}
			dst.SetGray(x, y, color.Gray{Y: median(window)})
		}
	}
	return dst
}

// Upscale scales by an integer factor using Catmull-Rom interpolation.
func Upscale(src *image.Gray, factor int) *image.Gray {
	if factor <= 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func median(vals []uint8) uint8 {
	if len(vals) == 0 {
		return 0
	}
	// Counting sort: values are bytes and windows are tiny.
	var counts [256]int
	for _, v := range vals {
		counts[v]++
	}
	mid := len(vals) / 2
	seen := 0
	for v, c := range counts {
		seen += c
		if seen > mid {
			return uint8(v)
		}
	}
	return 255
}
