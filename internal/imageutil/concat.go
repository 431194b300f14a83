package imageutil

import (
	"image"

	"golang.org/x/image/draw"
)

// ConcatSideBySide joins images horizontally into a single RGB image.
//
// Every image is scaled to the height of the first one, preserving its own
// aspect ratio. Returns nil for an empty input or a zero-height first image;
// zero-height inputs further down are skipped.
func ConcatSideBySide(images []image.Image) image.Image {
	if len(images) == 0 {
		return nil
	}

	targetHeight := images[0].Bounds().Dy()
	if targetHeight == 0 {
		return nil
	}
	resized := make([]image.Image, 0, len(images))
	totalWidth := 0
	for _, img := range images {
		b := img.Bounds()
		if b.Dy() == 0 {
			continue
		}
		newWidth := b.Dx() * targetHeight / b.Dy()
		dst := image.NewRGBA(image.Rect(0, 0, newWidth, targetHeight))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		resized = append(resized, dst)
		totalWidth += newWidth
	}

	out := image.NewRGBA(image.Rect(0, 0, totalWidth, targetHeight))
	xOffset := 0
	for _, img := range resized {
		b := img.Bounds()
		draw.Draw(out, image.Rect(xOffset, 0, xOffset+b.Dx(), targetHeight), img, b.Min, draw.Src)
		xOffset += b.Dx()
	}
	return out
}
