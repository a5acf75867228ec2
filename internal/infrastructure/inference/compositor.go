package inference

import (
	"image"
	"image/color"
	"image/draw"

	"avatarcast/internal/core/domain"

	"github.com/disintegration/imaging"
)

// Composite renders output frame i: the generated face is scaled into the face
// box of the matching avatar frame and blended through the frame's mask.
func Composite(avatar *domain.PreparedAvatar, i int, face image.Image) *image.RGBA {
	idx := avatar.Cycle(i)
	base := avatar.Frames[idx]
	bounds := base.Bounds()

	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), base, bounds.Min, draw.Src)

	box := avatar.Coords[idx].Intersect(out.Bounds())
	if face == nil || box.Empty() {
		return out
	}
	resized := imaging.Resize(face, box.Dx(), box.Dy(), imaging.Linear)

	crop := avatar.MaskBoxes[idx].Intersect(out.Bounds())
	mask := avatar.Masks[idx]
	if mask == nil || crop.Empty() {
		draw.Draw(out, box, resized, image.Point{}, draw.Src)
		return out
	}

	// The layer is the original crop region with the new face pasted in; the
	// mask then feathers it back onto the frame.
	layer := image.NewRGBA(crop)
	draw.Draw(layer, crop, out, crop.Min, draw.Src)
	draw.Draw(layer, box, resized, image.Point{}, draw.Src)
	draw.DrawMask(out, crop, layer, crop.Min, mask, mask.Bounds().Min, draw.Over)
	return out
}

// AlphaMask converts a mask image to an *image.Alpha whose coverage is the mask's
// luminance, so it can drive draw.DrawMask.
func AlphaMask(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch m := img.(type) {
	case *image.Alpha:
		return m
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				out.Pix[y*out.Stride+x] = g.Y
			}
		}
	}
	return out
}
