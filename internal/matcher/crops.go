package matcher

import "image"

// cropLattice returns the regions of a frame that are fingerprinted: the full
// frame, a centred 75% crop and 50% crops on a 3x3 grid with quarter-frame
// steps. The order is fixed.
func cropLattice(b image.Rectangle) []image.Rectangle {
	w, h := b.Dx(), b.Dy()
	crops := []image.Rectangle{
		b,
		centred(b, w*3/4, h*3/4),
	}

	cw, ch := w/2, h/2
	for gy := range 3 {
		for gx := range 3 {
			x := b.Min.X + gx*w/4
			y := b.Min.Y + gy*h/4
			crops = append(crops, image.Rect(x, y, x+cw, y+ch))
		}
	}
	return crops
}

func centred(b image.Rectangle, w, h int) image.Rectangle {
	x := b.Min.X + (b.Dx()-w)/2
	y := b.Min.Y + (b.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}
