// Package testutil builds synthetic images and media payloads for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math/rand"
)

// BlockPattern returns a size x size image made of blocks x blocks random
// black and white squares. The same seed always yields the same pattern.
func BlockPattern(seed int64, size, blocks int) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	step := size / blocks
	for by := range blocks {
		for bx := range blocks {
			c := color.RGBA{A: 255}
			if rng.Intn(2) == 1 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			r := image.Rect(bx*step, by*step, (bx+1)*step, (by+1)*step)
			draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
		}
	}
	return img
}

// Solid returns a width x height image filled with c.
func Solid(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// Embed pastes src at the centre of a width x height mid-grey canvas.
func Embed(src image.Image, width, height int) *image.RGBA {
	canvas := Solid(width, height, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	b := src.Bounds()
	offset := image.Pt((width-b.Dx())/2, (height-b.Dy())/2)
	draw.Draw(canvas, b.Sub(b.Min).Add(offset), src, b.Min, draw.Src)
	return canvas
}

// PNG encodes img as PNG.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG encodes img as JPEG at the given quality.
func JPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// MarkerPNG is BlockPattern(seed, 256, 8) encoded as PNG.
func MarkerPNG(seed int64) []byte {
	return PNG(BlockPattern(seed, 256, 8))
}

// MP4 returns the smallest byte sequence sniffed as video/mp4.
func MP4() []byte {
	return []byte{
		0, 0, 0, 0x18, 'f', 't', 'y', 'p',
		'm', 'p', '4', '2', 0, 0, 0, 0,
		'm', 'p', '4', '1', 'i', 's', 'o', 'm',
	}
}

// OversizedPNG returns a small PNG whose header declares width x height
// pixels. Only the header is valid; decoding the pixel data fails.
func OversizedPNG(width, height uint32) []byte {
	data := PNG(image.NewGray(image.Rect(0, 0, 1, 1)))
	// IHDR data follows the 8-byte signature and the chunk length and type.
	binary.BigEndian.PutUint32(data[16:], width)
	binary.BigEndian.PutUint32(data[20:], height)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}
