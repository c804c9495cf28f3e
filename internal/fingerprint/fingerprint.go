package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/ar-marker/internal/constants"
)

const (
	// GridSize is the number of grid cells per side used for local hashes.
	GridSize = 4
	// GridCells is the total number of grid cells.
	GridCells = GridSize * GridSize
	// DescriptorSize is the length of the mean-centred descriptor (8x8 thumbnail).
	DescriptorSize = 64
	// MinContrast is the minimum luma standard deviation (0-255 scale) of a
	// region for its features to be considered recognisable.
	MinContrast = 12.0

	aHashMargin = 1.0
)

var (
	// ErrLowTexture is returned when a region is too flat to fingerprint reliably.
	ErrLowTexture = errors.New("image has too little texture")
	// ErrImageTooLarge is returned for images declaring more than
	// constants.MaxDecodePixels pixels.
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// Decode decodes image bytes in any of the registered formats. The header is
// read first so oversized images are rejected before any pixel allocation.
func Decode(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > constants.MaxDecodePixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// Similar returns true if two hashes are within the given threshold.
func Similar(hash1, hash2 uint64, threshold int) bool {
	return HammingDistance(hash1, hash2) <= threshold
}

// computePHash computes a 64-bit perceptual hash of the region r using DCT.
// It also returns the luma standard deviation of the 32x32 working image.
func computePHash(img image.Image, r image.Rectangle) (uint64, float64) {
	gray := toGrayscale(resizeImage(img, r, 32, 32))
	contrast := stddev(gray)

	dct := computeDCT(gray)

	// Top-left 8x8 block holds the low frequencies. The DC term carries
	// only overall brightness, so it is left out of the median.
	lowFreq := make([]float64, 0, 64)
	for u := range 8 {
		for v := range 8 {
			lowFreq = append(lowFreq, dct[u][v])
		}
	}
	median := computeMedian(lowFreq[1:])

	var hash uint64
	for i := 1; i < 64; i++ {
		if lowFreq[i] > median {
			hash |= 1 << (63 - i)
		}
	}

	return hash, contrast
}

// computeDHash computes a 64-bit difference hash of the region r.
func computeDHash(img image.Image, r image.Rectangle) uint64 {
	// 9 columns give 8 horizontal differences per row.
	gray := toGrayscale(resizeImage(img, r, 9, 8))

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}

	return hash
}

// computeAHash computes a 64-bit average hash of the region r: one bit per
// pixel of an 8x8 thumbnail, set when the pixel is brighter than the mean.
// Flat regions hash to zero.
func computeAHash(img image.Image, r image.Rectangle) uint64 {
	gray := toGrayscale(resizeImage(img, r, 8, 8))
	mean := 0.0
	for x := range 8 {
		for y := range 8 {
			mean += gray[x][y]
		}
	}
	mean /= 64

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > mean+aHashMargin {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// resizeImage scales the region r of img to the specified dimensions.
func resizeImage(img image.Image, r image.Rectangle, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, r, draw.Over, nil)
	return dst
}

// FitWithin scales img down so neither side exceeds maxSize. Images that
// already fit are returned unchanged.
func FitWithin(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
	} else {
		newHeight = maxSize
		newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
	}
	return resizeImage(img, bounds, newWidth, newHeight)
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255),
// indexed [x][y].
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			i := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
		}
	}

	return gray
}

// computeDCT computes the 2D DCT-II of a square grayscale image, one axis at
// a time.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)

	cos := make([][]float64, size)
	for u := range size {
		cos[u] = make([]float64, size)
		for x := range size {
			cos[u][x] = math.Cos(float64(2*x+1) * float64(u) * math.Pi / float64(2*size))
		}
	}

	// Transform along x.
	tmp := make([][]float64, size)
	for u := range size {
		tmp[u] = make([]float64, size)
		for y := range size {
			sum := 0.0
			for x := range size {
				sum += gray[x][y] * cos[u][x]
			}
			tmp[u][y] = sum
		}
	}

	// Transform along y and normalise.
	dct := make([][]float64, size)
	for u := range size {
		dct[u] = make([]float64, size)
		cu := dctScale(u, size)
		for v := range size {
			sum := 0.0
			for y := range size {
				sum += tmp[u][y] * cos[v][y]
			}
			dct[u][v] = cu * dctScale(v, size) * sum
		}
	}

	return dct
}

func dctScale(k, size int) float64 {
	if k == 0 {
		return math.Sqrt(1.0 / float64(size))
	}
	return math.Sqrt(2.0 / float64(size))
}

// computeMedian returns the median of a slice of float64 values.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

func stddev(gray [][]float64) float64 {
	n := 0
	sum := 0.0
	for x := range gray {
		for y := range gray[x] {
			sum += gray[x][y]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	variance := 0.0
	for x := range gray {
		for y := range gray[x] {
			d := gray[x][y] - mean
			variance += d * d
		}
	}
	return math.Sqrt(variance / float64(n))
}
