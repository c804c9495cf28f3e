package fingerprint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
)

// Weights of the two confidence components. The spatial component dominates
// so markers that share an overall look but differ locally stay apart.
const (
	globalWeight  = 0.4
	spatialWeight = 0.6

	// CellTolerance is the maximum Hamming distance between two local cell
	// hashes for the cells to count as agreeing.
	CellTolerance = 10
)

// MarkerFeatures are the perceptual features of one marker (or one region of
// a camera frame).
type MarkerFeatures struct {
	PHash      uint64            `json:"phash"`
	DHash      uint64            `json:"dhash"`
	Grid       [GridCells]uint64 `json:"grid"`
	Descriptor []float32         `json:"descriptor"`
	Contrast   float64           `json:"contrast"`
}

// IsZero reports whether the features were never computed.
func (f MarkerFeatures) IsZero() bool {
	return len(f.Descriptor) == 0
}

// Extract computes features for the whole image.
func Extract(img image.Image) (MarkerFeatures, error) {
	return ExtractRegion(img, img.Bounds())
}

// ExtractRegion computes features for region r of img. Regions whose contrast
// is below MinContrast yield ErrLowTexture.
func ExtractRegion(img image.Image, r image.Rectangle) (MarkerFeatures, error) {
	r = r.Intersect(img.Bounds())
	if r.Dx() < GridSize*2 || r.Dy() < GridSize*2 {
		return MarkerFeatures{}, fmt.Errorf("region %v too small: %w", r, ErrLowTexture)
	}

	pHash, contrast := computePHash(img, r)
	if contrast < MinContrast {
		return MarkerFeatures{}, ErrLowTexture
	}

	f := MarkerFeatures{
		PHash:      pHash,
		DHash:      computeDHash(img, r),
		Descriptor: computeDescriptor(img, r),
		Contrast:   contrast,
	}
	for i, cell := range gridCells(r) {
		f.Grid[i] = computeAHash(img, cell)
	}
	return f, nil
}

// gridCells splits r into GridSize x GridSize cells, row-major.
func gridCells(r image.Rectangle) []image.Rectangle {
	cells := make([]image.Rectangle, 0, GridCells)
	w, h := r.Dx(), r.Dy()
	for gy := range GridSize {
		for gx := range GridSize {
			cells = append(cells, image.Rect(
				r.Min.X+gx*w/GridSize, r.Min.Y+gy*h/GridSize,
				r.Min.X+(gx+1)*w/GridSize, r.Min.Y+(gy+1)*h/GridSize,
			))
		}
	}
	return cells
}

// computeDescriptor returns the L2-normalised, mean-centred 8x8 luma thumbnail.
func computeDescriptor(img image.Image, r image.Rectangle) []float32 {
	gray := toGrayscale(resizeImage(img, r, 8, 8))

	values := make([]float64, 0, DescriptorSize)
	mean := 0.0
	for y := range 8 {
		for x := range 8 {
			values = append(values, gray[x][y])
			mean += gray[x][y]
		}
	}
	mean /= float64(len(values))

	norm := 0.0
	for i := range values {
		values[i] -= mean
		norm += values[i] * values[i]
	}
	norm = math.Sqrt(norm)

	desc := make([]float32, len(values))
	if norm == 0 {
		return desc
	}
	for i, v := range values {
		desc[i] = float32(v / norm)
	}
	return desc
}

// GlobalSimilarity is 1 minus the normalised combined Hamming distance of
// the pHash and dHash.
func GlobalSimilarity(a, b MarkerFeatures) float64 {
	d := HammingDistance(a.PHash, b.PHash) + HammingDistance(a.DHash, b.DHash)
	return 1 - float64(d)/128
}

// InlierRatio is the fraction of grid cells whose local hashes agree within
// CellTolerance.
func InlierRatio(a, b MarkerFeatures) float64 {
	inliers := 0
	for i := range a.Grid {
		if Similar(a.Grid[i], b.Grid[i], CellTolerance) {
			inliers++
		}
	}
	return float64(inliers) / float64(len(a.Grid))
}

// Confidence scores how likely b shows the same marker as a, in [0, 1].
func Confidence(a, b MarkerFeatures) float64 {
	c := globalWeight*GlobalSimilarity(a, b) + spatialWeight*InlierRatio(a, b)
	return math.Min(1, math.Max(0, c))
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

const gridBlobSize = GridCells * 8

// MarshalGrid encodes the local hash grid as little-endian uint64s.
func (f MarkerFeatures) MarshalGrid() []byte {
	buf := make([]byte, gridBlobSize)
	for i, h := range f.Grid {
		binary.LittleEndian.PutUint64(buf[i*8:], h)
	}
	return buf
}

// UnmarshalGrid decodes a blob produced by MarshalGrid.
func (f *MarkerFeatures) UnmarshalGrid(data []byte) error {
	if len(data) != gridBlobSize {
		return fmt.Errorf("grid blob has %d bytes, want %d", len(data), gridBlobSize)
	}
	for i := range f.Grid {
		f.Grid[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return nil
}

// EncodeVector encodes a float32 vector as a little-endian blob.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector decodes a blob produced by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, errors.New("vector blob length is not a multiple of 4")
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
