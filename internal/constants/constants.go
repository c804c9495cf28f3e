// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Ingestion limits
const (
	// MaxNameLength is the maximum project name length in runes
	MaxNameLength = 200

	// MaxImageBytes is the maximum size of an uploaded image (20MB)
	MaxImageBytes = 20 << 20

	// MaxVideoBytes is the maximum size of an uploaded video (100MB)
	MaxVideoBytes = 100 << 20

	// MinImageDimension is the minimum width and height of a marker image in pixels
	MinImageDimension = 64

	// MaxDecodePixels is the largest width*height decoded from an image or
	// frame (40 megapixels)
	MaxDecodePixels = 40_000_000
)

// Matching constants
const (
	// ExactScanLimit is the largest marker set scored exhaustively; larger
	// sets go through the HNSW candidate search first
	ExactScanLimit = 32

	// CandidateCount is the number of HNSW neighbours scored per crop
	CandidateCount = 8

	// FrameCacheSize is the number of frame fingerprints kept in the LRU cache
	FrameCacheSize = 128

	// IndexSeed seeds the HNSW level generator so rebuilt indexes are identical
	IndexSeed = 20240601
)

// Asset store folders, relative to the object key prefix
const (
	AssetKeyPrefix      = "ar-projects"
	OriginalImageFolder = "original-images"
	MarkerImageFolder   = "marker-images"
	VideoFolder         = "ar-videos"
)
