package chunk

import (
	"errors"
	"fmt"
	"iter"
)

const (
	DefaultChunkSize int64 = 10 * 1024 * 1024
	// non-final parts smaller than this are rejected by S3
	MinChunkSize int64 = 5 * 1024 * 1024
	MaxParts           = 10000
)

var (
	ErrEmpty            = errors.New("chunk: cannot plan zero-length content")
	ErrInvalidChunkSize = errors.New("chunk: chunk size must be positive")
	ErrTooManyParts     = errors.New("chunk: part count exceeds limit")
)

// Range is one inclusive byte range of a multipart transfer.
type Range struct {
	Part int
	From int64
	To   int64
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int64 {
	return r.To - r.From + 1
}

// Header formats the range as an HTTP Range header value.
func (r Range) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.From, r.To)
}

// PartCount returns ceil(size/chunkSize). Plan and CheckCapacity both use it.
func PartCount(size, chunkSize int64) int64 {
	return divideAndCeil(size, chunkSize)
}

// CheckCapacity fails when a file of the given size would need more than maxParts chunks.
func CheckCapacity(size, chunkSize int64, maxParts int) error {
	if chunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if n := PartCount(size, chunkSize); n > int64(maxParts) {
		return fmt.Errorf("%w: %d parts of %d bytes, max %d", ErrTooManyParts, n, chunkSize, maxParts)
	}
	return nil
}

// Ranges yields the chunk ranges of [0, size-1] in part order.
// It yields nothing for invalid input; use Plan to get the error.
func Ranges(size, chunkSize int64) iter.Seq[Range] {
	return func(yield func(Range) bool) {
		if size <= 0 || chunkSize <= 0 {
			return
		}
		part := 1
		for from := int64(0); from < size; from += chunkSize {
			to := min(from+chunkSize, size) - 1
			if !yield(Range{Part: part, From: from, To: to}) {
				return
			}
			part++
		}
	}
}

// Plan returns the full list of ranges for a file of the given size.
func Plan(size, chunkSize int64) ([]Range, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if size <= 0 {
		return nil, ErrEmpty
	}

	ranges := make([]Range, 0, PartCount(size, chunkSize))
	for r := range Ranges(size, chunkSize) {
		ranges = append(ranges, r)
	}
	return ranges, nil
}

func divideAndCeil(numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	quotient := numerator / denominator
	if numerator%denominator != 0 {
		quotient++
	}
	return quotient
}
