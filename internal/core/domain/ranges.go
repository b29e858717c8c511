package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BlockRange is an inclusive range of block numbers.
type BlockRange struct {
	Start uint64
	End   uint64
}

// String returns the range in "start-end" format.
func (r BlockRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Size returns the number of blocks in the range.
func (r BlockRange) Size() uint64 {
	return r.End - r.Start + 1
}

// Contains reports whether n lies within the range.
func (r BlockRange) Contains(n uint64) bool {
	return n >= r.Start && n <= r.End
}

// Numbers lists every block number in ascending order.
func (r BlockRange) Numbers() []uint64 {
	out := make([]uint64, 0, r.Size())
	for n := r.Start; n <= r.End; n++ {
		out = append(out, n)
		if n == r.End {
			break
		}
	}
	return out
}

// Split splits the range into chunks of maxSize.
func (r BlockRange) Split(maxSize uint64) []BlockRange {
	if maxSize == 0 || r.Size() <= maxSize {
		return []BlockRange{r}
	}

	var chunks []BlockRange
	current := r.Start

	for current <= r.End {
		chunkEnd := min(current+maxSize-1, r.End)
		chunks = append(chunks, BlockRange{Start: current, End: chunkEnd})
		if chunkEnd == r.End {
			break
		}
		current = chunkEnd + 1
	}

	return chunks
}

// Overlaps checks if two ranges overlap or are adjacent.
func (r BlockRange) Overlaps(other BlockRange) bool {
	return r.Start <= other.End+1 && other.Start <= r.End+1
}

// Merge merges two overlapping/adjacent ranges.
func (r BlockRange) Merge(other BlockRange) BlockRange {
	return BlockRange{Start: min(r.Start, other.Start), End: max(r.End, other.End)}
}

// MergeRanges merges overlapping and adjacent ranges.
func MergeRanges(ranges []BlockRange) []BlockRange {
	if len(ranges) <= 1 {
		return ranges
	}

	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Start < ranges[j].Start
	})

	merged := []BlockRange{ranges[0]}
	for _, current := range ranges[1:] {
		last := &merged[len(merged)-1]
		if last.Overlaps(current) {
			*last = last.Merge(current)
		} else {
			merged = append(merged, current)
		}
	}
	return merged
}

// ParseBlockRange parses "12000-12500" format.
func ParseBlockRange(s string) (BlockRange, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return BlockRange{}, fmt.Errorf("invalid range format: %s", s)
	}

	start, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return BlockRange{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return BlockRange{}, fmt.Errorf("invalid end: %w", err)
	}
	if start > end {
		return BlockRange{}, fmt.Errorf("start > end: %d > %d", start, end)
	}
	return BlockRange{Start: start, End: end}, nil
}
