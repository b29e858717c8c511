package domain

import (
	"reflect"
	"testing"
)

func TestBlockRange_Split(t *testing.T) {
	tests := []struct {
		name    string
		r       BlockRange
		maxSize uint64
		want    []BlockRange
	}{
		{"fits", BlockRange{1, 5}, 10, []BlockRange{{1, 5}}},
		{"exact", BlockRange{1, 10}, 5, []BlockRange{{1, 5}, {6, 10}}},
		{"remainder", BlockRange{1, 11}, 5, []BlockRange{{1, 5}, {6, 10}, {11, 11}}},
		{"zero size", BlockRange{3, 7}, 0, []BlockRange{{3, 7}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Split(tt.maxSize); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%d) = %v, want %v", tt.maxSize, got, tt.want)
			}
		})
	}
}

func TestMergeRanges(t *testing.T) {
	got := MergeRanges([]BlockRange{{20, 25}, {1, 5}, {6, 8}, {10, 12}})
	want := []BlockRange{{1, 8}, {10, 12}, {20, 25}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeRanges = %v, want %v", got, want)
	}
}

func TestParseBlockRange(t *testing.T) {
	r, err := ParseBlockRange("100-105")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Start != 100 || r.End != 105 || r.Size() != 6 {
		t.Errorf("got %+v", r)
	}
	if _, err := ParseBlockRange("105-100"); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestFixRecord_Window(t *testing.T) {
	rec := &FixRecord{StartBlockNumber: 105, RemainProcess: 5}
	w, ok := rec.Window()
	if !ok || w != (BlockRange{101, 105}) {
		t.Fatalf("fresh window = %v %v", w, ok)
	}

	rec.LastFixedBlockNumber = Ptr(uint64(104))
	rec.RemainProcess = 3
	w, ok = rec.Window()
	if !ok || w != (BlockRange{101, 103}) {
		t.Fatalf("resumed window = %v %v", w, ok)
	}

	rec.RemainProcess = 0
	if _, ok := rec.Window(); ok {
		t.Error("expected no window when nothing remains")
	}
}
