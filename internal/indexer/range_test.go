package indexer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitRange(t *testing.T) {
	tests := []struct {
		name      string
		from, to  uint64
		batchSize uint64
		want      []BlockRange
	}{
		{"even", 100, 105, 2, []BlockRange{{100, 101}, {102, 103}, {104, 105}}},
		{"uneven", 100, 104, 2, []BlockRange{{100, 101}, {102, 103}, {104, 104}}},
		{"single", 5, 5, 10, []BlockRange{{5, 5}}},
		{"top of range", math.MaxUint64 - 2, math.MaxUint64, 2, []BlockRange{{math.MaxUint64 - 2, math.MaxUint64 - 1}, {math.MaxUint64, math.MaxUint64}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SplitRange(tc.from, tc.to, tc.batchSize)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	_, err := SplitRange(10, 9, 1)
	require.Error(t, err)
	_, err = SplitRange(1, 10, 0)
	require.Error(t, err)
}
