package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount float64
		want   int64
	}{
		{0, 0},
		{9.90, 990},
		{0.01, 1},
		{1234.56, 123456},
		// Returns come through as negative payouts; rounding must not pull
		// them toward zero.
		{-9.90, -990},
		{-0.01, -1},
		{-1234.56, -123456},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ToMinorUnits(tc.amount), "amount %v", tc.amount)
	}
}
