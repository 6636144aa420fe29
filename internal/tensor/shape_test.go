package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{2, 3}, 6},
		{Shape{2, 3, 4, 5}, 120},
	}

	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("%v.NumElements() = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	require.NoError(t, Shape{2, 3}.Validate())
	require.Error(t, Shape{2, 0}.Validate())
	require.Error(t, Shape{-1}.Validate())
}

func TestShapeStrides(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, []int{12, 4, 1}, s.Strides(RowMajor))
	assert.Equal(t, []int{1, 2, 6}, s.Strides(ColumnMajor))
	assert.Empty(t, Shape{}.Strides(RowMajor))
}

func TestShapeOffsetUnravel(t *testing.T) {
	s := Shape{2, 3, 4}

	for _, order := range []Order{RowMajor, ColumnMajor} {
		strides := s.Strides(order)
		idx := make([]int, 3)
		for flat := 0; flat < s.NumElements(); flat++ {
			idx = s.Unravel(order, flat, idx)
			assert.Equal(t, flat, s.Offset(order, idx...), "order %s flat %d", order, flat)
			assert.Equal(t, flat, idx[0]*strides[0]+idx[1]*strides[1]+idx[2]*strides[2])
		}
	}
}

func TestShapeOffsetPanics(t *testing.T) {
	s := Shape{2, 3}
	assert.Panics(t, func() { s.Offset(RowMajor, 1) })
	assert.Panics(t, func() { s.Offset(RowMajor, 2, 0) })
	assert.Panics(t, func() { s.Offset(ColumnMajor, 0, -1) })
}

func TestShapeEqualClone(t *testing.T) {
	s := Shape{4, 5}
	c := s.Clone()
	assert.True(t, s.Equal(c))

	c[0] = 7
	assert.False(t, s.Equal(c))
	assert.False(t, s.Equal(Shape{4}))
}
