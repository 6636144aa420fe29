package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type celsius float32

func TestTypeOf(t *testing.T) {
	assert.Equal(t, Float32, TypeOf[float32]())
	assert.Equal(t, Float64, TypeOf[float64]())
	assert.Equal(t, Int32, TypeOf[int32]())
	assert.Equal(t, Int64, TypeOf[int64]())
	assert.Equal(t, Float32, TypeOf[celsius]())
}

func TestParseDataType(t *testing.T) {
	for _, dt := range []DataType{Float32, Float64, Int32, Int64} {
		got, err := ParseDataType(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, got)
	}

	_, err := ParseDataType("complex64")
	require.Error(t, err)
}

func TestLanes(t *testing.T) {
	assert.Equal(t, 1, Lanes[float32](VectorNone))
	assert.Equal(t, 4, Lanes[float32](VectorSSE3))
	assert.Equal(t, 2, Lanes[float64](VectorSSE3))
	assert.Equal(t, 8, Lanes[float32](VectorAVX))
	assert.Equal(t, 16, Lanes[float32](VectorAVX512))
	assert.Equal(t, 8, Lanes[int64](VectorAVX512))
}

func TestParseVectorMode(t *testing.T) {
	for _, m := range []VectorMode{VectorNone, VectorSSE3, VectorAVX, VectorAVX512} {
		got, err := ParseVectorMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseVectorMode("mmx")
	require.Error(t, err)
}

func TestTraitsVectorizableFor(t *testing.T) {
	tr := Traits{DType: Float32, Vectorizable: true}
	assert.True(t, tr.VectorizableFor(VectorAVX))
	assert.False(t, tr.VectorizableFor(VectorNone))

	tr.DType = Int32
	assert.False(t, tr.VectorizableFor(VectorAVX))

	tr = Traits{DType: Float64}
	assert.False(t, tr.VectorizableFor(VectorAVX512))
}

func TestTraitsString(t *testing.T) {
	tr := Traits{DType: Float64, Order: ColumnMajor, Direct: true, Linear: true}
	assert.Equal(t, "float64 column-major [direct linear]", tr.String())
}
