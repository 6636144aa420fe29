//go:build !windows

package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnsupported(t *testing.T) {
	assert.False(t, IsAvailable())
	d, err := New()
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrUnsupported)
}
