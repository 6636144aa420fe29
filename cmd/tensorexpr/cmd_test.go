// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	"github.com/born-ml/tensorexpr/tensor"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err = run(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tensorexpr "+version)
	assert.Contains(t, out, "device:  none")
}

func TestConfig(t *testing.T) {
	out, _, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "TENSOREXPR_STRICT_DIV")
	assert.Contains(t, out, "TENSOREXPR_GEMM_GPU_MIN")
}

func TestSelectReasons(t *testing.T) {
	out, _, err := execute(t, "select", "--dtype", "int32", "--m", "8", "--k", "8", "--n", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "blas: no BLAS routine for int32")
	assert.Contains(t, out, "gpu: no GPU device")
}

func TestSelectForced(t *testing.T) {
	out, stderr, err := execute(t, "--log-level", "warn", "select", "--force", "fft", "--m", "16", "--k", "16", "--n", "16")
	require.NoError(t, err)
	assert.Contains(t, out, "FORCED")
	assert.Regexp(t, `(?m)conv2\s.*\sfft\s*$`, out)
	assert.Contains(t, stderr, "forced implementation not possible")

	_, _, err = execute(t, "select", "--force", "cuda")
	assert.Error(t, err)
}

func TestSelectStrideSkipsConv1(t *testing.T) {
	out, _, err := execute(t, "--log-level", "error", "select", "--force", "fft", "--stride", "2", "--m", "16", "--k", "16", "--n", "16")
	require.NoError(t, err)
	assert.Regexp(t, `(?m)conv1\s.*\sfft\s*$`, out)
	assert.NotRegexp(t, `(?m)conv2\s.*\sfft\s*$`, out)
	assert.Contains(t, out, "fft: FFT convolution requires unit stride")
	assert.Contains(t, out, "batch_outer")
	assert.Contains(t, out, "upsample")
}

func TestSelectWithDevice(t *testing.T) {
	before := tensor.CurrentFeatures().GPU

	out, _, err := execute(t, "--device", "emulator", "select", "--m", "512", "--k", "512", "--n", "512")
	require.NoError(t, err)
	assert.Regexp(t, `gemm\s+gpu\s`, out)

	assert.Nil(t, gpu.Default())
	assert.Equal(t, before, tensor.CurrentFeatures().GPU)
}

func TestBench(t *testing.T) {
	out, stderr, err := execute(t, "--log-level", "debug", "bench", "--size", "8", "--repeat", "1", "--dtype", "float64")
	require.NoError(t, err)
	assert.Contains(t, out, "gemm 8x8 float64")
	assert.Regexp(t, `(?m)std\s+\S+\s+\S+\s+0(\s|$)`, out)
	assert.Contains(t, stderr, "forced implementation selected")

	out, _, err = execute(t, "bench", "--size", "4", "--repeat", "1", "--dtype", "int64")
	require.NoError(t, err)
	assert.Contains(t, out, "no BLAS routine for int64")
}

func TestInvalidInvocations(t *testing.T) {
	cases := map[string][]string{
		"device":    {"--device", "tpu", "version"},
		"log level": {"--log-level", "loud", "version"},
		"kernel":    {"select", "--kernel", "0"},
		"dtype":     {"select", "--dtype", "complex64"},
		"force":     {"select", "--force", "tpu"},
		"size":      {"bench", "--size", "0"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := execute(t, args...)
			assert.Error(t, err)
		})
	}
	assert.Nil(t, gpu.Default())
}
