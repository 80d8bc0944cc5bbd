package gpu

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	c, err := NewContext(Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Skipf("no WebGPU device: %v", err)
	}
	t.Cleanup(c.Release)
	return c
}

func TestContextReportsDeviceLimits(t *testing.T) {
	c := newTestContext(t)

	got := c.Report().Limits
	want := c.Device.GetLimits().Limits
	assert.Equal(t, want.MaxStorageBufferBindingSize, got.MaxStorageBufferBindingSize)
	assert.Equal(t, want.MaxBufferSize, got.MaxBufferSize)
	assert.Equal(t, want.MaxComputeWorkgroupsPerDimension, got.MaxComputeWorkgroupsPerDimension)
	assert.Equal(t, c.Adapter.GetLimits().Limits.MaxStorageBufferBindingSize, got.MaxStorageBufferBindingSize,
		"device is requested with the adapter's limits")
}

func TestBufferRoundTripAndDestroy(t *testing.T) {
	c := newTestContext(t)

	for i := 0; i < 32; i++ {
		buf, err := c.NewStorageBuffer("roundtrip", 4)
		require.NoError(t, err)
		c.WriteFloats(buf, []float32{1, 2, 3, float32(i)})

		got, err := c.ReadBuffer(buf, 4)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3, float32(i)}, got)
		DestroyBuffer(buf)
	}
}
