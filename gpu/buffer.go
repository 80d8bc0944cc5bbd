package gpu

import (
	"fmt"

	"github.com/openfluke/linalg"
	"github.com/openfluke/webgpu/wgpu"
)

// StorageUsage is the usage for every matrix buffer: bindable as storage,
// writable from the host and copyable into a staging buffer for readback.
const StorageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

// DestroyBuffer frees the device memory behind buf and drops the handle.
func DestroyBuffer(buf *wgpu.Buffer) {
	buf.Destroy()
	buf.Release()
}

// NewStorageBuffer creates an uninitialised buffer of n float32 elements.
func (c *Context) NewStorageBuffer(label string, n int) (*wgpu.Buffer, error) {
	buf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(n * 4),
		Usage: StorageUsage,
	})
	if err != nil {
		return nil, linalg.Backend("gpu.NewStorageBuffer", fmt.Errorf("failed to create buffer %s: %w", label, err))
	}
	return buf, nil
}

// NewParamBuffer creates a read-only storage buffer holding scalar kernel parameters.
func (c *Context) NewParamBuffer(label string, params []int32) (*wgpu.Buffer, error) {
	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: wgpu.ToBytes(params),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, linalg.Backend("gpu.NewParamBuffer", fmt.Errorf("failed to create buffer %s: %w", label, err))
	}
	return buf, nil
}

// WriteFloats copies data into the start of buf and waits for the queue.
func (c *Context) WriteFloats(buf *wgpu.Buffer, data []float32) {
	c.Queue.WriteBuffer(buf, 0, wgpu.ToBytes(data))
	c.Wait()
}

// ReadBuffer copies the first n floats of buffer back to the host.
func (c *Context) ReadBuffer(buffer *wgpu.Buffer, n int) ([]float32, error) {
	sizeBytes := uint64(n * 4)
	if sizeBytes > buffer.GetSize() {
		return nil, linalg.Errorf(linalg.KindSize, "gpu.ReadBuffer",
			"requested %d floats but buffer holds %d", n, buffer.GetSize()/4)
	}

	staging, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ReadStaging",
		Size:  sizeBytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, linalg.Backend("gpu.ReadBuffer", fmt.Errorf("failed to create staging buffer: %w", err))
	}
	defer DestroyBuffer(staging)

	encoder, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, linalg.Backend("gpu.ReadBuffer", fmt.Errorf("failed to create command encoder: %w", err))
	}
	encoder.CopyBufferToBuffer(buffer, 0, staging, 0, sizeBytes)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return nil, linalg.Backend("gpu.ReadBuffer", fmt.Errorf("failed to finish command: %w", err))
	}
	encoder.Release()
	c.Queue.Submit(cmd)
	cmd.Release()

	done := make(chan struct{})
	var mapErr error
	err = staging.MapAsync(wgpu.MapModeRead, 0, sizeBytes, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map status: %d", status)
		}
		close(done)
	})
	if err != nil {
		return nil, linalg.Backend("gpu.ReadBuffer", fmt.Errorf("MapAsync failed: %w", err))
	}

Loop:
	for {
		c.Device.Poll(true, nil)
		select {
		case <-done:
			break Loop
		default:
		}
	}
	if mapErr != nil {
		return nil, linalg.Backend("gpu.ReadBuffer", mapErr)
	}

	data := staging.GetMappedRange(0, uint(sizeBytes))
	if data == nil {
		return nil, linalg.Errorf(linalg.KindReturnValue, "gpu.ReadBuffer", "mapped range nil")
	}
	out := make([]float32, n)
	copy(out, wgpu.FromBytes[float32](data))
	staging.Unmap()
	return out, nil
}
