package gpu

import (
	"fmt"
	"strings"

	"github.com/openfluke/linalg"
	"github.com/openfluke/linalg/detector"
	"github.com/openfluke/webgpu/wgpu"
	"github.com/rs/zerolog"
)

// Options selects the adapter a Context binds to.
type Options struct {
	// Adapter is matched case-insensitively against adapter and vendor
	// names during enumeration. Empty means prefer NVIDIA when present.
	Adapter string
	// PowerPreference is tried after enumeration finds no match.
	PowerPreference wgpu.PowerPreference
	Logger          zerolog.Logger
}

// Context owns one WebGPU instance, adapter, device and queue.
// Each Context is independent; Release tears all of it down.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue

	report *detector.Report
	log    zerolog.Logger
}

// NewContext acquires a device. It fails with linalg.ErrNoDevice when no
// adapter can be found and with linalg.ErrBackend when the device request fails.
func NewContext(opts Options) (*Context, error) {
	c := &Context{log: opts.Logger}

	c.Instance = wgpu.CreateInstance(nil)
	if c.Instance == nil {
		return nil, linalg.Errorf(linalg.KindNoDevice, "gpu.NewContext", "failed to create WebGPU instance")
	}

	want := strings.ToLower(opts.Adapter)
	if want == "" {
		want = "nvidia"
	}
	for _, a := range c.Instance.EnumerateAdapters(nil) {
		info := a.GetInfo()
		c.log.Debug().
			Str("name", info.Name).
			Str("vendor", info.VendorName).
			Str("device_id", fmt.Sprintf("0x%X", info.DeviceId)).
			Msg("found adapter")
		if c.Adapter == nil && (strings.Contains(strings.ToLower(info.Name), want) ||
			strings.Contains(strings.ToLower(info.VendorName), want)) {
			c.Adapter = a
			continue
		}
		a.Release()
	}

	var reqErr error
	tryInit := func(o *wgpu.RequestAdapterOptions) {
		if c.Adapter != nil {
			return
		}
		c.Adapter, reqErr = c.Instance.RequestAdapter(o)
		if reqErr != nil {
			c.log.Debug().Err(reqErr).Msg("adapter request failed, falling back")
		}
	}
	tryInit(&wgpu.RequestAdapterOptions{PowerPreference: opts.PowerPreference})
	tryInit(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceLowPower})
	tryInit(nil)

	if c.Adapter == nil {
		c.Instance.Release()
		return nil, &linalg.Error{Kind: linalg.KindNoDevice, Op: "gpu.NewContext", Message: "all adapter attempts failed", Err: reqErr}
	}

	info := c.Adapter.GetInfo()
	c.log.Info().Str("name", info.Name).Str("vendor", info.VendorName).Msg("using GPU adapter")

	// Ask for everything the adapter supports; the defaults cap storage
	// bindings at 128 MiB.
	supported := c.Adapter.GetLimits()
	var err error
	c.Device, err = c.Adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "linalg",
		RequiredLimits: &wgpu.RequiredLimits{Limits: supported.Limits},
	})
	if err != nil {
		c.Adapter.Release()
		c.Instance.Release()
		return nil, linalg.Backend("gpu.NewContext", err)
	}
	c.Queue = c.Device.GetQueue()
	c.report = detector.Describe(c.Adapter, c.Device.GetLimits())
	return c, nil
}

// Report describes the bound adapter and the device limits.
func (c *Context) Report() *detector.Report { return c.report }

// Wait blocks until all submitted work has finished.
func (c *Context) Wait() {
	c.Device.Poll(true, nil)
}

// Release drops the device, adapter and instance. The Context is unusable afterwards.
func (c *Context) Release() {
	if c.Device != nil {
		c.Device.Poll(true, nil)
		c.Device.Release()
		c.Device = nil
	}
	c.Queue = nil
	if c.Adapter != nil {
		c.Adapter.Release()
		c.Adapter = nil
	}
	if c.Instance != nil {
		c.Instance.Release()
		c.Instance = nil
	}
}
