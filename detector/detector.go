// Package detector summarises the capabilities of a WebGPU adapter.
package detector

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// Report is a portable summary of an adapter and its limits.
type Report struct {
	WhenISO     string            `json:"when_iso"`
	Runtime     string            `json:"runtime"`
	Backend     string            `json:"backend"`
	AdapterType string            `json:"adapter_type"`
	VendorID    string            `json:"vendor_id_hex"`
	DeviceID    string            `json:"device_id_hex"`
	Name        string            `json:"name"`
	Vendor      string            `json:"vendor"`
	Driver      string            `json:"driver"`
	Recommended Recommendations   `json:"recommended"`
	Limits      Limits            `json:"limits"`
	Features    []string          `json:"features"`
	Host        Host              `json:"host"`
	Env         map[string]string `json:"env,omitempty"`
}

type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32 `json:"max_compute_invocations_per_workgroup"`
	MaxComputeWorkgroupSizeX          uint32 `json:"max_compute_workgroup_size_x"`
	MaxComputeWorkgroupSizeY          uint32 `json:"max_compute_workgroup_size_y"`
	MaxComputeWorkgroupSizeZ          uint32 `json:"max_compute_workgroup_size_z"`
	MaxComputeWorkgroupsPerDimension  uint32 `json:"max_compute_workgroups_per_dimension"`
	MaxStorageBufferBindingSize       uint64 `json:"max_storage_buffer_binding_size"`
	MaxStorageBuffersPerShaderStage   uint32 `json:"max_storage_buffers_per_shader_stage"`
	MaxBufferSize                     uint64 `json:"max_buffer_size"`
}

// Recommendations are workgroup shapes that fit the limits, for kernel authors.
type Recommendations struct {
	// 1-D workgroup for element-wise kernels over flattened matrices.
	Linear uint32 `json:"linear"`
	// Square 2-D workgroup for kernels indexed by (row, col).
	TileX uint32 `json:"tile_x"`
	TileY uint32 `json:"tile_y"`
	// Largest square matrix whose float32 buffer can be bound as storage.
	MaxSquareDim uint32 `json:"max_square_dim"`
}

// Env variables echoed into every report.
var reportedEnv = []string{"LINALG_ADAPTER", "LINALG_POWER", "LINALG_CAPACITY", "LINALG_GROWTH", "LINALG_DEBUG"}

// DetectJSON runs Detect and returns the indented JSON report.
func DetectJSON() (string, error) {
	rep, err := Detect()
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Detect probes the default high-performance adapter.
func Detect() (*Report, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("wgpu.CreateInstance returned nil")
	}
	defer inst.Release()

	adapter, err := inst.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	if adapter == nil {
		return nil, fmt.Errorf("no adapter")
	}
	defer adapter.Release()

	return Describe(adapter, adapter.GetLimits()), nil
}

// Describe builds a report for an adapter that is already acquired.
func Describe(adapter *wgpu.Adapter, limits wgpu.SupportedLimits) *Report {
	info := adapter.GetInfo()

	var feats []string
	for _, f := range adapter.EnumerateFeatures() {
		feats = append(feats, f.String())
	}

	return &Report{
		WhenISO:     time.Now().UTC().Format(time.RFC3339),
		Runtime:     detectRuntime(),
		Backend:     info.BackendType.String(),
		AdapterType: info.AdapterType.String(),
		VendorID:    fmt.Sprintf("0x%04x", info.VendorId),
		DeviceID:    fmt.Sprintf("0x%04x", info.DeviceId),
		Name:        strings.TrimSpace(info.Name),
		Vendor:      strings.TrimSpace(info.VendorName),
		Driver:      strings.TrimSpace(info.DriverDescription),
		Limits:      limitsOf(limits),
		Features:    feats,
		Host:        DescribeHost(),
		Recommended: recommend(limits),
		Env:         pickEnv(reportedEnv),
	}
}

func limitsOf(l wgpu.SupportedLimits) Limits {
	return Limits{
		MaxComputeInvocationsPerWorkgroup: l.Limits.MaxComputeInvocationsPerWorkgroup,
		MaxComputeWorkgroupSizeX:          l.Limits.MaxComputeWorkgroupSizeX,
		MaxComputeWorkgroupSizeY:          l.Limits.MaxComputeWorkgroupSizeY,
		MaxComputeWorkgroupSizeZ:          l.Limits.MaxComputeWorkgroupSizeZ,
		MaxComputeWorkgroupsPerDimension:  l.Limits.MaxComputeWorkgroupsPerDimension,
		MaxStorageBufferBindingSize:       l.Limits.MaxStorageBufferBindingSize,
		MaxStorageBuffersPerShaderStage:   l.Limits.MaxStorageBuffersPerShaderStage,
		MaxBufferSize:                     l.Limits.MaxBufferSize,
	}
}

func recommend(l wgpu.SupportedLimits) Recommendations {
	tx, ty := chooseTile(l)
	return Recommendations{
		Linear:       chooseLinear(l),
		TileX:        tx,
		TileY:        ty,
		MaxSquareDim: maxSquareDim(l.Limits.MaxStorageBufferBindingSize),
	}
}

func chooseLinear(l wgpu.SupportedLimits) uint32 {
	maxX := l.Limits.MaxComputeWorkgroupSizeX
	maxTot := l.Limits.MaxComputeInvocationsPerWorkgroup
	for _, c := range []uint32{256, 128, 64, 32, 16, 8, 4, 1} {
		if c <= maxX && c <= maxTot {
			return c
		}
	}
	return 1
}

func chooseTile(l wgpu.SupportedLimits) (uint32, uint32) {
	for _, c := range []uint32{16, 8, 4, 2, 1} {
		if c <= l.Limits.MaxComputeWorkgroupSizeX &&
			c <= l.Limits.MaxComputeWorkgroupSizeY &&
			c*c <= l.Limits.MaxComputeInvocationsPerWorkgroup {
			return c, c
		}
	}
	return 1, 1
}

func maxSquareDim(bindingBytes uint64) uint32 {
	elems := bindingBytes / 4
	n := uint64(math.Sqrt(float64(elems)))
	for n*n > elems {
		n--
	}
	for (n+1)*(n+1) <= elems {
		n++
	}
	return uint32(n)
}

func detectRuntime() string {
	if runtime.GOOS == "js" {
		return "wasm"
	}
	return "native"
}

func pickEnv(keys []string) map[string]string {
	out := map[string]string{}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
