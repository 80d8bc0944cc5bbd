package detector

import (
	"testing"

	"github.com/openfluke/webgpu/wgpu"
)

func limits(x, y, inv, perDim uint32, binding uint64) wgpu.SupportedLimits {
	return wgpu.SupportedLimits{Limits: wgpu.Limits{
		MaxComputeWorkgroupSizeX:          x,
		MaxComputeWorkgroupSizeY:          y,
		MaxComputeInvocationsPerWorkgroup: inv,
		MaxComputeWorkgroupsPerDimension:  perDim,
		MaxStorageBufferBindingSize:       binding,
	}}
}

func TestRecommendTypicalDesktop(t *testing.T) {
	rec := recommend(limits(1024, 1024, 1024, 65535, 128<<20))

	if rec.Linear != 256 {
		t.Errorf("Expected linear workgroup 256, got %d", rec.Linear)
	}
	if rec.TileX != 16 || rec.TileY != 16 {
		t.Errorf("Expected 16x16 tile, got %dx%d", rec.TileX, rec.TileY)
	}
	// 128 MiB / 4 bytes = 33554432 floats, sqrt = 5792.6
	if rec.MaxSquareDim != 5792 {
		t.Errorf("Expected max square dim 5792, got %d", rec.MaxSquareDim)
	}
}

func TestRecommendConstrainedDevice(t *testing.T) {
	rec := recommend(limits(64, 4, 64, 65535, 16))

	if rec.Linear != 64 {
		t.Errorf("Expected linear workgroup 64, got %d", rec.Linear)
	}
	if rec.TileX != 4 || rec.TileY != 4 {
		t.Errorf("Expected 4x4 tile, got %dx%d", rec.TileX, rec.TileY)
	}
	if rec.MaxSquareDim != 2 {
		t.Errorf("Expected max square dim 2, got %d", rec.MaxSquareDim)
	}
}

func TestRecommendZeroLimits(t *testing.T) {
	rec := recommend(wgpu.SupportedLimits{})
	if rec.Linear != 1 || rec.TileX != 1 || rec.TileY != 1 || rec.MaxSquareDim != 0 {
		t.Errorf("Expected portability fallback, got %+v", rec)
	}
}

func TestLimitsOfCopiesFields(t *testing.T) {
	l := limitsOf(limits(256, 128, 256, 4096, 1<<20))
	if l.MaxComputeWorkgroupsPerDimension != 4096 {
		t.Errorf("Expected 4096 workgroups per dimension, got %d", l.MaxComputeWorkgroupsPerDimension)
	}
	if l.MaxComputeWorkgroupSizeY != 128 {
		t.Errorf("Expected workgroup size y 128, got %d", l.MaxComputeWorkgroupSizeY)
	}
}

func TestPickEnv(t *testing.T) {
	t.Setenv("LINALG_CAPACITY", "8")
	t.Setenv("LINALG_GROWTH", "")

	env := pickEnv(reportedEnv)
	if env["LINALG_CAPACITY"] != "8" {
		t.Errorf("Expected LINALG_CAPACITY=8, got %q", env["LINALG_CAPACITY"])
	}
	if _, ok := env["LINALG_GROWTH"]; ok {
		t.Error("Empty variables should be omitted")
	}
}

func TestDescribeHost(t *testing.T) {
	h := DescribeHost()
	if h.NumCPU < 1 {
		t.Errorf("Expected at least one CPU, got %d", h.NumCPU)
	}
	if h.Arch == "" || h.OS == "" {
		t.Errorf("Expected os/arch to be set, got %q/%q", h.OS, h.Arch)
	}
	for i := 1; i < len(h.Features); i++ {
		if h.Features[i-1] >= h.Features[i] {
			t.Errorf("Expected sorted features, got %v", h.Features)
			break
		}
	}
}
