package gpu

import "github.com/openfluke/linalg"

// Workgroups converts a global invocation count of up to three dimensions
// into workgroup counts for a kernel declaring workgroup size wg. Missing
// dimensions count as 1. Every global size must be at least 1, and no
// count may exceed maxPerDim when maxPerDim is non-zero.
func Workgroups(global []int, wg [3]uint32, maxPerDim uint32) ([3]uint32, error) {
	groups := [3]uint32{1, 1, 1}
	if len(global) == 0 || len(global) > 3 {
		return groups, linalg.Errorf(linalg.KindSize, "gpu.Workgroups",
			"dispatch must have 1 to 3 dimensions, got %d", len(global))
	}
	for i, n := range global {
		if n < 1 {
			return groups, linalg.Errorf(linalg.KindSize, "gpu.Workgroups",
				"dispatch dimension %d is %d", i, n)
		}
		size := wg[i]
		if size == 0 {
			size = 1
		}
		g := (uint64(n) + uint64(size) - 1) / uint64(size)
		if maxPerDim != 0 && g > uint64(maxPerDim) {
			return groups, linalg.Errorf(linalg.KindSize, "gpu.Workgroups",
				"dimension %d needs %d workgroups, device allows %d", i, g, maxPerDim)
		}
		groups[i] = uint32(g)
	}
	return groups, nil
}
