package detector

import (
	"runtime"
	"sort"

	"golang.org/x/sys/cpu"
)

// Host describes the CPU that runs the host-side matrix fallback.
type Host struct {
	OS       string   `json:"os"`
	Arch     string   `json:"arch"`
	NumCPU   int      `json:"num_cpu"`
	Features []string `json:"features,omitempty"`
}

// DescribeHost reports the SIMD features gonum's float32 kernels can use.
func DescribeHost() Host {
	h := Host{OS: runtime.GOOS, Arch: runtime.GOARCH, NumCPU: runtime.NumCPU()}
	switch runtime.GOARCH {
	case "amd64", "386":
		h.Features = flags(map[string]bool{
			"sse4.1":  cpu.X86.HasSSE41,
			"avx":     cpu.X86.HasAVX,
			"avx2":    cpu.X86.HasAVX2,
			"fma":     cpu.X86.HasFMA,
			"avx512f": cpu.X86.HasAVX512F,
		})
	case "arm64":
		h.Features = flags(map[string]bool{
			"asimd":   cpu.ARM64.HasASIMD,
			"fphp":    cpu.ARM64.HasFPHP,
			"asimdhp": cpu.ARM64.HasASIMDHP,
		})
	}
	return h
}

func flags(m map[string]bool) []string {
	var out []string
	for name, ok := range m {
		if ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
