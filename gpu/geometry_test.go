package gpu

import (
	"errors"
	"testing"

	"github.com/openfluke/linalg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkgroups(t *testing.T) {
	tests := []struct {
		name   string
		global []int
		wg     [3]uint32
		want   [3]uint32
	}{
		{"exact fit", []int{16, 16}, [3]uint32{8, 8, 1}, [3]uint32{2, 2, 1}},
		{"rounds up", []int{2, 3}, [3]uint32{8, 8, 1}, [3]uint32{1, 1, 1}},
		{"one dimension", []int{1000}, [3]uint32{256, 1, 1}, [3]uint32{4, 1, 1}},
		{"three dimensions", []int{9, 4, 5}, [3]uint32{4, 4, 2}, [3]uint32{3, 1, 3}},
		{"zero workgroup size treated as one", []int{5, 6}, [3]uint32{}, [3]uint32{5, 6, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Workgroups(tt.global, tt.wg, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWorkgroupsRejectsInvalidLaunch(t *testing.T) {
	_, err := Workgroups(nil, [3]uint32{1, 1, 1}, 0)
	assert.True(t, errors.Is(err, linalg.ErrSize))

	_, err = Workgroups([]int{1, 2, 3, 4}, [3]uint32{1, 1, 1}, 0)
	assert.True(t, errors.Is(err, linalg.ErrSize))

	_, err = Workgroups([]int{4, 0}, [3]uint32{1, 1, 1}, 0)
	assert.True(t, errors.Is(err, linalg.ErrSize))

	_, err = Workgroups([]int{70000}, [3]uint32{1, 1, 1}, 65535)
	assert.True(t, errors.Is(err, linalg.ErrSize))

	got, err := Workgroups([]int{70000}, [3]uint32{64, 1, 1}, 65535)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{1094, 1, 1}, got)
}
