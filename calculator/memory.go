package calculator

import (
	"fmt"
	"math"

	"github.com/openfluke/linalg"
	"github.com/openfluke/linalg/detector"
	"github.com/openfluke/linalg/matrix"
)

// Handle identifies a device-resident matrix. The low 32 bits are the slot
// index and the high 32 bits the slot generation, so a handle stops
// resolving as soon as its slot is freed or overwritten, even if the slot
// is later reused.
type Handle uint64

func makeHandle(index int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(index)))
}

// Index is the slot position the handle points at.
func (h Handle) Index() int { return int(uint32(h)) }

func (h Handle) generation() uint32 { return uint32(h >> 32) }

func (h Handle) String() string { return fmt.Sprintf("%d#%d", h.Index(), h.generation()) }

type slot struct {
	buf  buffer // nil when empty
	rows int
	cols int
	gen  uint32
}

// memoryTable is an arena of device buffers with a free list. Capacity
// only grows; freed slots are reused last-in first-out.
type memoryTable struct {
	dev      device
	slots    []slot
	freeList []int
	growth   int
	used     int
}

func newMemoryTable(dev device, capacity, growth int) *memoryTable {
	t := &memoryTable{dev: dev, growth: growth}
	t.grow(capacity)
	return t
}

func (t *memoryTable) capacity() int { return len(t.slots) }
func (t *memoryTable) occupied() int { return t.used }

func (t *memoryTable) grow(n int) {
	old := len(t.slots)
	t.slots = append(t.slots, make([]slot, n)...)
	for i := len(t.slots) - 1; i >= old; i-- {
		t.freeList = append(t.freeList, i)
	}
}

// resizeCapacity enlarges the table to n slots. Existing handles stay valid.
func (t *memoryTable) resizeCapacity(n int) error {
	if n < len(t.slots) {
		return linalg.Errorf(linalg.KindSize, "calculator.resizeCapacity",
			"capacity cannot shrink from %d to %d", len(t.slots), n)
	}
	t.grow(n - len(t.slots))
	return nil
}

// allocate reserves a slot with a fresh buffer of rows*cols floats. Shapes
// the device cannot hold or bind are rejected before it is asked.
func (t *memoryTable) allocate(rows, cols int) (Handle, error) {
	if err := checkShape(rows, cols, t.dev.limits()); err != nil {
		return 0, err
	}
	if len(t.freeList) == 0 {
		t.grow(t.growth)
	}
	idx := t.freeList[len(t.freeList)-1]
	t.freeList = t.freeList[:len(t.freeList)-1]

	buf, err := t.dev.newBuffer(fmt.Sprintf("slot%d", idx), rows*cols)
	if err != nil {
		t.freeList = append(t.freeList, idx)
		return 0, err
	}
	s := &t.slots[idx]
	s.buf, s.rows, s.cols = buf, rows, cols
	t.used++
	return makeHandle(idx, s.gen), nil
}

// checkShape validates a buffer shape against int32 kernel parameters and
// the device's buffer and binding size limits. Zero limits are unchecked.
func checkShape(rows, cols int, lim detector.Limits) error {
	if rows <= 0 || cols <= 0 || rows > math.MaxInt32 || cols > math.MaxInt32 {
		return linalg.Errorf(linalg.KindSize, "calculator.allocate", "cannot allocate a %dx%d buffer", rows, cols)
	}
	n, ok := matrix.Elements(rows, cols)
	if !ok {
		return linalg.Errorf(linalg.KindSize, "calculator.allocate", "%dx%d overflows", rows, cols)
	}
	size := uint64(n) * 4
	if lim.MaxStorageBufferBindingSize != 0 && size > lim.MaxStorageBufferBindingSize {
		return linalg.Errorf(linalg.KindSize, "calculator.allocate",
			"%dx%d needs %d bytes, device binds at most %d", rows, cols, size, lim.MaxStorageBufferBindingSize)
	}
	if lim.MaxBufferSize != 0 && size > lim.MaxBufferSize {
		return linalg.Errorf(linalg.KindSize, "calculator.allocate",
			"%dx%d needs %d bytes, device buffers hold at most %d", rows, cols, size, lim.MaxBufferSize)
	}
	return nil
}

// resolve returns the slot behind h or ErrMemoryInconsistency. It never
// touches the device.
func (t *memoryTable) resolve(op string, h Handle) (*slot, error) {
	idx := h.Index()
	if idx >= len(t.slots) {
		return nil, linalg.Errorf(linalg.KindMemoryInconsistency, op,
			"handle %v outside table of %d slots", h, len(t.slots))
	}
	s := &t.slots[idx]
	switch {
	case s.buf == nil:
		return nil, linalg.Errorf(linalg.KindMemoryInconsistency, op, "handle %v refers to an empty slot", h)
	case s.gen != h.generation():
		return nil, linalg.Errorf(linalg.KindMemoryInconsistency, op,
			"handle %v is stale, slot %d is at generation %d", h, idx, s.gen)
	case s.buf.len() != s.rows*s.cols:
		return nil, linalg.Errorf(linalg.KindMemoryInconsistency, op,
			"slot %d holds %d elements but is recorded as %dx%d", idx, s.buf.len(), s.rows, s.cols)
	}
	return s, nil
}

func (t *memoryTable) shape(h Handle) (Shape, error) {
	s, err := t.resolve("calculator.shape", h)
	if err != nil {
		return Shape{}, err
	}
	return Shape{Rows: s.rows, Cols: s.cols}, nil
}

func (t *memoryTable) buffer(h Handle) (buffer, error) {
	s, err := t.resolve("calculator.buffer", h)
	if err != nil {
		return nil, err
	}
	return s.buf, nil
}

// upload copies m into the slot. The shapes must match exactly.
func (t *memoryTable) upload(h Handle, m *matrix.Matrix) error {
	s, err := t.resolve("calculator.upload", h)
	if err != nil {
		return err
	}
	if m.Rows() != s.rows || m.Cols() != s.cols {
		return linalg.Errorf(linalg.KindSize, "calculator.upload",
			"matrix is %dx%d but slot %d is %dx%d", m.Rows(), m.Cols(), h.Index(), s.rows, s.cols)
	}
	return t.dev.write(s.buf, m.Data())
}

// download reads the slot back into a new Matrix of the recorded shape.
func (t *memoryTable) download(h Handle) (*matrix.Matrix, error) {
	s, err := t.resolve("calculator.download", h)
	if err != nil {
		return nil, err
	}
	data, err := t.dev.read(s.buf, s.rows*s.cols)
	if err != nil {
		return nil, err
	}
	if len(data) != s.rows*s.cols {
		return nil, linalg.Errorf(linalg.KindReturnValue, "calculator.download",
			"device returned %d of %d elements", len(data), s.rows*s.cols)
	}
	return matrix.New(data, s.rows, s.cols)
}

// overwrite replaces the whole slot content and retires h in favour of
// the returned handle.
func (t *memoryTable) overwrite(h Handle, m *matrix.Matrix) (Handle, error) {
	if err := t.upload(h, m); err != nil {
		return 0, err
	}
	s := &t.slots[h.Index()]
	s.gen++
	return makeHandle(h.Index(), s.gen), nil
}

// free releases the buffer and invalidates h.
func (t *memoryTable) free(h Handle) error {
	s, err := t.resolve("calculator.free", h)
	if err != nil {
		return err
	}
	s.buf.release()
	s.buf = nil
	s.rows, s.cols = 0, 0
	s.gen++
	t.freeList = append(t.freeList, h.Index())
	t.used--
	return nil
}

// releaseAll frees every occupied slot.
func (t *memoryTable) releaseAll() {
	for i := range t.slots {
		s := &t.slots[i]
		if s.buf == nil {
			continue
		}
		s.buf.release()
		s.buf = nil
		s.gen++
		t.freeList = append(t.freeList, i)
	}
	t.used = 0
}
