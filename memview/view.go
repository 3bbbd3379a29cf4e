package memview

import (
	"encoding/binary"
	"math"
)

// ViewKind selects the element type of a typed view.
type ViewKind int

const (
	U8 ViewKind = iota
	U16
	U32
	U64
	I32
	I64
	F32
	F64

	numViewKinds
)

// ElemSize returns the element width in bytes.
func (k ViewKind) ElemSize() uint32 {
	switch k {
	case U8:
		return 1
	case U16:
		return 2
	case U32, I32, F32:
		return 4
	default:
		return 8
	}
}

func (k ViewKind) String() string {
	switch k {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "unknown"
}

// View is a typed window over the backing buffer. ByteLen is the snapshot
// taken at construction; the cache compares it against the buffer's current
// length on every access.
type View struct {
	Kind    ViewKind
	ByteLen uint32
	data    []byte
}

// Len returns the element count.
func (v *View) Len() uint32 {
	return v.ByteLen / v.Kind.ElemSize()
}

func (v *View) off(i uint32) uint32 {
	return i * v.Kind.ElemSize()
}

func (v *View) U8At(i uint32) uint8 {
	return v.data[v.off(i)]
}

func (v *View) U16At(i uint32) uint16 {
	return binary.LittleEndian.Uint16(v.data[v.off(i):])
}

func (v *View) U32At(i uint32) uint32 {
	return binary.LittleEndian.Uint32(v.data[v.off(i):])
}

func (v *View) U64At(i uint32) uint64 {
	return binary.LittleEndian.Uint64(v.data[v.off(i):])
}

func (v *View) I32At(i uint32) int32 {
	return int32(binary.LittleEndian.Uint32(v.data[v.off(i):]))
}

func (v *View) I64At(i uint32) int64 {
	return int64(binary.LittleEndian.Uint64(v.data[v.off(i):]))
}

func (v *View) F32At(i uint32) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(v.data[v.off(i):]))
}

func (v *View) F64At(i uint32) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(v.data[v.off(i):]))
}

func (v *View) SetU8At(i uint32, val uint8) {
	v.data[v.off(i)] = val
}

func (v *View) SetU32At(i uint32, val uint32) {
	binary.LittleEndian.PutUint32(v.data[v.off(i):], val)
}

func (v *View) SetU64At(i uint32, val uint64) {
	binary.LittleEndian.PutUint64(v.data[v.off(i):], val)
}
