// Package codec implements the fixed-layout, deterministic encoding used to
// marshal arguments and replies across the host/guest boundary through the
// shared argument buffer. Values are written directly into the destination
// buffer in place (no intermediate allocation beyond a small fixed
// scratch), and read back by decoding the same fixed byte layout.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/herr-seppia/hatchery/ids"
)

// ScratchBytes is the size of the scratch buffer a composite encoder may
// keep aside while assembling a multi-field value.
const ScratchBytes = 16

// Scratch is the fixed-size working buffer a multi-field encode can use to
// stage bytes before writing them to the destination buffer in layout
// order. Built-in single-field encoders in this file don't need it; it
// exists so callers composing larger records have a place to put one.
type Scratch [ScratchBytes]byte

func tooShort(need, have int) error {
	return fmt.Errorf("codec: buffer too short: need %d bytes, have %d", need, have)
}

func EncodeUnit(buf []byte) (int, error) { return 0, nil }

func DecodeUnit([]byte) error { return nil }

func EncodeBool(buf []byte, v bool) (int, error) {
	if len(buf) < 1 {
		return 0, tooShort(1, len(buf))
	}
	if v {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
	return 1, nil
}

func DecodeBool(buf []byte) (bool, error) {
	if len(buf) < 1 {
		return false, tooShort(1, len(buf))
	}
	return buf[0] != 0, nil
}

func EncodeInt16(buf []byte, v int16) (int, error) {
	if len(buf) < 2 {
		return 0, tooShort(2, len(buf))
	}
	binary.LittleEndian.PutUint16(buf, uint16(v))
	return 2, nil
}

func DecodeInt16(buf []byte) (int16, error) {
	if len(buf) < 2 {
		return 0, tooShort(2, len(buf))
	}
	return int16(binary.LittleEndian.Uint16(buf)), nil
}

func EncodeInt32(buf []byte, v int32) (int, error) {
	if len(buf) < 4 {
		return 0, tooShort(4, len(buf))
	}
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return 4, nil
}

func DecodeInt32(buf []byte) (int32, error) {
	if len(buf) < 4 {
		return 0, tooShort(4, len(buf))
	}
	return int32(binary.LittleEndian.Uint32(buf)), nil
}

func EncodeUint32(buf []byte, v uint32) (int, error) {
	if len(buf) < 4 {
		return 0, tooShort(4, len(buf))
	}
	binary.LittleEndian.PutUint32(buf, v)
	return 4, nil
}

func DecodeUint32(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, tooShort(4, len(buf))
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func EncodeUint64(buf []byte, v uint64) (int, error) {
	if len(buf) < 8 {
		return 0, tooShort(8, len(buf))
	}
	binary.LittleEndian.PutUint64(buf, v)
	return 8, nil
}

func DecodeUint64(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, tooShort(8, len(buf))
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// EncodeOptionInt16 writes a one-byte presence tag followed by the value
// (zero when absent): a discriminant byte plus the payload's native
// layout, so an absent value still occupies a fixed 3 bytes.
func EncodeOptionInt16(buf []byte, v *int16) (int, error) {
	if len(buf) < 3 {
		return 0, tooShort(3, len(buf))
	}
	if v == nil {
		buf[0] = 0
		binary.LittleEndian.PutUint16(buf[1:], 0)
		return 3, nil
	}
	buf[0] = 1
	binary.LittleEndian.PutUint16(buf[1:], uint16(*v))
	return 3, nil
}

func DecodeOptionInt16(buf []byte) (*int16, error) {
	if len(buf) < 3 {
		return nil, tooShort(3, len(buf))
	}
	if buf[0] == 0 {
		return nil, nil
	}
	v := int16(binary.LittleEndian.Uint16(buf[1:]))
	return &v, nil
}

func EncodeModuleId(buf []byte, id ids.ModuleId) (int, error) {
	if len(buf) < ids.Size {
		return 0, tooShort(ids.Size, len(buf))
	}
	copy(buf, id[:])
	return ids.Size, nil
}

func DecodeModuleId(buf []byte) (ids.ModuleId, error) {
	var id ids.ModuleId
	if len(buf) < ids.Size {
		return id, tooShort(ids.Size, len(buf))
	}
	copy(id[:], buf[:ids.Size])
	return id, nil
}

func EncodeBytes(buf, v []byte) (int, error) {
	if len(buf) < len(v) {
		return 0, tooShort(len(v), len(buf))
	}
	return copy(buf, v), nil
}
