package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/herr-seppia/hatchery/ids"
)

func TestEncodeDecodeBool(t *testing.T) {
	var buf [1]byte

	n, err := EncodeBool(buf[:], true)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	v, err := DecodeBool(buf[:])
	require.NoError(t, err)
	require.True(t, v)

	_, err = EncodeBool(buf[:], false)
	require.NoError(t, err)
	v, err = DecodeBool(buf[:])
	require.NoError(t, err)
	require.False(t, v)

	_, err = EncodeBool(nil, true)
	require.Error(t, err)
	_, err = DecodeBool(nil)
	require.Error(t, err)
}

func TestEncodeDecodeInt16(t *testing.T) {
	var buf [2]byte
	n, err := EncodeInt16(buf[:], -1234)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	v, err := DecodeInt16(buf[:])
	require.NoError(t, err)
	require.EqualValues(t, -1234, v)

	_, err = EncodeInt16(buf[:1], 1)
	require.Error(t, err)
	_, err = DecodeInt16(buf[:1])
	require.Error(t, err)
}

func TestEncodeDecodeInt32(t *testing.T) {
	var buf [4]byte
	_, err := EncodeInt32(buf[:], -987654321)
	require.NoError(t, err)

	v, err := DecodeInt32(buf[:])
	require.NoError(t, err)
	require.EqualValues(t, -987654321, v)
}

func TestEncodeDecodeUint32(t *testing.T) {
	var buf [4]byte
	_, err := EncodeUint32(buf[:], 4242424242)
	require.NoError(t, err)

	v, err := DecodeUint32(buf[:])
	require.NoError(t, err)
	require.EqualValues(t, 4242424242, v)
}

func TestEncodeDecodeUint64(t *testing.T) {
	var buf [8]byte
	_, err := EncodeUint64(buf[:], 1<<40+7)
	require.NoError(t, err)

	v, err := DecodeUint64(buf[:])
	require.NoError(t, err)
	require.EqualValues(t, 1<<40+7, v)

	_, err = EncodeUint64(buf[:4], 1)
	require.Error(t, err)
}

func TestEncodeDecodeOptionInt16(t *testing.T) {
	var buf [3]byte

	n, err := EncodeOptionInt16(buf[:], nil)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	v, err := DecodeOptionInt16(buf[:])
	require.NoError(t, err)
	require.Nil(t, v)

	val := int16(-99)
	_, err = EncodeOptionInt16(buf[:], &val)
	require.NoError(t, err)
	v, err = DecodeOptionInt16(buf[:])
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, val, *v)

	_, err = DecodeOptionInt16(buf[:2])
	require.Error(t, err)
}

func TestEncodeDecodeModuleId(t *testing.T) {
	id := ids.HashModule([]byte("a module"))
	buf := make([]byte, ids.Size)

	n, err := EncodeModuleId(buf, id)
	require.NoError(t, err)
	require.Equal(t, ids.Size, n)

	got, err := DecodeModuleId(buf)
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = EncodeModuleId(buf[:ids.Size-1], id)
	require.Error(t, err)
	_, err = DecodeModuleId(buf[:ids.Size-1])
	require.Error(t, err)
}

func TestEncodeBytes(t *testing.T) {
	buf := make([]byte, 8)
	n, err := EncodeBytes(buf, []byte("abcd"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte("abcd"), buf[:4])

	_, err = EncodeBytes(buf[:2], []byte("abcd"))
	require.Error(t, err)
}

func TestEncodeDecodeUnit(t *testing.T) {
	n, err := EncodeUnit(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.NoError(t, DecodeUnit(nil))
}
