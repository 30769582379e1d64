package bindkit

import (
	"net/netip"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type featureFlag bool

type portNumber uint16

func TestConvertibleConstantKinds(t *testing.T) {
	convertible := []reflect.Type{
		reflect.TypeOf(true),
		reflect.TypeOf(int(0)),
		reflect.TypeOf(int8(0)),
		reflect.TypeOf(uint64(0)),
		reflect.TypeOf(float32(0)),
		reflect.TypeOf(time.Duration(0)),
		reflect.TypeOf(featureFlag(false)),
		reflect.TypeOf(portNumber(0)),
		reflect.TypeOf(netip.Addr{}),
		reflect.TypeOf(&netip.Addr{}),
	}
	for _, typ := range convertible {
		require.True(t, convertibleConstant(typ), "expected %s to be convertible", typ)
	}

	notConvertible := []reflect.Type{
		reflect.TypeOf(""),
		reflect.TypeOf([]int(nil)),
		reflect.TypeOf(TestDatabase{}),
		reflect.TypeOf(&TestDatabase{}),
	}
	for _, typ := range notConvertible {
		require.False(t, convertibleConstant(typ), "expected %s not to be convertible", typ)
	}
}

func TestConvertConstantNumeric(t *testing.T) {
	v, err := convertConstant(reflect.TypeOf(int(0)), "42")
	require.NoError(t, err)
	require.Equal(t, 42, v)

	v, err = convertConstant(reflect.TypeOf(int64(0)), "-7")
	require.NoError(t, err)
	require.Equal(t, int64(-7), v)

	// Base prefixes are honored.
	v, err = convertConstant(reflect.TypeOf(int(0)), "0x10")
	require.NoError(t, err)
	require.Equal(t, 16, v)

	v, err = convertConstant(reflect.TypeOf(uint8(0)), "255")
	require.NoError(t, err)
	require.Equal(t, uint8(255), v)

	v, err = convertConstant(reflect.TypeOf(float64(0)), "3.5")
	require.NoError(t, err)
	require.Equal(t, 3.5, v)
}

func TestConvertConstantRespectsBitSize(t *testing.T) {
	_, err := convertConstant(reflect.TypeOf(int8(0)), "300")
	require.Error(t, err)
	require.Contains(t, err.Error(), `cannot parse "300" as int8`)

	_, err = convertConstant(reflect.TypeOf(uint16(0)), "70000")
	require.Error(t, err)

	_, err = convertConstant(reflect.TypeOf(uint(0)), "-1")
	require.Error(t, err)
}

func TestConvertConstantBool(t *testing.T) {
	v, err := convertConstant(reflect.TypeOf(true), "true")
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = convertConstant(reflect.TypeOf(true), "0")
	require.NoError(t, err)
	require.Equal(t, false, v)

	_, err = convertConstant(reflect.TypeOf(true), "yes")
	require.Error(t, err)
}

func TestConvertConstantNamedKinds(t *testing.T) {
	v, err := convertConstant(reflect.TypeOf(featureFlag(false)), "true")
	require.NoError(t, err)
	require.Equal(t, featureFlag(true), v)

	v, err = convertConstant(reflect.TypeOf(portNumber(0)), "8080")
	require.NoError(t, err)
	require.Equal(t, portNumber(8080), v)
}

func TestConvertConstantDuration(t *testing.T) {
	v, err := convertConstant(reflect.TypeOf(time.Duration(0)), "1h30m")
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, v)

	_, err = convertConstant(reflect.TypeOf(time.Duration(0)), "forever")
	require.Error(t, err)
	require.Contains(t, err.Error(), `cannot parse "forever"`)
}

func TestConvertConstantTextUnmarshaler(t *testing.T) {
	// Value type whose pointer implements encoding.TextUnmarshaler.
	v, err := convertConstant(reflect.TypeOf(netip.Addr{}), "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("10.0.0.1"), v)

	// Pointer type.
	v, err = convertConstant(reflect.TypeOf(&netip.Addr{}), "::1")
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("::1"), *(v.(*netip.Addr)))

	_, err = convertConstant(reflect.TypeOf(netip.Addr{}), "not-an-address")
	require.Error(t, err)
	require.Contains(t, err.Error(), `cannot unmarshal "not-an-address"`)
}

func TestConvertConstantUnsupportedType(t *testing.T) {
	_, err := convertConstant(reflect.TypeOf(TestDatabase{}), "anything")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no conversion from string constant")
}
