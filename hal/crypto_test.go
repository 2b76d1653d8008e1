package hal

import (
	"encoding/hex"
	"testing"

	"github.com/ruteri/tee-ta-bridge/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdRng(t *testing.T) {
	a := make([]byte, 32)
	b := make([]byte, 32)
	StdRng{}.FillBytes(a)
	StdRng{}.FillBytes(b)

	assert.NotEqual(t, make([]byte, 32), a)
	assert.NotEqual(t, a, b)
}

func TestConstEq(t *testing.T) {
	tests := []struct {
		name        string
		left, right []byte
		want        bool
	}{
		{"equal", []byte("secret"), []byte("secret"), true},
		{"different", []byte("secret"), []byte("secreT"), false},
		{"length mismatch", []byte("secret"), []byte("secrets"), false},
		{"both empty", nil, []byte{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConstEq{}.Eq(tt.left, tt.right))
		})
	}
}

func TestHmacSha256(t *testing.T) {
	// RFC 4231 test case 2.
	want, _ := hex.DecodeString("5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843")
	key := interfaces.ExplicitKey("Jefe")

	mac, err := HmacSha256{}.Sign(key, []byte("what do ya want for nothing?"))
	require.NoError(t, err)
	assert.Equal(t, want, mac)

	// Data is treated as one concatenated message.
	mac, err = HmacSha256{}.Sign(key, []byte("what do ya "), nil, []byte("want for nothing?"))
	require.NoError(t, err)
	assert.Equal(t, want, mac)
}

func TestHmacSha256_OpaqueKey(t *testing.T) {
	_, err := HmacSha256{}.Sign(interfaces.OpaqueKey{Ref: []byte("slot-1")}, []byte("data"))
	assert.ErrorIs(t, err, interfaces.ErrInternal)
}

func TestCounterModeKDF(t *testing.T) {
	key := interfaces.ExplicitKey(make([]byte, 32))

	a, err := CounterModeKDF{}.Derive(key, []byte("KeymasterSharedMac"), []byte("context"), 32)
	require.NoError(t, err)
	assert.Len(t, a, 32)

	again, err := CounterModeKDF{}.Derive(key, []byte("KeymasterSharedMac"), []byte("context"), 32)
	require.NoError(t, err)
	assert.Equal(t, a, again)

	otherLabel, err := CounterModeKDF{}.Derive(key, []byte("other"), []byte("context"), 32)
	require.NoError(t, err)
	assert.NotEqual(t, a, otherLabel)

	otherContext, err := CounterModeKDF{}.Derive(key, []byte("KeymasterSharedMac"), []byte("context2"), 32)
	require.NoError(t, err)
	assert.NotEqual(t, a, otherContext)

	long, err := CounterModeKDF{}.Derive(key, []byte("KeymasterSharedMac"), []byte("context"), 80)
	require.NoError(t, err)
	assert.Len(t, long, 80)
}

func TestCounterModeKDF_Errors(t *testing.T) {
	_, err := CounterModeKDF{}.Derive(interfaces.OpaqueKey{}, nil, nil, 32)
	assert.ErrorIs(t, err, interfaces.ErrInternal)

	_, err = CounterModeKDF{}.Derive(interfaces.ExplicitKey("k"), nil, nil, 0)
	assert.ErrorIs(t, err, interfaces.ErrInternal)
}
