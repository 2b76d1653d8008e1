package hal

import (
	"bytes"
	"testing"

	"github.com/ruteri/tee-ta-bridge/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedKeys(t *testing.T) {
	key, err := NewNonsecurePasswordKey(nil).Key()
	require.NoError(t, err)
	assert.Equal(t, interfaces.ExplicitKey(make([]byte, KeySize)), key)

	key, err = ZeroPresharedKey().Key()
	require.NoError(t, err)
	assert.Equal(t, interfaces.ExplicitKey(make([]byte, KeySize)), key)

	_, err = FixedPresharedKey(nil).Key()
	assert.ErrorIs(t, err, interfaces.ErrInternal)
}

func TestKeysAreCopies(t *testing.T) {
	source := NewNonsecurePasswordKey(bytes.Repeat([]byte{0x42}, KeySize))
	key, err := source.Key()
	require.NoError(t, err)

	explicit := key.(interfaces.ExplicitKey)
	explicit[0] = 0x00

	again, err := source.Key()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), again.(interfaces.ExplicitKey)[0])
}

func TestExplicitAuthKey(t *testing.T) {
	a, err := NewExplicitAuthKey(StdRng{}).Key()
	require.NoError(t, err)
	b, err := NewExplicitAuthKey(StdRng{}).Key()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	fixed, err := ExplicitAuthKeyFrom([]byte("auth")).Key()
	require.NoError(t, err)
	assert.Equal(t, interfaces.ExplicitKey("auth"), fixed)
}

func TestDeriveNonsecureKeys(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, 32)

	keys, err := DeriveNonsecureKeys(seed)
	require.NoError(t, err)
	assert.Len(t, keys.Password, KeySize)
	assert.Len(t, keys.Auth, KeySize)
	assert.Len(t, keys.Preshared, KeySize)
	assert.NotEqual(t, keys.Password, keys.Auth)
	assert.NotEqual(t, keys.Password, keys.Preshared)
	assert.NotEqual(t, keys.Auth, keys.Preshared)

	again, err := DeriveNonsecureKeys(seed)
	require.NoError(t, err)
	assert.Equal(t, keys, again)

	other, err := DeriveNonsecureKeys(bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)
	assert.NotEqual(t, keys.Password, other.Password)

	_, err = DeriveNonsecureKeys([]byte("short"))
	assert.Error(t, err)
}
