package keys

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret32 = strings.Repeat("k", MinKeyLength)

func TestNewSigningKey(t *testing.T) {
	k, err := NewSigningKey([]byte(secret32 + "\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte(secret32), k.Bytes())
	assert.False(t, k.IsZero())

	_, err = NewSigningKey([]byte("short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)

	assert.True(t, SigningKey{}.IsZero())
}

func TestSigningKey_Immutable(t *testing.T) {
	src := []byte(secret32)
	k, err := NewSigningKey(src)
	require.NoError(t, err)

	src[0] = 'X'
	got := k.Bytes()
	got[1] = 'Y'

	assert.Equal(t, []byte(secret32), k.Bytes())
}

func TestStatic_Load(t *testing.T) {
	k, err := Static(secret32).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(secret32), k.Bytes())

	_, err = Static("").Load(context.Background())
	assert.Error(t, err)

	_, err = Static("tiny").Load(context.Background())
	assert.ErrorIs(t, err, ErrKeyTooShort)
}
