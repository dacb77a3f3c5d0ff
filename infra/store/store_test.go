package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTest(t)

	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	v, err := s.Get([]byte("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, s.Delete([]byte("a")))
	_, err = s.Get([]byte("a"), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotIsolation(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.Put([]byte("k"), []byte("old")))

	snap := s.NewSnapshot()
	defer snap.Close()

	require.NoError(t, s.Put([]byte("k"), []byte("new")))
	require.NoError(t, s.Put([]byte("k2"), []byte("x")))

	v, err := snap.Get([]byte("k"), nil)
	require.NoError(t, err)
	assert.Equal(t, "old", string(v))

	_, err = snap.Get([]byte("k2"), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotScan(t *testing.T) {
	s := openTest(t)
	for _, k := range []string{"user/1", "user/2", "users", "order/1"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}

	snap := s.NewSnapshot()
	defer snap.Close()

	var keys []string
	require.NoError(t, snap.Scan([]byte("user/"), func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	}))
	assert.Equal(t, []string{"user/1", "user/2"}, keys)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("b"), prefixEnd([]byte("a")))
	assert.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
	assert.Nil(t, prefixEnd(nil))
}
