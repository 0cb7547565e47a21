package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("acct/aa"), []byte("one")))
	require.NoError(t, db.Put([]byte("acct/bb"), []byte("two")))
	require.NoError(t, db.Put([]byte("listing/aa"), []byte("three")))

	got, err := db.Get([]byte("acct/aa"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)

	require.NoError(t, db.Delete([]byte("acct/aa")))
	_, err = db.Get([]byte("acct/aa"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDBIteratePrefix(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("listing/aa"), []byte("1")))
	require.NoError(t, db.Put([]byte("listing/bb"), []byte("2")))
	require.NoError(t, db.Put([]byte("acct/cc"), []byte("3")))

	seen := map[string]string{}
	err := db.IteratePrefix([]byte("listing/"), func(key, value []byte) error {
		seen[string(key)] = string(value)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	require.Equal(t, "1", seen["listing/aa"])
	require.Equal(t, "2", seen["listing/bb"])
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("mutable")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("mutable"), got)
}

func TestLevelDBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("round"), []byte{0, 0, 0, 7}))
	got, err := db.Get([]byte("round"))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 7}, got)

	require.NoError(t, db.Put([]byte("asset/1"), []byte("a")))
	require.NoError(t, db.Put([]byte("asset/2"), []byte("b")))
	count := 0
	require.NoError(t, db.IteratePrefix([]byte("asset/"), func(key, value []byte) error {
		count++
		return nil
	}))
	require.Equal(t, 2, count)

	require.NoError(t, db.Delete([]byte("round")))
	_, err = db.Get([]byte("round"))
	require.ErrorIs(t, err, ErrNotFound)
}
