package db

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/require"
)

func TestScanPrefix_StopsAtPrefixBoundary(t *testing.T) {
	kv, err := OpenPebbleInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	for _, k := range []string{"msg:a:1", "msg:a:2", "msg:b:1", "msg;", "conv:a"} {
		require.NoError(t, kv.Set([]byte(k), []byte(k), pebble.Sync))
	}

	var keys []string
	err = ScanPrefix(kv, []byte("msg:a:"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, []string{"msg:a:1", "msg:a:2"}, keys)
}

func TestPrefixUpperBound(t *testing.T) {
	require.Equal(t, []byte("msg;"), prefixUpperBound([]byte("msg:")))
	require.Equal(t, []byte{0x02}, prefixUpperBound([]byte{0x01, 0xff}))
	require.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
}
