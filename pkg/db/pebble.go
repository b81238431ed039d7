package db

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"
)

// OpenPebble opens (or creates) the embedded key-value store at path.
func OpenPebble(path string, log *zap.Logger) (*pebble.DB, error) {
	kv, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	log.Info("pebble_opened", zap.String("path", path))
	return kv, nil
}

// OpenPebbleInMemory opens a store backed by an in-memory filesystem.
func OpenPebbleInMemory() (*pebble.DB, error) {
	return pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
}

// ScanPrefix calls fn for every key starting with prefix, in key order.
// Key and value slices are only valid for the duration of the call.
func ScanPrefix(kv *pebble.DB, prefix []byte, fn func(key, value []byte) error) error {
	iter, err := kv.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
