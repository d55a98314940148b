package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"

	"relaydesk/pkg/logger"
)

var (
	db     *pebble.DB
	dbPath string

	// seqMu guards the persisted ID sequences.
	seqMu sync.Mutex
	// convMu serializes conversation writes so every state transition is a
	// conditional read-check-write against the same consistency point.
	convMu sync.Mutex
)

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func errNotOpened() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// NextID increments and persists the sequence for an entity kind and
// returns the new value. IDs start at 1.
func NextID(kind string) (int64, error) {
	if db == nil {
		return 0, errNotOpened()
	}
	seqMu.Lock()
	defer seqMu.Unlock()
	key := []byte("seq:" + kind)
	var cur int64
	v, closer, err := db.Get(key)
	if err == nil {
		cur, err = strconv.ParseInt(string(v), 10, 64)
		_ = closer.Close()
		if err != nil {
			return 0, fmt.Errorf("corrupt sequence %s: %w", kind, err)
		}
	} else if err != pebble.ErrNotFound {
		return 0, err
	}
	cur++
	if err := db.Set(key, []byte(strconv.FormatInt(cur, 10)), pebble.Sync); err != nil {
		return 0, err
	}
	return cur, nil
}

// getJSON reads key into v. Returns (false, nil) when the key is absent.
func getJSON(key string, v any) (bool, error) {
	if db == nil {
		return false, errNotOpened()
	}
	data, closer, err := db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("corrupt record %s: %w", key, err)
	}
	return true, nil
}

func setJSON(key string, v any) error {
	if db == nil {
		return errNotOpened()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return db.Set([]byte(key), data, pebble.Sync)
}

func deleteKey(key string) error {
	if db == nil {
		return errNotOpened()
	}
	return db.Delete([]byte(key), pebble.Sync)
}

// scanPrefix calls fn for every key under prefix in key order. fn returns
// false to stop early. Values are copied before fn is invoked.
func scanPrefix(prefix string, fn func(key string, value []byte) (bool, error)) error {
	if db == nil {
		return errNotOpened()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	p := []byte(prefix)
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		k := iter.Key()
		if len(k) < len(p) || string(k[:len(p)]) != prefix {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		cont, err := fn(string(k), v)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return iter.Error()
}
