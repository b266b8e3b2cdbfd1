// Package checkpoint persists per-chain sync progress in a local BadgerDB so
// a restarted monitor resumes from the last processed height instead of the
// chain tip.
package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Key layout: synced:<chain_id> -> little-endian uint64 height.
const syncedPrefix = "synced:"

// Store is a BadgerDB-backed height checkpoint, safe for concurrent use by
// one monitor per chain.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the checkpoint database under dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil) // Disable BadgerDB's own logging
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LastSynced returns the checkpointed height for the chain, with ok=false
// when no checkpoint exists yet.
func (s *Store) LastSynced(chainID int64) (height uint64, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeSyncedKey(chainID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("invalid checkpoint length: %d", len(val))
			}
			height = binary.LittleEndian.Uint64(val)
			ok = true
			return nil
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("read checkpoint for chain %d: %w", chainID, err)
	}
	return height, ok, nil
}

// SetLastSynced records the height for the chain. The checkpoint only ever
// advances; a lower height is ignored so concurrent writers cannot move the
// monitor backwards.
func (s *Store) SetLastSynced(chainID int64, height uint64) error {
	key := makeSyncedKey(chainID)
	err := s.db.Update(func(txn *badger.Txn) error {
		if item, err := txn.Get(key); err == nil {
			var current uint64
			if err := item.Value(func(val []byte) error {
				if len(val) == 8 {
					current = binary.LittleEndian.Uint64(val)
				}
				return nil
			}); err != nil {
				return err
			}
			if height <= current {
				return nil
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], height)
		return txn.Set(key, buf[:])
	})
	if err != nil {
		return fmt.Errorf("write checkpoint for chain %d: %w", chainID, err)
	}
	return nil
}

func makeSyncedKey(chainID int64) []byte {
	key := make([]byte, len(syncedPrefix)+8)
	copy(key, syncedPrefix)
	binary.LittleEndian.PutUint64(key[len(syncedPrefix):], uint64(chainID))
	return key
}
