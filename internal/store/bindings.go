package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/manudev97/first-frame-sub000/internal/models"
)

var (
	bucketBindings    = []byte("wallet_bindings")
	bucketAddresses   = []byte("address_index")
	bucketCompletions = []byte("puzzle_completions")

	// ErrBindingNotFound is returned when no wallet binding exists.
	ErrBindingNotFound = errors.New("store: wallet binding not found")
	// ErrBindingConflict is returned when an address is already bound to a
	// different identifier.
	ErrBindingConflict = errors.New("store: address bound to a different identifier")
)

// BindingStore persists identifier/address bindings captured at wallet-link
// time, plus puzzle-completion telemetry. Bindings make payment
// reconciliation a point lookup instead of a brute-force address search.
type BindingStore struct {
	db *bolt.DB
}

// NewBindingStore initialises (and migrates) the BoltDB-backed store.
func NewBindingStore(path string, options *bolt.Options) (*BindingStore, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBindings, bucketAddresses, bucketCompletions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BindingStore{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (s *BindingStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func userKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// Bind records the identifier/address pair. Re-binding the same pair is a
// no-op; binding an address already held by another identifier fails.
func (s *BindingStore) Bind(userID int64, address string) (*models.WalletBinding, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, errors.New("store: address required")
	}
	binding := &models.WalletBinding{UserID: userID, Address: address, LinkedAt: time.Now().UTC()}
	err := s.db.Update(func(tx *bolt.Tx) error {
		addresses := tx.Bucket(bucketAddresses)
		if existing := addresses.Get([]byte(address)); existing != nil {
			if binary.BigEndian.Uint64(existing) != uint64(userID) {
				return ErrBindingConflict
			}
		}
		payload, err := json.Marshal(binding)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketBindings).Put(userKey(userID), payload); err != nil {
			return err
		}
		return addresses.Put([]byte(address), userKey(userID))
	})
	if err != nil {
		return nil, err
	}
	return binding, nil
}

// Lookup returns the binding for an identifier.
func (s *BindingStore) Lookup(userID int64) (*models.WalletBinding, error) {
	var binding models.WalletBinding
	err := s.db.View(func(tx *bolt.Tx) error {
		payload := tx.Bucket(bucketBindings).Get(userKey(userID))
		if payload == nil {
			return ErrBindingNotFound
		}
		return json.Unmarshal(payload, &binding)
	})
	if err != nil {
		return nil, err
	}
	return &binding, nil
}

// IdentifierForAddress resolves an address back to its bound identifier.
func (s *BindingStore) IdentifierForAddress(address string) (int64, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	var userID int64
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketAddresses).Get([]byte(address))
		if key == nil {
			return ErrBindingNotFound
		}
		userID = int64(binary.BigEndian.Uint64(key))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// RecordCompletion appends puzzle-completion telemetry. Failures never abort
// the unlock that produced them; callers log and continue.
func (s *BindingStore) RecordCompletion(completion models.PuzzleCompletion) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCompletions)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		payload, err := json.Marshal(completion)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, payload)
	})
}

// Completions returns all recorded telemetry in insertion order.
func (s *BindingStore) Completions() ([]models.PuzzleCompletion, error) {
	var out []models.PuzzleCompletion
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCompletions).ForEach(func(_, payload []byte) error {
			var completion models.PuzzleCompletion
			if err := json.Unmarshal(payload, &completion); err != nil {
				return err
			}
			out = append(out, completion)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
