// Package chainstore persists the last block each chain's Listener has
// swept, keyed by chain name, in a dedicated bbolt bucket sharing the
// file jobstore opens (spec §6).
package chainstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var chainStateBucket = []byte("ChainState")

type state struct {
	LastProcessedBlock uint64    `json:"lastProcessedBlock"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Store is a bbolt handle over the ChainState bucket, grounded on
// oracle_eth/chain/eth_chain_observer.go's GetLastProcessedBlock /
// InsertLastProcessedBlock pairing, renamed to match this spec's verbs.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at filePath.
func Open(filePath string) (*Store, error) {
	db, err := bbolt.Open(filePath, 0660, nil)
	if err != nil {
		return nil, fmt.Errorf("chainstore: could not open db: %w", err)
	}

	if err := ensureBucket(db); err != nil {
		db.Close()

		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenWithDB wraps an already-open bbolt handle, used when the Chain
// Store shares a single file with jobstore per spec §6.
func OpenWithDB(db *bbolt.DB) (*Store, error) {
	if err := ensureBucket(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func ensureBucket(db *bbolt.DB) error {
	return db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chainStateBucket)
		if err != nil {
			return fmt.Errorf("chainstore: could not create bucket: %w", err)
		}

		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetLastProcessed returns 0 if chain has no persisted state, per spec
// §4.1.
func (s *Store) GetLastProcessed(chain string) (uint64, error) {
	var block uint64

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(chainStateBucket).Get([]byte(chain))
		if data == nil {
			return nil
		}

		var st state
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("chainstore: corrupt state for chain %s: %w", chain, err)
		}

		block = st.LastProcessedBlock

		return nil
	})

	return block, err
}

// SetLastProcessed is an idempotent upsert, per spec §4.1. Invariant 6
// (monotonic per chain, spec §3) is enforced by callers: the Listener
// only calls this with an advancing cursor.
func (s *Store) SetLastProcessed(chain string, block uint64) error {
	st := state{LastProcessedBlock: block, UpdatedAt: time.Now().UTC()}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("chainstore: could not marshal state: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(chainStateBucket).Put([]byte(chain), data); err != nil {
			return fmt.Errorf("chainstore: write error: %w", err)
		}

		return nil
	})
}

// ChainState is one chain's cursor, served verbatim by the dashboard
// API's GET /api/chains (spec §4.12).
type ChainState struct {
	Chain              string    `json:"chain"`
	LastProcessedBlock uint64    `json:"lastProcessedBlock"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ListChains returns every chain with persisted cursor state, ordered by
// chain name.
func (s *Store) ListChains() ([]ChainState, error) {
	var states []ChainState

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(chainStateBucket).ForEach(func(k, v []byte) error {
			var st state
			if err := json.Unmarshal(v, &st); err != nil {
				return fmt.Errorf("chainstore: corrupt state for chain %s: %w", k, err)
			}

			states = append(states, ChainState{
				Chain:              string(k),
				LastProcessedBlock: st.LastProcessedBlock,
				UpdatedAt:          st.UpdatedAt,
			})

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(states, func(i, j int) bool { return states[i].Chain < states[j].Chain })

	return states, nil
}
