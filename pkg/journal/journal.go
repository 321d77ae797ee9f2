// Package journal implements an append-only log of received channel events
// backed by BoltDB. The CLI uses it to keep a local record of events seen
// while watching filters, but it can serve any client that needs replay.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/trellis-network/trellis-go/pkg/eventrpc"
	"go.etcd.io/bbolt"
)

// eventsBucket is the bucket all journal records live in.
var eventsBucket = []byte("events")

type (
	// Journal is an append-only BoltDB-backed log of channel events.
	Journal struct {
		db *bbolt.DB
	}

	// Record is a single journaled event.
	Record struct {
		Time     time.Time              `json:"time"`
		FilterID string                 `json:"filter_id"`
		Category eventrpc.EventCategory `json:"category"`
		Payload  interface{}            `json:"payload,omitempty"`
	}
)

// Open opens or creates a journal at the given path.
func Open(filePath string) (*Journal, error) {
	dir := path.Dir(filePath)
	err := os.MkdirAll(dir, os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("could not create dir for journal: %w", err)
	}
	db, err := bbolt.Open(filePath, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		if err != nil {
			return fmt.Errorf("could not create events bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Append adds a record to the journal and returns its sequence number.
// Sequence numbers start from 1 and never repeat within one journal file.
func (j *Journal) Append(r *Record) (uint64, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("could not encode record: %w", err)
	}
	var seq uint64
	err = j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return b.Put(key[:], data)
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Count returns the number of records stored.
func (j *Journal) Count() (n int, err error) {
	err = j.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(eventsBucket).Stats().KeyN
		return nil
	})
	return
}

// Iterate walks the journal in append order calling f for each record until
// f returns false or the journal ends.
func (j *Journal) Iterate(f func(seq uint64, r *Record) bool) error {
	return j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			r := new(Record)
			if err := json.Unmarshal(v, r); err != nil {
				return fmt.Errorf("broken record %x: %w", k, err)
			}
			if !f(binary.BigEndian.Uint64(k), r) {
				break
			}
		}
		return nil
	})
}

// Close releases all db resources.
func (j *Journal) Close() error {
	return j.db.Close()
}
