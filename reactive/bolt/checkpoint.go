// Package bolt persists replica snapshots in a bbolt file.
package bolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
	"go.pilab.hu/oidcstore/reactive"
)

const (
	metaBucket  = "_meta"
	positionKey = "position"
	sequencePfx = "seq:"
)

// Checkpoint implements reactive.Checkpointer. Each table is a bucket keyed
// by big endian internal id; the meta bucket holds the log position and id
// sequences of the last committed batch.
type Checkpoint struct {
	db *bbolt.DB
}

var _ reactive.Checkpointer = (*Checkpoint)(nil)

// Open opens or creates the checkpoint file at path.
func Open(path string) (*Checkpoint, error) {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Info().Str("dir", dir).Msg("Checkpoint directory does not exist, creating it")
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", dir, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check checkpoint directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db at %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range append(tableBuckets(), metaBucket) {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Checkpoint{db: db}, nil
}

func tableBuckets() []string {
	tables := reactive.Tables()
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, string(t))
	}
	return names
}

func idKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// Restore feeds every stored row to fn, table by table in id order.
func (c *Checkpoint) Restore(fn func(table reactive.TableName, row json.RawMessage) error) (string, map[reactive.TableName]uint64, error) {
	var position string
	sequences := make(map[reactive.TableName]uint64)

	err := c.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		position = string(meta.Get([]byte(positionKey)))

		for _, table := range reactive.Tables() {
			if v := meta.Get([]byte(sequencePfx + string(table))); len(v) == 8 {
				sequences[table] = binary.BigEndian.Uint64(v)
			}

			b := tx.Bucket([]byte(table))
			err := b.ForEach(func(_, v []byte) error {
				// v is only valid inside the transaction.
				row := make(json.RawMessage, len(v))
				copy(row, v)
				return fn(table, row)
			})
			if err != nil {
				return fmt.Errorf("failed to restore table %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return position, sequences, nil
}

// Commit writes the batch in a single transaction.
func (c *Checkpoint) Commit(batch reactive.Batch) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		for _, ch := range batch.Changes {
			b := tx.Bucket([]byte(ch.Table))
			if b == nil {
				return fmt.Errorf("unknown table %s", ch.Table)
			}
			if ch.Row == nil {
				if err := b.Delete(idKey(ch.ID)); err != nil {
					return fmt.Errorf("failed to delete %s/%d: %w", ch.Table, ch.ID, err)
				}
				continue
			}
			raw, err := json.Marshal(ch.Row)
			if err != nil {
				return fmt.Errorf("failed to encode %s/%d: %w", ch.Table, ch.ID, err)
			}
			if err := b.Put(idKey(ch.ID), raw); err != nil {
				return fmt.Errorf("failed to put %s/%d: %w", ch.Table, ch.ID, err)
			}
		}

		meta := tx.Bucket([]byte(metaBucket))
		for table, next := range batch.Sequences {
			if err := meta.Put([]byte(sequencePfx+string(table)), idKey(next)); err != nil {
				return err
			}
		}
		return meta.Put([]byte(positionKey), []byte(batch.Position))
	})
}

func (c *Checkpoint) Close() error {
	return c.db.Close()
}
