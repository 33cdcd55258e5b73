package docstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/querydoc"
)

var (
	bucketSchema      = []byte("schema")
	bucketCollections = []byte("collections")
	bucketLocator     = []byte("locator")
	bucketHistory     = []byte("history")
)

// Config holds configuration for the bbolt collections.
type Config struct {
	// Path is the database file.
	Path string

	// Timeout bounds waiting for the file lock.
	// Default: 1s
	Timeout time.Duration

	// FileMode is used when the file is created.
	// Default: 0600
	FileMode os.FileMode
}

// DefaultConfig returns defaults for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		Timeout:  time.Second,
		FileMode: 0o600,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("bolt path is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FileMode == 0 {
		c.FileMode = 0o600
	}
	return nil
}

// Bolt stores collections in a bbolt file. Documents are CBOR-encoded under
// collections/<type>/<id>; locator maps ids to types; history/<id> holds the
// modification records keyed by big-endian revision.
type Bolt struct {
	db  *bolt.DB
	enc cbor.EncMode
}

// historyRecord is the encoded form of ir.Modification.
type historyRecord struct {
	Revision  int64  `cbor:"revision"`
	ElementID string `cbor:"elementId"`
	Timestamp int64  `cbor:"timestamp"`
	User      string `cbor:"user"`
	Comment   string `cbor:"comment"`
}

// OpenBolt opens (creating if needed) the bbolt file described by cfg.
func OpenBolt(cfg Config) (*Bolt, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	db, err := bolt.Open(cfg.Path, cfg.FileMode, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cbor encoder: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSchema, bucketCollections, bucketLocator, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db, enc: enc}, nil
}

// Name implements Collections.
func (b *Bolt) Name() string { return "bolt" }

// Paginates implements Collections.
func (b *Bolt) Paginates() bool { return true }

// Close closes the database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// LoadType implements Collections.
func (b *Bolt) LoadType(_ context.Context, name string) (*ir.ElementType, bool, error) {
	var t *ir.ElementType
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSchema).Get([]byte(name))
		if data == nil {
			return nil
		}
		t = &ir.ElementType{}
		if err := cbor.Unmarshal(data, t); err != nil {
			return ir.NewCorruptionError("element type %s is unreadable: %v", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return t, t != nil, nil
}

// SaveType implements Collections.
func (b *Bolt) SaveType(_ context.Context, t *ir.ElementType) error {
	data, err := b.enc.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode element type %s: %w", t.Name, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSchema).Put([]byte(t.Name), data)
	})
}

// TypeNames implements Collections.
func (b *Bolt) TypeNames(_ context.Context) ([]string, error) {
	var names []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSchema).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// Get implements Collections.
func (b *Bolt) Get(_ context.Context, id string) (*Document, bool, error) {
	var doc *Document
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		doc, err = getDocument(tx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return doc, doc != nil, nil
}

func getDocument(tx *bolt.Tx, id string) (*Document, error) {
	typeName := tx.Bucket(bucketLocator).Get([]byte(id))
	if typeName == nil {
		return nil, nil
	}
	col := tx.Bucket(bucketCollections).Bucket(typeName)
	if col == nil {
		return nil, ir.NewCorruptionError("collection %s of element %s is missing", typeName, id)
	}
	data := col.Get([]byte(id))
	if data == nil {
		return nil, ir.NewCorruptionError("element %s is missing from collection %s", id, typeName)
	}
	return decodeDocument(data)
}

func decodeDocument(data []byte) (*Document, error) {
	doc := &Document{}
	if err := cbor.Unmarshal(data, doc); err != nil {
		return nil, ir.NewCorruptionError("document is unreadable: %v", err)
	}
	return doc, nil
}

// Scan implements Collections. It does not filter; every document of the
// collection is visited.
func (b *Bolt) Scan(ctx context.Context, collection string, _ querydoc.Criteria, visit func(*Document) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		col := tx.Bucket(bucketCollections).Bucket([]byte(collection))
		if col == nil {
			return nil
		}
		return col.ForEach(func(_, data []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := decodeDocument(data)
			if err != nil {
				return err
			}
			return visit(doc)
		})
	})
}

// NextRevision implements Collections.
func (b *Bolt) NextRevision(_ context.Context) (int64, error) {
	var rev uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		var err error
		rev, err = tx.Bucket(bucketHistory).NextSequence()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("allocate revision: %w", err)
	}
	return int64(rev), nil
}

// Commit implements Collections.
func (b *Bolt) Commit(_ context.Context, doc *Document, create bool, expected int64, mod ir.Modification) error {
	data, err := b.enc.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	hist, err := b.enc.Marshal(historyRecord{
		Revision:  mod.Revision,
		ElementID: mod.ElementID,
		Timestamp: mod.Timestamp.UnixMilli(),
		User:      mod.User,
		Comment:   mod.Comment,
	})
	if err != nil {
		return fmt.Errorf("encode modification %d: %w", mod.Revision, err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		stored, err := getDocument(tx, doc.ID)
		if err != nil {
			return err
		}
		switch {
		case create && stored != nil:
			return ir.NewConflictError(doc.ID, 0, stored.Version)
		case !create && stored == nil:
			return ir.NewNotFoundError(doc.ID)
		case !create && stored.Version != expected:
			return ir.NewConflictError(doc.ID, expected, stored.Version)
		}

		col, err := tx.Bucket(bucketCollections).CreateBucketIfNotExists([]byte(doc.Type))
		if err != nil {
			return fmt.Errorf("create collection %s: %w", doc.Type, err)
		}
		if err := col.Put([]byte(doc.ID), data); err != nil {
			return fmt.Errorf("put document %s: %w", doc.ID, err)
		}
		if err := tx.Bucket(bucketLocator).Put([]byte(doc.ID), []byte(doc.Type)); err != nil {
			return fmt.Errorf("put locator %s: %w", doc.ID, err)
		}
		h, err := tx.Bucket(bucketHistory).CreateBucketIfNotExists([]byte(doc.ID))
		if err != nil {
			return fmt.Errorf("create history %s: %w", doc.ID, err)
		}
		return h.Put(revisionKey(mod.Revision), hist)
	})
}

// History implements Collections.
func (b *Bolt) History(_ context.Context, id string) ([]ir.Modification, error) {
	var out []ir.Modification
	err := b.db.View(func(tx *bolt.Tx) error {
		h := tx.Bucket(bucketHistory).Bucket([]byte(id))
		if h == nil {
			return nil
		}
		return h.ForEach(func(_, data []byte) error {
			var rec historyRecord
			if err := cbor.Unmarshal(data, &rec); err != nil {
				return ir.NewCorruptionError("modification of %s is unreadable: %v", id, err)
			}
			out = append(out, ir.Modification{
				Revision:  rec.Revision,
				ElementID: rec.ElementID,
				Timestamp: time.UnixMilli(rec.Timestamp).UTC(),
				User:      rec.User,
				Comment:   rec.Comment,
			})
			return nil
		})
	})
	return out, err
}

func revisionKey(rev int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(rev))
	return key
}
