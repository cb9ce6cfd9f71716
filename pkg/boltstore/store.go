// Package boltstore persists the game database in a bbolt file: objects,
// user-defined attribute definitions, and store metadata. Objects are
// written through on mutation.
package boltstore

import (
	"fmt"
	"strings"

	bbolt "go.etcd.io/bbolt"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// Store wraps a bbolt database and an in-memory cache.
type Store struct {
	bolt  *bbolt.DB
	cache *gamedb.Database
}

// Open opens or creates a bbolt database file and ensures all buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketObjects, bucketAttrDefs, bucketPlayers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{
		bolt:  db,
		cache: gamedb.NewDatabase(),
	}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// DB returns the in-memory database cache.
func (s *Store) DB() *gamedb.Database {
	return s.cache
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// PutObject persists a single object to bbolt (write-through).
func (s *Store) PutObject(obj *gamedb.Object) error {
	data, err := encodeObject(obj)
	if err != nil {
		return fmt.Errorf("boltstore: encode object #%d: %w", obj.DBRef, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketObjects).Put(refToKey(obj.DBRef), data); err != nil {
			return err
		}
		if obj.ObjType() == gamedb.TypePlayer {
			return tx.Bucket(bucketPlayers).Put([]byte(strings.ToLower(obj.Name)), refToKey(obj.DBRef))
		}
		return nil
	})
}

// PutObjects persists multiple objects in a single bbolt transaction.
func (s *Store) PutObjects(objs ...*gamedb.Object) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		for _, obj := range objs {
			if obj == nil {
				continue
			}
			data, err := encodeObject(obj)
			if err != nil {
				return fmt.Errorf("boltstore: encode object #%d: %w", obj.DBRef, err)
			}
			if err := b.Put(refToKey(obj.DBRef), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteObject removes an object from bbolt.
func (s *Store) DeleteObject(ref gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketObjects).Delete(refToKey(ref))
	})
}

// PutAttrDef persists a user attribute definition.
func (s *Store) PutAttrDef(def *gamedb.AttrDef) error {
	data, err := encodeAttrDef(def)
	if err != nil {
		return fmt.Errorf("boltstore: encode attrdef %d: %w", def.Number, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAttrDefs).Put(intToKey(def.Number), data)
	})
}

// PutMeta persists database metadata.
func (s *Store) PutMeta() error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		b.Put(keyVersion, intToKey(s.cache.Version))
		b.Put(keySize, intToKey(s.cache.Size))
		b.Put(keyNextAttr, intToKey(s.cache.NextAttr))
		return b.Put(keyRecordPlayers, intToKey(s.cache.RecordPlayers))
	})
}

// Load reads the whole database into the in-memory cache.
func (s *Store) Load() error {
	db := gamedb.NewDatabase()
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyVersion); v != nil {
			db.Version = keyToInt(v)
		}
		if v := meta.Get(keySize); v != nil {
			db.Size = keyToInt(v)
		}
		if v := meta.Get(keyNextAttr); v != nil {
			db.NextAttr = keyToInt(v)
		}
		if v := meta.Get(keyRecordPlayers); v != nil {
			db.RecordPlayers = keyToInt(v)
		}

		if err := tx.Bucket(bucketAttrDefs).ForEach(func(_, v []byte) error {
			def, err := decodeAttrDef(v)
			if err != nil {
				return err
			}
			db.AddAttrDef(def.Number, def.Name, def.Flags)
			return nil
		}); err != nil {
			return err
		}

		return tx.Bucket(bucketObjects).ForEach(func(_, v []byte) error {
			obj, err := decodeObject(v)
			if err != nil {
				return err
			}
			db.Objects[obj.DBRef] = obj
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("boltstore: load: %w", err)
	}
	if db.Size < len(db.Objects) {
		db.Size = len(db.Objects)
	}
	s.cache = db
	return nil
}

// Save flushes the entire in-memory cache to bbolt.
func (s *Store) Save() error {
	if err := s.PutMeta(); err != nil {
		return err
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAttrDefs)
		for _, def := range s.cache.AttrNames {
			data, err := encodeAttrDef(def)
			if err != nil {
				return err
			}
			if err := b.Put(intToKey(def.Number), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: save attrdefs: %w", err)
	}

	objs := make([]*gamedb.Object, 0, len(s.cache.Objects))
	for _, obj := range s.cache.Objects {
		objs = append(objs, obj)
	}
	return s.PutObjects(objs...)
}

// LookupPlayer resolves a player name to a dbref via the players bucket.
// Returns Nothing when unknown.
func (s *Store) LookupPlayer(name string) gamedb.DBRef {
	ref := gamedb.Nothing
	s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketPlayers).Get([]byte(strings.ToLower(name))); v != nil {
			ref = keyToRef(v)
		}
		return nil
	})
	return ref
}

