// internal/storage/badger_store.go
package storage

import (
    "errors"
    "fmt"
    "strings"

    "github.com/dgraph-io/badger/v4"
)

var ErrNotFound = errors.New("entity not found")

// BadgerStore provides prefix-scoped raw JSON storage over a shared badger
// instance. Each aggregate (tasks, projects, queue entries) gets its own
// prefix on the same DB.
type BadgerStore struct {
    db     *badger.DB
    prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
    return &BadgerStore{
        db:     db,
        prefix: prefix,
    }
}

func (s *BadgerStore) makeKey(id string) []byte {
    return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
    return strings.TrimPrefix(string(key), fmt.Sprintf("%s:", s.prefix))
}

// Create stores a new record, failing if the id already exists.
func (s *BadgerStore) Create(id string, data []byte) error {
    if id == "" {
        return fmt.Errorf("entity ID cannot be empty")
    }

    key := s.makeKey(id)
    return s.db.Update(func(txn *badger.Txn) error {
        _, err := txn.Get(key)
        if err == nil {
            return fmt.Errorf("entity already exists: %s", id)
        } else if err != badger.ErrKeyNotFound {
            return err
        }

        return txn.Set(key, data)
    })
}

// Put stores a record unconditionally (upsert). Used for updates, reverts
// and re-keying, where the caller has already decided the write is valid.
func (s *BadgerStore) Put(id string, data []byte) error {
    if id == "" {
        return fmt.Errorf("entity ID cannot be empty")
    }

    key := s.makeKey(id)
    return s.db.Update(func(txn *badger.Txn) error {
        return txn.Set(key, data)
    })
}

func (s *BadgerStore) Get(id string) ([]byte, error) {
    key := s.makeKey(id)

    var data []byte
    err := s.db.View(func(txn *badger.Txn) error {
        item, err := txn.Get(key)
        if err != nil {
            return err
        }

        data, err = item.ValueCopy(nil)
        return err
    })

    if err == badger.ErrKeyNotFound {
        return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
    }
    return data, err
}

func (s *BadgerStore) Exists(id string) (bool, error) {
    key := s.makeKey(id)

    err := s.db.View(func(txn *badger.Txn) error {
        _, err := txn.Get(key)
        return err
    })

    if err == badger.ErrKeyNotFound {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}

func (s *BadgerStore) Delete(id string) error {
    key := s.makeKey(id)

    return s.db.Update(func(txn *badger.Txn) error {
        _, err := txn.Get(key)
        if err == badger.ErrKeyNotFound {
            return fmt.Errorf("%w: %s", ErrNotFound, id)
        } else if err != nil {
            return err
        }

        return txn.Delete(key)
    })
}

// List visits every record under the prefix in key order.
func (s *BadgerStore) List(fn func(id string, data []byte) error) error {
    err := s.db.View(func(txn *badger.Txn) error {
        opts := badger.DefaultIteratorOptions
        it := txn.NewIterator(opts)
        defer it.Close()

        prefix := []byte(s.prefix + ":")

        for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
            item := it.Item()
            id := s.stripPrefix(item.Key())
            err := item.Value(func(val []byte) error {
                return fn(id, val)
            })
            if err != nil {
                return err
            }
        }
        return nil
    })

    if err != nil {
        return fmt.Errorf("listing entities: %w", err)
    }
    return nil
}

// DeleteAll drops every record under the prefix.
func (s *BadgerStore) DeleteAll() error {
    return s.db.Update(func(txn *badger.Txn) error {
        opts := badger.DefaultIteratorOptions
        opts.PrefetchValues = false
        it := txn.NewIterator(opts)
        defer it.Close()

        prefix := []byte(s.prefix + ":")
        var keys [][]byte

        for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
            keys = append(keys, it.Item().KeyCopy(nil))
        }

        for _, key := range keys {
            if err := txn.Delete(key); err != nil {
                return err
            }
        }
        return nil
    })
}
