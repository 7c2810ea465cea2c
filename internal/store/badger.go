// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Badger is an embedded Store. Keys:
//   - user:<uaid>                          user record (JSON)
//   - chan:<uaid>:<chid>                   endpoint key
//   - msg:<uaid>:<month>:<chid>:<version>  notification (JSON)
type Badger struct {
	db *badger.DB
}

// OpenBadger opens the database in dir. An empty dir keeps it in memory.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

func badgerUserKey(uaid uuid.UUID) []byte { return []byte("user:" + uaid.String()) }
func badgerChanPrefix(uaid uuid.UUID) []byte {
	return []byte("chan:" + uaid.String() + ":")
}
func badgerMsgPrefix(uaid uuid.UUID, month string) []byte {
	if month == "" {
		return []byte("msg:" + uaid.String() + ":")
	}
	return []byte("msg:" + uaid.String() + ":" + month + ":")
}

func (b *Badger) GetUser(_ context.Context, uaid uuid.UUID) (User, error) {
	var u User
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerUserKey(uaid))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &u)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (b *Badger) PutUser(_ context.Context, u User) error {
	buf, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerUserKey(u.UAID), buf)
	})
}

func (b *Badger) DropUser(_ context.Context, uaid uuid.UUID) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(badgerUserKey(uaid)); err != nil {
			return err
		}
		for _, prefix := range [][]byte{badgerChanPrefix(uaid), badgerMsgPrefix(uaid, "")} {
			keys, err := collectKeys(txn, prefix)
			if err != nil {
				return err
			}
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func collectKeys(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

func (b *Badger) AddChannel(_ context.Context, uaid, channelID uuid.UUID, key string) error {
	k := append(badgerChanPrefix(uaid), channelID.String()...)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(key))
	})
}

func (b *Badger) RemoveChannel(_ context.Context, uaid, channelID uuid.UUID) (bool, error) {
	k := append(badgerChanPrefix(uaid), channelID.String()...)
	existed := false
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(k)
	})
	return existed, err
}

func (b *Badger) ChannelKey(_ context.Context, uaid, channelID uuid.UUID) (string, error) {
	k := append(badgerChanPrefix(uaid), channelID.String()...)
	var key string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		key = string(val)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	return key, err
}

func (b *Badger) Channels(_ context.Context, uaid uuid.UUID) ([]uuid.UUID, error) {
	prefix := badgerChanPrefix(uaid)
	var out []uuid.UUID
	err := b.db.View(func(txn *badger.Txn) error {
		keys, err := collectKeys(txn, prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			id, err := uuid.ParseBytes(k[len(prefix):])
			if err != nil {
				return fmt.Errorf("channel key %q: %w", k, err)
			}
			out = append(out, id)
		}
		return nil
	})
	return out, err
}

func (b *Badger) SaveMessage(_ context.Context, uaid uuid.UUID, month string, n protocol.Notification) error {
	buf, err := json.Marshal(n)
	if err != nil {
		return err
	}
	k := append(badgerMsgPrefix(uaid, month), messageID(n)...)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, buf)
	})
}

func (b *Badger) DeleteMessage(_ context.Context, uaid uuid.UUID, month string, channelID uuid.UUID, version string) error {
	k := append(badgerMsgPrefix(uaid, month), messageKey(channelID, version)...)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

func (b *Badger) FetchMessages(_ context.Context, uaid uuid.UUID, month string, includeTopic bool, since *int64, limit int) ([]protocol.Notification, error) {
	prefix := badgerMsgPrefix(uaid, month)
	var msgs []protocol.Notification
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			var n protocol.Notification
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return err
			}
			msgs = append(msgs, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return selectMessages(msgs, includeTopic, since, limit), nil
}

func (b *Badger) Ping(context.Context) error {
	if b.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

func (b *Badger) Close() error { return b.db.Close() }
