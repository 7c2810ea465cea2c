// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"sync"

	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/google/uuid"
)

type monthKey struct {
	uaid  uuid.UUID
	month string
}

// Memory is a process-local Store.
type Memory struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]User
	channels map[uuid.UUID]map[uuid.UUID]string
	messages map[monthKey]map[string]protocol.Notification
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[uuid.UUID]User),
		channels: make(map[uuid.UUID]map[uuid.UUID]string),
		messages: make(map[monthKey]map[string]protocol.Notification),
	}
}

func (m *Memory) GetUser(_ context.Context, uaid uuid.UUID) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[uaid]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) PutUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UAID] = u
	return nil
}

func (m *Memory) DropUser(_ context.Context, uaid uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, uaid)
	delete(m.channels, uaid)
	for k := range m.messages {
		if k.uaid == uaid {
			delete(m.messages, k)
		}
	}
	return nil
}

func (m *Memory) AddChannel(_ context.Context, uaid, channelID uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chans, ok := m.channels[uaid]
	if !ok {
		chans = make(map[uuid.UUID]string)
		m.channels[uaid] = chans
	}
	chans[channelID] = key
	return nil
}

func (m *Memory) RemoveChannel(_ context.Context, uaid, channelID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chans := m.channels[uaid]
	if _, ok := chans[channelID]; !ok {
		return false, nil
	}
	delete(chans, channelID)
	return true, nil
}

func (m *Memory) ChannelKey(_ context.Context, uaid, channelID uuid.UUID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.channels[uaid][channelID]
	if !ok {
		return "", ErrNotFound
	}
	return key, nil
}

func (m *Memory) Channels(_ context.Context, uaid uuid.UUID) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(m.channels[uaid]))
	for id := range m.channels[uaid] {
		out = append(out, id)
	}
	return out, nil
}

func (m *Memory) SaveMessage(_ context.Context, uaid uuid.UUID, month string, n protocol.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := monthKey{uaid: uaid, month: month}
	msgs, ok := m.messages[k]
	if !ok {
		msgs = make(map[string]protocol.Notification)
		m.messages[k] = msgs
	}
	msgs[messageID(n)] = n
	return nil
}

func (m *Memory) DeleteMessage(_ context.Context, uaid uuid.UUID, month string, channelID uuid.UUID, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages[monthKey{uaid: uaid, month: month}], messageKey(channelID, version))
	return nil
}

func (m *Memory) FetchMessages(_ context.Context, uaid uuid.UUID, month string, includeTopic bool, since *int64, limit int) ([]protocol.Notification, error) {
	m.mu.RLock()
	msgs := make([]protocol.Notification, 0, len(m.messages[monthKey{uaid: uaid, month: month}]))
	for _, n := range m.messages[monthKey{uaid: uaid, month: month}] {
		msgs = append(msgs, n)
	}
	m.mu.RUnlock()
	return selectMessages(msgs, includeTopic, since, limit), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
