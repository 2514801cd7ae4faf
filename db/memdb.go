package db

import (
	"context"
	"sync"

	"github.com/kaanmetep/deepintodev/models"
)

// Straw-man in-memory database (for testing!). Call counters let tests
// assert that a handler never touched the store.
type MemStore struct {
	mu          sync.Mutex
	subscribers map[string]models.Subscriber
	suppressed  map[string]string
	ExistsCalls int
	InsertCalls int
}

func InitMemStore() *MemStore {
	return &MemStore{
		subscribers: make(map[string]models.Subscriber),
		suppressed:  make(map[string]string),
	}
}

func (db *MemStore) Exists(ctx context.Context, email string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.ExistsCalls++
	_, ok := db.subscribers[email]
	return ok, nil
}

func (db *MemStore) Insert(ctx context.Context, email string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.InsertCalls++
	if _, ok := db.subscribers[email]; ok {
		return ErrAlreadySubscribed
	}
	db.subscribers[email] = models.Subscriber{Email: email, Verified: true}
	return nil
}

func (db *MemStore) PutSuppressedEmail(ctx context.Context, email string, reason string, timestamp string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.suppressed[email] = reason
	return nil
}

func (db *MemStore) IsSuppressedEmail(ctx context.Context, email string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.suppressed[email]
	return ok, nil
}

// Subscribers returns a snapshot of everything persisted so far.
func (db *MemStore) Subscribers() []models.Subscriber {
	db.mu.Lock()
	defer db.mu.Unlock()
	subs := make([]models.Subscriber, 0, len(db.subscribers))
	for _, sub := range db.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// ClearTables resets all state. ** Should only be used during testing **
func (db *MemStore) ClearTables() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.subscribers = make(map[string]models.Subscriber)
	db.suppressed = make(map[string]string)
	db.ExistsCalls = 0
	db.InsertCalls = 0
	return nil
}
