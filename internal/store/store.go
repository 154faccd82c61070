package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dvloznov/momo-sms-api/internal/logger"
	"github.com/dvloznov/momo-sms-api/internal/sms"
)

var (
	// ErrMalformedSource is returned when the SMS export cannot be decoded.
	ErrMalformedSource = errors.New("malformed sms source")
	// ErrAlreadyLoaded is returned when Load is called on a loaded store.
	ErrAlreadyLoaded = errors.New("store already loaded")
)

// State is the lifecycle stage of a Store.
type State int

const (
	StateUninitialized State = iota
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	default:
		return "uninitialized"
	}
}

// Transaction is one mobile-money SMS with the fields derived from its body.
type Transaction struct {
	ID                int           `json:"id"`
	TxID              *string       `json:"txid"`
	Category          *sms.Category `json:"category"`
	Amount            *int64        `json:"amount"`
	CounterpartyName  *string       `json:"counterparty_name"`
	CounterpartyPhone *string       `json:"counterparty_phone"`
	Fee               *int64        `json:"fee"`
	NewBalance        *int64        `json:"new_balance"`
	Date              *string       `json:"date"`
	Body              string        `json:"body"`
}

// apply replaces the body and every body-derived field.
func (t *Transaction) apply(body string) {
	f := sms.ParseBody(body)
	t.Body = body
	t.TxID = f.TxID
	t.Category = f.Category
	t.Amount = f.Amount
	t.Fee = f.Fee
	t.NewBalance = f.NewBalance
	t.CounterpartyName = f.CounterpartyName
	t.CounterpartyPhone = f.CounterpartyPhone
}

// Store keeps transactions in memory, ordered by insertion and indexed by id.
// It is safe for concurrent use; every operation runs under a single lock so
// the order slice and the index never disagree.
type Store struct {
	mu     sync.RWMutex
	order  []int
	byID   map[int]*Transaction
	nextID int
	state  State
	now    func() time.Time
}

// New creates an empty store. now supplies the creation time for records
// added through Create; it defaults to time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		byID:   make(map[int]*Transaction),
		nextID: 1,
		now:    now,
	}
}

// Load decodes an SMS export and inserts one transaction per <sms> entry,
// numbering them from 1 in document order. It can only be called once and
// replaces anything created before it.
func (s *Store) Load(ctx context.Context, r io.Reader) error {
	log := logger.FromContext(ctx)

	backup, err := sms.Decode(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateLoaded {
		return ErrAlreadyLoaded
	}

	s.order = make([]int, 0, len(backup.Messages))
	s.byID = make(map[int]*Transaction, len(backup.Messages))

	for i, msg := range backup.Messages {
		tx := &Transaction{ID: i + 1, Date: msg.ResolveDate()}
		tx.apply(msg.Body)
		s.insertLocked(tx)
	}

	s.nextID = len(backup.Messages) + 1
	s.state = StateLoaded

	log.Debug().Int("count", len(s.order)).Msg("Loaded transactions")
	return nil
}

// Fetcher retrieves the raw bytes of an SMS export from a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Open fetches the export at location and returns a loaded store.
func Open(ctx context.Context, f Fetcher, location string, now func() time.Time) (*Store, error) {
	data, err := f.Fetch(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("fetch sms source %q: %w", location, err)
	}

	s := New(now)
	if err := s.Load(ctx, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("load sms source %q: %w", location, err)
	}
	return s, nil
}

// State reports whether the store has been loaded.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// List returns a copy of every transaction in insertion order.
func (s *Store) List() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Transaction, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, *s.byID[id])
	}
	return result
}

// Get returns the transaction with the given id.
func (s *Store) Get(id int) (Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return Transaction{}, false
	}
	return *tx, true
}

// Create appends a transaction parsed from body. Ids come from a counter
// that never goes backwards, so a deleted id is never handed out again.
func (s *Store) Create(body string) Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := sms.FormatDate(s.now())
	tx := &Transaction{ID: s.nextID, Date: &date}
	tx.apply(body)

	s.nextID++
	s.insertLocked(tx)
	return *tx
}

// Update replaces the body of a transaction and re-derives all of its fields.
// A nil body leaves the transaction untouched. It reports false when id is unknown.
func (s *Store) Update(id int, body *string) (Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return Transaction{}, false
	}
	if body != nil {
		tx.apply(*body)
	}
	return *tx, true
}

// Delete removes a transaction. It reports false when id is unknown.
func (s *Store) Delete(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)

	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) insertLocked(tx *Transaction) {
	s.order = append(s.order, tx.ID)
	s.byID[tx.ID] = tx
}
