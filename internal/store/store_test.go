package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/momo-sms-api/internal/logger"
	"github.com/dvloznov/momo-sms-api/internal/sms"
	"github.com/rs/zerolog"
)

const sampleExport = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<smses count="3">
  <sms protocol="0" address="M-Money" date="1715351458724" type="1" body="You have received 2000 RWF from Jane Smith (*********013) on your mobile money account at 2024-05-10 16:30:51. Message from sender: . Your new balance:2000 RWF. Financial Transaction Id: 76662021700." readable_date="10 May 2024 4:30:58 PM" />
  <sms protocol="0" address="M-Money" date="not-a-date" type="1" body="TxId: 73214484437. Your payment of 1,000 RWF to Jane Smith 12845 has been completed at 2024-05-10 16:31:39. Your new balance: 1,000 RWF. Fee was 0 RWF." readable_date="10 May 2024 4:31:40 PM" />
  <sms protocol="0" address="M-Money" type="1" body="Bundle activated." />
</smses>`

var fixedNow = func() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testContext() context.Context {
	return logger.WithContext(context.Background(), zerolog.Nop())
}

func loadedStore(t *testing.T) *Store {
	t.Helper()
	s := New(fixedNow)
	if err := s.Load(testContext(), strings.NewReader(sampleExport)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	return f.data, f.err
}

func TestLoad(t *testing.T) {
	s := loadedStore(t)

	if s.State() != StateLoaded {
		t.Errorf("State() = %v, want loaded", s.State())
	}

	txs := s.List()
	if len(txs) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(txs))
	}
	for i, tx := range txs {
		if tx.ID != i+1 {
			t.Errorf("txs[%d].ID = %d, want %d", i, tx.ID, i+1)
		}
	}

	first := txs[0]
	if first.Category == nil || *first.Category != sms.CategoryIncoming {
		t.Errorf("first.Category = %v, want Incoming", first.Category)
	}
	if first.Amount == nil || *first.Amount != 2000 {
		t.Errorf("first.Amount = %v, want 2000", first.Amount)
	}
	if first.Date == nil || *first.Date != "2024-05-10T14:30:58Z" {
		t.Errorf("first.Date = %v, want 2024-05-10T14:30:58Z", first.Date)
	}

	second := txs[1]
	if second.TxID == nil || *second.TxID != "73214484437" {
		t.Errorf("second.TxID = %v", second.TxID)
	}
	if second.Category == nil || *second.Category != sms.CategoryPayment {
		t.Errorf("second.Category = %v, want Payment", second.Category)
	}
	if second.Fee == nil || *second.Fee != 0 {
		t.Errorf("second.Fee = %v, want 0", second.Fee)
	}
	if second.NewBalance == nil || *second.NewBalance != 1000 {
		t.Errorf("second.NewBalance = %v, want 1000", second.NewBalance)
	}
	if second.Date == nil || *second.Date != "10 May 2024 4:31:40 PM" {
		t.Errorf("second.Date = %v, want readable date fallback", second.Date)
	}

	third := txs[2]
	if third.Date != nil {
		t.Errorf("third.Date = %v, want nil", *third.Date)
	}
	if third.Category != nil || third.Amount != nil {
		t.Errorf("Expected no structured fields, got %+v", third)
	}
}

func TestLoad_Malformed(t *testing.T) {
	s := New(fixedNow)
	err := s.Load(testContext(), strings.NewReader("<smses><sms body='x'"))
	if !errors.Is(err, ErrMalformedSource) {
		t.Fatalf("Expected ErrMalformedSource, got %v", err)
	}
	if s.State() != StateUninitialized {
		t.Errorf("State() = %v, want uninitialized", s.State())
	}
}

func TestLoad_Twice(t *testing.T) {
	s := loadedStore(t)
	if err := s.Load(testContext(), strings.NewReader(sampleExport)); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("Expected ErrAlreadyLoaded, got %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(testContext(), &fakeFetcher{data: []byte(sampleExport)}, "sms.xml", fixedNow)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}

	fetchErr := errors.New("boom")
	if _, err := Open(testContext(), &fakeFetcher{err: fetchErr}, "sms.xml", fixedNow); !errors.Is(err, fetchErr) {
		t.Errorf("Expected fetch error, got %v", err)
	}

	if _, err := Open(testContext(), &fakeFetcher{data: []byte("not xml")}, "sms.xml", fixedNow); !errors.Is(err, ErrMalformedSource) {
		t.Errorf("Expected ErrMalformedSource, got %v", err)
	}
}

func TestGet(t *testing.T) {
	s := loadedStore(t)

	tx, ok := s.Get(2)
	if !ok {
		t.Fatal("Expected transaction 2 to exist")
	}
	if tx.ID != 2 {
		t.Errorf("ID = %d, want 2", tx.ID)
	}

	if _, ok := s.Get(99); ok {
		t.Error("Expected transaction 99 to be absent")
	}
}

func TestCreate(t *testing.T) {
	s := loadedStore(t)
	body := "You have received 2000 RWF from John. New balance: 15,000 RWF"

	tx := s.Create(body)
	if tx.ID != 4 {
		t.Errorf("ID = %d, want 4", tx.ID)
	}
	if tx.Date == nil || *tx.Date != "2024-06-01T12:00:00Z" {
		t.Errorf("Date = %v, want 2024-06-01T12:00:00Z", tx.Date)
	}

	want := sms.ParseBody(body)
	got, ok := s.Get(tx.ID)
	if !ok {
		t.Fatal("Expected created transaction to be retrievable")
	}
	if *got.Category != *want.Category || *got.Amount != *want.Amount || *got.NewBalance != *want.NewBalance {
		t.Errorf("Stored fields %+v differ from ParseBody %+v", got, want)
	}
	if got.Body != body {
		t.Errorf("Body = %q", got.Body)
	}
}

func TestCreate_EmptyStore(t *testing.T) {
	s := New(fixedNow)
	if tx := s.Create(""); tx.ID != 1 {
		t.Errorf("ID = %d, want 1", tx.ID)
	}
}

func TestCreate_IDsNotReused(t *testing.T) {
	s := loadedStore(t)

	created := s.Create("Payment of 500 RWF")
	if !s.Delete(created.ID) {
		t.Fatal("Delete failed")
	}

	next := s.Create("Payment of 600 RWF")
	if next.ID == created.ID {
		t.Errorf("ID %d was reused after deletion", next.ID)
	}
	if next.ID != created.ID+1 {
		t.Errorf("ID = %d, want %d", next.ID, created.ID+1)
	}
}

func TestUpdate(t *testing.T) {
	s := loadedStore(t)

	body := "Deposit of 30000 RWF. Your new balance: 45,000 RWF"
	tx, ok := s.Update(1, &body)
	if !ok {
		t.Fatal("Expected update to succeed")
	}
	if tx.Body != body {
		t.Errorf("Body = %q", tx.Body)
	}
	if tx.Category == nil || *tx.Category != sms.CategoryDeposit {
		t.Errorf("Category = %v, want Deposit", tx.Category)
	}
	if tx.Date == nil || *tx.Date != "2024-05-10T14:30:58Z" {
		t.Errorf("Date changed on update: %v", tx.Date)
	}

	again, _ := s.Update(1, &body)
	if *again.Amount != *tx.Amount || *again.NewBalance != *tx.NewBalance || *again.Category != *tx.Category {
		t.Errorf("Repeated update is not idempotent: %+v vs %+v", again, tx)
	}
}

func TestUpdate_EmptyBodyClearsFields(t *testing.T) {
	s := loadedStore(t)

	empty := ""
	tx, ok := s.Update(2, &empty)
	if !ok {
		t.Fatal("Expected update to succeed")
	}
	if tx.TxID != nil || tx.Category != nil || tx.Amount != nil || tx.Fee != nil || tx.NewBalance != nil {
		t.Errorf("Expected all structured fields cleared, got %+v", tx)
	}
}

func TestUpdate_NilBodyLeavesRecord(t *testing.T) {
	s := loadedStore(t)
	before, _ := s.Get(2)

	tx, ok := s.Update(2, nil)
	if !ok {
		t.Fatal("Expected update to succeed")
	}
	if tx.Body != before.Body || *tx.TxID != *before.TxID {
		t.Errorf("Record changed: %+v", tx)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s := loadedStore(t)
	body := "x"
	if _, ok := s.Update(42, &body); ok {
		t.Error("Expected update of unknown id to fail")
	}
}

func TestDelete(t *testing.T) {
	s := loadedStore(t)

	if !s.Delete(2) {
		t.Fatal("Expected delete to succeed")
	}
	if _, ok := s.Get(2); ok {
		t.Error("Expected deleted transaction to be absent")
	}
	if s.Delete(2) {
		t.Error("Expected second delete to fail")
	}

	txs := s.List()
	if len(txs) != 2 || txs[0].ID != 1 || txs[1].ID != 3 {
		t.Errorf("Unexpected order after delete: %+v", txs)
	}
}

func TestList_CreatesAndDeletes(t *testing.T) {
	s := New(fixedNow)

	var ids []int
	for i := 0; i < 10; i++ {
		ids = append(ids, s.Create(fmt.Sprintf("Payment of %d RWF", 100+i)).ID)
	}
	for _, id := range []int{ids[0], ids[4], ids[9]} {
		if !s.Delete(id) {
			t.Fatalf("Delete(%d) failed", id)
		}
	}

	txs := s.List()
	if len(txs) != 7 {
		t.Fatalf("Expected 7 transactions, got %d", len(txs))
	}

	seen := make(map[int]bool)
	prev := 0
	for _, tx := range txs {
		if seen[tx.ID] {
			t.Errorf("Duplicate id %d", tx.ID)
		}
		seen[tx.ID] = true
		if tx.ID <= prev {
			t.Errorf("List out of insertion order at id %d", tx.ID)
		}
		prev = tx.ID
	}
}

func TestList_ReturnsCopies(t *testing.T) {
	s := loadedStore(t)

	txs := s.List()
	txs[0].Body = "mutated"

	tx, _ := s.Get(1)
	if tx.Body == "mutated" {
		t.Error("Mutating List() result changed the store")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := loadedStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := s.Create(fmt.Sprintf("Payment of %d RWF", 1000+i))
			body := "Deposit of 500 RWF"
			s.Update(tx.ID, &body)
			s.List()
			if i%2 == 0 {
				s.Delete(tx.ID)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 13 {
		t.Errorf("Len() = %d, want 13", s.Len())
	}
	if len(s.List()) != s.Len() {
		t.Error("List and index disagree")
	}
}
