// Package storetest provides an in-memory Store for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diet-tracker/billsync/internal/model"
	"github.com/diet-tracker/billsync/internal/store"
)

// Fake is an in-memory store.Store. Zero value is ready to use. Error
// fields, when set, are returned by the corresponding method so tests can
// simulate infrastructure failures. Calls records method invocations in
// order.
type Fake struct {
	mu      sync.Mutex
	bills   map[string]*model.CanonicalBill
	history []model.ProcessHistoryEntry
	orphans []model.ProcessHistoryEntry

	ListErr    error
	GetErr     error
	UpsertErr  error
	HistoryErr error

	// UpsertErrOnce fails the next Upsert call only, then clears itself.
	UpsertErrOnce error

	Calls []string
}

var _ store.Store = (*Fake)(nil)

// Seed inserts bills directly, bypassing call recording.
func (f *Fake) Seed(bills ...*model.CanonicalBill) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bills == nil {
		f.bills = make(map[string]*model.CanonicalBill)
	}
	for _, b := range bills {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		cp := *b
		f.bills[b.ID] = &cp
	}
}

// SeedHistory inserts ledger entries directly, bypassing call recording.
func (f *Fake) SeedHistory(entries ...model.ProcessHistoryEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		f.history = append(f.history, e)
	}
}

// SeedOrphans sets the orphaned history entries returned by OrphanedHistory.
func (f *Fake) SeedOrphans(entries ...model.ProcessHistoryEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orphans = append(f.orphans, entries...)
}

// History returns all appended entries.
func (f *Fake) History() []model.ProcessHistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ProcessHistoryEntry, len(f.history))
	copy(out, f.history)
	return out
}

// MutatingCalls counts Upsert, DeleteDrafts, and AppendHistory invocations.
func (f *Fake) MutatingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		switch c {
		case "Upsert", "DeleteDrafts", "AppendHistory":
			n++
		}
	}
	return n
}

func (f *Fake) record(name string) {
	f.Calls = append(f.Calls, name)
}

func (f *Fake) GetByIdentity(ctx context.Context, id model.Identity) (*model.CanonicalBill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetByIdentity")
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	for _, b := range f.bills {
		if b.Identity() == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) GetBill(ctx context.Context, billID string) (*model.CanonicalBill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetBill")
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	if b, ok := f.bills[billID]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (f *Fake) Upsert(ctx context.Context, bill *model.CanonicalBill) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Upsert")
	if f.UpsertErrOnce != nil {
		err := f.UpsertErrOnce
		f.UpsertErrOnce = nil
		return "", err
	}
	if f.UpsertErr != nil {
		return "", f.UpsertErr
	}
	if f.bills == nil {
		f.bills = make(map[string]*model.CanonicalBill)
	}
	id := bill.Identity()
	for _, existing := range f.bills {
		if existing.Identity() == id {
			cp := *bill
			cp.ID = existing.ID
			f.bills[existing.ID] = &cp
			return existing.ID, nil
		}
	}
	cp := *bill
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	f.bills[cp.ID] = &cp
	return cp.ID, nil
}

func (f *Fake) ListAll(ctx context.Context, filter store.BillFilter) ([]model.CanonicalBill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListAll")
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []model.CanonicalBill
	for _, b := range f.bills {
		if filter.Session != 0 && b.DietSession != filter.Session {
			continue
		}
		if filter.Stage != "" && b.CurrentStage != filter.Stage {
			continue
		}
		if filter.Draft != nil && b.Draft != *filter.Draft {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) CountByStage(ctx context.Context) (map[model.Stage]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CountByStage")
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make(map[model.Stage]int)
	for _, b := range f.bills {
		out[b.CurrentStage]++
	}
	return out, nil
}

func (f *Fake) DeleteDrafts(ctx context.Context, olderThanDays int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteDrafts")
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	n := 0
	for id, b := range f.bills {
		if b.Draft && b.LastUpdated.Before(cutoff) {
			delete(f.bills, id)
			n++
		}
	}
	return n, nil
}

func (f *Fake) AppendHistory(ctx context.Context, entry *model.ProcessHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AppendHistory")
	if f.HistoryErr != nil {
		return f.HistoryErr
	}
	e := *entry
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	f.history = append(f.history, e)
	return nil
}

func (f *Fake) ListHistory(ctx context.Context, billID string) ([]model.ProcessHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListHistory")
	if f.HistoryErr != nil {
		return nil, f.HistoryErr
	}
	var out []model.ProcessHistoryEntry
	for _, e := range f.history {
		if e.BillID == billID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Fake) HistoryByAction(ctx context.Context, actionType string) ([]model.ProcessHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("HistoryByAction")
	if f.HistoryErr != nil {
		return nil, f.HistoryErr
	}
	var out []model.ProcessHistoryEntry
	for _, e := range f.history {
		if e.ActionType == actionType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Fake) OrphanedHistory(ctx context.Context) ([]model.ProcessHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("OrphanedHistory")
	if f.HistoryErr != nil {
		return nil, f.HistoryErr
	}
	return append([]model.ProcessHistoryEntry(nil), f.orphans...), nil
}

func (f *Fake) Migrate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Migrate")
	return nil
}

func (f *Fake) Close() error { return nil }
