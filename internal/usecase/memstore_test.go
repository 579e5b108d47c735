package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"backoffice/internal/domain/model"
	repo "backoffice/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// テスト用のインメモリストア。
// WithinTxは状態のコピーに対して実行し、成功時だけ書き戻す（rollbackの再現）。
type memState struct {
	items       map[int64]model.InventoryItem
	deleted     map[int64]bool
	entries     []model.LedgerEntry
	audits      []model.AuditLog
	nextItemID  int64
	nextEntryID int64
}

func (s memState) clone() memState {
	c := memState{
		items:       make(map[int64]model.InventoryItem, len(s.items)),
		deleted:     make(map[int64]bool, len(s.deleted)),
		entries:     append([]model.LedgerEntry(nil), s.entries...),
		audits:      append([]model.AuditLog(nil), s.audits...),
		nextItemID:  s.nextItemID,
		nextEntryID: s.nextEntryID,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.deleted {
		c.deleted[k] = v
	}
	return c
}

type memStore struct {
	mu sync.Mutex
	st memState

	// Ledger().Createを失敗させる（rollback確認用）
	ledgerCreateErr error
}

func newMemStore() *memStore {
	return &memStore{st: memState{
		items:   map[int64]model.InventoryItem{},
		deleted: map[int64]bool{},
	}}
}

// 期首在庫をそのまま台帳つきで入れる
func (s *memStore) seed(sku, name string, qty int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.nextItemID++
	id := s.st.nextItemID
	s.st.items[id] = model.InventoryItem{ID: id, SKU: sku, Name: name, Quantity: qty, ValuePerUnit: decimal.Zero}
	if qty != 0 {
		s.st.nextEntryID++
		s.st.entries = append(s.st.entries, model.LedgerEntry{
			ID:    s.st.nextEntryID,
			Type:  model.LedgerEntryAdjustment,
			Notes: "seed",
			Lines: []model.LedgerLine{{ItemID: id, NameSnapshot: name, SKUSnapshot: sku, Quantity: qty, Delta: qty}},
		})
	}
	return id
}

func (s *memStore) quantity(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.items[id].Quantity
}

func (s *memStore) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.entries)
}

func (s *memStore) auditLogs() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditLog(nil), s.st.audits...)
}

func (s *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&memRepos{st: &work, store: s}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Tx外の読み取り用（コミット済みの状態を見る）
func (s *memStore) Items() repo.InventoryRepository {
	return &memRepos{st: &s.st, store: s, guarded: true}
}

func (s *memStore) Ledger() repo.LedgerRepository {
	return &memLedger{&memRepos{st: &s.st, store: s, guarded: true}}
}

func (s *memStore) AuditLogs() repo.AuditLogRepository {
	return &memAudit{&memRepos{st: &s.st, store: s, guarded: true}}
}

type memRepos struct {
	st      *memState
	store   *memStore
	guarded bool
}

func (r *memRepos) lock() func() {
	if !r.guarded {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *memRepos) Items() repo.InventoryRepository    { return r }
func (r *memRepos) Ledger() repo.LedgerRepository      { return &memLedger{r} }
func (r *memRepos) AuditLogs() repo.AuditLogRepository { return &memAudit{r} }

// --- InventoryRepository ---

func (r *memRepos) live(id int64) (model.InventoryItem, bool) {
	it, ok := r.st.items[id]
	if !ok || r.st.deleted[id] {
		return model.InventoryItem{}, false
	}
	return it, true
}

func (r *memRepos) FindByID(_ context.Context, id int64) (model.InventoryItem, error) {
	defer r.lock()()
	it, ok := r.live(id)
	if !ok {
		return model.InventoryItem{}, repo.ErrNotFound
	}
	return it, nil
}

func (r *memRepos) List(_ context.Context, q repo.ItemListQuery) ([]model.InventoryItem, int64, error) {
	defer r.lock()()
	var out []model.InventoryItem
	for id := range r.st.items {
		it, ok := r.live(id)
		if !ok {
			continue
		}
		if q.Q != "" && !strings.Contains(strings.ToLower(it.Name+" "+it.SKU), strings.ToLower(q.Q)) {
			continue
		}
		if q.Category != "" && it.Category != q.Category {
			continue
		}
		if q.LowStock && !it.IsLowStock() {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	start := (q.Page - 1) * q.Limit
	if start > len(out) {
		start = len(out)
	}
	end := start + q.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r *memRepos) Create(_ context.Context, item model.InventoryItem) (model.InventoryItem, error) {
	defer r.lock()()
	for id, it := range r.st.items {
		if !r.st.deleted[id] && it.SKU == item.SKU {
			return model.InventoryItem{}, repo.ErrDuplicateKey
		}
	}
	r.st.nextItemID++
	item.ID = r.st.nextItemID
	item.Quantity = 0
	r.st.items[item.ID] = item
	return item, nil
}

func (r *memRepos) UpdateMaster(_ context.Context, item model.InventoryItem) error {
	defer r.lock()()
	cur, ok := r.live(item.ID)
	if !ok {
		return repo.ErrNotFound
	}
	item.Quantity = cur.Quantity
	r.st.items[item.ID] = item
	return nil
}

func (r *memRepos) SoftDelete(_ context.Context, id int64) error {
	defer r.lock()()
	if _, ok := r.live(id); !ok {
		return repo.ErrNotFound
	}
	r.st.deleted[id] = true
	return nil
}

func (r *memRepos) LockByIDs(_ context.Context, ids []int64) (map[int64]model.InventoryItem, error) {
	defer r.lock()()
	out := make(map[int64]model.InventoryItem, len(ids))
	for _, id := range ids {
		if it, ok := r.live(id); ok {
			out[id] = it
		}
	}
	return out, nil
}

func (r *memRepos) ApplyDelta(_ context.Context, itemID int64, delta int64) (bool, error) {
	defer r.lock()()
	it, ok := r.live(itemID)
	if !ok || it.Quantity+delta < 0 {
		return false, nil
	}
	it.Quantity += delta
	r.st.items[itemID] = it
	return true, nil
}

func (r *memRepos) Valuation(_ context.Context) ([]repo.CategoryValuation, error) {
	defer r.lock()()
	byCat := map[string]*repo.CategoryValuation{}
	for id := range r.st.items {
		it, ok := r.live(id)
		if !ok {
			continue
		}
		v, ok := byCat[it.Category]
		if !ok {
			v = &repo.CategoryValuation{Category: it.Category, Value: decimal.Zero}
			byCat[it.Category] = v
		}
		v.Items++
		v.Quantity += it.Quantity
		v.Value = v.Value.Add(it.ValuePerUnit.Mul(decimal.NewFromInt(it.Quantity)))
	}
	out := make([]repo.CategoryValuation, 0, len(byCat))
	for _, v := range byCat {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// --- LedgerRepository ---

type memLedger struct{ *memRepos }

func (l *memLedger) Create(_ context.Context, entry *model.LedgerEntry) error {
	defer l.lock()()
	if l.store.ledgerCreateErr != nil {
		return l.store.ledgerCreateErr
	}
	if entry.IdempotencyKey != nil {
		for _, e := range l.st.entries {
			if e.IdempotencyKey != nil && e.ActorID == entry.ActorID && *e.IdempotencyKey == *entry.IdempotencyKey {
				return repo.ErrDuplicateKey
			}
		}
	}
	l.st.nextEntryID++
	entry.ID = l.st.nextEntryID
	for i := range entry.Lines {
		entry.Lines[i].EntryID = entry.ID
		entry.Lines[i].Position = i + 1
	}
	l.st.entries = append(l.st.entries, *entry)
	return nil
}

func (l *memLedger) FindByID(_ context.Context, id int64) (model.LedgerEntry, error) {
	defer l.lock()()
	for _, e := range l.st.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return model.LedgerEntry{}, repo.ErrNotFound
}

func (l *memLedger) FindByIdempotencyKey(_ context.Context, actorID, key string) (model.LedgerEntry, bool, error) {
	defer l.lock()()
	for _, e := range l.st.entries {
		if e.IdempotencyKey != nil && e.ActorID == actorID && *e.IdempotencyKey == key {
			return e, true, nil
		}
	}
	return model.LedgerEntry{}, false, nil
}

func (l *memLedger) List(_ context.Context, q repo.LedgerListQuery) ([]model.LedgerEntry, int64, error) {
	defer l.lock()()
	var out []model.LedgerEntry
	for i := len(l.st.entries) - 1; i >= 0; i-- {
		e := l.st.entries[i]
		if q.Type != nil && e.Type != *q.Type {
			continue
		}
		if q.ActorID != "" && e.ActorID != q.ActorID {
			continue
		}
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (l *memLedger) SumDeltaByItem(_ context.Context, itemID int64) (int64, error) {
	defer l.lock()()
	var sum int64
	for _, e := range l.st.entries {
		for _, line := range e.Lines {
			if line.ItemID == itemID {
				sum += line.Delta
			}
		}
	}
	return sum, nil
}

// --- AuditLogRepository ---

type memAudit struct{ *memRepos }

func (a *memAudit) Create(_ context.Context, log model.AuditLog) error {
	defer a.lock()()
	a.st.audits = append(a.st.audits, log)
	return nil
}

func (a *memAudit) List(_ context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	defer a.lock()()
	var out []model.AuditLog
	for i := len(a.st.audits) - 1; i >= 0; i-- {
		l := a.st.audits[i]
		if f.ResourceID != nil && l.ResourceID != *f.ResourceID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// --- sequence ---

type memCounters struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func newMemCounters() *memCounters {
	return &memCounters{values: map[string]int64{}}
}

func (c *memCounters) Next(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.values[key]++
	return c.values[key], nil
}

func (c *memCounters) Current(_ context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, false, c.err
	}
	v, ok := c.values[key]
	return v, ok, nil
}

type memIssued struct {
	mu    sync.Mutex
	codes map[string]model.IssuedNumber
}

func newMemIssued() *memIssued {
	return &memIssued{codes: map[string]model.IssuedNumber{}}
}

func (m *memIssued) Create(_ context.Context, n model.IssuedNumber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[n.Code]; ok {
		return repo.ErrDuplicateKey
	}
	m.codes[n.Code] = n
	return nil
}

// --- locker ---

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	args := m.Called(ctx, key, ttl)
	unlock, _ := args.Get(0).(func())
	return unlock, args.Error(1)
}
