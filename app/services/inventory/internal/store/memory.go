package store

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"Holdfast/app/services/inventory/internal/domain"
)

var (
	_ domain.StockStore       = (*MemoryStockStore)(nil)
	_ domain.ReservationStore = (*MemoryReservationStore)(nil)
	_ domain.CheckoutStore    = (*MemoryCheckoutStore)(nil)
)

// MemoryStockStore keeps inventory records in process. The mutex guards map
// access only; no caller holds it across another call.
type MemoryStockStore struct {
	mu      sync.Mutex
	records map[string]domain.InventoryRecord
}

func NewMemoryStockStore() *MemoryStockStore {
	return &MemoryStockStore{records: make(map[string]domain.InventoryRecord)}
}

func (s *MemoryStockStore) Get(_ context.Context, subSku string) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[subSku]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &rec, nil
}

func (s *MemoryStockStore) GetMany(_ context.Context, subSkus []string) (map[string]*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*domain.InventoryRecord, len(subSkus))
	for _, sku := range subSkus {
		if rec, ok := s.records[sku]; ok {
			out[sku] = &rec
		}
	}
	return out, nil
}

func (s *MemoryStockStore) Create(_ context.Context, rec *domain.InventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.SubSku]; ok {
		return domain.ErrProductExists
	}
	s.records[rec.SubSku] = *rec
	return nil
}

func (s *MemoryStockStore) CompareAndSwap(_ context.Context, subSku string, version, stock int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[subSku]
	if !ok {
		return false, domain.ErrProductNotFound
	}
	if rec.Version != version || stock < 0 {
		return false, nil
	}
	rec.AvailableStock = stock
	rec.Version++
	rec.UpdatedAt = now
	s.records[subSku] = rec
	return true, nil
}

// MemoryReservationStore keeps reservations in process, with a min-heap on
// expiresAt standing in for the database index.
type MemoryReservationStore struct {
	mu         sync.Mutex
	byId       map[int64]*domain.Reservation
	live       map[domain.ReservationKey]int64
	byCheckout map[string][]int64
	expiry     expiryHeap
}

func NewMemoryReservationStore() *MemoryReservationStore {
	return &MemoryReservationStore{
		byId:       make(map[int64]*domain.Reservation),
		live:       make(map[domain.ReservationKey]int64),
		byCheckout: make(map[string][]int64),
	}
}

func (s *MemoryReservationStore) Insert(_ context.Context, r *domain.Reservation) error {
	if r == nil || r.Id == 0 || r.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.Key()
	if id, ok := s.live[key]; ok && s.byId[id].State.IsLive() {
		return domain.ErrDuplicateReservation
	}
	cp := *r
	s.byId[cp.Id] = &cp
	if cp.State.IsLive() {
		s.live[key] = cp.Id
	}
	s.byCheckout[cp.CheckoutId] = append(s.byCheckout[cp.CheckoutId], cp.Id)
	if cp.State == domain.ReservationActive {
		heap.Push(&s.expiry, expiryEntry{id: cp.Id, expiresAt: cp.ExpiresAt})
	}
	return nil
}

func (s *MemoryReservationStore) FindById(_ context.Context, id int64) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byId[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryReservationStore) FindLive(_ context.Context, key domain.ReservationKey) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.live[key]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	cp := *s.byId[id]
	return &cp, nil
}

func (s *MemoryReservationStore) UpdateState(_ context.Context, id int64, from, to domain.ReservationState, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byId[id]
	if !ok || r.State != from {
		return false, nil
	}
	r.State = to
	r.UpdatedAt = now
	if !to.IsLive() {
		key := r.Key()
		if s.live[key] == id {
			delete(s.live, key)
		}
	}
	return true, nil
}

func (s *MemoryReservationStore) DeleteActive(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byId[id]
	if !ok || r.State != domain.ReservationActive {
		return false, nil
	}
	key := r.Key()
	if s.live[key] == id {
		delete(s.live, key)
	}
	ids := s.byCheckout[r.CheckoutId]
	for i, v := range ids {
		if v == id {
			s.byCheckout[r.CheckoutId] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byCheckout[r.CheckoutId]) == 0 {
		delete(s.byCheckout, r.CheckoutId)
	}
	delete(s.byId, id)
	return true, nil
}

func (s *MemoryReservationStore) FindActiveByCheckout(_ context.Context, checkoutId string) ([]*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Reservation
	for _, id := range s.byCheckout[checkoutId] {
		if r := s.byId[id]; r != nil && r.State == domain.ReservationActive {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryReservationStore) FindExpired(_ context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		out  []*domain.Reservation
		keep []expiryEntry
	)
	for s.expiry.Len() > 0 && (limit <= 0 || len(out) < limit) {
		top := s.expiry[0]
		if !top.expiresAt.Before(now) {
			break
		}
		heap.Pop(&s.expiry)
		r, ok := s.byId[top.id]
		if !ok || r.State != domain.ReservationActive {
			// resolved or deleted, drop from the index for good
			continue
		}
		keep = append(keep, top)
		cp := *r
		out = append(out, &cp)
	}
	for _, e := range keep {
		heap.Push(&s.expiry, e)
	}
	return out, nil
}

type expiryEntry struct {
	id        int64
	expiresAt time.Time
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int { return len(h) }
func (h expiryHeap) Less(i, j int) bool {
	if h[i].expiresAt.Equal(h[j].expiresAt) {
		return h[i].id < h[j].id
	}
	return h[i].expiresAt.Before(h[j].expiresAt)
}
func (h expiryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)   { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// MemoryCheckoutStore keeps checkouts in process.
type MemoryCheckoutStore struct {
	mu        sync.Mutex
	checkouts map[string]*domain.Checkout
}

func NewMemoryCheckoutStore() *MemoryCheckoutStore {
	return &MemoryCheckoutStore{checkouts: make(map[string]*domain.Checkout)}
}

func (s *MemoryCheckoutStore) Insert(_ context.Context, c *domain.Checkout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checkouts[c.CheckoutId]; ok {
		return domain.ErrCheckoutExists
	}
	s.checkouts[c.CheckoutId] = c.Clone()
	return nil
}

func (s *MemoryCheckoutStore) Find(_ context.Context, checkoutId string) (*domain.Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkouts[checkoutId]
	if !ok {
		return nil, domain.ErrCheckoutNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryCheckoutStore) Update(_ context.Context, c *domain.Checkout, from domain.CheckoutStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.checkouts[c.CheckoutId]
	if !ok {
		return false, domain.ErrCheckoutNotFound
	}
	if cur.Status != from {
		return false, nil
	}
	s.checkouts[c.CheckoutId] = c.Clone()
	return true, nil
}

func (s *MemoryCheckoutStore) FindExpired(_ context.Context, now time.Time, limit int) ([]*domain.Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Checkout
	for _, c := range s.checkouts {
		if c.Status == domain.CheckoutReserved && c.ExpiresAt.Before(now) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
