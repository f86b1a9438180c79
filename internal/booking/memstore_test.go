package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// memStore is an in-memory Store.  Transactions are serialised by txMu and
// rolled back with an undo log, which is enough to model row locks.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	nextID   uint64
	events   map[uint64]*model.Event
	waitlist map[uint64][]*model.WaitlistEntry
	bookings map[uint64]*model.Booking
	txns     map[uint64]*model.Transaction
	payments map[string]*model.Payment
	promos   map[string]*model.PromoCode
	tickets  map[uint64]*model.Ticket
}

func newMemStore() *memStore {
	return &memStore{
		events:   map[uint64]*model.Event{},
		waitlist: map[uint64][]*model.WaitlistEntry{},
		bookings: map[uint64]*model.Booking{},
		txns:     map[uint64]*model.Transaction{},
		payments: map[string]*model.Payment{},
		promos:   map[string]*model.PromoCode{},
		tickets:  map[uint64]*model.Ticket{},
	}
}

type memTxKey struct{}

type memTx struct {
	undo []func()
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// onRollback must be called with mu held.
func (s *memStore) onRollback(ctx context.Context, f func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, f)
	}
}

func (s *memStore) id() uint64 {
	s.nextID++
	return s.nextID
}

// seeding helpers

func (s *memStore) addEvent(ev model.Event) model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == 0 {
		ev.ID = s.id()
	}
	if ev.Capacity != nil && ev.AvailableTickets == nil {
		avail := *ev.Capacity
		ev.AvailableTickets = &avail
	}
	if ev.Currency == "" {
		ev.Currency = "IDR"
	}
	s.events[ev.ID] = &ev
	return ev
}

func (s *memStore) addPromo(p model.PromoCode) model.PromoCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	p.Code = NormalizePromoCode(p.Code)
	s.promos[p.Code] = &p
	return p
}

func (s *memStore) available(eventID uint64) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.events[eventID].AvailableTickets
}

func (s *memStore) promo(code string) model.PromoCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.promos[NormalizePromoCode(code)]
}

func (s *memStore) ticketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

func (s *memStore) backdate(bookingID uint64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[bookingID].CreatedAt = at
}

func (s *memStore) setTicketStatus(bookingID uint64, st model.TicketStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[bookingID].Status = st
}

// EventStore

func (s *memStore) GetEvent(_ context.Context, id uint64) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, model.ErrNotFound
	}
	out := *ev
	if ev.AvailableTickets != nil {
		avail := *ev.AvailableTickets
		out.AvailableTickets = &avail
	}
	return out, nil
}

func (s *memStore) ReserveSlot(ctx context.Context, eventID uint64, h model.Holder) (model.SlotResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return model.SlotResult{}, model.ErrNotFound
	}
	if *ev.AvailableTickets > 0 {
		*ev.AvailableTickets--
		s.onRollback(ctx, func() { *ev.AvailableTickets++ })
		return model.SlotResult{Outcome: model.SlotReserved}, nil
	}
	if !ev.WaitlistEnabled {
		return model.SlotResult{Outcome: model.SlotSoldOut}, nil
	}
	email := h.WaitlistKey()
	var max uint32
	for _, w := range s.waitlist[eventID] {
		if w.Email == email {
			return model.SlotResult{Outcome: model.SlotWaitlisted, Position: w.Position}, nil
		}
		if w.Position > max {
			max = w.Position
		}
	}
	entry := &model.WaitlistEntry{ID: s.id(), EventID: eventID, Email: email, Position: max + 1}
	if h.UserID != 0 {
		uid := h.UserID
		entry.UserID = &uid
	}
	s.waitlist[eventID] = append(s.waitlist[eventID], entry)
	return model.SlotResult{Outcome: model.SlotWaitlisted, Position: entry.Position}, nil
}

func (s *memStore) ReleaseSlot(ctx context.Context, eventID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return model.ErrNotFound
	}
	if *ev.AvailableTickets >= *ev.Capacity {
		return model.ErrCapacityOverflow
	}
	*ev.AvailableTickets++
	s.onRollback(ctx, func() { *ev.AvailableTickets-- })
	return nil
}

func (s *memStore) NextWaitlisted(_ context.Context, eventID uint64) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *model.WaitlistEntry
	for _, w := range s.waitlist[eventID] {
		if w.ConvertedToBooking {
			continue
		}
		if next == nil || w.Position < next.Position {
			next = w
		}
	}
	if next == nil {
		return nil, nil
	}
	out := *next
	return &out, nil
}

func (s *memStore) MarkWaitlistConverted(ctx context.Context, eventID uint64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.waitlist[eventID] {
		if w.Email == key && !w.ConvertedToBooking {
			w.ConvertedToBooking = true
			entry := w
			s.onRollback(ctx, func() { entry.ConvertedToBooking = false })
		}
	}
	return nil
}

// BookingStore

func (s *memStore) FindActiveBooking(_ context.Context, eventID uint64, holderKey string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.EventID == eventID && b.HolderKey == holderKey && b.Active() {
			out := *b
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetBooking(_ context.Context, id uint64) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, model.ErrNotFound
	}
	return *b, nil
}

func (s *memStore) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return s.GetBooking(ctx, id)
}

func (s *memStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.bookings {
		if other.EventID == b.EventID && other.HolderKey == b.HolderKey && other.Active() {
			return fmt.Errorf("bookings.active_holder: %w", model.ErrDuplicate)
		}
	}
	b.ID = s.id()
	stored := *b
	s.bookings[b.ID] = &stored
	id := b.ID
	s.onRollback(ctx, func() { delete(s.bookings, id) })
	return nil
}

func (s *memStore) TransitionBooking(ctx context.Context, id uint64, from, to model.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.ErrNotFound
	}
	if b.PaymentStatus != from {
		return model.ErrStaleState
	}
	b.PaymentStatus = to
	s.onRollback(ctx, func() { b.PaymentStatus = from })
	return nil
}

func (s *memStore) CloseBooking(ctx context.Context, id uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.ErrNotFound
	}
	b.CancelledAt = &at
	s.onRollback(ctx, func() { b.CancelledAt = nil })
	return nil
}

func (s *memStore) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.PaymentStatus == model.PaymentPending && b.Active() && b.CreatedAt.Before(cutoff) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TransactionStore

func (s *memStore) FindTransactionByReference(_ context.Context, ref string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.GatewayReference != nil && *t.GatewayReference == ref {
			out := *t
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetTransactionByBooking(_ context.Context, bookingID uint64) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.BookingID == bookingID {
			out := *t
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.txns {
		if other.BookingID == t.BookingID {
			return fmt.Errorf("transactions.booking_id: %w", model.ErrDuplicate)
		}
		if t.GatewayReference != nil && other.GatewayReference != nil && *other.GatewayReference == *t.GatewayReference {
			return fmt.Errorf("transactions.gateway_reference: %w", model.ErrDuplicate)
		}
	}
	t.ID = s.id()
	stored := *t
	s.txns[t.ID] = &stored
	id := t.ID
	s.onRollback(ctx, func() { delete(s.txns, id) })
	return nil
}

func (s *memStore) UpdateTransaction(ctx context.Context, t *model.Transaction, from model.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txns[t.ID]
	if !ok {
		return model.ErrNotFound
	}
	if cur.Status != from {
		return model.ErrStaleState
	}
	prev := *cur
	*cur = *t
	s.onRollback(ctx, func() { *cur = prev })
	return nil
}

func (s *memStore) FindPaymentByReference(_ context.Context, ref string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[ref]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (s *memStore) UpsertPayment(ctx context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.payments[p.GatewayReference]
	if !ok {
		p.ID = s.id()
		stored := *p
		s.payments[p.GatewayReference] = &stored
		ref := p.GatewayReference
		s.onRollback(ctx, func() { delete(s.payments, ref) })
		return nil
	}
	prev := *cur
	if p.BookingID == nil {
		p.BookingID = cur.BookingID
	}
	p.ID = cur.ID
	*cur = *p
	s.onRollback(ctx, func() { *cur = prev })
	return nil
}

// PromoStore

func (s *memStore) GetPromoByCode(_ context.Context, code string) (model.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promos[code]
	if !ok {
		return model.PromoCode{}, model.ErrNotFound
	}
	return *p, nil
}

func (s *memStore) RedeemPromo(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.promos {
		if p.ID != id {
			continue
		}
		if p.Exhausted() {
			return model.ErrPromoExhausted
		}
		p.UsedCount++
		promo := p
		s.onRollback(ctx, func() { promo.UsedCount-- })
		return nil
	}
	return model.ErrNotFound
}

// TicketStore

func (s *memStore) CreateTicket(ctx context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.BookingID]; ok {
		return fmt.Errorf("tickets.booking_id: %w", model.ErrDuplicate)
	}
	t.ID = s.id()
	stored := *t
	s.tickets[t.BookingID] = &stored
	bid := t.BookingID
	s.onRollback(ctx, func() { delete(s.tickets, bid) })
	return nil
}

func (s *memStore) GetTicketByBooking(_ context.Context, bookingID uint64) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[bookingID]
	if !ok {
		return nil, nil
	}
	out := *t
	return &out, nil
}

func (s *memStore) TransitionTicket(ctx context.Context, id uint64, from, to model.TicketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.ID != id {
			continue
		}
		if t.Status != from {
			return model.ErrStaleState
		}
		t.Status = to
		ticket := t
		s.onRollback(ctx, func() { ticket.Status = from })
		return nil
	}
	return model.ErrNotFound
}

// fakeGateway answers from a table of references.  Unknown references are
// pending.
type fakeGateway struct {
	mu     sync.Mutex
	status map[string]model.GatewayStatus
	err    error
	calls  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{status: map[string]model.GatewayStatus{}}
}

func (g *fakeGateway) set(ref string, st model.GatewayStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status[ref] = st
}

func (g *fakeGateway) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeGateway) VerifyPaymentReference(_ context.Context, ref string) (model.PaymentCheck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return model.PaymentCheck{}, g.err
	}
	st, ok := g.status[ref]
	if !ok {
		st = model.GatewayPending
	}
	return model.PaymentCheck{Status: st, Method: "EWALLET"}, nil
}

type seqMinter struct {
	mu sync.Mutex
	n  int
}

func (m *seqMinter) Mint(bookingID uint64) (model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return model.Ticket{
		BookingID:    bookingID,
		TicketNumber: fmt.Sprintf("TKT-%04d", m.n),
		Status:       model.TicketActive,
	}, nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, nil
}

type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, errors.New("redis: connection refused")
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func kinds(intents []Intent) string {
	out := make([]string, 0, len(intents))
	for _, in := range intents {
		out = append(out, in.Kind)
	}
	return strings.Join(out, ",")
}
