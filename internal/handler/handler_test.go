package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/clock"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/router"
	"github.com/iliyamo/event-booking/internal/ticket"
	"github.com/iliyamo/event-booking/internal/utils"
)

const (
	jwtSecret    = "test-secret"
	webhookToken = "cb-token"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeEngine struct {
	mu        sync.Mutex
	reserve   booking.Outcome
	err       error
	gotReq    booking.Request
	gotCancel booking.CancelRequest
	gotRef    string
	approved  *bool
}

func (f *fakeEngine) Reserve(_ context.Context, req booking.Request) (booking.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotReq = req
	return f.reserve, f.err
}

func (f *fakeEngine) Cancel(_ context.Context, req booking.CancelRequest) (booking.CancelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCancel = req
	if f.err != nil {
		return booking.CancelResult{}, f.err
	}
	res := booking.CancelResult{BookingID: req.BookingID, TransactionStatus: model.TxRefunded,
		Intents: []booking.Intent{{Kind: booking.KindBookingCancelled, EventID: 7, BookingID: req.BookingID}}}
	if req.RefundCents != nil {
		res.RefundedCents = *req.RefundCents
	}
	return res, nil
}

func (f *fakeEngine) Review(_ context.Context, id uint64, _ model.Caller, approve bool) (booking.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = &approve
	if f.err != nil {
		return booking.Outcome{}, f.err
	}
	return booking.Outcome{State: booking.StateConfirmed, BookingID: id, TicketID: 3, TicketNumber: "TKT-3"}, nil
}

func (f *fakeEngine) Reconcile(_ context.Context, ref string) (booking.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotRef = ref
	if f.err != nil {
		return booking.Outcome{}, f.err
	}
	return booking.Outcome{State: booking.StateConfirmed, BookingID: 11}, nil
}

type recorder struct {
	mu          sync.Mutex
	intents     []booking.Intent
	invalidated []string
}

func (r *recorder) Enqueue(in ...booking.Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, in...)
}

func (r *recorder) Invalidate(_ context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, path)
}

type fakeTickets struct {
	view ticket.View
	err  error
}

func (f fakeTickets) Resolve(context.Context, string) (ticket.View, error) { return f.view, f.err }
func (f fakeTickets) CheckIn(context.Context, string, model.Caller) (ticket.View, error) {
	return f.view, f.err
}
func (f fakeTickets) QR(context.Context, uint64, model.Caller) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("\x89PNG"), nil
}

type fakeEvents map[uint64]model.Event

func (f fakeEvents) GetEvent(_ context.Context, id uint64) (model.Event, error) {
	ev, ok := f[id]
	if !ok {
		return model.Event{}, model.ErrNotFound
	}
	return ev, nil
}

func (f fakeEvents) ListUpcoming(context.Context, time.Time, int) ([]model.Event, error) {
	var out []model.Event
	for _, ev := range f {
		out = append(out, ev)
	}
	return out, nil
}

type env struct {
	e       *echo.Echo
	engine  *fakeEngine
	rec     *recorder
	tickets *fakeTickets
}

func newEnv(t *testing.T) *env {
	t.Helper()
	en := &env{e: echo.New(), engine: &fakeEngine{}, rec: &recorder{}, tickets: &fakeTickets{}}
	bookings := handler.NewBookingHandler(en.engine, en.rec, en.rec)
	th := handler.NewTicketHandler(en.tickets)
	zero, one := uint32(0), uint32(1)
	events := fakeEvents{
		7: {ID: 7, Title: "Launch", StartsAt: now.Add(time.Hour), Capacity: &one, AvailableTickets: &zero, IsFree: true, Currency: "IDR"},
	}
	router.RegisterRoutes(en.e, nil)
	router.RegisterPublic(en.e, handler.NewEventHandler(events, clock.NewFixed(now)), middleware.NewResponseCache(config.CacheConfig{}, nil))
	router.RegisterWebhooks(en.e, handler.NewWebhookHandler(bookings, webhookToken))
	router.RegisterHolder(en.e, bookings, th, jwtSecret, nil, nil)
	router.RegisterStaff(en.e, bookings, th, jwtSecret, nil)
	return en
}

func token(t *testing.T, id uint64, role, email string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(jwtSecret, id, role, email, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok.Token
}

func (en *env) do(method, path, tok, body string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	en.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestReserveConfirmed(t *testing.T) {
	en := newEnv(t)
	en.engine.reserve = booking.Outcome{
		State: booking.StateConfirmed, BookingID: 5, TicketID: 9, TicketNumber: "TKT-9",
		Intents: []booking.Intent{{Kind: booking.KindBookingConfirmedFree, EventID: 7}},
	}
	rec := en.do(http.MethodPost, "/v1/events/7/bookings", token(t, 42, model.RoleCustomer, "A@B.io"), `{"promo_code":" save10 "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["state"] != "confirmed" || body["ticket_number"] != "TKT-9" || body["booking_id"].(float64) != 5 {
		t.Fatalf("body = %v", body)
	}
	got := en.engine.gotReq
	if got.EventID != 7 || got.Holder.UserID != 42 || got.Holder.Email != "a@b.io" || got.PromoCode != "save10" {
		t.Fatalf("request = %+v", got)
	}
	if len(en.rec.intents) != 1 {
		t.Fatalf("intents enqueued = %d", len(en.rec.intents))
	}
	if len(en.rec.invalidated) == 0 || en.rec.invalidated[0] != "/v1/events/7" {
		t.Fatalf("invalidated = %v", en.rec.invalidated)
	}
}

func TestReserveUsesBodyEmailWhenTokenHasNone(t *testing.T) {
	en := newEnv(t)
	en.engine.reserve = booking.Outcome{State: booking.StateWaitlisted, Position: 3}
	rec := en.do(http.MethodPost, "/v1/events/7/bookings", token(t, 42, model.RoleCustomer, ""), `{"email":"guest@x.io"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if en.engine.gotReq.Holder.Email != "guest@x.io" {
		t.Fatalf("holder = %+v", en.engine.gotReq.Holder)
	}
	if decode(t, rec)["waitlist_position"].(float64) != 3 {
		t.Fatal("waitlist position missing")
	}
}

func TestReserveOutcomeStatuses(t *testing.T) {
	cases := []struct {
		out  booking.Outcome
		want int
	}{
		{booking.Outcome{State: booking.StateAwaitingPayment, BookingID: 1}, http.StatusAccepted},
		{booking.Outcome{State: booking.StateRejected, Reason: booking.ReasonEventNotFound}, http.StatusNotFound},
		{booking.Outcome{State: booking.StateRejected, Reason: booking.ReasonSoldOut}, http.StatusConflict},
		{booking.Outcome{State: booking.StateRejected, Reason: booking.ReasonDuplicateBooking, BookingID: 4}, http.StatusConflict},
		{booking.Outcome{State: booking.StateRejected, Reason: booking.ReasonPaymentRequired}, http.StatusPaymentRequired},
		{booking.Outcome{State: booking.StateRejected, Reason: booking.ReasonPaymentFailed}, http.StatusPaymentRequired},
		{booking.Outcome{State: booking.StateRejected, Reason: booking.ReasonPromoInvalid}, http.StatusUnprocessableEntity},
		{booking.Outcome{State: booking.StateRejected, Reason: booking.ReasonPromoExhausted}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(string(tc.out.State)+"/"+string(tc.out.Reason), func(t *testing.T) {
			en := newEnv(t)
			en.engine.reserve = tc.out
			rec := en.do(http.MethodPost, "/v1/events/7/bookings", token(t, 1, model.RoleCustomer, "a@b.io"), `{}`)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.out.Reason != "" && decode(t, rec)["reason"] != string(tc.out.Reason) {
				t.Fatalf("reason missing from %s", rec.Body)
			}
		})
	}
}

func TestReserveErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{booking.ErrEventStarted, http.StatusConflict},
		{booking.ErrHolderUnresolved, http.StatusBadRequest},
		{booking.ErrInvariant, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		en := newEnv(t)
		en.engine.err = tc.err
		rec := en.do(http.MethodPost, "/v1/events/7/bookings", token(t, 1, model.RoleCustomer, "a@b.io"), `{}`)
		if rec.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	en := newEnv(t)
	if rec := en.do(http.MethodPost, "/v1/events/7/bookings", "", `{}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}
	if rec := en.do(http.MethodPost, "/v1/events/7/bookings", "garbage", `{}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", rec.Code)
	}
	forged, _ := utils.NewAccessToken("other-secret", 1, model.RoleAdmin, "", time.Hour)
	if rec := en.do(http.MethodPost, "/v1/bookings/1/review", forged.Token, `{"approve":true}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: status = %d", rec.Code)
	}
}

func TestCancelPassesRefund(t *testing.T) {
	en := newEnv(t)
	rec := en.do(http.MethodDelete, "/v1/bookings/12", token(t, 42, model.RoleCustomer, "a@b.io"), `{"refund_cents":2500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	got := en.engine.gotCancel
	if got.BookingID != 12 || got.Actor.ID != 42 || got.RefundCents == nil || *got.RefundCents != 2500 {
		t.Fatalf("cancel request = %+v", got)
	}
	if body := decode(t, rec); body["refunded_cents"].(float64) != 2500 || body["transaction_status"] != "refunded" {
		t.Fatalf("body = %v", body)
	}
	if len(en.rec.invalidated) != 1 || en.rec.invalidated[0] != "/v1/events/7" {
		t.Fatalf("invalidated = %v", en.rec.invalidated)
	}

	en.engine.err = booking.ErrTicketUsed
	if rec := en.do(http.MethodDelete, "/v1/bookings/12", token(t, 42, model.RoleCustomer, "a@b.io"), ""); rec.Code != http.StatusConflict {
		t.Fatalf("used ticket: status = %d", rec.Code)
	}
	en.engine.err = booking.ErrForbidden
	if rec := en.do(http.MethodDelete, "/v1/bookings/12", token(t, 43, model.RoleCustomer, "c@d.io"), ""); rec.Code != http.StatusForbidden {
		t.Fatalf("stranger: status = %d", rec.Code)
	}
}

func TestReviewRequiresStaff(t *testing.T) {
	en := newEnv(t)
	if rec := en.do(http.MethodPost, "/v1/bookings/3/review", token(t, 42, model.RoleCustomer, ""), `{"approve":true}`); rec.Code != http.StatusForbidden {
		t.Fatalf("customer: status = %d", rec.Code)
	}
	if en.engine.approved != nil {
		t.Fatal("engine must not be reached by a customer")
	}
	if rec := en.do(http.MethodPost, "/v1/bookings/3/review", token(t, 900, model.RoleOwner, ""), `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing approve: status = %d", rec.Code)
	}
	rec := en.do(http.MethodPost, "/v1/bookings/3/review", token(t, 900, model.RoleOwner, ""), `{"approve":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner: status = %d body=%s", rec.Code, rec.Body)
	}
	if en.engine.approved == nil || *en.engine.approved {
		t.Fatal("rejection not forwarded")
	}
}

func TestWebhook(t *testing.T) {
	en := newEnv(t)
	body := `{"event":"payment.succeeded","data":{"id":"py-1","payment_request_id":"pr-77"}}`
	if rec := en.do(http.MethodPost, "/v1/webhooks/payments", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}
	if rec := en.do(http.MethodPost, "/v1/webhooks/payments", "", body, "x-callback-token", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rec.Code)
	}
	rec := en.do(http.MethodPost, "/v1/webhooks/payments", "", body, "x-callback-token", webhookToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if en.engine.gotRef != "pr-77" {
		t.Fatalf("reconciled %q, want pr-77", en.engine.gotRef)
	}

	if rec := en.do(http.MethodPost, "/v1/webhooks/payments", "", `{"data":{}}`, "x-callback-token", webhookToken); rec.Code != http.StatusBadRequest {
		t.Fatalf("no reference: status = %d", rec.Code)
	}
	en.engine.err = booking.ErrBookingNotFound
	if rec := en.do(http.MethodPost, "/v1/webhooks/payments", "", `{"reference":"pr-x"}`, "x-callback-token", webhookToken); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown: status = %d", rec.Code)
	}
	en.engine.err = booking.ErrGatewayUnavailable
	if rec := en.do(http.MethodPost, "/v1/webhooks/payments", "", `{"reference":"pr-x"}`, "x-callback-token", webhookToken); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("gateway down: status = %d", rec.Code)
	}
}

func TestTicketEndpoints(t *testing.T) {
	en := newEnv(t)
	staff := token(t, 900, model.RoleOwner, "")
	at := now
	en.tickets.view = ticket.View{
		Ticket:      model.Ticket{ID: 4, BookingID: 5, TicketNumber: "TKT-4", Status: model.TicketUsed, CheckedInAt: &at},
		EventID:     7,
		OrganizerID: 900,
	}
	en.tickets.err = ticket.ErrAlreadyUsed
	rec := en.do(http.MethodPost, "/v1/tickets/check-in", staff, `{"token":"TKT-4.sig"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second scan: status = %d", rec.Code)
	}
	if _, ok := decode(t, rec)["ticket"]; !ok {
		t.Fatal("second scan should report the original check-in")
	}

	en.tickets.err = nil
	if rec := en.do(http.MethodPost, "/v1/tickets/resolve", staff, `{"token":"TKT-4.sig"}`); rec.Code != http.StatusOK {
		t.Fatalf("resolve: status = %d", rec.Code)
	}
	other := token(t, 901, model.RoleOwner, "")
	if rec := en.do(http.MethodPost, "/v1/tickets/resolve", other, `{"token":"TKT-4.sig"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("other organizer: status = %d", rec.Code)
	}
	if rec := en.do(http.MethodPost, "/v1/tickets/resolve", staff, `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty token: status = %d", rec.Code)
	}

	rec = en.do(http.MethodGet, "/v1/tickets/4/qr", token(t, 42, model.RoleCustomer, ""), "")
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Fatalf("qr: status = %d type=%q", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	en.tickets.err = ticket.ErrInvalidToken
	if rec := en.do(http.MethodPost, "/v1/tickets/check-in", staff, `{"token":"forged"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("forged: status = %d", rec.Code)
	}
}

func TestInvalidateEventMatchesServedPath(t *testing.T) {
	en := newEnv(t)
	if rec := en.do(http.MethodGet, handler.EventPath(7), "", ""); rec.Code != http.StatusOK {
		t.Fatalf("GET %s: status = %d", handler.EventPath(7), rec.Code)
	}

	rec := &recorder{}
	handler.InvalidateEvent(context.Background(), rec, 7)
	handler.InvalidateEvent(context.Background(), rec, 0)
	handler.InvalidateEvent(context.Background(), nil, 7)
	if len(rec.invalidated) != 1 || rec.invalidated[0] != "/v1/events/7" {
		t.Fatalf("invalidated = %v, want [/v1/events/7]", rec.invalidated)
	}
}

func TestEventAvailability(t *testing.T) {
	en := newEnv(t)
	rec := en.do(http.MethodGet, "/v1/events/7", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["sold_out"] != true || body["started"] != false {
		t.Fatalf("body = %v", body)
	}
	if rec := en.do(http.MethodGet, "/v1/events/8", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing event: status = %d", rec.Code)
	}
	if rec := en.do(http.MethodGet, "/v1/events?limit=500", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status = %d", rec.Code)
	}
	if rec := en.do(http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: status = %d", rec.Code)
	}
}
