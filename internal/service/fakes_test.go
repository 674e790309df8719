package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"booking-service/internal/apperrors"
	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/store"
)

// fakeStore keeps rows in memory. The mutex stands in for the row locks the
// real store takes inside its transactions.
type fakeStore struct {
	mu sync.Mutex

	events   map[string]*models.Event
	bookings map[string]*models.Booking
	payments map[string]*models.Payment // by transaction id

	paymentWrites int
	createErr     error
	updateErr     map[string]error
	statusUpdates []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:    make(map[string]*models.Event),
		bookings:  make(map[string]*models.Booking),
		payments:  make(map[string]*models.Payment),
		updateErr: make(map[string]error),
	}
}

func (f *fakeStore) addEvent(e models.Event) *models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[e.ID] = &e
	return &e
}

func (f *fakeStore) addBooking(b models.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[b.ID] = &b
}

func (f *fakeStore) addPayment(p models.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p.TransactionID] = &p
}

func (f *fakeStore) payment(txID string) models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.payments[txID]
}

func (f *fakeStore) booking(id string) models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.bookings[id]
}

func (f *fakeStore) event(id string) models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.events[id]
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paymentWrites
}

func (f *fakeStore) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, apperrors.NotFound("event %s not found", id)
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) CreateBooking(ctx context.Context, booking *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *booking
	f.bookings[booking.ID] = &cp
	return nil
}

func (f *fakeStore) CreateConfirmedBooking(ctx context.Context, booking *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	e, ok := f.events[booking.EventID]
	if !ok {
		return apperrors.NotFound("event %s not found", booking.EventID)
	}
	if e.CurrentParticipants >= e.MaxParticipants {
		return apperrors.Conflict("event %s is full", e.ID)
	}
	booking.Status = models.BookingStatusConfirmed
	booking.PaymentStatus = models.PaymentStatusCompleted
	cp := *booking
	f.bookings[booking.ID] = &cp
	e.CurrentParticipants++
	return nil
}

func (f *fakeStore) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, apperrors.NotFound("booking %s not found", id)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) GetBookingsByUserID(ctx context.Context, userID string) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, dup := f.payments[payment.TransactionID]; dup {
		return errors.New("duplicate transaction id")
	}
	cp := *payment
	f.payments[payment.TransactionID] = &cp
	return nil
}

func (f *fakeStore) SetPaymentProviderRef(ctx context.Context, transactionID, providerRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[transactionID]; ok {
		ref := providerRef
		p.ProviderRef = &ref
	}
	return nil
}

func (f *fakeStore) MarkPaymentFailed(ctx context.Context, transactionID string, response models.JSONB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[transactionID]; ok && p.Status == models.PaymentStatusPending {
		p.Status = models.PaymentStatusFailed
		p.GatewayResponse = response
		f.paymentWrites++
	}
	return nil
}

func (f *fakeStore) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[transactionID]
	if !ok {
		return nil, apperrors.NotFound("payment %s not found", transactionID)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ApplyPaymentSuccess(ctx context.Context, transactionID string, response models.JSONB, paidAt time.Time) (*store.PaymentTransition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, b, err := f.lockRows(transactionID)
	if err != nil {
		return nil, err
	}
	if p.IsFinal() {
		return &store.PaymentTransition{Payment: copyPayment(p), Booking: copyBooking(b)}, nil
	}

	p.Status = models.PaymentStatusCompleted
	p.PaidAt = &paidAt
	p.GatewayResponse = response
	f.paymentWrites++

	confirmed := b.Status != models.BookingStatusConfirmed
	b.Status = models.BookingStatusConfirmed
	b.PaymentStatus = models.PaymentStatusCompleted
	if confirmed {
		f.events[b.EventID].CurrentParticipants++
	}

	return &store.PaymentTransition{Payment: copyPayment(p), Booking: copyBooking(b), Applied: true, Confirmed: confirmed}, nil
}

func (f *fakeStore) ApplyPaymentFailure(ctx context.Context, transactionID string, response models.JSONB) (*store.PaymentTransition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, b, err := f.lockRows(transactionID)
	if err != nil {
		return nil, err
	}
	if p.IsFinal() {
		return &store.PaymentTransition{Payment: copyPayment(p), Booking: copyBooking(b)}, nil
	}

	p.Status = models.PaymentStatusFailed
	p.GatewayResponse = response
	f.paymentWrites++
	if b.Status != models.BookingStatusConfirmed {
		b.PaymentStatus = models.PaymentStatusFailed
	}

	return &store.PaymentTransition{Payment: copyPayment(p), Booking: copyBooking(b), Applied: true}, nil
}

func (f *fakeStore) lockRows(transactionID string) (*models.Payment, *models.Booking, error) {
	p, ok := f.payments[transactionID]
	if !ok {
		return nil, nil, apperrors.NotFound("payment %s not found", transactionID)
	}
	b, ok := f.bookings[p.BookingID]
	if !ok {
		return nil, nil, apperrors.NotFound("booking %s not found", p.BookingID)
	}
	return p, b, nil
}

func (f *fakeStore) ListSchedulableEvents(ctx context.Context) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, e := range f.events {
		if models.IsSchedulerManaged(e.Status) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateEventStatus(ctx context.Context, eventID, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[eventID]; err != nil {
		return false, err
	}
	e, ok := f.events[eventID]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	f.statusUpdates = append(f.statusUpdates, eventID)
	return true, nil
}

func copyPayment(p *models.Payment) *models.Payment {
	cp := *p
	return &cp
}

func copyBooking(b *models.Booking) *models.Booking {
	cp := *b
	return &cp
}

type fakeStripe struct {
	mu         sync.Mutex
	createErr  error
	results    map[string]*gateway.Result
	created    []*gateway.SessionRequest
	retrievals int
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{results: make(map[string]*gateway.Result)}
}

func (f *fakeStripe) create(req *gateway.SessionRequest, handle string) (*gateway.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &gateway.Session{Handle: handle, ClientSecret: handle + "_secret", RedirectURL: "https://checkout.example/" + handle}, nil
}

func (f *fakeStripe) CreatePaymentIntent(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
	return f.create(req, "pi_test")
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
	return f.create(req, "cs_test")
}

func (f *fakeStripe) get(id string) (*gateway.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrievals++
	res, ok := f.results[id]
	if !ok {
		return nil, errors.New("no such object")
	}
	cp := *res
	return &cp, nil
}

func (f *fakeStripe) GetPaymentIntent(ctx context.Context, intentID string) (*gateway.Result, error) {
	return f.get(intentID)
}

func (f *fakeStripe) GetCheckoutSession(ctx context.Context, sessionID string) (*gateway.Result, error) {
	return f.get(sessionID)
}

type fakeRedirect struct {
	createErr error
	created   []*gateway.SessionRequest
	validated map[string]*gateway.Result
}

// validates registers valID as the gateway's proof of payment for txID
func (f *fakeRedirect) validates(valID, txID string, amount int64) {
	if f.validated == nil {
		f.validated = make(map[string]*gateway.Result)
	}
	f.validated[valID] = &gateway.Result{
		TransactionID: txID,
		Handle:        valID,
		State:         gateway.StatePaid,
		Amount:        amount,
		Raw:           models.JSONB(`{"status":"VALID","val_id":"` + valID + `","tran_id":"` + txID + `"}`),
	}
}

func (f *fakeRedirect) ValidatePayment(ctx context.Context, valID string) (*gateway.Result, error) {
	if res, ok := f.validated[valID]; ok {
		cp := *res
		return &cp, nil
	}
	return &gateway.Result{Handle: valID, State: gateway.StateFailed, Raw: models.JSONB(`{"status":"INVALID_TRANSACTION"}`)}, nil
}

func (f *fakeRedirect) CreateSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &gateway.Session{Handle: "sess-1", RedirectURL: "https://gw.example/pay/sess-1"}, nil
}

// fakeLocker behaves like SetNX with no expiry
type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]string
	err   error
	grant *bool
	seq   int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (f *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}
	if f.grant != nil {
		return "granted", *f.grant, nil
	}
	if _, ok := f.held[key]; ok {
		return "", false, nil
	}
	f.seq++
	token := fmt.Sprintf("token-%d", f.seq)
	f.held[key] = token
	return token, true, nil
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] == token {
		delete(f.held, key)
	}
	return nil
}

type fakeIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: make(map[string]bool)}
}

func (f *fakeIdempotency) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeIdempotency) DeleteIdempotencyKey(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

func (f *fakeIdempotency) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[key]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) record(eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakePublisher) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func (f *fakePublisher) PublishBookingCreated(ctx context.Context, booking *models.Booking) error {
	return f.record(models.EventTypeBookingCreated)
}

func (f *fakePublisher) PublishBookingConfirmed(ctx context.Context, booking *models.Booking, transactionID string) error {
	return f.record(models.EventTypeBookingConfirmed)
}

func (f *fakePublisher) PublishPaymentInitiated(ctx context.Context, payment *models.Payment) error {
	return f.record(models.EventTypePaymentInitiated)
}

func (f *fakePublisher) PublishPaymentCompleted(ctx context.Context, payment *models.Payment) error {
	return f.record(models.EventTypePaymentCompleted)
}

func (f *fakePublisher) PublishPaymentFailed(ctx context.Context, payment *models.Payment, reason string) error {
	return f.record(models.EventTypePaymentFailed)
}

func (f *fakePublisher) PublishEventStatusChanged(ctx context.Context, eventID, from, to string) error {
	return f.record(models.EventTypeEventStatusChanged)
}
