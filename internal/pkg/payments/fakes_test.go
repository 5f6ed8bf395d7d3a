package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/colegio-mx/backoffice/app/models"
	"github.com/colegio-mx/backoffice/app/repository"
	"github.com/colegio-mx/backoffice/internal/pkg/apperr"
	"github.com/colegio-mx/backoffice/internal/pkg/money"
)

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[uint]*models.Payment
	nextID   uint
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[uint]*models.Payment), nextID: 1}
}

func (r *fakePaymentRepo) add(p models.Payment) *models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.nextID
		r.nextID++
	} else if p.ID >= r.nextID {
		r.nextID = p.ID + 1
	}
	cp := p
	r.payments[cp.ID] = &cp
	return &cp
}

func (r *fakePaymentRepo) Create(p *models.Payment) error {
	stored := r.add(*p)
	p.ID = stored.ID
	return nil
}

func (r *fakePaymentRepo) GetByID(id uint) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePaymentRepo) GetBySessionID(sessionID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.StripeSessionID != nil && *p.StripeSessionID == sessionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakePaymentRepo) GetByIntentID(intentID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.PaymentIntentID != nil && *p.PaymentIntentID == intentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakePaymentRepo) UpdateFields(id uint, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for col, val := range updates {
		switch col {
		case "status":
			p.Status = val.(string)
		case "payment_intent_id":
			s := val.(string)
			p.PaymentIntentID = &s
		case "amount_received":
			s := val.(string)
			p.AmountReceived = &s
		case "payment_method_details":
			s := val.(string)
			p.PaymentMethodDetails = &s
		case "url":
			if val == nil {
				p.URL = nil
			} else {
				s := val.(string)
				p.URL = &s
			}
		default:
			return fmt.Errorf("fake repo: unexpected column %q", col)
		}
	}
	return nil
}

func (r *fakePaymentRepo) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.payments, id)
	return nil
}

func (r *fakePaymentRepo) ListNeedingReconciliation(now time.Time, lookback, freshness time.Duration) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if !p.IsReconcilable() || p.PaymentIntentID == nil {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakePaymentRepo) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.payments)), nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []models.PaymentEvent
	nextID  uint
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{nextID: 1}
}

func (l *fakeLedger) CreateIfNotExists(event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if event.ExternalEventID != nil && *event.ExternalEventID != "" {
		for i := range l.entries {
			e := &l.entries[i]
			if e.ExternalEventID != nil && *e.ExternalEventID == *event.ExternalEventID && e.EventType == event.EventType {
				cp := *e
				return false, &cp, nil
			}
		}
	}
	event.ID = l.nextID
	l.nextID++
	l.entries = append(l.entries, *event)
	cp := *event
	return true, &cp, nil
}

func (l *fakeLedger) Append(event *models.PaymentEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	event.ID = l.nextID
	l.nextID++
	l.entries = append(l.entries, *event)
	return nil
}

func (l *fakeLedger) MarkWebhookOutcome(id uint, outcome string, processErr *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries[i].Outcome = outcome
			l.entries[i].Error = processErr
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (l *fakeLedger) HasCompletedReconciliation(externalEventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		e := &l.entries[i]
		if e.EventType == models.PaymentEventReconciliationCompleted &&
			e.ExternalEventID != nil && *e.ExternalEventID == externalEventID {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) LatestCompletedReconciliation(paymentID uint) (*models.PaymentEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.EventType == models.PaymentEventReconciliationCompleted &&
			e.PaymentID != nil && *e.PaymentID == paymentID {
			return &e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (l *fakeLedger) ListByPaymentID(paymentID uint, limit int) ([]models.PaymentEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.PaymentEvent
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.entries[i]
		if e.PaymentID != nil && *e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeLedger) countByType(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for i := range l.entries {
		if l.entries[i].EventType == eventType {
			n++
		}
	}
	return n
}

type fakeMethodRepo struct {
	mu      sync.Mutex
	methods map[string]*models.PaymentMethod
	nextID  uint
}

func newFakeMethodRepo() *fakeMethodRepo {
	return &fakeMethodRepo{methods: make(map[string]*models.PaymentMethod), nextID: 1}
}

func (r *fakeMethodRepo) Create(pm *models.PaymentMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.methods[pm.ExternalID]; ok {
		return fmt.Errorf("duplicate external id %s", pm.ExternalID)
	}
	pm.ID = r.nextID
	r.nextID++
	cp := *pm
	r.methods[pm.ExternalID] = &cp
	return nil
}

func (r *fakeMethodRepo) GetByExternalID(externalID string) (*models.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pm, ok := r.methods[externalID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *pm
	return &cp, nil
}

func (r *fakeMethodRepo) GetByUserID(userID uint) ([]models.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentMethod
	for _, pm := range r.methods {
		if pm.UserID == userID {
			out = append(out, *pm)
		}
	}
	return out, nil
}

func (r *fakeMethodRepo) Update(pm *models.PaymentMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.methods[pm.ExternalID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *pm
	r.methods[pm.ExternalID] = &cp
	return nil
}

func (r *fakeMethodRepo) DeleteByExternalID(externalID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.methods[externalID]; !ok {
		return false, nil
	}
	delete(r.methods, externalID)
	return true, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uint]*models.User
}

func newFakeUserRepo(users ...models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uint]*models.User)}
	for _, u := range users {
		cp := u
		r.users[u.ID] = &cp
	}
	return r
}

func (r *fakeUserRepo) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) Update(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

type fakeGateway struct {
	mu          sync.Mutex
	intents     map[string]IntentCharge
	setupIntent *SetupIntent
	method      *GatewayPaymentMethod
	balance     *Balance
	payouts     []Payout
	err         error

	intentCalls int
	batchCalls  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: make(map[string]IntentCharge)}
}

func (g *fakeGateway) setIntent(id string, intent *Intent, charge *Charge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[id] = IntentCharge{Intent: intent, Charge: charge}
}

func (g *fakeGateway) GetIntentAndCharge(ctx context.Context, intentID string) (*Intent, *Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intentCalls++
	if g.err != nil {
		return nil, nil, g.err
	}
	ic, ok := g.intents[intentID]
	if !ok {
		return nil, nil, &apperr.GatewayError{Op: "get intent", Err: fmt.Errorf("no such intent %s", intentID)}
	}
	return ic.Intent, ic.Charge, nil
}

func (g *fakeGateway) GetIntentsAndChargesBatch(ctx context.Context, intentIDs []string) (map[string]IntentCharge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.batchCalls++
	if g.err != nil {
		return nil, g.err
	}
	out := make(map[string]IntentCharge)
	for _, id := range intentIDs {
		if ic, ok := g.intents[id]; ok {
			out[id] = ic
		}
	}
	return out, nil
}

func (g *fakeGateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return nil, &apperr.GatewayError{Op: "get session", Err: fmt.Errorf("not implemented")}
}

func (g *fakeGateway) GetSetupIntentFromSession(ctx context.Context, sessionID string) (*SetupIntent, error) {
	if g.setupIntent == nil {
		return nil, &apperr.GatewayError{Op: "get setup intent", Err: fmt.Errorf("no setup intent")}
	}
	return g.setupIntent, nil
}

func (g *fakeGateway) RetrievePaymentMethod(ctx context.Context, methodID string) (*GatewayPaymentMethod, error) {
	return g.method, nil
}

func (g *fakeGateway) DetachPaymentMethod(ctx context.Context, methodID string) error {
	return nil
}

func (g *fakeGateway) GetBalance(ctx context.Context) (*Balance, error) {
	if g.balance == nil {
		return nil, &apperr.GatewayError{Op: "get balance", Err: fmt.Errorf("no balance")}
	}
	return g.balance, nil
}

func (g *fakeGateway) GetPayouts(ctx context.Context, onlyThisYear bool) ([]Payout, error) {
	return g.payouts, nil
}

func (g *fakeGateway) CreatePayout(ctx context.Context, amount money.Money) (*Payout, error) {
	cents, err := amount.ToMinorUnits(100)
	if err != nil {
		return nil, err
	}
	return &Payout{ID: "po_test", Amount: cents, Status: "pending"}, nil
}

func (g *fakeGateway) CancelIntent(ctx context.Context, intentID string) error {
	return nil
}

func (g *fakeGateway) ExpireSessionIfPending(ctx context.Context, sessionID string) (bool, error) {
	return false, nil
}

type sentMail struct {
	Template  string
	Recipient string
	Data      map[string]interface{}
}

type recordingNotifier struct {
	mu            sync.Mutex
	mails         []sentMail
	invalidations []uint
	events        []DomainEvent
}

func (n *recordingNotifier) EnqueuePaymentMail(templateKey, recipient string, data map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mails = append(n.mails, sentMail{Template: templateKey, Recipient: recipient, Data: data})
	return nil
}

func (n *recordingNotifier) InvalidateUserCards(userID uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invalidations = append(n.invalidations, userID)
	return nil
}

func (n *recordingNotifier) PublishEvent(event DomainEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func newTestDeps() (*repository.Repositories, *fakePaymentRepo, *fakeLedger, *fakeMethodRepo, *fakeUserRepo, *fakeGateway, *recordingNotifier) {
	payments := newFakePaymentRepo()
	ledger := newFakeLedger()
	methods := newFakeMethodRepo()
	users := newFakeUserRepo(models.User{ID: 1, Name: "Ana Torres", Email: "ana@example.com"})
	repos := &repository.Repositories{
		Payment:       payments,
		PaymentEvent:  ledger,
		PaymentMethod: methods,
		User:          users,
	}
	return repos, payments, ledger, methods, users, newFakeGateway(), &recordingNotifier{}
}

func strPtr(s string) *string { return &s }
