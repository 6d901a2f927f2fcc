package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/axidi/photoai-bot/config"
	"github.com/axidi/photoai-bot/internal/models"
	"github.com/axidi/photoai-bot/utils"
)

type storeStub struct {
	users     map[int64]*models.User
	payments  map[string]*models.PaymentRecord
	stats     map[int64]*models.PaymentStats
	relations map[int64]*models.ReferralRelation

	// Снимки для отката "транзакции".
	usersSnap    map[int64]*models.User
	paymentsSnap map[string]*models.PaymentRecord
	statsSnap    map[int64]*models.PaymentStats

	existsErr     error
	existsResult  *bool
	creditsErr    error
	flagErrs      []error
	flagCalls     int
	commitCalls   int
	rollbackCalls int
}

func newStoreStub() *storeStub {
	return &storeStub{
		users:     make(map[int64]*models.User),
		payments:  make(map[string]*models.PaymentRecord),
		stats:     make(map[int64]*models.PaymentStats),
		relations: make(map[int64]*models.ReferralRelation),
	}
}

func (s *storeStub) addUser(u models.User) {
	cp := u
	s.users[u.ID] = &cp
}

func (s *storeStub) GetUser(_ context.Context, userID int64) (*models.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *storeStub) AddUserCredits(_ context.Context, userID int64, photos, avatars int, _ *gorm.DB) error {
	if s.creditsErr != nil {
		return s.creditsErr
	}
	u, ok := s.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.PhotoCredits += photos
	u.AvatarCredits += avatars
	return nil
}

func (s *storeStub) SetFirstPurchaseCompleted(_ context.Context, userID int64) error {
	s.flagCalls++
	if len(s.flagErrs) > 0 {
		err := s.flagErrs[0]
		s.flagErrs = s.flagErrs[1:]
		if err != nil {
			return err
		}
	}
	if u, ok := s.users[userID]; ok {
		u.FirstPurchaseCompleted = true
	}
	return nil
}

func (s *storeStub) SetUserReferrer(_ context.Context, userID, referrerID int64) error {
	if u, ok := s.users[userID]; ok {
		id := referrerID
		u.ReferrerID = &id
	}
	return nil
}

func (s *storeStub) GetReferralRelation(_ context.Context, userID int64) (*models.ReferralRelation, error) {
	rel, ok := s.relations[userID]
	if !ok {
		return nil, nil
	}
	cp := *rel
	return &cp, nil
}

func (s *storeStub) PaymentExists(_ context.Context, paymentID string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	if s.existsResult != nil {
		return *s.existsResult, nil
	}
	_, ok := s.payments[paymentID]
	return ok, nil
}

func (s *storeStub) CountUserPayments(_ context.Context, userID int64, excludePaymentID string, _ *gorm.DB) (int64, error) {
	var count int64
	for id, p := range s.payments {
		if p.UserID == userID && id != excludePaymentID {
			count++
		}
	}
	return count, nil
}

func (s *storeStub) CreatePaymentRecord(_ context.Context, rec *models.PaymentRecord, _ *gorm.DB) (bool, error) {
	if _, ok := s.payments[rec.PaymentID]; ok {
		return false, nil
	}
	cp := *rec
	s.payments[rec.PaymentID] = &cp
	return true, nil
}

func (s *storeStub) UpsertPaymentStats(_ context.Context, userID int64, amount decimal.Decimal, _ *gorm.DB) error {
	st, ok := s.stats[userID]
	if !ok {
		s.stats[userID] = &models.PaymentStats{UserID: userID, TotalPayments: 1, TotalAmount: amount}
		return nil
	}
	st.TotalPayments++
	st.TotalAmount = st.TotalAmount.Add(amount)
	return nil
}

func (s *storeStub) BeginTransaction(context.Context) (*gorm.DB, error) {
	s.usersSnap = make(map[int64]*models.User, len(s.users))
	for id, u := range s.users {
		cp := *u
		s.usersSnap[id] = &cp
	}
	s.paymentsSnap = make(map[string]*models.PaymentRecord, len(s.payments))
	for id, p := range s.payments {
		cp := *p
		s.paymentsSnap[id] = &cp
	}
	s.statsSnap = make(map[int64]*models.PaymentStats, len(s.stats))
	for id, st := range s.stats {
		cp := *st
		s.statsSnap[id] = &cp
	}
	return nil, nil
}

func (s *storeStub) Commit(*gorm.DB) error {
	s.commitCalls++
	return nil
}

func (s *storeStub) Rollback(*gorm.DB) {
	s.rollbackCalls++
	s.users = s.usersSnap
	s.payments = s.paymentsSnap
	s.stats = s.statsSnap
}

type notifierStub struct {
	successReports []*models.PaymentReport
	failedUsers    []int64
	warnings       []string
	criticals      []string
}

func (n *notifierStub) PaymentSuccess(_ context.Context, rep *models.PaymentReport) {
	n.successReports = append(n.successReports, rep)
}

func (n *notifierStub) PaymentFailed(_ context.Context, userID int64) {
	n.failedUsers = append(n.failedUsers, userID)
}

func (n *notifierStub) OperatorWarning(_ context.Context, text string) {
	n.warnings = append(n.warnings, text)
}

func (n *notifierStub) Critical(_ context.Context, text string) {
	n.criticals = append(n.criticals, text)
}

type cacheStub struct {
	invalidated []int64
}

func (c *cacheStub) InvalidateUser(_ context.Context, userID int64) error {
	c.invalidated = append(c.invalidated, userID)
	return nil
}

func newTestService(store *storeStub) (*Service, *notifierStub, *cacheStub) {
	notifier := &notifierStub{}
	cacheSt := &cacheStub{}
	svc := NewService(store, config.DefaultCatalog(), notifier, cacheSt, utils.InitLogger())
	return svc, notifier, cacheSt
}

func event(paymentID string, userID int64, amount float64) models.PaymentEvent {
	return models.PaymentEvent{
		PaymentID:   paymentID,
		UserID:      userID,
		Amount:      decimal.NewFromFloat(amount),
		Currency:    "RUB",
		Description: "Пакет",
		Metadata:    map[string]string{"user_id": "1"},
	}
}

func TestFirstPurchaseGrantsBonusAvatar(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	svc, notifier, cacheSt := newTestService(store)

	if err := svc.ProcessPayment(context.Background(), event("p1", 1, 399.00)); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	u := store.users[1]
	if u.PhotoCredits != 10 {
		t.Errorf("photo credits = %d, want 10", u.PhotoCredits)
	}
	if u.AvatarCredits != 1 {
		t.Errorf("avatar credits = %d, want 1 (bonus)", u.AvatarCredits)
	}
	if !u.FirstPurchaseCompleted {
		t.Error("first_purchase_completed not set")
	}
	if len(store.payments) != 1 {
		t.Fatalf("payment records = %d, want 1", len(store.payments))
	}
	if len(notifier.successReports) != 1 {
		t.Fatalf("success reports = %d, want 1", len(notifier.successReports))
	}
	rep := notifier.successReports[0]
	if !rep.Result.BonusAvatar || !rep.Result.IsFirstPurchase {
		t.Errorf("report: bonus=%v first=%v, want both true", rep.Result.BonusAvatar, rep.Result.IsFirstPurchase)
	}
	if rep.Result.PriorPayments != 0 {
		t.Errorf("prior payments = %d, want 0", rep.Result.PriorPayments)
	}
	if len(cacheSt.invalidated) == 0 || cacheSt.invalidated[0] != 1 {
		t.Error("cache not invalidated for user 1")
	}
}

func TestReplayCreditsExactlyOnce(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	svc, notifier, _ := newTestService(store)

	ev := event("p1", 1, 399.00)
	if err := svc.ProcessPayment(context.Background(), ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	err := svc.ProcessPayment(context.Background(), ev)
	if !errors.Is(err, ErrDuplicatePayment) {
		t.Fatalf("replay: err = %v, want ErrDuplicatePayment", err)
	}

	u := store.users[1]
	if u.PhotoCredits != 10 || u.AvatarCredits != 1 {
		t.Errorf("balance changed on replay: photos=%d avatars=%d", u.PhotoCredits, u.AvatarCredits)
	}
	if len(store.payments) != 1 {
		t.Errorf("payment records = %d, want 1", len(store.payments))
	}
	if len(notifier.successReports) != 1 {
		t.Errorf("success reports = %d, want 1", len(notifier.successReports))
	}
}

func TestAvatarOnlyTariffHasNoBonus(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 2})
	svc, notifier, _ := newTestService(store)

	if err := svc.ProcessPayment(context.Background(), event("p2", 2, 590.00)); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	u := store.users[2]
	if u.AvatarCredits != 1 {
		t.Errorf("avatar credits = %d, want 1 (no extra bonus)", u.AvatarCredits)
	}
	if u.PhotoCredits != 0 {
		t.Errorf("photo credits = %d, want 0", u.PhotoCredits)
	}
	rep := notifier.successReports[0]
	if rep.Result.BonusAvatar {
		t.Error("bonus avatar granted for avatar-only tariff")
	}
	if !u.FirstPurchaseCompleted {
		t.Error("first purchase flag must still be set for avatar-only tariff")
	}
}

func TestSecondPaymentNeverRepeatsBonus(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	svc, notifier, _ := newTestService(store)

	if err := svc.ProcessPayment(context.Background(), event("p1", 1, 399.00)); err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if err := svc.ProcessPayment(context.Background(), event("p2", 1, 599.00)); err != nil {
		t.Fatalf("second payment: %v", err)
	}

	u := store.users[1]
	if u.PhotoCredits != 35 {
		t.Errorf("photo credits = %d, want 35", u.PhotoCredits)
	}
	if u.AvatarCredits != 1 {
		t.Errorf("avatar credits = %d, want 1 (bonus only once)", u.AvatarCredits)
	}
	second := notifier.successReports[1]
	if second.Result.IsFirstPurchase || second.Result.BonusAvatar {
		t.Error("second payment flagged as first purchase")
	}
	if second.Result.PriorPayments != 1 {
		t.Errorf("second payment prior count = %d, want 1", second.Result.PriorPayments)
	}
}

func TestUnknownTariffRejectsWithoutCrediting(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	svc, notifier, _ := newTestService(store)

	err := svc.ProcessPayment(context.Background(), event("p3", 1, 1000000.00))
	if !errors.Is(err, ErrUnknownTariff) {
		t.Fatalf("err = %v, want ErrUnknownTariff", err)
	}

	u := store.users[1]
	if u.PhotoCredits != 0 || u.AvatarCredits != 0 {
		t.Error("balance changed for unresolvable tariff")
	}
	if len(store.payments) != 0 {
		t.Error("payment record created for unresolvable tariff")
	}
	if len(notifier.warnings) == 0 {
		t.Error("operators not notified about unresolvable tariff")
	}
	if len(notifier.successReports) != 0 {
		t.Error("success report sent for rejected payment")
	}
}

func TestIdempotencyCheckFailureAborts(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	store.existsErr = errors.New("store unreachable")
	svc, notifier, _ := newTestService(store)

	err := svc.ProcessPayment(context.Background(), event("p1", 1, 399.00))
	if err == nil {
		t.Fatal("expected hard error when idempotency check is unavailable")
	}
	if errors.Is(err, ErrDuplicatePayment) {
		t.Fatal("ambiguous check must not be treated as duplicate")
	}
	if store.users[1].PhotoCredits != 0 {
		t.Error("credits applied despite failed idempotency check")
	}
	if len(notifier.warnings) == 0 {
		t.Error("operators not notified about aborted pipeline")
	}
}

func TestDuplicateRaceRollsBackIncrements(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	store.payments["p1"] = &models.PaymentRecord{PaymentID: "p1", UserID: 1}
	// Гонка: проверка идемпотентности ещё не видит строку конкурента.
	notProcessed := false
	store.existsResult = &notProcessed
	svc, _, _ := newTestService(store)

	err := svc.ProcessPayment(context.Background(), event("p1", 1, 399.00))
	if !errors.Is(err, ErrDuplicatePayment) {
		t.Fatalf("err = %v, want ErrDuplicatePayment", err)
	}
	if store.rollbackCalls == 0 {
		t.Error("transaction not rolled back after losing the duplicate race")
	}
	u := store.users[1]
	if u.PhotoCredits != 0 || u.AvatarCredits != 0 {
		t.Errorf("increments leaked: photos=%d avatars=%d", u.PhotoCredits, u.AvatarCredits)
	}
}

func TestCreditingFailureRollsBackAndReports(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	store.creditsErr = errors.New("disk on fire")
	svc, notifier, _ := newTestService(store)

	err := svc.ProcessPayment(context.Background(), event("p1", 1, 399.00))
	if err == nil {
		t.Fatal("expected crediting error")
	}
	if len(store.payments) != 0 {
		t.Error("ledger row exists despite failed crediting")
	}
	if len(notifier.failedUsers) != 1 || notifier.failedUsers[0] != 1 {
		t.Error("user not shown the generic failure message")
	}
	if len(notifier.warnings) == 0 {
		t.Error("operators not notified about crediting failure")
	}
}

func TestBlockedReferrerDegradesToWarning(t *testing.T) {
	store := newStoreStub()
	refID := int64(99)
	store.addUser(models.User{ID: 99, IsBlocked: true})
	store.addUser(models.User{ID: 1, ReferrerID: &refID})
	svc, notifier, _ := newTestService(store)

	if err := svc.ProcessPayment(context.Background(), event("p1", 1, 399.00)); err != nil {
		t.Fatalf("referral failure must not block crediting: %v", err)
	}
	if store.users[1].PhotoCredits != 10 {
		t.Error("user not credited")
	}
	found := false
	for _, w := range notifier.warnings {
		if strings.Contains(w, "реферальную связь") {
			found = true
		}
	}
	if !found {
		t.Error("no operator warning about unrepairable referral")
	}
}

func TestReferralRepairedFromHistory(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 50})
	store.addUser(models.User{ID: 1})
	store.relations[1] = &models.ReferralRelation{ReferredUserID: 1, ReferrerID: 50}
	svc, notifier, _ := newTestService(store)

	if err := svc.ProcessPayment(context.Background(), event("p1", 1, 399.00)); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	u := store.users[1]
	if u.ReferrerID == nil || *u.ReferrerID != 50 {
		t.Fatal("referrer not repaired from relation history")
	}
	rep := notifier.successReports[0]
	if rep.ReferrerID == nil || *rep.ReferrerID != 50 {
		t.Error("operator report missing repaired referrer")
	}
}

func TestFlagUpdaterRetriesTransientErrors(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	store.flagErrs = []error{
		&pgconn.PgError{Code: "40001"},
		&pgconn.PgError{Code: "40P01"},
	}
	svc, notifier, _ := newTestService(store)

	if err := svc.ProcessPayment(context.Background(), event("p1", 1, 399.00)); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if !store.users[1].FirstPurchaseCompleted {
		t.Error("flag not set after transient failures")
	}
	if store.flagCalls != 3 {
		t.Errorf("flag update attempts = %d, want 3", store.flagCalls)
	}
	if len(notifier.criticals) != 0 {
		t.Errorf("criticals = %d, want 0 after eventual success", len(notifier.criticals))
	}
}

func TestFlagUpdaterEscalatesExactlyOnce(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	store.flagErrs = []error{errors.New("column dropped")}
	svc, notifier, _ := newTestService(store)

	// Постоянная ошибка не ретраится, но платёж остаётся начисленным.
	if err := svc.ProcessPayment(context.Background(), event("p1", 1, 399.00)); err != nil {
		t.Fatalf("pipeline must succeed after CREDITED: %v", err)
	}
	if len(notifier.criticals) != 1 {
		t.Fatalf("criticals = %d, want exactly 1", len(notifier.criticals))
	}
	if store.users[1].PhotoCredits != 10 {
		t.Error("payment lost together with the flag")
	}
	if store.users[1].FirstPurchaseCompleted {
		t.Error("flag unexpectedly set")
	}
	if len(notifier.successReports) != 1 {
		t.Error("user notification skipped after flag failure")
	}
}

func TestCancelledCallerContextDoesNotAbortPipeline(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	svc, notifier, _ := newTestService(store)

	// Провайдер оборвал HTTP-запрос сразу после доставки события.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.ProcessPayment(ctx, event("p1", 1, 399.00)); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	u := store.users[1]
	if u.PhotoCredits != 10 || u.AvatarCredits != 1 {
		t.Errorf("credits = %d/%d, want 10/1", u.PhotoCredits, u.AvatarCredits)
	}
	if store.flagCalls != 1 {
		t.Errorf("flag update calls = %d, want 1", store.flagCalls)
	}
	if !u.FirstPurchaseCompleted {
		t.Error("first_purchase_completed not set")
	}
	if len(notifier.criticals) != 0 {
		t.Errorf("criticals = %d, want 0: %v", len(notifier.criticals), notifier.criticals)
	}
	if len(notifier.successReports) != 1 {
		t.Error("user notification skipped")
	}
}

func TestBalancesNeverGoNegative(t *testing.T) {
	store := newStoreStub()
	store.addUser(models.User{ID: 1})
	svc, _, _ := newTestService(store)

	payments := []struct {
		id     string
		amount float64
	}{
		{"p1", 399.00}, {"p2", 590.00}, {"p3", 599.00}, {"p4", 3199.00},
	}
	for _, p := range payments {
		if err := svc.ProcessPayment(context.Background(), event(p.id, 1, p.amount)); err != nil {
			t.Fatalf("payment %s: %v", p.id, err)
		}
		u := store.users[1]
		if u.PhotoCredits < 0 || u.AvatarCredits < 0 {
			t.Fatalf("negative balance after %s: photos=%d avatars=%d", p.id, u.PhotoCredits, u.AvatarCredits)
		}
	}
	if store.stats[1].TotalPayments != 4 {
		t.Errorf("stats total_payments = %d, want 4", store.stats[1].TotalPayments)
	}
}
