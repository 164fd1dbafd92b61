package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"GigSafe/internal/models"
)

const (
	kindUser        = "user"
	kindGig         = "gig"
	kindApplication = "application"
	kindPayment     = "payment"
	kindHistory     = "payment_history"
	kindFeeConfig   = "fee_configuration"
)

type docKey struct {
	kind string
	id   string
}

// collectionKey versions the membership of a scoped collection, so that a
// transaction which listed it conflicts with one that inserted into it.
func collectionKey(kind, scope string) docKey {
	return docKey{kind: kind + "@", id: scope}
}

type document struct {
	version uint64
	seq     int64
	value   any
}

// MemoryStore keeps every record in process memory. Transactions are
// optimistic: reads are versioned, writes are staged, and commit fails with
// ErrTransactionConflict when anything read has changed underneath.
type MemoryStore struct {
	mu            sync.Mutex
	docs          map[docKey]*document
	settings      map[string]models.PlatformSetting
	notifications []*models.Notification
	seq           int64
	writes        int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[docKey]*document),
		settings: make(map[string]models.PlatformSetting),
	}
}

// Writes reports how many documents have been written through transactions and
// store methods. Seeding is not counted.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *MemoryStore) SeedUser(u models.User) {
	s.seed(kindUser, u.ID, u)
}

func (s *MemoryStore) SeedGig(g models.Gig) {
	s.seed(kindGig, g.ID, g)
}

func (s *MemoryStore) SeedApplication(a models.Application) {
	s.seed(kindApplication, a.ID, a)
}

func (s *MemoryStore) SeedPayment(p models.Payment) {
	s.seed(kindPayment, p.ID, p)
}

func (s *MemoryStore) SeedPaymentHistory(h models.PaymentHistory) {
	s.seed(kindHistory, h.ID, h)
}

func (s *MemoryStore) SeedFeeConfiguration(f models.FeeConfiguration) {
	s.seed(kindFeeConfig, f.ID, f)
}

func (s *MemoryStore) seed(kind, id string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.docs[docKey{kind, id}] = &document{version: 1, seq: s.seq, value: value}
}

func (s *MemoryStore) versionLocked(key docKey) uint64 {
	if doc, ok := s.docs[key]; ok {
		return doc.version
	}
	return 0
}

func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		store:   s,
		reads:   make(map[docKey]uint64),
		writes:  make(map[docKey]any),
		touched: make(map[docKey]struct{}),
	}
	tx.memoryReader = memoryReader{src: tx}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, version := range tx.reads {
		if s.versionLocked(key) != version {
			return fmt.Errorf("%w: %s %s was modified concurrently", ErrTransactionConflict, key.kind, key.id)
		}
	}
	for _, key := range tx.order {
		doc, ok := s.docs[key]
		if !ok {
			s.seq++
			doc = &document{seq: s.seq}
			s.docs[key] = doc
		}
		doc.version++
		doc.value = tx.writes[key]
		s.writes++
	}
	for key := range tx.touched {
		doc, ok := s.docs[key]
		if !ok {
			doc = &document{}
			s.docs[key] = doc
		}
		doc.version++
	}
	return nil
}

// source abstracts committed state and transactional state for memoryReader.
type source interface {
	get(key docKey) (any, bool)
	scan(kind string, collection docKey, match func(any) bool) []any
}

type committedView struct {
	store *MemoryStore
}

func (v committedView) get(key docKey) (any, bool) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	doc, ok := v.store.docs[key]
	if !ok {
		return nil, false
	}
	return doc.value, true
}

func (v committedView) scan(kind string, _ docKey, match func(any) bool) []any {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	docs := make([]*document, 0)
	for key, doc := range v.store.docs {
		if key.kind == kind && match(doc.value) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })
	out := make([]any, len(docs))
	for i, doc := range docs {
		out[i] = doc.value
	}
	return out
}

type memoryReader struct {
	src source
}

func (r memoryReader) GetUser(_ context.Context, id string) (*models.User, error) {
	v, ok := r.src.get(docKey{kindUser, id})
	if !ok {
		return nil, ErrNotFound
	}
	u := v.(models.User)
	return &u, nil
}

func (r memoryReader) GetGig(_ context.Context, id string) (*models.Gig, error) {
	v, ok := r.src.get(docKey{kindGig, id})
	if !ok {
		return nil, ErrNotFound
	}
	g := v.(models.Gig)
	return &g, nil
}

func (r memoryReader) GetApplication(_ context.Context, id string) (*models.Application, error) {
	v, ok := r.src.get(docKey{kindApplication, id})
	if !ok {
		return nil, ErrNotFound
	}
	a := v.(models.Application)
	return &a, nil
}

func (r memoryReader) ListApplicationsByGig(_ context.Context, gigID string) ([]models.Application, error) {
	values := r.src.scan(kindApplication, collectionKey(kindApplication, gigID), func(v any) bool {
		return v.(models.Application).GigID == gigID
	})
	apps := make([]models.Application, 0, len(values))
	for _, v := range values {
		apps = append(apps, v.(models.Application))
	}
	return apps, nil
}

func (r memoryReader) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	v, ok := r.src.get(docKey{kindPayment, id})
	if !ok {
		return nil, ErrNotFound
	}
	p := v.(models.Payment)
	return &p, nil
}

func (r memoryReader) FindPaymentHistory(_ context.Context, q PaymentHistoryQuery) ([]models.PaymentHistory, error) {
	values := r.src.scan(kindHistory, collectionKey(kindHistory, q.UserID), func(v any) bool {
		h := v.(models.PaymentHistory)
		return (q.UserID == "" || h.UserID == q.UserID) &&
			(q.GigID == "" || h.GigID == q.GigID) &&
			(q.Type == "" || h.Type == q.Type) &&
			(q.Status == "" || h.Status == q.Status)
	})
	entries := make([]models.PaymentHistory, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		entries = append(entries, values[i].(models.PaymentHistory))
	}
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	return entries, nil
}

func (s *MemoryStore) view() memoryReader {
	return memoryReader{src: committedView{store: s}}
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.view().GetUser(ctx, id)
}

func (s *MemoryStore) GetGig(ctx context.Context, id string) (*models.Gig, error) {
	return s.view().GetGig(ctx, id)
}

func (s *MemoryStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	return s.view().GetApplication(ctx, id)
}

func (s *MemoryStore) ListApplicationsByGig(ctx context.Context, gigID string) ([]models.Application, error) {
	return s.view().ListApplicationsByGig(ctx, gigID)
}

func (s *MemoryStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return s.view().GetPayment(ctx, id)
}

func (s *MemoryStore) FindPaymentHistory(ctx context.Context, q PaymentHistoryQuery) ([]models.PaymentHistory, error) {
	return s.view().FindPaymentHistory(ctx, q)
}

func (s *MemoryStore) applications(match func(models.Application) bool) []models.Application {
	values := committedView{store: s}.scan(kindApplication, docKey{}, func(v any) bool {
		return match(v.(models.Application))
	})
	apps := make([]models.Application, 0, len(values))
	for _, v := range values {
		apps = append(apps, v.(models.Application))
	}
	return apps
}

func (s *MemoryStore) ListDisputedApplications(_ context.Context) ([]models.Application, error) {
	return s.applications(func(a models.Application) bool {
		return a.Status == models.ApplicationFunded && a.IsDisputed()
	}), nil
}

func (s *MemoryStore) ListDueAutoReleases(_ context.Context, now time.Time, limit int) ([]models.Application, error) {
	apps := s.applications(func(a models.Application) bool {
		return a.AutoReleaseDue(now) && !a.AutoReleaseBackingOff(now)
	})
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].CompletionAutoReleaseAt.Before(*apps[j].CompletionAutoReleaseAt)
	})
	if limit > 0 && len(apps) > limit {
		apps = apps[:limit]
	}
	return apps, nil
}

func (s *MemoryStore) ActiveFeeConfiguration(_ context.Context) (*models.FeeConfiguration, error) {
	values := committedView{store: s}.scan(kindFeeConfig, docKey{}, func(v any) bool {
		return v.(models.FeeConfiguration).IsActive
	})
	var active *models.FeeConfiguration
	for _, v := range values {
		cfg := v.(models.FeeConfiguration)
		if active == nil || cfg.Version > active.Version {
			active = &cfg
		}
	}
	if active == nil {
		return nil, ErrNotFound
	}
	return active, nil
}

func (s *MemoryStore) GetSetting(_ context.Context, key string) (*models.PlatformSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setting, ok := s.settings[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &setting, nil
}

func (s *MemoryStore) UpsertSetting(_ context.Context, setting *models.PlatformSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if setting.UpdatedAt.IsZero() {
		setting.UpdatedAt = time.Now()
	}
	stored := detach(*setting)
	s.settings[stored.Key] = stored
	s.writes++
	return nil
}

func (s *MemoryStore) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	stored := detach(*n)
	s.notifications = append(s.notifications, &stored)
	s.writes++
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]models.Notification, 0)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		list = append(list, *n)
		if limit > 0 && len(list) == limit {
			break
		}
	}
	return list, nil
}

func (s *MemoryStore) CountUnreadNotifications(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, userID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			n.ReadAt = &at
			s.writes++
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			s.writes++
		}
	}
	return nil
}

func (s *MemoryStore) DeleteNotification(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			s.writes++
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) DeleteReadNotifications(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.notifications[:0]
	var removed int64
	for _, n := range s.notifications {
		if n.UserID == userID && n.IsRead {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	s.notifications = kept
	if removed > 0 {
		s.writes++
	}
	return removed, nil
}

type memoryTx struct {
	memoryReader
	store   *MemoryStore
	reads   map[docKey]uint64
	writes  map[docKey]any
	order   []docKey
	touched map[docKey]struct{}
}

func (t *memoryTx) recordLocked(key docKey) {
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = t.store.versionLocked(key)
	}
}

func (t *memoryTx) get(key docKey) (any, bool) {
	if v, ok := t.writes[key]; ok {
		return v, true
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.recordLocked(key)
	doc, ok := t.store.docs[key]
	if !ok {
		return nil, false
	}
	return doc.value, true
}

func (t *memoryTx) scan(kind string, collection docKey, match func(any) bool) []any {
	type hit struct {
		seq   int64
		value any
	}
	hits := make([]hit, 0)
	seen := make(map[docKey]bool)

	t.store.mu.Lock()
	if collection != (docKey{}) {
		t.recordLocked(collection)
	}
	for key, doc := range t.store.docs {
		if key.kind != kind {
			continue
		}
		seen[key] = true
		value := doc.value
		if staged, ok := t.writes[key]; ok {
			value = staged
		}
		committedMatch := match(doc.value)
		if committedMatch {
			t.recordLocked(key)
		}
		if match(value) {
			t.recordLocked(key)
			hits = append(hits, hit{seq: doc.seq, value: value})
		}
	}
	t.store.mu.Unlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	out := make([]any, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.value)
	}
	for _, key := range t.order {
		if key.kind != kind || seen[key] {
			continue
		}
		if v := t.writes[key]; match(v) {
			out = append(out, v)
		}
	}
	return out
}

func (t *memoryTx) put(key docKey, value any) {
	key, value = detachKey(key), detach(value)
	if _, staged := t.writes[key]; !staged {
		t.order = append(t.order, key)
	}
	t.writes[key] = value
}

func (t *memoryTx) insert(kind, id, scope string, value any) error {
	key := docKey{kind, id}
	if _, exists := t.get(key); exists {
		return fmt.Errorf("%w: %s %s already exists", ErrTransactionConflict, kind, id)
	}
	t.put(key, value)
	if scope != "" {
		t.touched[detachKey(collectionKey(kind, scope))] = struct{}{}
	}
	t.touched[collectionKey(kind, "")] = struct{}{}
	return nil
}

func stamp(id *string, createdAt, updatedAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	now := time.Now()
	if createdAt != nil && createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt != nil {
		*updatedAt = now
	}
}

func (t *memoryTx) CreateGig(_ context.Context, gig *models.Gig) error {
	stamp(&gig.ID, &gig.CreatedAt, &gig.UpdatedAt)
	return t.insert(kindGig, gig.ID, "", *gig)
}

func (t *memoryTx) UpdateGig(ctx context.Context, id string, patch models.GigPatch) error {
	gig, err := t.GetGig(ctx, id)
	if err != nil {
		return err
	}
	patch.Apply(gig)
	gig.UpdatedAt = time.Now()
	t.put(docKey{kindGig, id}, *gig)
	return nil
}

func (t *memoryTx) CreateApplication(_ context.Context, app *models.Application) error {
	stamp(&app.ID, &app.CreatedAt, &app.UpdatedAt)
	return t.insert(kindApplication, app.ID, app.GigID, *app)
}

func (t *memoryTx) UpdateApplication(ctx context.Context, id string, patch models.ApplicationPatch) error {
	app, err := t.GetApplication(ctx, id)
	if err != nil {
		return err
	}
	patch.Apply(app)
	app.UpdatedAt = time.Now()
	t.put(docKey{kindApplication, id}, *app)
	return nil
}

func (t *memoryTx) IncrementUserBalances(ctx context.Context, id string, delta models.BalanceDelta) error {
	user, err := t.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}
	delta.Apply(user)
	user.UpdatedAt = time.Now()
	t.put(docKey{kindUser, id}, *user)
	return nil
}

func (t *memoryTx) SetUserPendingBalance(ctx context.Context, id string, amount float64) error {
	user, err := t.GetUser(ctx, id)
	if err != nil {
		return err
	}
	user.PendingBalance = amount
	user.UpdatedAt = time.Now()
	t.put(docKey{kindUser, id}, *user)
	return nil
}

func (t *memoryTx) CreatePayment(_ context.Context, payment *models.Payment) error {
	stamp(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	return t.insert(kindPayment, payment.ID, "", *payment)
}

func (t *memoryTx) MarkPaymentReleased(ctx context.Context, id string, at time.Time) error {
	payment, err := t.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	payment.Status = models.PaymentReleased
	payment.ReleasedAt = &at
	payment.UpdatedAt = time.Now()
	t.put(docKey{kindPayment, id}, *payment)
	return nil
}

func (t *memoryTx) CreatePaymentHistory(_ context.Context, entry *models.PaymentHistory) error {
	stamp(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	return t.insert(kindHistory, entry.ID, entry.UserID, *entry)
}

func (t *memoryTx) CompletePaymentHistory(_ context.Context, id string, amount float64, description string, at time.Time) error {
	v, ok := t.get(docKey{kindHistory, id})
	if !ok {
		return ErrNotFound
	}
	entry := v.(models.PaymentHistory)
	entry.Status = models.HistoryCompleted
	entry.Amount = amount
	entry.Description = description
	entry.CompletedAt = &at
	entry.UpdatedAt = time.Now()
	t.put(docKey{kindHistory, id}, entry)
	return nil
}

func (t *memoryTx) feeConfigurations() []models.FeeConfiguration {
	values := t.scan(kindFeeConfig, collectionKey(kindFeeConfig, ""), func(any) bool { return true })
	configs := make([]models.FeeConfiguration, 0, len(values))
	for _, v := range values {
		configs = append(configs, v.(models.FeeConfiguration))
	}
	return configs
}

func (t *memoryTx) LatestFeeConfigurationVersion(_ context.Context) (int, error) {
	latest := 0
	for _, cfg := range t.feeConfigurations() {
		if cfg.Version > latest {
			latest = cfg.Version
		}
	}
	return latest, nil
}

func (t *memoryTx) DeactivateFeeConfigurations(_ context.Context) error {
	for _, cfg := range t.feeConfigurations() {
		if cfg.IsActive {
			cfg.IsActive = false
			t.put(docKey{kindFeeConfig, cfg.ID}, cfg)
		}
	}
	return nil
}

func (t *memoryTx) CreateFeeConfiguration(_ context.Context, cfg *models.FeeConfiguration) error {
	stamp(&cfg.ID, &cfg.CreatedAt, nil)
	return t.insert(kindFeeConfig, cfg.ID, "", *cfg)
}
