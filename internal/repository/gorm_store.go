package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"GigSafe/internal/models"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

type GormStore struct {
	gormReader
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{gormReader{db: db}}
}

// RunInTransaction runs fn in a serializable transaction. Rows read through the
// transaction are locked FOR UPDATE.
func (s *GormStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{gormReader{db: db, lock: true}})
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return translateError(err)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTransactionConflict) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrTransactionConflict, pgErr.Message)
		}
	}
	return err
}

type gormReader struct {
	db   *gorm.DB
	lock bool
}

func (r gormReader) query(ctx context.Context) *gorm.DB {
	db := r.db.WithContext(ctx)
	if r.lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (r gormReader) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.query(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

func (r gormReader) GetGig(ctx context.Context, id string) (*models.Gig, error) {
	var gig models.Gig
	if err := r.query(ctx).First(&gig, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &gig, nil
}

func (r gormReader) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := r.query(ctx).First(&app, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &app, nil
}

func (r gormReader) ListApplicationsByGig(ctx context.Context, gigID string) ([]models.Application, error) {
	var apps []models.Application
	err := r.query(ctx).
		Where("gig_id = ?", gigID).
		Order("created_at ASC").
		Find(&apps).Error
	return apps, translateError(err)
}

func (r gormReader) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.query(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &payment, nil
}

func (r gormReader) FindPaymentHistory(ctx context.Context, q PaymentHistoryQuery) ([]models.PaymentHistory, error) {
	db := r.query(ctx).Model(&models.PaymentHistory{})
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.GigID != "" {
		db = db.Where("gig_id = ?", q.GigID)
	}
	if q.Type != "" {
		db = db.Where("type = ?", q.Type)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	var entries []models.PaymentHistory
	err := db.Order("created_at DESC").Find(&entries).Error
	return entries, translateError(err)
}

func (s *GormStore) ListDisputedApplications(ctx context.Context) ([]models.Application, error) {
	var apps []models.Application
	err := s.db.WithContext(ctx).
		Where("status = ?", models.ApplicationFunded).
		Where("completion_disputed_at IS NOT NULL AND completion_resolved_at IS NULL").
		Order("completion_disputed_at ASC").
		Find(&apps).Error
	return apps, translateError(err)
}

func (s *GormStore) ListDueAutoReleases(ctx context.Context, now time.Time, limit int) ([]models.Application, error) {
	db := s.db.WithContext(ctx).
		Where("status = ?", models.ApplicationFunded).
		Where("completion_requested_at IS NOT NULL").
		Where("completion_disputed_at IS NULL").
		Where("completion_auto_release_at <= ?", now).
		Where("(auto_release_failed_at IS NULL OR auto_release_failed_at <= ?)", now.Add(-models.AutoReleaseRetryAfter)).
		Order("completion_auto_release_at ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	var apps []models.Application
	err := db.Find(&apps).Error
	return apps, translateError(err)
}

func (s *GormStore) ActiveFeeConfiguration(ctx context.Context) (*models.FeeConfiguration, error) {
	var cfg models.FeeConfiguration
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("version DESC").
		First(&cfg).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &cfg, nil
}

func (s *GormStore) GetSetting(ctx context.Context, key string) (*models.PlatformSetting, error) {
	var setting models.PlatformSetting
	if err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		return nil, translateError(err)
	}
	return &setting, nil
}

func (s *GormStore) UpsertSetting(ctx context.Context, setting *models.PlatformSetting) error {
	return translateError(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(setting).Error)
}

func (s *GormStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return translateError(s.db.WithContext(ctx).Create(n).Error)
}

func (s *GormStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	db := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		db = db.Where("is_read = ?", false)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	var list []models.Notification
	err := db.Order("created_at DESC").Find(&list).Error
	return list, translateError(err)
}

func (s *GormStore) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, translateError(err)
}

func (s *GormStore) MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"is_read": true, "read_at": at})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) error {
	return translateError(s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": at}).Error)
}

func (s *GormStore) DeleteNotification(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteReadNotifications(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ? AND is_read = ?", userID, true).Delete(&models.Notification{})
	return res.RowsAffected, translateError(res.Error)
}

type gormTx struct {
	gormReader
}

func (t *gormTx) CreateGig(ctx context.Context, gig *models.Gig) error {
	return translateError(t.db.WithContext(ctx).Create(gig).Error)
}

func (t *gormTx) UpdateGig(ctx context.Context, id string, patch models.GigPatch) error {
	return t.updateColumns(ctx, &models.Gig{}, id, patch.Columns())
}

func (t *gormTx) CreateApplication(ctx context.Context, app *models.Application) error {
	return translateError(t.db.WithContext(ctx).Create(app).Error)
}

func (t *gormTx) UpdateApplication(ctx context.Context, id string, patch models.ApplicationPatch) error {
	return t.updateColumns(ctx, &models.Application{}, id, patch.Columns())
}

func (t *gormTx) IncrementUserBalances(ctx context.Context, id string, delta models.BalanceDelta) error {
	cols := map[string]any{}
	if delta.PendingBalance != 0 {
		cols["pending_balance"] = gorm.Expr("pending_balance + ?", delta.PendingBalance)
	}
	if delta.WalletBalance != 0 {
		cols["wallet_balance"] = gorm.Expr("wallet_balance + ?", delta.WalletBalance)
	}
	if delta.TotalEarnings != 0 {
		cols["total_earnings"] = gorm.Expr("total_earnings + ?", delta.TotalEarnings)
	}
	if delta.CompletedGigs != 0 {
		cols["completed_gigs"] = gorm.Expr("completed_gigs + ?", delta.CompletedGigs)
	}
	return t.updateColumns(ctx, &models.User{}, id, cols)
}

func (t *gormTx) SetUserPendingBalance(ctx context.Context, id string, amount float64) error {
	return t.updateColumns(ctx, &models.User{}, id, map[string]any{"pending_balance": amount})
}

func (t *gormTx) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return translateError(t.db.WithContext(ctx).Create(payment).Error)
}

func (t *gormTx) MarkPaymentReleased(ctx context.Context, id string, at time.Time) error {
	return t.updateColumns(ctx, &models.Payment{}, id, map[string]any{
		"status":      models.PaymentReleased,
		"released_at": at,
	})
}

func (t *gormTx) CreatePaymentHistory(ctx context.Context, entry *models.PaymentHistory) error {
	return translateError(t.db.WithContext(ctx).Create(entry).Error)
}

func (t *gormTx) CompletePaymentHistory(ctx context.Context, id string, amount float64, description string, at time.Time) error {
	return t.updateColumns(ctx, &models.PaymentHistory{}, id, map[string]any{
		"status":       models.HistoryCompleted,
		"amount":       amount,
		"description":  description,
		"completed_at": at,
	})
}

func (t *gormTx) LatestFeeConfigurationVersion(ctx context.Context) (int, error) {
	var version int
	err := t.db.WithContext(ctx).Model(&models.FeeConfiguration{}).
		Select("COALESCE(MAX(version), 0)").
		Scan(&version).Error
	return version, translateError(err)
}

func (t *gormTx) DeactivateFeeConfigurations(ctx context.Context) error {
	return translateError(t.db.WithContext(ctx).Model(&models.FeeConfiguration{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error)
}

func (t *gormTx) CreateFeeConfiguration(ctx context.Context, cfg *models.FeeConfiguration) error {
	return translateError(t.db.WithContext(ctx).Create(cfg).Error)
}

func (t *gormTx) updateColumns(ctx context.Context, model any, id string, cols map[string]any) error {
	if len(cols) == 0 {
		return nil
	}
	res := t.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
