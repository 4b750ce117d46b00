package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/stayhub/checkout-gateway/internal/models"
)

// AuditStore persists checkout audit entries
type AuditStore interface {
	Log(ctx context.Context, audit *models.CheckoutAudit) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.CheckoutAudit, error)
}

// CheckoutAuditRepository handles checkout audit operations
type CheckoutAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewCheckoutAuditRepository creates a new checkout audit repository
func NewCheckoutAuditRepository(db *sqlx.DB, logger *logrus.Logger) *CheckoutAuditRepository {
	return &CheckoutAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log inserts an audit entry
func (r *CheckoutAuditRepository) Log(ctx context.Context, audit *models.CheckoutAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO checkout_audits (
			id, session_id, user_id, booking_id, service_type,
			event_type, event_source,
			payment_method, coupon_code, expected_amount, charged_amount,
			discount_value, remaining_wallet, optimistic,
			error_message, error_kind, details,
			ip_address, user_agent, device_type, platform, credential_fingerprint,
			processing_time_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17,
			$18, $19, $20, $21, $22,
			$23, $24
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.SessionID, audit.UserID, audit.BookingID, audit.ServiceType,
		audit.EventType, audit.EventSource,
		audit.PaymentMethod, audit.CouponCode, audit.ExpectedAmount, audit.ChargedAmount,
		audit.DiscountValue, audit.RemainingWallet, audit.Optimistic,
		audit.ErrorMessage, audit.ErrorKind, audit.Details,
		audit.IPAddress, audit.UserAgent, audit.DeviceType, audit.Platform, audit.CredentialFingerprint,
		audit.ProcessingTimeMs, audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"booking_id": audit.BookingID,
		}).Error("Failed to log checkout audit")
		return fmt.Errorf("failed to log checkout audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"booking_id": audit.BookingID,
	}).Debug("Checkout audit logged")

	return nil
}

// ListBySession retrieves all audit entries of a session, oldest first
func (r *CheckoutAuditRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.CheckoutAudit, error) {
	var audits []*models.CheckoutAudit
	query := `
		SELECT * FROM checkout_audits
		WHERE session_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to get audits by session: %w", err)
	}

	return audits, nil
}

// PurgeOlderThan deletes audit entries older than the retention window
func (r *CheckoutAuditRepository) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	result, err := r.db.ExecContext(ctx, `DELETE FROM checkout_audits WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge checkout audits: %w", err)
	}

	return result.RowsAffected()
}

// NoopAuditStore is used when no audit database is configured
type NoopAuditStore struct{}

// Log discards the entry
func (NoopAuditStore) Log(context.Context, *models.CheckoutAudit) error { return nil }

// ListBySession always returns an empty history
func (NoopAuditStore) ListBySession(context.Context, uuid.UUID) ([]*models.CheckoutAudit, error) {
	return []*models.CheckoutAudit{}, nil
}
