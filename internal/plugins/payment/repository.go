package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lichtbild/galerie/internal/apperror"
)

// PaymentRepository defines the data access contract for payments.
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	FindByReference(ctx context.Context, reference string) (*Payment, error)

	// Confirm flips a pending record to verified in one conditional update.
	// Returns NotFound if the reference is unknown or already processed.
	Confirm(ctx context.Context, reference, transactionID string) error

	// IsVerified reports whether a verified payment exists for the
	// (gallery, email) pair. This is the predicate the access resolver
	// consults on every paywalled view.
	IsVerified(ctx context.Context, galleryID, email string) (bool, error)
}

// paymentRepository implements PaymentRepository with MariaDB queries.
type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository creates a new repository backed by the given DB pool.
func NewPaymentRepository(db *sql.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, p *Payment) error {
	query := `INSERT INTO gallery_payments (id, gallery_id, user_id, email, amount, currency, payment_reference, payment_status, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.GalleryID, p.UserID, p.Email,
		p.Amount, p.Currency, p.Reference, p.Status, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) FindByReference(ctx context.Context, reference string) (*Payment, error) {
	query := `SELECT id, gallery_id, user_id, email, amount, currency, payment_reference, payment_status, paypal_transaction_id, verified_at, created_at
	          FROM gallery_payments WHERE payment_reference = ?`

	p := &Payment{}
	var transactionID sql.NullString
	err := r.db.QueryRowContext(ctx, query, reference).Scan(
		&p.ID, &p.GalleryID, &p.UserID, &p.Email,
		&p.Amount, &p.Currency, &p.Reference, &p.Status,
		&transactionID, &p.VerifiedAt, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("payment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	p.TransactionID = transactionID.String
	return p, nil
}

// Confirm is conditional on the pending status, so a replayed confirmation
// cannot re-verify (or overwrite the transaction id of) a processed record.
func (r *paymentRepository) Confirm(ctx context.Context, reference, transactionID string) error {
	query := `UPDATE gallery_payments
	          SET payment_status = ?, paypal_transaction_id = ?, verified_at = NOW()
	          WHERE payment_reference = ? AND payment_status = ?`

	result, err := r.db.ExecContext(ctx, query, StatusVerified, transactionID, reference, StatusPending)
	if err != nil {
		return fmt.Errorf("confirming payment: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperror.NewNotFound("payment not found or already processed")
	}
	return nil
}

func (r *paymentRepository) IsVerified(ctx context.Context, galleryID, email string) (bool, error) {
	query := `SELECT EXISTS(
	              SELECT 1 FROM gallery_payments
	              WHERE gallery_id = ? AND email = ? AND payment_status = ?
	          )`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, galleryID, email, StatusVerified).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking payment status: %w", err)
	}
	return exists, nil
}
