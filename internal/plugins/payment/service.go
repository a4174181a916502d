package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/plugins/auth"
	"github.com/lichtbild/galerie/internal/plugins/gallery"
)

// PaymentService handles the purchase lifecycle and answers the verified
// predicate for the access resolver.
type PaymentService interface {
	// Initiate starts a purchase for a paywalled gallery. If the actor's
	// email already carries a verified payment, no new record is created.
	Initiate(ctx context.Context, galleryID string, session *auth.Session) (*InitiateResult, error)

	// GetByReference looks up a payment for the verification page.
	GetByReference(ctx context.Context, reference string) (*Payment, error)

	// Confirm marks a pending payment verified and grants the buyer a
	// standing gallery assignment when they have an account.
	Confirm(ctx context.Context, reference, transactionID string) (*Payment, error)

	// IsVerified implements the access resolver's payment predicate.
	IsVerified(ctx context.Context, galleryID, email string) (bool, error)
}

type paymentService struct {
	repo         PaymentRepository
	galleries    gallery.GalleryRepository
	paypalHandle string
}

// NewPaymentService creates a payment service. paypalHandle is the
// PayPal.me account payments are directed to.
func NewPaymentService(repo PaymentRepository, galleries gallery.GalleryRepository, paypalHandle string) PaymentService {
	return &paymentService{
		repo:         repo,
		galleries:    galleries,
		paypalHandle: paypalHandle,
	}
}

func (s *paymentService) Initiate(ctx context.Context, galleryID string, session *auth.Session) (*InitiateResult, error) {
	g, err := s.galleries.FindByID(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	if !g.HasPaywall {
		return nil, apperror.NewNotFound("gallery has no paywall configured")
	}

	email := ""
	var userID *string
	if session != nil && session.IsAuthenticated() {
		email = session.Email
		userID = &session.UserID
	}

	if email != "" {
		verified, err := s.repo.IsVerified(ctx, g.ID, email)
		if err != nil {
			return nil, apperror.NewInternal(err)
		}
		if verified {
			return &InitiateResult{AlreadyPaid: true, RedirectTo: gallery.ViewPath(g.ID)}, nil
		}
	}

	reference, err := generateReference(g.ID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating payment reference: %w", err))
	}

	p := &Payment{
		ID:        uuid.NewString(),
		GalleryID: g.ID,
		UserID:    userID,
		Email:     email,
		Amount:    g.PriceAmount,
		Currency:  g.PriceCurrency,
		Reference: reference,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperror.NewInternal(err)
	}

	amount := formatAmount(g.PriceAmount)
	currency := strings.ToUpper(g.PriceCurrency)

	slog.Info("payment initiated",
		slog.String("gallery_id", g.ID),
		slog.String("reference", reference),
		slog.String("amount", amount+" "+currency),
	)

	return &InitiateResult{
		Reference:   reference,
		PayPalURL:   fmt.Sprintf("https://paypal.me/%s/%s%s", s.paypalHandle, amount, currency),
		Amount:      amount,
		Currency:    currency,
		GalleryName: g.Name,
	}, nil
}

func (s *paymentService) GetByReference(ctx context.Context, reference string) (*Payment, error) {
	return s.repo.FindByReference(ctx, reference)
}

func (s *paymentService) Confirm(ctx context.Context, reference, transactionID string) (*Payment, error) {
	if transactionID == "" {
		transactionID = fmt.Sprintf("MANUAL_%d", time.Now().Unix())
	}

	if err := s.repo.Confirm(ctx, reference, transactionID); err != nil {
		return nil, err
	}

	p, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	// Buyers with an account get a durable assignment so future visits
	// skip the payment predicate entirely.
	if p.UserID != nil {
		if err := s.galleries.AddAssignment(ctx, *p.UserID, p.GalleryID); err != nil {
			slog.Error("granting assignment after payment",
				slog.String("reference", reference),
				slog.Any("error", err),
			)
		}
	}

	slog.Info("payment verified",
		slog.String("gallery_id", p.GalleryID),
		slog.String("reference", reference),
	)
	return p, nil
}

func (s *paymentService) IsVerified(ctx context.Context, galleryID, email string) (bool, error) {
	return s.repo.IsVerified(ctx, galleryID, email)
}

// generateReference builds a unique, human-relayable payment reference.
func generateReference(galleryID string) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("GAL%s_%d_%s", galleryID, time.Now().Unix(), hex.EncodeToString(b)), nil
}

// formatAmount renders cents as a decimal string for PayPal links.
func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
