package gallery

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
)

// accessCodeBytes controls the length of generated access codes
// (4 bytes = 8 hex chars, short enough to share verbally).
const accessCodeBytes = 4

// GalleryService defines the business logic for gallery management.
type GalleryService interface {
	Create(ctx context.Context, req CreateRequest) (*Gallery, error)
	Get(ctx context.Context, id string) (*Gallery, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Gallery, error)
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]GalleryStats, error)
	ListAccessible(ctx context.Context, userID, email string) ([]GalleryStats, error)
}

type galleryService struct {
	repo GalleryRepository
}

// NewGalleryService creates a gallery service.
func NewGalleryService(repo GalleryRepository) GalleryService {
	return &galleryService{repo: repo}
}

// Create validates and persists a new gallery. An access code of "auto"
// generates a random one; paywalled galleries require a positive price.
func (s *galleryService) Create(ctx context.Context, req CreateRequest) (*Gallery, error) {
	g := &Gallery{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := applyRequest(g, req.Name, req.ClientEmail, req.AccessCode, req.IsPublic, req.HasPaywall, req.PriceAmount, req.PriceCurrency); err != nil {
		return nil, err
	}
	g.UpdatedAt = g.CreatedAt

	if err := s.repo.Create(ctx, g); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating gallery: %w", err))
	}

	slog.Info("gallery created",
		slog.String("gallery_id", g.ID),
		slog.String("name", g.Name),
	)
	return g, nil
}

func (s *galleryService) Get(ctx context.Context, id string) (*Gallery, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *galleryService) Update(ctx context.Context, id string, req UpdateRequest) (*Gallery, error) {
	g, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := applyRequest(g, req.Name, req.ClientEmail, req.AccessCode, req.IsPublic, req.HasPaywall, req.PriceAmount, req.PriceCurrency); err != nil {
		return nil, err
	}
	g.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *galleryService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("gallery deleted", slog.String("gallery_id", id))
	return nil
}

func (s *galleryService) ListAll(ctx context.Context) ([]GalleryStats, error) {
	return s.repo.ListAll(ctx)
}

func (s *galleryService) ListAccessible(ctx context.Context, userID, email string) ([]GalleryStats, error) {
	return s.repo.ListAccessible(ctx, userID, email)
}

// applyRequest validates the shared create/update fields and writes them
// onto the gallery.
func applyRequest(g *Gallery, name, clientEmail, accessCode string, isPublic, hasPaywall bool, priceAmount int64, priceCurrency string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.NewValidation("gallery name is required")
	}
	if len(name) > 255 {
		return apperror.NewValidation("gallery name must be at most 255 characters")
	}

	if hasPaywall {
		if priceAmount <= 0 {
			return apperror.NewValidation("a paywalled gallery needs a positive price")
		}
		if priceCurrency == "" {
			priceCurrency = "EUR"
		}
	} else {
		priceAmount = 0
		priceCurrency = ""
	}

	if accessCode == "auto" {
		code, err := generateAccessCode()
		if err != nil {
			return apperror.NewInternal(fmt.Errorf("generating access code: %w", err))
		}
		accessCode = code
	}

	g.Name = name
	g.ClientEmail = strings.ToLower(strings.TrimSpace(clientEmail))
	g.AccessCode = accessCode
	g.IsPublic = isPublic
	g.HasPaywall = hasPaywall
	g.PriceAmount = priceAmount
	g.PriceCurrency = priceCurrency
	return nil
}

// generateAccessCode produces a short random hex code.
func generateAccessCode() (string, error) {
	b := make([]byte, accessCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
