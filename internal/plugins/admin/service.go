package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/plugins/auth"
	"github.com/lichtbild/galerie/internal/plugins/gallery"
)

// AdminService handles the operator-facing business logic.
type AdminService interface {
	Dashboard(ctx context.Context) (*DashboardStats, error)
	ListClients(ctx context.Context) ([]ClientView, error)
	CreateClient(ctx context.Context, req CreateClientRequest) (*ClientView, error)
	UpdateClient(ctx context.Context, id string, req UpdateClientRequest) (*ClientView, error)
	DeleteClient(ctx context.Context, id string) error
}

type adminService struct {
	repo      AdminRepository
	users     auth.UserRepository
	auth      auth.AuthService
	galleries gallery.GalleryRepository
}

// NewAdminService creates an admin service.
func NewAdminService(repo AdminRepository, users auth.UserRepository, authSvc auth.AuthService, galleries gallery.GalleryRepository) AdminService {
	return &adminService{
		repo:      repo,
		users:     users,
		auth:      authSvc,
		galleries: galleries,
	}
}

func (s *adminService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	return s.repo.DashboardStats(ctx)
}

func (s *adminService) ListClients(ctx context.Context) ([]ClientView, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	out := make([]ClientView, 0, len(users))
	for _, u := range users {
		view, err := s.clientView(ctx, &u)
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}

// CreateClient provisions a client account and its initial assignments.
func (s *adminService) CreateClient(ctx context.Context, req CreateClientRequest) (*ClientView, error) {
	user, err := s.auth.CreateUser(ctx, req.Email, req.Password, auth.RoleClient)
	if err != nil {
		return nil, err
	}

	if len(req.GalleryIDs) > 0 {
		if err := s.galleries.ReplaceAssignmentsForUser(ctx, user.ID, req.GalleryIDs); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("assigning galleries: %w", err))
		}
	}

	return s.clientView(ctx, user)
}

// UpdateClient edits email, password, and the full assignment set.
func (s *adminService) UpdateClient(ctx context.Context, id string, req UpdateClientRequest) (*ClientView, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != "" && email != user.Email {
		taken, err := s.users.EmailExistsForOther(ctx, email, id)
		if err != nil {
			return nil, apperror.NewInternal(err)
		}
		if taken {
			return nil, apperror.NewConflict("an account with this email already exists")
		}
		if err := s.users.UpdateEmail(ctx, id, email); err != nil {
			return nil, err
		}
		user.Email = email
	}

	if req.Password != "" {
		if err := s.auth.SetPassword(ctx, id, req.Password); err != nil {
			return nil, err
		}
	}

	if err := s.galleries.ReplaceAssignmentsForUser(ctx, id, req.GalleryIDs); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("replacing assignments: %w", err))
	}

	slog.Info("client updated", slog.String("user_id", id))
	return s.clientView(ctx, user)
}

func (s *adminService) DeleteClient(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if user.IsAdmin() {
		return apperror.NewForbidden("admin accounts cannot be deleted here")
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("client deleted", slog.String("user_id", id))
	return nil
}

// clientView attaches the assignment set to a user.
func (s *adminService) clientView(ctx context.Context, u *auth.User) (*ClientView, error) {
	assignments, err := s.galleries.ListAssignmentsForUser(ctx, u.ID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	galleryIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		galleryIDs = append(galleryIDs, a.GalleryID)
	}

	return &ClientView{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
		GalleryIDs:  galleryIDs,
	}, nil
}
