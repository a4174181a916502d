package gallery

import (
	"context"
	"crypto/subtle"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/plugins/auth"
)

// PaymentVerifier answers whether a verified payment record exists for a
// (gallery, email) pair. Owned by the payment plugin; the resolver never
// mutates payment state.
type PaymentVerifier interface {
	IsVerified(ctx context.Context, galleryID, email string) (bool, error)
}

// Decision is the outcome of an access resolution: either the caller may
// view the gallery, or they are sent to the page that can change that
// (code entry or payment initiation).
type Decision struct {
	Allow      bool
	RedirectTo string
}

func allow() Decision               { return Decision{Allow: true} }
func redirect(path string) Decision { return Decision{RedirectTo: path} }

// AccessResolver composes session state, gallery configuration, and the
// payment predicate into a single allow/redirect decision. It holds no
// mutable state and is safe for concurrent use.
type AccessResolver struct {
	payments PaymentVerifier
	repo     GalleryRepository
}

// NewAccessResolver creates an access resolver.
func NewAccessResolver(repo GalleryRepository, payments PaymentVerifier) *AccessResolver {
	return &AccessResolver{repo: repo, payments: payments}
}

// Resolve decides whether the session may view the gallery. The rules are
// ordered; the first match wins:
//
//  1. Admins bypass everything.
//  2. A paywall, when set, is the only gate: no email or no verified
//     payment sends the caller to payment initiation, and public/code/
//     assignment never substitute for payment.
//  3. Otherwise: public flag, standing assignment, legacy client email
//     match, then a session-scoped access-code grant.
//  4. Nothing matched: send the caller to the code-entry page.
func (r *AccessResolver) Resolve(ctx context.Context, g *Gallery, session *auth.Session) (Decision, error) {
	if session != nil && session.IsAdmin() {
		return allow(), nil
	}

	if g.HasPaywall {
		email := sessionEmail(session)
		if email == "" {
			return redirect(PaymentPath(g.ID)), nil
		}
		verified, err := r.payments.IsVerified(ctx, g.ID, email)
		if err != nil {
			return Decision{}, err
		}
		if verified {
			return allow(), nil
		}
		return redirect(PaymentPath(g.ID)), nil
	}

	if g.IsPublic {
		return allow(), nil
	}

	if session != nil && session.IsAuthenticated() {
		assigned, err := r.repo.HasAssignment(ctx, session.UserID, g.ID)
		if err != nil {
			return Decision{}, err
		}
		if assigned {
			return allow(), nil
		}

		if g.ClientEmail != "" && g.ClientEmail == session.Email {
			return allow(), nil
		}
	}

	if session != nil && session.HasGrant(g.ID) {
		return allow(), nil
	}

	return redirect(UnlockPath(g.ID)), nil
}

// SubmitAccessCode checks a submitted code against the gallery's configured
// one and, on success, records a session-scoped grant for the gallery. The
// grant is not durable: it does not create an assignment and dies with the
// session. Comparison is exact-match and constant-time.
func (r *AccessResolver) SubmitAccessCode(ctx context.Context, g *Gallery, code string, session *auth.Session) error {
	if g.AccessCode == "" {
		return apperror.NewForbidden("this gallery cannot be unlocked with a code")
	}
	if subtle.ConstantTimeCompare([]byte(g.AccessCode), []byte(code)) != 1 {
		return apperror.NewForbidden("incorrect access code")
	}

	session.AddGrant(g.ID)
	return nil
}

// sessionEmail resolves the actor's email: the authenticated user's email,
// or empty for anonymous sessions.
func sessionEmail(session *auth.Session) string {
	if session == nil || !session.IsAuthenticated() {
		return ""
	}
	return session.Email
}

// ViewPath returns the canonical gallery view path.
func ViewPath(galleryID string) string {
	return "/galleries/" + galleryID
}

// UnlockPath returns the code-entry path for a gallery.
func UnlockPath(galleryID string) string {
	return "/galleries/" + galleryID + "/unlock"
}

// PaymentPath returns the payment-initiation path for a gallery.
func PaymentPath(galleryID string) string {
	return "/galleries/" + galleryID + "/pay"
}
