package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/botmanager/internal/storage"
)

// ErrInvalidCredential is returned when a token fails verification or is
// not registered.
var ErrInvalidCredential = errors.New("invalid token")

// Identity is what a verifier returns for a valid token.
type Identity struct {
	ID   string // Team id, the primary key everywhere
	Name string // Team name, informational only
}

// Verifier resolves a token to the identity it belongs to. Implementations
// must be safe for concurrent use and bound their own network time.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

// Registry maps team id -> token in the registry bucket.
type Registry struct {
	store     storage.Store
	verifier  Verifier
	tokensKey string
	commands  *Commands
	logger    *slog.Logger
}

// NewRegistry creates a Registry. tokensKey holds desired state and
// teamsKey is cleared alongside it on removal.
func NewRegistry(store storage.Store, verifier Verifier, tokensKey, teamsKey string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:     store,
		verifier:  verifier,
		tokensKey: tokensKey,
		commands:  NewCommands(store, teamsKey),
		logger:    logger,
	}
}

// Verify checks a token without touching storage.
func (r *Registry) Verify(ctx context.Context, tok string) (Identity, error) {
	if tok == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}
	id, err := r.verifier.Verify(ctx, tok)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if id.ID == "" {
		return Identity{}, fmt.Errorf("%w: verifier returned no team id", ErrInvalidCredential)
	}
	return id, nil
}

// Add verifies tok and records it as the desired token for its team.
// Adding again overwrites the previous token for that team.
func (r *Registry) Add(ctx context.Context, tok string) (Identity, error) {
	id, err := r.Verify(ctx, tok)
	if err != nil {
		return Identity{}, err
	}
	if err := r.store.Set(ctx, r.tokensKey, id.ID, tok); err != nil {
		return Identity{}, fmt.Errorf("store token: %w", err)
	}
	r.logger.Debug("token added", "team_id", id.ID, "team", id.Name)
	return id, nil
}

// Lookup finds the team id registered for tok. The scan is linear in the
// number of registered teams.
func (r *Registry) Lookup(ctx context.Context, tok string) (string, error) {
	all, err := r.store.GetAll(ctx, r.tokensKey)
	if err != nil {
		return "", fmt.Errorf("list tokens: %w", err)
	}
	for teamID, t := range all {
		if t == tok {
			return teamID, nil
		}
	}
	return "", fmt.Errorf("%w: token not registered", ErrInvalidCredential)
}

// Remove deletes tok's team from the registry and command buckets. The
// live connection is closed by the next reconciliation pass, not here.
func (r *Registry) Remove(ctx context.Context, tok string) (string, error) {
	teamID, err := r.Lookup(ctx, tok)
	if err != nil {
		return "", err
	}
	if err := r.store.Delete(ctx, r.tokensKey, teamID); err != nil {
		return "", fmt.Errorf("delete token: %w", err)
	}
	if err := r.commands.Clear(ctx, teamID); err != nil {
		return "", err
	}
	r.logger.Debug("token removed", "team_id", teamID)
	return teamID, nil
}

// ListAll returns the desired state: team id -> token.
func (r *Registry) ListAll(ctx context.Context) (map[string]string, error) {
	all, err := r.store.GetAll(ctx, r.tokensKey)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return all, nil
}
