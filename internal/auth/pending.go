package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	authmetrics "tollgate/internal/auth/metrics"
	"tollgate/internal/auth/models"
	dErrors "tollgate/pkg/domain-errors"
	"tollgate/pkg/platform/sentinel"
)

const revocableTokenPrefix = "r:"

// Pending defers session-token resolution until a stage needs the user.
// The first Resolve performs the lookup; every later call, from any
// goroutine, observes the same result.
type Pending struct {
	sessions       SessionStore
	logger         *slog.Logger
	metrics        *authmetrics.Metrics
	token          string
	installationID string
	legacy         bool

	mu   sync.Mutex
	done bool
	auth *models.AuthContext
	err  error
}

func (r *Resolver) newPending(in Input) *Pending {
	return &Pending{
		sessions:       r.sessions,
		logger:         r.logger,
		metrics:        r.metrics,
		token:          in.Info.SessionToken,
		installationID: in.Info.InstallationID,
		legacy:         in.Path == upgradeSessionPath && !strings.HasPrefix(in.Info.SessionToken, revocableTokenPrefix),
	}
}

// Token is the unverified session token the lookup will use.
func (p *Pending) Token() string { return p.token }

func (p *Pending) Resolve(ctx context.Context) (*models.AuthContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done {
		p.auth, p.err = p.lookup(ctx)
		p.done = true
	}
	return p.auth, p.err
}

func (p *Pending) lookup(ctx context.Context) (*models.AuthContext, error) {
	kind := "session"
	find := p.sessions.UserForSessionToken
	if p.legacy {
		kind = "legacy"
		find = p.sessions.UserForLegacySessionToken
	}

	user, err := find(ctx, p.token)
	switch {
	case err == nil && user != nil:
		p.metrics.IncSessionLookup(kind, "found")
		return &models.AuthContext{
			Tier:           models.TierUser,
			InstallationID: p.installationID,
			User:           user,
		}, nil
	case err == nil, errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired):
		p.metrics.IncSessionLookup(kind, "invalid")
		return nil, dErrors.New(dErrors.CodeInvalidSessionToken, "Invalid session token")
	default:
		p.metrics.IncSessionLookup(kind, "error")
		p.logger.ErrorContext(ctx, "error getting auth for sessionToken", "error", err, "kind", kind)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "session lookup failed")
	}
}
