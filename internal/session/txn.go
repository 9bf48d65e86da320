package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/identity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
)

// Identity carries the authenticated client context a request's
// transaction envelope installs as session variables for policy predicates
// in database functions to read (spec.md §4.6).
type Identity = identity.Identity

// Body is the unit of work run inside one transaction: it receives the
// live tx and returns whatever the caller wants propagated to its
// post-commit continuation.
type Body func(ctx context.Context, tx pgx.Tx) (interface{}, error)

// Envelope wraps every data-path request in: session-variable setup → body
// → commit/rollback → bounded retry on transient failure. It owns no
// connection itself; Pool is the shared, synchronized resource (spec.md §5).
type Envelope struct {
	Pool       *pgxpool.Pool
	MaxRetries int
	// backoff paces retries, per SPEC_FULL.md's repurposing of
	// golang.org/x/time/rate from a client-facing limiter into retry pacing.
	backoff *rate.Limiter
}

// NewEnvelope builds an Envelope with a small bounded retry count and a
// gentle backoff pace between attempts.
func NewEnvelope(pool *pgxpool.Pool) *Envelope {
	return &Envelope{
		Pool:       pool,
		MaxRetries: 3,
		backoff:    rate.NewLimiter(rate.Every(20*time.Millisecond), 1),
	}
}

// Perform runs body inside a transaction that has id's client identity and
// attribute list bound to session variables, retrying up to MaxRetries
// times on a transient connection failure before surfacing
// ServiceUnavailable. Ordering within a single attempt is strictly:
// session-variable setup → body → commit (spec.md §5).
func (e *Envelope) Perform(ctx context.Context, id Identity, body Body) (interface{}, error) {
	var lastErr error

	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.backoff.Wait(ctx); err != nil {
				return nil, apierr.Wrap(apierr.ServiceUnavailable, err, "retry backoff interrupted")
			}
		}

		result, err := e.attempt(ctx, id, body)
		if err == nil {
			return result, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, apierr.Wrap(apierr.ServiceUnavailable, lastErr, "transaction failed after %d retries", e.MaxRetries)
}

func (e *Envelope) attempt(ctx context.Context, id Identity, body Body) (interface{}, error) {
	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return nil, apierr.Wrap(apierr.ServiceUnavailable, err, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := setSessionContext(ctx, tx, id); err != nil {
		return nil, err
	}

	result, err := body(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apierr.Wrap(apierr.ServiceUnavailable, err, "failed to commit transaction")
	}
	committed = true

	return result, nil
}

// setSessionContext installs the client identity and attribute list as
// PostgreSQL session variables, the way policy predicates in database
// functions read them (mirrors ermrest's perform() session-variable setup).
func setSessionContext(ctx context.Context, tx pgx.Tx, id Identity) error {
	attrs, err := json.Marshal(id.Attributes)
	if err != nil {
		return apierr.Wrap(apierr.ServiceUnavailable, err, "failed to marshal identity attributes")
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('ermrest.client', $1, true)", id.ClientID); err != nil {
		return apierr.Wrap(apierr.ServiceUnavailable, err, "failed to set client session variable")
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('ermrest.attributes', $1, true)", string(attrs)); err != nil {
		return apierr.Wrap(apierr.ServiceUnavailable, err, "failed to set attributes session variable")
	}
	return nil
}

// isTransient classifies a connection-level failure as retryable: PostgreSQL
// admin-shutdown / crash-of-backend / too-many-connections / connection
// failures, or any pgconn-reported broken connection.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "57P01", "57P02", "57P03", // admin_shutdown, crash_shutdown, cannot_connect_now
			"53300", // too_many_connections
			"08000", "08003", "08006", "08001", "08004": // connection_exception family
			return true
		}
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
