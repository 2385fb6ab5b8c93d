// Package revocations declares the store of session token ids that were
// revoked before their expiry (logout and renewal rotation).
package revocations

import (
	"context"
	"time"
)

type Repository interface {
	// Revoke records jti as unusable until expiresAt. Revoking twice is not
	// an error.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	IsRevoked(ctx context.Context, jti string) (bool, error)

	// Purge drops entries whose token would have expired by now anyway.
	Purge(ctx context.Context, now time.Time) (int64, error)
}
