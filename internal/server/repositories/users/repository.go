package users

import (
	"context"

	"github.com/jeremy-quicklearner/clautod/internal/server/models"
)

// Repository is the user directory: persistence of User records keyed by
// username.
type Repository interface {
	// Select returns the users matching filter. Filtering by plaintext
	// password is refused.
	Select(ctx context.Context, filter models.UserFilter) ([]models.User, error)

	// SelectByUsername returns the single user with that name or an error
	// matching common.ErrMissingSubject.
	SelectByUsername(ctx context.Context, username string) (models.User, error)

	SelectAll(ctx context.Context) ([]models.User, error)

	// Insert stores a new user. An existing username is an illegal operation.
	Insert(ctx context.Context, user models.User) error

	// Update applies the non-wildcard fields of updates to the users matching
	// filter. Username is never updated.
	Update(ctx context.Context, filter, updates models.UserFilter) (int64, error)

	Delete(ctx context.Context, filter models.UserFilter) (int64, error)
}
