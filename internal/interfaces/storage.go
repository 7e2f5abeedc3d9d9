// Package interfaces defines service contracts for Examdesk
package interfaces

import (
	"context"

	"github.com/examdesk/examdesk/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	UserStore() UserStore

	// Lifecycle
	Close() error
}

// UserStore manages user accounts and their security state.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]*models.User, error)

	Close() error
}
