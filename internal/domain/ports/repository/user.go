package repository

import (
	"context"

	"gym-payments/internal/domain/model"
)

// UserRepository resolves identities and gym associations server-side.
type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
}

type GymRepository interface {
	Save(ctx context.Context, tx Tx, g *model.Gym) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Gym, error)
}
