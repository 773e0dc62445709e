package repository

import (
	"context"

	"github.com/ErlanBelekov/identity-service/internal/domain"
)

// ProductRepository backs the protected catalog routes.
type ProductRepository interface {
	List(ctx context.Context) ([]*domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, p *domain.Product) (*domain.Product, error)
	// Update replaces the editable fields. Returns domain.ErrProductNotFound for unknown ids.
	Update(ctx context.Context, p *domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}
