package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/ErlanBelekov/identity-service/internal/repository"
)

type ProductUsecase struct {
	repo        repository.ProductRepository
	callTimeout time.Duration
}

// NewProductUsecase bounds every repository call by callTimeout; zero means the
// default.
func NewProductUsecase(repo repository.ProductRepository, callTimeout time.Duration) *ProductUsecase {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &ProductUsecase{repo: repo, callTimeout: callTimeout}
}

type ProductInput struct {
	Name        string
	Description string
	Price       float64
	ImageURL    string
}

func (u *ProductUsecase) List(ctx context.Context) ([]*domain.Product, error) {
	cctx, cancel := context.WithTimeout(ctx, u.callTimeout)
	defer cancel()
	products, err := u.repo.List(cctx)
	if err != nil {
		return nil, productStoreError("list products", err)
	}
	return products, nil
}

func (u *ProductUsecase) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	cctx, cancel := context.WithTimeout(ctx, u.callTimeout)
	defer cancel()
	p, err := u.repo.GetByID(cctx, id)
	if err != nil {
		return nil, productStoreError("get product", err)
	}
	return p, nil
}

func (u *ProductUsecase) Create(ctx context.Context, in ProductInput) (*domain.Product, error) {
	cctx, cancel := context.WithTimeout(ctx, u.callTimeout)
	defer cancel()
	created, err := u.repo.Create(cctx, &domain.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		ImageURL:    in.ImageURL,
	})
	if err != nil {
		return nil, productStoreError("create product", err)
	}
	return created, nil
}

func (u *ProductUsecase) Update(ctx context.Context, id string, in ProductInput) (*domain.Product, error) {
	cctx, cancel := context.WithTimeout(ctx, u.callTimeout)
	defer cancel()
	updated, err := u.repo.Update(cctx, &domain.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		ImageURL:    in.ImageURL,
	})
	if err != nil {
		return nil, productStoreError("update product", err)
	}
	return updated, nil
}

func (u *ProductUsecase) Delete(ctx context.Context, id string) error {
	cctx, cancel := context.WithTimeout(ctx, u.callTimeout)
	defer cancel()
	if err := u.repo.Delete(cctx, id); err != nil {
		return productStoreError("delete product", err)
	}
	return nil
}

// productStoreError marks a timed-out call as Unavailable and wraps
// everything else with op.
func productStoreError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return storeUnavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
