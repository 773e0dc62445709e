package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/ErlanBelekov/identity-service/internal/usecase"
	"github.com/gin-gonic/gin"
)

type productUsecaser interface {
	List(ctx context.Context) ([]*domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, in usecase.ProductInput) (*domain.Product, error)
	Update(ctx context.Context, id string, in usecase.ProductInput) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}

type ProductHandler struct {
	productUsecase productUsecaser
	logger         *slog.Logger
}

func NewProductHandler(productUsecase productUsecaser, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{productUsecase: productUsecase, logger: logger.With("component", "product_handler")}
}

type productRequest struct {
	Name        string  `json:"name"        binding:"required,max=255"`
	Description string  `json:"description" binding:"max=4096"`
	Price       float64 `json:"price"       binding:"required,gt=0"`
	ImageURL    string  `json:"imageUrl"    binding:"omitempty,url,max=2048"`
}

func (r productRequest) input() usecase.ProductInput {
	return usecase.ProductInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		ImageURL:    r.ImageURL,
	}
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type productEnvelope struct {
	Status  int              `json:"status"`
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	Product *productResponse `json:"product,omitempty"`
}

type listProductsResponse struct {
	Status   int               `json:"status"`
	Success  bool              `json:"success"`
	Products []productResponse `json:"products"`
}

func newProductResponse(p *domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// GET /product/all
func (h *ProductHandler) List(ctx *gin.Context) {
	products, err := h.productUsecase.List(ctx.Request.Context())
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "list products", "error", err)
		fail(ctx, http.StatusInternalServerError, errListProducts)
		return
	}

	items := make([]productResponse, len(products))
	for i, p := range products {
		items[i] = newProductResponse(p)
	}
	ctx.JSON(http.StatusOK, listProductsResponse{
		Status:   http.StatusOK,
		Success:  true,
		Products: items,
	})
}

// GET /product/:id
func (h *ProductHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	p, err := h.productUsecase.GetByID(ctx.Request.Context(), id)
	if err != nil {
		h.productError(ctx, "get product", id, errGetProduct, err)
		return
	}

	resp := newProductResponse(p)
	ctx.JSON(http.StatusOK, productEnvelope{Status: http.StatusOK, Success: true, Product: &resp})
}

// POST /product/create
func (h *ProductHandler) Create(ctx *gin.Context) {
	var req productRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, bindingMessage(err))
		return
	}

	p, err := h.productUsecase.Create(ctx.Request.Context(), req.input())
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "create product", "error", err)
		fail(ctx, http.StatusInternalServerError, errCreateProduct)
		return
	}

	resp := newProductResponse(p)
	ctx.JSON(http.StatusCreated, productEnvelope{
		Status:  http.StatusCreated,
		Success: true,
		Message: "Product created successfully",
		Product: &resp,
	})
}

// PUT /product/:id
func (h *ProductHandler) Update(ctx *gin.Context) {
	id := ctx.Param("id")

	var req productRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, bindingMessage(err))
		return
	}

	p, err := h.productUsecase.Update(ctx.Request.Context(), id, req.input())
	if err != nil {
		h.productError(ctx, "update product", id, errUpdateProduct, err)
		return
	}

	resp := newProductResponse(p)
	ctx.JSON(http.StatusOK, productEnvelope{
		Status:  http.StatusOK,
		Success: true,
		Message: "Product updated successfully",
		Product: &resp,
	})
}

// DELETE /product/:id
func (h *ProductHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.productUsecase.Delete(ctx.Request.Context(), id); err != nil {
		h.productError(ctx, "delete product", id, errDeleteProduct, err)
		return
	}

	ctx.JSON(http.StatusOK, productEnvelope{
		Status:  http.StatusOK,
		Success: true,
		Message: "Product deleted successfully",
	})
}

func (h *ProductHandler) productError(ctx *gin.Context, op, id, msg string, err error) {
	if errors.Is(err, domain.ErrProductNotFound) {
		fail(ctx, http.StatusNotFound, errProductNotFound)
		return
	}
	h.logger.ErrorContext(ctx.Request.Context(), op, "product_id", id, "error", err)
	if domain.KindOf(err) == domain.KindUnavailable {
		fail(ctx, http.StatusServiceUnavailable, errServiceUnavailable)
		return
	}
	fail(ctx, http.StatusInternalServerError, msg)
}
