package handler

const (
	errInternalServer     = "Something went wrong"
	errInvalidBody        = "Invalid request body"
	errServiceUnavailable = "Service temporarily unavailable"
	errProductNotFound    = "Product not found"
	errListProducts       = "Failed to retrieve products"
	errGetProduct         = "Failed to retrieve product"
	errCreateProduct      = "Failed to create product"
	errUpdateProduct      = "Failed to update product"
	errDeleteProduct      = "Failed to delete product"
)
