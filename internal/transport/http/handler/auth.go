package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/ErlanBelekov/identity-service/internal/usecase"
	"github.com/gin-gonic/gin"
)

// authUsecaser is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type authUsecaser interface {
	SignUp(ctx context.Context, in usecase.SignUpInput) (*usecase.SignUpResult, error)
	VerifyOTP(ctx context.Context, email, code string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*usecase.LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in usecase.ResetPasswordInput) error
}

type AuthHandler struct {
	authUsecase     authUsecaser
	logger          *slog.Logger
	exposeSignupOTP bool
}

// NewAuthHandler builds the auth routes. With exposeSignupOTP the signup
// response also carries the code that was emailed.
func NewAuthHandler(authUsecase authUsecaser, logger *slog.Logger, exposeSignupOTP bool) *AuthHandler {
	return &AuthHandler{
		authUsecase:     authUsecase,
		logger:          logger.With("component", "auth_handler"),
		exposeSignupOTP: exposeSignupOTP,
	}
}

type signUpRequest struct {
	FullName string `json:"fullName" binding:"required,max=255"`
	Email    string `json:"email"    binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,max=72"`
}

type verifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp"   binding:"required,max=16"`
}

type loginRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Email           string `json:"email"           binding:"required,email"`
	OTP             string `json:"otp"             binding:"required,max=16"`
	NewPassword     string `json:"newPassword"     binding:"required,max=72"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,max=72"`
}

// POST /auth/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	res, err := h.authUsecase.SignUp(c.Request.Context(), usecase.SignUpInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, h.logger, "signup", err)
		return
	}

	resp := envelope{
		Status:  http.StatusCreated,
		Success: true,
		Token:   res.Token,
		User:    newUserResponse(res.User),
	}
	if h.exposeSignupOTP {
		resp.OTP = res.OTP
	}
	c.JSON(http.StatusCreated, resp)
}

// POST /auth/verify
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	user, err := h.authUsecase.VerifyOTP(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(c, h.logger, "verify otp", err)
		return
	}

	c.JSON(http.StatusOK, envelope{
		Status:  http.StatusOK,
		Success: true,
		Message: "Otp verified successfully",
		User:    newUserResponse(user),
	})
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	res, err := h.authUsecase.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, "login", err)
		return
	}

	c.JSON(http.StatusOK, envelope{
		Status:  http.StatusOK,
		Success: true,
		Token:   res.Token,
		User:    newUserResponse(res.User),
	})
}

// POST /auth/forgotpassword
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	if err := h.authUsecase.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, "forgot password", err)
		return
	}

	c.JSON(http.StatusOK, envelope{
		Status:  http.StatusOK,
		Success: true,
		Message: "Password reset email sent successfully. Please check your email inbox.",
	})
}

// POST /auth/resetpassword
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	err := h.authUsecase.ResetPassword(c.Request.Context(), usecase.ResetPasswordInput{
		Email:           req.Email,
		OTP:             req.OTP,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeError(c, h.logger, "reset password", err)
		return
	}

	c.JSON(http.StatusOK, envelope{
		Status:  http.StatusOK,
		Success: true,
		Message: "Password reset successful",
	})
}
