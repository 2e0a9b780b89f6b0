package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"pianosale/api/logger"
	"pianosale/api/models"
	"pianosale/api/store"
	"pianosale/api/utils"
)

type AdminFinder interface {
	GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error)
}

type AdminCreator interface {
	CreateAdmin(ctx context.Context, email string, hashedPassword []byte) (*models.Admin, error)
}

type BookingLister interface {
	ListBookings(ctx context.Context, mirrorStatus string, limit int) ([]models.LedgerEntry, error)
}

// AdminHandlers serve the dashboard login and booking ledger.
type AdminHandlers struct {
	Admins       AdminFinder
	Bookings     BookingLister
	Secret       []byte
	SecureCookie bool
	log          *logger.Logger
}

func NewAdminHandlers(admins AdminFinder, bookings BookingLister, secret []byte, secureCookie bool, log *logger.Logger) *AdminHandlers {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminHandlers{
		Admins:       admins,
		Bookings:     bookings,
		Secret:       secret,
		SecureCookie: secureCookie,
		log:          log.With("handler", "admin"),
	}
}

// BootstrapAdmin creates the configured admin account if it does not exist yet.
func BootstrapAdmin(ctx context.Context, admins AdminCreator, email, password string) (*models.Admin, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	admin, err := admins.CreateAdmin(ctx, email, hashed)
	if errors.Is(err, store.ErrAdminExists) {
		return nil, nil
	}
	return admin, err
}

// Login handles admin authentication and JWT token creation.
func (h *AdminHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	admin, err := h.Admins.GetAdminByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrAdminNotFound) {
			h.log.Error("admin lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check credentials"})
			return
		}
		h.log.Info("login failed", "email", req.Email, "reason", "unknown admin")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(admin.HashedPassword, []byte(req.Password)); err != nil {
		h.log.Info("login failed", "email", req.Email, "reason", "password mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := utils.GenerateJWT(admin, h.Secret)
	if err != nil {
		h.log.Error("failed to issue admin token", "admin_id", admin.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetCookie("jwt_token", tokenString, int(24*time.Hour/time.Second), "/", "", h.SecureCookie, true)

	h.log.Info("admin logged in", "admin_id", admin.ID, "email", admin.Email)
	c.JSON(http.StatusOK, gin.H{
		"message":     "Login successful",
		"admin_email": admin.Email,
		"token":       tokenString,
	})
}

func (h *AdminHandlers) Logout(c *gin.Context) {
	c.SetCookie("jwt_token", "", -1, "/", "", h.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// ListBookings returns the booking ledger, newest first. mirrorStatus filters
// to one of mirrored, failed or unconfigured.
func (h *AdminHandlers) ListBookings(c *gin.Context) {
	status := c.Query("mirrorStatus")
	switch status {
	case "", models.MirrorStatusMirrored, models.MirrorStatusFailed, models.MirrorStatusUnconfigured:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mirrorStatus must be mirrored, failed or unconfigured"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	entries, err := h.Bookings.ListBookings(ctx, status, limit)
	if err != nil {
		h.log.Error("booking ledger query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve bookings"})
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
