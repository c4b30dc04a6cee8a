package rest

import (
	"net/http"

	"github.com/bidlane/auction-server/internal/auth"
	apperrors "github.com/bidlane/auction-server/pkg/errors"
	"github.com/bidlane/auction-server/pkg/types"
	"github.com/gin-gonic/gin"
)

type signupRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	UserType    string `json:"userType" binding:"required"`
	CompanyName string `json:"companyName"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	UserType string `json:"userType" binding:"required"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.WrapCode(apperrors.ErrValidation, err, "invalid signup payload"))
		return
	}
	if req.UserType != auth.RoleBuyer && req.UserType != auth.RoleSupplier {
		respondError(c, apperrors.New(apperrors.ErrValidation, "userType must be 'buyer' or 'supplier'"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	if req.UserType == auth.RoleBuyer {
		buyer, err := h.db.CreateBuyer(c.Request.Context(), types.Buyer{
			Name:        req.Name,
			Email:       req.Email,
			Password:    hash,
			CompanyName: req.CompanyName,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Buyer registered", "buyer": buyer})
		return
	}

	supplier, err := h.db.CreateSupplier(c.Request.Context(), types.Supplier{
		Name:        req.Name,
		Email:       req.Email,
		Password:    hash,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Supplier registered", "supplier": supplier})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.WrapCode(apperrors.ErrValidation, err, "invalid login payload"))
		return
	}

	var id, email, hash string
	var account any
	switch req.UserType {
	case auth.RoleBuyer:
		buyer, err := h.db.GetBuyerByEmail(c.Request.Context(), req.Email)
		if err != nil {
			respondError(c, apperrors.New(apperrors.ErrInvalidCredentials, "invalid credentials"))
			return
		}
		id, email, hash, account = buyer.ID, buyer.Email, buyer.Password, buyer
	case auth.RoleSupplier:
		supplier, err := h.db.GetSupplierByEmail(c.Request.Context(), req.Email)
		if err != nil {
			respondError(c, apperrors.New(apperrors.ErrInvalidCredentials, "invalid credentials"))
			return
		}
		id, email, hash, account = supplier.ID, supplier.Email, supplier.Password, supplier
	default:
		respondError(c, apperrors.New(apperrors.ErrValidation, "userType must be 'buyer' or 'supplier'"))
		return
	}

	if err := auth.CheckPassword(hash, req.Password); err != nil {
		respondError(c, err)
		return
	}

	token, err := auth.IssueToken(h.secret, id, email, req.UserType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": token, "user": account})
}
