package controllers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"civicconnect-be/apierrors"
	"civicconnect-be/models"
	"civicconnect-be/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errPasswordTooLong = apierrors.Validation(fmt.Sprintf("Password must be at most %d bytes", models.MaxPasswordBytes))

type registerInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	AdminKey   string `json:"adminKey"`
	Town       string `json:"town"`
	EmpID      string `json:"empId"`
	Department string `json:"department"`
}

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

// RegisterUser handles POST /api/auth/register.
func (d *Deps) RegisterUser(c *gin.Context) {
	var input registerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		d.fail(c, apierrors.ErrMissingFields)
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Email = models.NormalizeEmail(input.Email)
	if input.Name == "" || input.Email == "" || input.Password == "" {
		d.fail(c, apierrors.ErrMissingFields)
		return
	}
	if len(input.Password) > models.MaxPasswordBytes {
		d.fail(c, errPasswordTooLong)
		return
	}

	user := models.User{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Role:     models.ParseRole(input.Role),
	}

	switch user.Role {
	case models.RoleAdmin:
		if d.AdminSignupKey == "" || subtle.ConstantTimeCompare([]byte(input.AdminKey), []byte(d.AdminSignupKey)) != 1 {
			d.fail(c, apierrors.Forbidden("Invalid admin key"))
			return
		}
		user.Town = strings.TrimSpace(input.Town)
		if user.Town == "" {
			d.fail(c, apierrors.Validation("Town is required for admin signup"))
			return
		}
	case models.RoleEmployee:
		user.EmpID = strings.TrimSpace(input.EmpID)
		user.Department = strings.TrimSpace(input.Department)
	case models.RoleCitizen:
	}

	if err := user.HashPassword(); err != nil {
		if errors.Is(err, models.ErrPasswordTooLong) {
			d.fail(c, errPasswordTooLong)
			return
		}
		d.fail(c, apierrors.Internal(err))
		return
	}
	now := d.now()
	user.CreatedAt, user.UpdatedAt = now, now

	ctx, cancel := d.ctx(c)
	defer cancel()

	if err := d.Users.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			d.fail(c, apierrors.Conflict("Email already in use"))
			return
		}
		if errors.Is(err, store.ErrDuplicateEmpID) {
			d.fail(c, apierrors.Conflict("Employee ID already in use"))
			return
		}
		d.fail(c, apierrors.Internal(err))
		return
	}

	token, err := d.Issuer.GenerateToken(&user)
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}

	d.logger().Info("user registered", zap.String("user_id", user.ID.Hex()), zap.String("role", string(user.Role)))
	c.JSON(http.StatusCreated, authResponse{Token: token, User: user.Public()})
}

// LoginUser handles POST /api/auth/login. Unknown email and wrong password
// answer the same 401.
func (d *Deps) LoginUser(c *gin.Context) {
	var input loginInput
	if err := c.ShouldBindJSON(&input); err != nil || input.Email == "" || input.Password == "" {
		d.fail(c, apierrors.ErrMissingFields)
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	user, err := d.Users.FindUserByEmail(ctx, models.NormalizeEmail(input.Email))
	if errors.Is(err, store.ErrNotFound) {
		d.fail(c, apierrors.ErrInvalidCredentials)
		return
	}
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	if !user.ComparePassword(input.Password) {
		d.fail(c, apierrors.ErrInvalidCredentials)
		return
	}

	token, err := d.Issuer.GenerateToken(user)
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, User: user.Public()})
}

// GetMe handles GET /api/auth/me.
func (d *Deps) GetMe(c *gin.Context) {
	id, err := callerID(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	ctx, cancel := d.ctx(c)
	defer cancel()

	user, err := d.Users.FindUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		d.fail(c, apierrors.ErrInvalidToken)
		return
	}
	if err != nil {
		d.fail(c, apierrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, user.Public())
}
