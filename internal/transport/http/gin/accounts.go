package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/service"
	"github.com/kirinyoku/tixbook/internal/service/accounts"
)

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Name:     u.Name,
		Role:     string(u.Role),
		IsAdmin:  u.IsAdmin,
	}
}

// @Summary  Register
// @Tags     accounts
// @Param    req body  RegisterRequest true "payload"
// @Success  201 {object} UserResponse
// @Failure  400 {object} ErrorResponse
// @Router   /register/ [post]
func handleRegister(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErr(c, err)
			return
		}
		u, err := svcs.Accounts.Register(c.Request.Context(), accounts.Registration{
			Username: req.Username,
			Email:    req.Email,
			Name:     req.Name,
			Password: req.Password,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, newUserResponse(u))
	}
}

// @Summary  Log in
// @Tags     accounts
// @Param    req body  LoginRequest true "payload"
// @Success  200 {object} LoginResponse
// @Failure  400 {object} ErrorResponse
// @Failure  401 {object} ErrorResponse
// @Router   /login/ [post]
func handleLogin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErr(c, err)
			return
		}
		tok, err := svcs.Accounts.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, LoginResponse{Access: tok.Access, ExpiresAt: tok.ExpiresAt})
	}
}

// @Summary  Log out
// @Tags     accounts
// @Security BearerAuth
// @Success  200 {object} map[string]string
// @Failure  401 {object} ErrorResponse
// @Router   /logout/ [post]
func handleLogout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Accounts.Logout(c.Request.Context(), currentClaims(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "logged out"})
	}
}

// @Summary  Promote or demote a user
// @Tags     accounts
// @Security BearerAuth
// @Param    user_id  path  int  true  "User ID"
// @Param    req body  ManageRoleRequest true "action: promote or demote"
// @Success  200 {object} UserResponse
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /manage-role/{user_id}/ [post]
func handleManageRole(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "user_id")
		if !ok {
			return
		}
		var req ManageRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErr(c, err)
			return
		}
		u, err := svcs.Accounts.ManageRole(
			c.Request.Context(),
			currentUser(c),
			userID,
			accounts.RoleAction(req.Action),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, newUserResponse(u))
	}
}
