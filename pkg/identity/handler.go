package identity

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"livechat/pkg/auth"
	"livechat/pkg/response"
)

type IdentityHandler struct {
	service IdentityService
}

func NewIdentityHandler(service IdentityService) *IdentityHandler {
	return &IdentityHandler{service: service}
}

func (h *IdentityHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/chat/register", h.register)
	router.POST("/chat/authenticate", h.authenticate)
}

type registerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type authenticateRequest struct {
	Email  string `json:"email" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}

// @Summary      Start a chat (first contact)
// @Description  Creates an identity for a new address. A known address gets status existing_user_please_login and its access code by email.
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request body registerRequest true "Display name and email"
// @Success      200 {object} response.APIResponse{data=RegisterResult}
// @Success      201 {object} response.APIResponse{data=RegisterResult}
// @Failure      400 {object} response.APIResponse
// @Failure      500 {object} response.APIResponse
// @Router       /chat/register [post]
func (h *IdentityHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	result, err := h.service.Register(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		if errors.Is(err, ErrInvalidDisplayName) || errors.Is(err, ErrInvalidAddress) {
			response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, "failed to register", nil)
		return
	}

	if !result.IsNewUser {
		response.SendAPIResponse(c, http.StatusOK, true, StatusExistingUserPleaseLogin, result)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "identity created", result)
}

// @Summary      Resume a chat (returning user)
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request body authenticateRequest true "Email and access code"
// @Success      200 {object} response.APIResponse{data=Session}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Router       /chat/authenticate [post]
func (h *IdentityHandler) authenticate(c *gin.Context) {
	var req authenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	session, err := h.service.Authenticate(c.Request.Context(), req.Email, req.Secret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			response.SendAPIResponse(c, http.StatusUnauthorized, false, err.Error(), nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, "failed to authenticate", nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "login successful", session)
}
