package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"livechat/pkg/response"
)

type Handler struct {
	validator *Validator
}

func NewHandler(validator *Validator) *Handler {
	return &Handler{validator: validator}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/chat/agent/login", h.agentLogin)
	router.GET("/chat/session", RequireRole(h.validator, RoleCustomer, RoleAgent), h.session)
}

type agentLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionData struct {
	Token    string    `json:"token,omitempty"`
	Identity Principal `json:"identity"`
	Role     Role      `json:"role"`
}

// @Summary      Agent console login
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request body agentLoginRequest true "Agent credentials"
// @Success      200 {object} response.APIResponse{data=sessionData}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Router       /chat/agent/login [post]
func (h *Handler) agentLogin(c *gin.Context) {
	var req agentLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	p, token, err := h.validator.AgentLogin(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.SendAPIResponse(c, http.StatusUnauthorized, false, err.Error(), nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, "failed to issue token", nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "login successful", sessionData{Token: token, Identity: p, Role: p.Role})
}

// @Summary      Resolve the current session
// @Description  Validates the bearer token and returns the identity it claims.
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.APIResponse{data=sessionData}
// @Failure      401 {object} response.APIResponse
// @Router       /chat/session [get]
func (h *Handler) session(c *gin.Context) {
	p, _ := PrincipalFrom(c)
	response.SendAPIResponse(c, http.StatusOK, true, "session valid", sessionData{Identity: p, Role: p.Role})
}
