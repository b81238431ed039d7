package chat

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"livechat/pkg/auth"
	"livechat/pkg/response"
)

const (
	ActionMarkRead   = "mark-read"
	ActionMarkUnread = "mark-unread"
)

// Handler serves the customer's own conversation and the agent's view of any conversation.
type Handler struct {
	service   ConversationService
	validator auth.SessionValidator
	limiter   *SendLimiter
	log       *zap.Logger
}

func NewHandler(service ConversationService, validator auth.SessionValidator, limiter *SendLimiter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, validator: validator, limiter: limiter, log: log}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	customer := router.Group("/chat/conversation", auth.RequireRole(h.validator, auth.RoleCustomer))
	customer.GET("", h.getOwnConversation)
	customer.POST("", h.limiter.Middleware(), h.postOwnMessage)
	customer.PATCH("", h.patchOwnConversation)

	agent := router.Group("/chat/conversations", auth.RequireRole(h.validator, auth.RoleAgent))
	agent.GET("/:identityId", h.getConversation)
	agent.POST("/:identityId", h.limiter.Middleware(), h.postAgentMessage)
	agent.PATCH("/:identityId", h.patchConversation)
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type patchConversationRequest struct {
	Action string `json:"action" binding:"required"`
	Count  *int   `json:"count"`
}

type messageData struct {
	Message Message `json:"message"`
}

// @Summary      Get the caller's conversation
// @Tags         conversation
// @Produce      json
// @Security     BearerAuth
// @Param        since query int false "Only messages with a greater id"
// @Success      200 {object} response.APIResponse{data=MessageList}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Router       /chat/conversation [get]
func (h *Handler) getOwnConversation(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	h.list(c, p.ID, SenderCustomer)
}

// @Summary      Get a customer's conversation
// @Tags         agent
// @Produce      json
// @Security     BearerAuth
// @Param        identityId path string true "Customer identity id"
// @Param        since query int false "Only messages with a greater id"
// @Success      200 {object} response.APIResponse{data=MessageList}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Router       /chat/conversations/{identityId} [get]
func (h *Handler) getConversation(c *gin.Context) {
	h.list(c, c.Param("identityId"), SenderAgent)
}

func (h *Handler) list(c *gin.Context, conversationID string, reader Sender) {
	var since int64
	if s := c.Query("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid since parameter", nil)
			return
		}
		since = v
	}

	messages, err := h.service.List(c.Request.Context(), conversationID, since)
	if err != nil {
		h.writeError(c, err, "failed to fetch messages")
		return
	}
	unread, err := h.service.UnreadCount(c.Request.Context(), conversationID, reader)
	if err != nil {
		h.writeError(c, err, "failed to count unread messages")
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "messages", MessageList{Messages: messages, UnreadCount: unread})
}

// @Summary      Send a message as the customer
// @Tags         conversation
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body sendMessageRequest true "Message body"
// @Success      201 {object} response.APIResponse{data=messageData}
// @Failure      400 {object} response.APIResponse
// @Failure      429 {object} response.APIResponse
// @Router       /chat/conversation [post]
func (h *Handler) postOwnMessage(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	h.send(c, p.ID, SenderCustomer)
}

// @Summary      Reply to a customer
// @Tags         agent
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        identityId path string true "Customer identity id"
// @Param        request body sendMessageRequest true "Message body"
// @Success      201 {object} response.APIResponse{data=messageData}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      429 {object} response.APIResponse
// @Router       /chat/conversations/{identityId} [post]
func (h *Handler) postAgentMessage(c *gin.Context) {
	h.send(c, c.Param("identityId"), SenderAgent)
}

func (h *Handler) send(c *gin.Context, conversationID string, sender Sender) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	msg, err := h.service.Append(c.Request.Context(), conversationID, sender, req.Message)
	if err != nil {
		h.writeError(c, err, "failed to send message")
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "message sent", messageData{Message: msg})
}

// @Summary      Mark the agent's replies as read
// @Tags         conversation
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body patchConversationRequest true "action must be mark-read"
// @Success      200 {object} response.APIResponse{data=UnreadState}
// @Failure      400 {object} response.APIResponse
// @Router       /chat/conversation [patch]
func (h *Handler) patchOwnConversation(c *gin.Context) {
	var req patchConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	if req.Action != ActionMarkRead {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "unsupported action", nil)
		return
	}

	p, _ := auth.PrincipalFrom(c)
	unread, err := h.service.MarkRead(c.Request.Context(), p.ID, SenderCustomer)
	if err != nil {
		h.writeError(c, err, "failed to mark conversation read")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "conversation updated", UnreadState{UnreadCount: unread})
}

// @Summary      Mark a conversation read or unread
// @Description  mark-unread stores count as the reported unread counter without touching per-message read flags.
// @Tags         agent
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        identityId path string true "Customer identity id"
// @Param        request body patchConversationRequest true "mark-read, or mark-unread with count"
// @Success      200 {object} response.APIResponse{data=UnreadState}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /chat/conversations/{identityId} [patch]
func (h *Handler) patchConversation(c *gin.Context) {
	var req patchConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	conversationID := c.Param("identityId")
	var (
		unread int
		err    error
	)
	switch req.Action {
	case ActionMarkRead:
		unread, err = h.service.MarkRead(c.Request.Context(), conversationID, SenderAgent)
	case ActionMarkUnread:
		if req.Count == nil {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "count is required for mark-unread", nil)
			return
		}
		unread, err = h.service.MarkUnread(c.Request.Context(), conversationID, *req.Count)
	default:
		response.SendAPIResponse(c, http.StatusBadRequest, false, "unsupported action", nil)
		return
	}
	if err != nil {
		h.writeError(c, err, "failed to update conversation")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "conversation updated", UnreadState{UnreadCount: unread})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrEmptyBody), errors.Is(err, ErrBodyTooLong),
		errors.Is(err, ErrInvalidCount), errors.Is(err, ErrInvalidSender):
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	case errors.Is(err, ErrConversationNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, err.Error(), nil)
	default:
		h.log.Error("chat_request_failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.SendAPIResponse(c, http.StatusInternalServerError, false, fallback, nil)
	}
}
