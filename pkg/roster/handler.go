package roster

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"livechat/pkg/auth"
	"livechat/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type RosterHandler struct {
	service   RosterService
	validator auth.SessionValidator
	log       *zap.Logger
}

func NewRosterHandler(service RosterService, validator auth.SessionValidator, log *zap.Logger) *RosterHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RosterHandler{service: service, validator: validator, log: log}
}

func (h *RosterHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/chat/roster", auth.RequireRole(h.validator, auth.RoleAgent))
	group.GET("", h.list)
	group.GET("/export", h.export)
}

func parseQuery(c *gin.Context) (Query, error) {
	filter, err := ParseFilter(c.Query("filter"))
	if err != nil {
		return Query{}, err
	}
	return Query{Filter: filter, Search: c.Query("search")}, nil
}

// @Summary      List conversations for the agent console
// @Tags         agent
// @Produce      json
// @Security     BearerAuth
// @Param        filter query string false "all or unread"
// @Param        search query string false "Case-insensitive name or email substring"
// @Success      200 {object} response.APIResponse{data=Data}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Router       /chat/roster [get]
func (h *RosterHandler) list(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		return
	}

	entries, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		h.log.Error("roster_fetch_failed", zap.Error(err))
		response.SendAPIResponse(c, http.StatusInternalServerError, false, "failed to fetch roster", nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "roster", Data{Entries: entries})
}

// @Summary      Download the roster as a spreadsheet
// @Tags         agent
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        filter query string false "all or unread"
// @Param        search query string false "Case-insensitive name or email substring"
// @Success      200 {file} file
// @Failure      400 {object} response.APIResponse
// @Router       /chat/roster/export [get]
func (h *RosterHandler) export(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		return
	}

	entries, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		h.log.Error("roster_fetch_failed", zap.Error(err))
		response.SendAPIResponse(c, http.StatusInternalServerError, false, "failed to fetch roster", nil)
		return
	}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, entries); err != nil {
		h.log.Error("roster_export_failed", zap.Error(err))
		response.SendAPIResponse(c, http.StatusInternalServerError, false, "failed to build spreadsheet", nil)
		return
	}

	filename := fmt.Sprintf("roster_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
