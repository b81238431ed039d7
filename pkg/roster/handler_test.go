package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"livechat/pkg/auth"
	"livechat/pkg/response"
)

type mockRosterService struct {
	mock.Mock
}

func (m *mockRosterService) List(ctx context.Context, q Query) ([]Entry, error) {
	args := m.Called(ctx, q)
	list, _ := args.Get(0).([]Entry)
	return list, args.Error(1)
}

type tokenValidator map[string]auth.Principal

func (v tokenValidator) Validate(_ context.Context, token string) (auth.Principal, error) {
	if p, ok := v[token]; ok {
		return p, nil
	}
	return auth.Principal{}, auth.ErrInvalidToken
}

func setupRosterRouter(svc RosterService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	v := tokenValidator{
		"agent": {ID: auth.AgentID, Role: auth.RoleAgent},
		"ann":   {ID: "id-ann", Role: auth.RoleCustomer},
	}
	NewRosterHandler(svc, v, nil).RegisterRoutes(r)
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRosterHandler_List(t *testing.T) {
	svc := new(mockRosterService)
	r := setupRosterRouter(svc)

	svc.On("List", mock.Anything, Query{Filter: FilterUnread, Search: "ann"}).Return([]Entry{
		{IdentityID: "id-ann", DisplayName: "Ann", UnreadCount: 2, LastMessageAt: t0},
	}, nil)

	w := get(r, "/chat/roster?filter=unread&search=ann", "agent")

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		response.APIResponse
		Data Data `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.Len(t, env.Data.Entries, 1)
	require.Equal(t, 2, env.Data.Entries[0].UnreadCount)
	svc.AssertExpectations(t)
}

func TestRosterHandler_Rejections(t *testing.T) {
	svc := new(mockRosterService)
	r := setupRosterRouter(svc)

	require.Equal(t, http.StatusUnauthorized, get(r, "/chat/roster", "").Code)
	require.Equal(t, http.StatusForbidden, get(r, "/chat/roster", "ann").Code)
	require.Equal(t, http.StatusBadRequest, get(r, "/chat/roster?filter=starred", "agent").Code)
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestRosterHandler_Export(t *testing.T) {
	svc := new(mockRosterService)
	r := setupRosterRouter(svc)

	svc.On("List", mock.Anything, Query{Filter: FilterAll}).Return([]Entry{
		{IdentityID: "id-ann", DisplayName: "Ann", ContactAddress: "a@x.com", LastMessagePreview: "Hi", LastMessageAt: t0, UnreadCount: 1, TotalCount: 3},
	}, nil)

	w := get(r, "/chat/roster/export", "agent")

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, exportHeaders, rows[0])
	require.Equal(t, "Ann", rows[1][1])
	require.Equal(t, "a@x.com", rows[1][2])
	require.Equal(t, "2024-03-01 09:00:00", rows[1][4])
	require.Equal(t, "1", rows[1][6])
	require.Equal(t, "3", rows[1][7])
}
