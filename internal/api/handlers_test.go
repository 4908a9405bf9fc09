package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/PKL-SST-2025/be-tabungin/internal/auth"
	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
	"github.com/PKL-SST-2025/be-tabungin/internal/persistence/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type testServer struct {
	router http.Handler
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := fixedClock{now: time.Date(2025, time.March, 10, 5, 0, 0, 0, time.UTC)}
	logger, _ := test.NewNullLogger()

	store := memory.NewStore()
	recorder := domain.NewActivityRecorder(store, clock)
	stats := domain.NewStatisticsEngine(store, store, store, clock)
	service := domain.NewSavingsService(store, recorder, stats, domain.WithClock(clock), domain.WithLogger(logger))

	router := mux.NewRouter()
	NewHandler(service, WithUserDirectory(store), WithClock(clock), WithLogger(logger)).RegisterRoutes(router)
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		scopeSet := map[string]struct{}{}
		for _, scope := range scopes {
			scopeSet[scope] = struct{}{}
		}
		req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
			UserID:    userID,
			Scopes:    scopeSet,
			ExpiresAt: time.Now().Add(time.Hour),
		}))
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestTargetLifecycle(t *testing.T) {
	srv := newTestServer(t)
	userID := uuid.NewString()

	rr := srv.do(t, http.MethodPost, "/v1/savings/targets", userID, `{"name":" Laptop ","target_amount":"100000","target_date":"2025-12-31"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[TargetView](t, rr)
	require.Equal(t, "Laptop", created.Name)
	require.Equal(t, "100000.00", created.TargetAmount)
	require.Equal(t, "0.00", created.CurrentAmount)
	require.Equal(t, domain.DefaultTargetIcon, created.Icon)
	require.Equal(t, "2025-12-31", *created.TargetDate)

	base := "/v1/savings/targets/" + created.ID

	rr = srv.do(t, http.MethodPost, base+"/deposit", userID, `{"amount":40000}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.False(t, decode[TargetView](t, rr).IsCompleted)

	rr = srv.do(t, http.MethodPost, base+"/deposit", userID, `{"amount":"60000"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[TargetView](t, rr)
	require.True(t, view.IsCompleted)
	require.Equal(t, "100000.00", view.CurrentAmount)

	rr = srv.do(t, http.MethodPost, base+"/withdraw", userID, `{"amount":"1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	view = decode[TargetView](t, rr)
	require.False(t, view.IsCompleted)
	require.Equal(t, "99999.00", view.CurrentAmount)

	rr = srv.do(t, http.MethodPut, base, userID, `{"name":"Gaming laptop","is_completed":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	view = decode[TargetView](t, rr)
	require.Equal(t, "Gaming laptop", view.Name)
	require.True(t, view.IsCompleted)

	rr = srv.do(t, http.MethodGet, "/v1/savings/targets", userID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[ListTargetsResponse](t, rr).Items, 1)

	rr = srv.do(t, http.MethodGet, "/v1/activities?limit=2", userID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[ListActivitiesResponse](t, rr)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rr = srv.do(t, http.MethodGet, "/v1/activities?cursor="+page.NextCursor, userID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[ListActivitiesResponse](t, rr).Items, 3)

	rr = srv.do(t, http.MethodDelete, base, userID, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = srv.do(t, http.MethodDelete, base, userID, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	owner := uuid.NewString()
	stranger := uuid.NewString()

	rr := srv.do(t, http.MethodPost, "/v1/savings/targets", owner, `{"name":"Bike","target_amount":"5000"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	base := "/v1/savings/targets/" + decode[TargetView](t, rr).ID

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
	}{
		{"zero amount", http.MethodPost, base + "/deposit", owner, `{"amount":"0"}`, http.StatusBadRequest},
		{"negative amount", http.MethodPost, base + "/deposit", owner, `{"amount":-5}`, http.StatusBadRequest},
		{"sub-cent amount", http.MethodPost, base + "/deposit", owner, `{"amount":"0.004"}`, http.StatusBadRequest},
		{"oversized amount", http.MethodPost, base + "/withdraw", owner, `{"amount":"1e13"}`, http.StatusBadRequest},
		{"unparsable amount", http.MethodPost, base + "/deposit", owner, `{"amount":"lots"}`, http.StatusBadRequest},
		{"missing amount", http.MethodPost, base + "/withdraw", owner, `{}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, base + "/deposit", owner, `{`, http.StatusBadRequest},
		{"foreign deposit", http.MethodPost, base + "/deposit", stranger, `{"amount":"10"}`, http.StatusForbidden},
		{"foreign withdraw", http.MethodPost, base + "/withdraw", stranger, `{"amount":"10"}`, http.StatusForbidden},
		{"foreign get", http.MethodGet, base, stranger, ``, http.StatusNotFound},
		{"foreign update", http.MethodPut, base, stranger, `{"name":"x"}`, http.StatusNotFound},
		{"foreign delete", http.MethodDelete, base, stranger, ``, http.StatusNotFound},
		{"unknown target", http.MethodPost, "/v1/savings/targets/" + uuid.NewString() + "/deposit", owner, `{"amount":"10"}`, http.StatusNotFound},
		{"malformed id", http.MethodGet, "/v1/savings/targets/not-a-uuid", owner, ``, http.StatusNotFound},
		{"invalid target amount", http.MethodPost, "/v1/savings/targets", owner, `{"name":"x","target_amount":"0"}`, http.StatusBadRequest},
		{"sub-cent target amount", http.MethodPost, "/v1/savings/targets", owner, `{"name":"x","target_amount":"0.001"}`, http.StatusBadRequest},
		{"sub-cent current amount", http.MethodPut, base, owner, `{"current_amount":"1.005"}`, http.StatusBadRequest},
		{"negative current amount", http.MethodPut, base, owner, `{"current_amount":"-1"}`, http.StatusBadRequest},
		{"no claims", http.MethodGet, "/v1/statistics", "", ``, http.StatusUnauthorized},
		{"wrong method", http.MethodPatch, base, owner, ``, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body interface{}
			if tc.body != "" {
				body = tc.body
			}
			rr := srv.do(t, tc.method, tc.path, tc.user, body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}

	rr = srv.do(t, http.MethodGet, base, owner, nil)
	require.Equal(t, "0.00", decode[TargetView](t, rr).CurrentAmount)
}

func TestStatisticsEndpoints(t *testing.T) {
	srv := newTestServer(t)
	userID := uuid.NewString()

	rr := srv.do(t, http.MethodGet, "/v1/statistics", userID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[StatisticsView](t, rr)
	require.Equal(t, "0.00", stats.TotalSaved)
	require.Zero(t, stats.StreakDays)

	rr = srv.do(t, http.MethodPost, "/v1/savings/targets", userID, `{"name":"Rumah","target_amount":"10000000"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[TargetView](t, rr).ID

	rr = srv.do(t, http.MethodPost, "/v1/savings/targets/"+id+"/deposit", userID, `{"amount":"10000000"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/statistics", userID, nil)
	stats = decode[StatisticsView](t, rr)
	require.Equal(t, "10000000.00", stats.TotalSaved)
	require.Equal(t, 1, stats.StreakDays)
	require.Equal(t, "10000000.00", stats.DailyAverage)
	require.Equal(t, 1, stats.AchievementsCount)
	require.Equal(t, "2025-03-10", *stats.LastDepositDate)

	rr = srv.do(t, http.MethodGet, "/v1/statistics/streak?days=3", userID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	streak := decode[StreakView](t, rr)
	require.Equal(t, 1, streak.CurrentStreak)
	require.Len(t, streak.Days, 3)
	require.True(t, streak.Days[2].IsToday)
	require.True(t, streak.Days[2].IsPartOfStreak)
	require.Equal(t, "10000000.00", *streak.Days[2].DepositAmount)

	rr = srv.do(t, http.MethodGet, "/v1/statistics/achievements", userID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	achievements := decode[ListAchievementsResponse](t, rr)
	require.Len(t, achievements.Items, 1)
	require.Equal(t, "RP 10M+", achievements.Items[0].Title)
}

func TestRecentActivitiesRequiresAdminScope(t *testing.T) {
	srv := newTestServer(t)
	userID := uuid.NewString()

	rr := srv.do(t, http.MethodPost, "/v1/savings/targets", userID, `{"name":"Motor","target_amount":"100"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/activities/recent", userID, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/activities/recent?limit=5", uuid.NewString(), nil, auth.ScopeAdminRead)
	require.Equal(t, http.StatusOK, rr.Code)
	items := decode[ListActivitiesResponse](t, rr).Items
	require.Len(t, items, 1)
	require.Equal(t, string(domain.ActivityTargetCreated), items[0].ActivityType)
}

func TestServerErrorsAreLoggedNotLeaked(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := NewHandler(nil, WithLogger(logger))

	rr := httptest.NewRecorder()
	h.writeDomainError(rr, domain.StorageError("list targets", errBoom))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "boom")
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

var errBoom = errorString("boom")

type errorString string

func (e errorString) Error() string { return string(e) }
