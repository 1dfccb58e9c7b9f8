package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/igorgomez/medidascorporais/internal/auth"
	"github.com/igorgomez/medidascorporais/internal/domain"
	"github.com/igorgomez/medidascorporais/internal/identity"
	"github.com/igorgomez/medidascorporais/internal/persistence/memory"
)

var (
	testAuth = auth.Config{Secret: "test-secret-0123456789", Issuer: "medidas.test"}
	testNow  = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
)

type fixture struct {
	router   http.Handler
	provider *identity.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	provider := identity.NewProvider(identity.NewInMemoryStore(), testAuth, time.Hour, identity.WithHashCost(bcrypt.MinCost))
	service := domain.NewService(memory.NewStore())

	r := mux.NewRouter()
	NewHandler(service, provider, WithClock(func() time.Time { return testNow })).RegisterRoutes(r)

	mw := auth.NewMiddleware(testAuth, auth.PublicPaths, provider)
	return &fixture{router: mw.Wrap(r), provider: provider}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) signUp(t *testing.T, email string) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/auth/signup", "", identity.Credentials{Email: email, Password: "secret1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var session identity.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	return session.Token
}

func TestCreateListDeleteFlow(t *testing.T) {
	f := newFixture(t)
	token := f.signUp(t, "ana@example.com")

	rr := f.do(t, http.MethodPost, "/v1/measurements", token, map[string]string{"date": "2025-03-01T08:00", "weight": "70.5", "waist": "80"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created CreateMeasurementResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.Measurement.ID)
	require.Equal(t, "70.5", created.Measurement.Weight)
	require.False(t, created.Replay)

	rr = f.do(t, http.MethodPost, "/v1/measurements", token, map[string]string{"date": "2025-03-08", "weight": "70"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/measurements", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list ListMeasurementsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)
	require.Equal(t, "70", list.Items[0].Weight, "most recent first")

	rr = f.do(t, http.MethodDelete, "/v1/measurements/"+created.Measurement.ID, token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/measurements", token, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	require.NotEqual(t, created.Measurement.ID, list.Items[0].ID)
}

func TestCreateRejectsEmptyMeasurement(t *testing.T) {
	f := newFixture(t)
	token := f.signUp(t, "bia@example.com")

	rr := f.do(t, http.MethodPost, "/v1/measurements", token, map[string]string{"date": "2025-03-01", "weight": "  "})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "empty_measurement")
}

func TestCreateHonoursIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	token := f.signUp(t, "caio@example.com")
	body := map[string]string{"date": "2025-03-01", "arm": "32"}

	first := f.do(t, http.MethodPost, "/v1/measurements", token, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := f.do(t, http.MethodPost, "/v1/measurements", token, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, second.Code)

	var a, b CreateMeasurementResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	require.Equal(t, a.Measurement.ID, b.Measurement.ID)
	require.True(t, b.Replay)
}

func TestUsersCannotSeeEachOthersMeasurements(t *testing.T) {
	f := newFixture(t)
	alice := f.signUp(t, "alice@example.com")
	bob := f.signUp(t, "bob@example.com")

	rr := f.do(t, http.MethodPost, "/v1/measurements", alice, map[string]string{"date": "2025-03-01", "hips": "95"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created CreateMeasurementResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = f.do(t, http.MethodGet, "/v1/measurements", bob, nil)
	var list ListMeasurementsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Empty(t, list.Items)

	rr = f.do(t, http.MethodDelete, "/v1/measurements/"+created.Measurement.ID, bob, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/measurements", alice, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
}

func TestTimelineAndRadar(t *testing.T) {
	f := newFixture(t)
	token := f.signUp(t, "dani@example.com")

	for i, w := range []string{"72", "71", "70"} {
		date := testNow.AddDate(0, 0, -10+i).Format("2006-01-02")
		rr := f.do(t, http.MethodPost, "/v1/measurements", token, map[string]string{"date": date, "weight": w, "height": "170"})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := f.do(t, http.MethodGet, "/v1/measurements/timeline?field=weight", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var timeline TimelineResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &timeline))
	points := timeline.Series[domain.FieldWeight]
	require.Len(t, points, 3)
	require.Equal(t, 72.0, points[0].Value)
	require.Equal(t, "04/03", points[0].Date)
	require.Len(t, timeline.Series, 1)

	rr = f.do(t, http.MethodGet, "/v1/measurements/timeline", token, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &timeline))
	require.Len(t, timeline.Series, len(domain.Fields))

	rr = f.do(t, http.MethodGet, "/v1/measurements/timeline?field=neck", token, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/measurements/radar", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var radar RadarResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &radar))
	require.Len(t, radar.Axes, 2)
	require.Equal(t, 70.0, radar.Axes[0].Value)
	require.Equal(t, 100.0, radar.Axes[0].FullMark)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	token := f.signUp(t, "edu@example.com")

	rr := f.do(t, http.MethodGet, "/v1/measurements/export", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "nothing_to_export")

	rr = f.do(t, http.MethodPost, "/v1/measurements", token, map[string]string{"date": "2025-03-01", "thigh": "55"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/measurements/export", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `attachment; filename="medidas-corporais-2025-03-14.json"`, rr.Header().Get("Content-Disposition"))

	var exported []domain.Measurement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &exported))
	require.Len(t, exported, 1)
	require.Equal(t, "55", exported[0].Thigh)
	require.True(t, strings.HasPrefix(rr.Body.String(), "[\n  {"))
}

func TestAuthEndpoints(t *testing.T) {
	f := newFixture(t)
	token := f.signUp(t, "fer@example.com")

	rr := f.do(t, http.MethodPost, "/v1/auth/signup", "", identity.Credentials{Email: "fer@example.com", Password: "secret1"})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/auth/signin", "", identity.Credentials{Email: "fer@example.com", Password: "wrong-one"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid_credentials")

	rr = f.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var user identity.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	require.Equal(t, "fer@example.com", user.Email)

	rr = f.do(t, http.MethodPost, "/v1/auth/signout", token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestScopeEnforcement(t *testing.T) {
	service := domain.NewService(memory.NewStore())
	handler := NewHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/measurements", strings.NewReader(`{"weight":"70"}`))
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
		Subject: "u1",
		Scopes:  map[string]struct{}{auth.ScopeMeasurementsRead: {}},
	}))
	rr := httptest.NewRecorder()
	handler.createMeasurement(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	handler.listMeasurements(rr, httptest.NewRequest(http.MethodGet, "/v1/measurements", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/v1/measurements", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestSetupGuide(t *testing.T) {
	h := SetupGuide(nil)
	for _, path := range []string{"/", "/v1/measurements", "/anything"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		require.Contains(t, rr.Body.String(), "MEDIDAS_API_KEY")
		require.Contains(t, rr.Body.String(), "MEDIDAS_APP_ID")
	}
}
