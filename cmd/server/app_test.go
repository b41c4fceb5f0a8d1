package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/auth"
	"github.com/diewo77/bloodboard/internal/cache"
	"github.com/diewo77/bloodboard/internal/db"
	"github.com/diewo77/bloodboard/internal/identity"
	"github.com/diewo77/bloodboard/internal/policy"
	"github.com/diewo77/bloodboard/internal/realtime"
	"github.com/diewo77/bloodboard/view"
)

const testSecret = "test-jwt-secret"

// testClient keeps the session cookie between requests and never follows redirects.
type testClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func newTestServer(t *testing.T) *testClient {
	t.Helper()
	view.ResetForTests()
	view.SetBaseDir("../../templates")
	t.Cleanup(view.ResetForTests)

	gdb, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb, false, zap.NewNop()))

	hub := realtime.NewHub(zap.NewNop())
	t.Cleanup(func() { _ = hub.Close() })
	store := cache.NewMemory(64, time.Minute)
	require.NoError(t, db.Install(gdb, &cache.InvalidatingPublisher{Store: store, Next: hub, Paths: []string{"/"}, Logger: zap.NewNop()}, zap.NewNop()))

	provider := identity.NewLocal(gdb, identity.LocalConfig{JWTSecret: testSecret}, nil, zap.NewNop())
	verifier := identity.NewHS256Verifier(testSecret)

	app := NewApp(Deps{
		DB:       gdb,
		Gate:     policy.NewAuthGate(gdb, time.Minute),
		Sessions: auth.NewManager("session-secret", false, verifier, provider, nil),
		Provider: provider,
		Cache:    store,
		CacheTTL: time.Minute,
		Relay:    realtime.NewRelay(hub, zap.NewNop(), "shortages", "centers"),
		Logger:   zap.NewNop(),
	})
	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testClient{
		t:    t,
		base: srv.URL,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *testClient) do(method, path, accept string, form url.Values) (*http.Response, string) {
	c.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, c.base+path, body)
	require.NoError(c.t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", accept)
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, string(b)
}

// jsonData issues a JSON request and decodes the "data" member of the envelope.
func (c *testClient) jsonData(method, path string, form url.Values, wantStatus int, dest any) {
	c.t.Helper()
	resp, body := c.do(method, path, "application/json", form)
	require.Equal(c.t, wantStatus, resp.StatusCode, body)
	if dest == nil {
		return
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(c.t, json.Unmarshal([]byte(body), &env))
	require.NoError(c.t, json.Unmarshal(env.Data, dest))
}

func (c *testClient) html(path string) (*http.Response, string) {
	c.t.Helper()
	return c.do(http.MethodGet, path, "text/html", nil)
}

func signupBloodBank(c *testClient) map[string]string {
	var out map[string]string
	c.jsonData(http.MethodPost, "/signup", url.Values{
		"role":        {"blood_bank"},
		"email":       {"bank@example.org"},
		"password":    {"correct-horse"},
		"center_name": {"Colombo General Blood Bank"},
		"district":    {"Colombo"},
	}, http.StatusOK, &out)
	return out
}

func TestApp_ShortageLifecycle(t *testing.T) {
	c := newTestServer(t)

	signup := signupBloodBank(c)
	require.NotEmpty(t, signup["center_id"])
	assert.Equal(t, "Colombo General Blood Bank", signup["center_name"])

	var member struct {
		CenterID string `json:"center_id"`
		Role     string `json:"role"`
	}
	c.jsonData(http.MethodGet, "/api/me/center", nil, http.StatusOK, &member)
	assert.Equal(t, signup["center_id"], member.CenterID)
	assert.Equal(t, "admin", member.Role)

	// prime the public cache so the write has something to invalidate
	var empty []map[string]any
	c.jsonData(http.MethodGet, "/api/shortages", nil, http.StatusOK, &empty)
	assert.Empty(t, empty)

	var created struct {
		ID        string `json:"id"`
		BloodType string `json:"blood_type"`
		Status    string `json:"status"`
	}
	c.jsonData(http.MethodPost, "/dashboard/shortages", url.Values{
		"blood_type": {"O+"},
		"status":     {"critical"},
		"notes":      {"Urgent"},
	}, http.StatusOK, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "O+", created.BloodType)

	var listed []struct {
		ID      string `json:"id"`
		Centers struct {
			Name string `json:"name"`
		} `json:"centers"`
	}
	c.jsonData(http.MethodGet, "/api/shortages", nil, http.StatusOK, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
	assert.Equal(t, "Colombo General Blood Bank", listed[0].Centers.Name)

	var index struct {
		Shortages []map[string]any `json:"shortages"`
		Summary   struct {
			Critical int `json:"critical"`
		} `json:"summary"`
		Districts []string `json:"districts"`
	}
	c.jsonData(http.MethodGet, "/?q=colombo", nil, http.StatusOK, &index)
	assert.Len(t, index.Shortages, 1)
	assert.Equal(t, 1, index.Summary.Critical)
	assert.Equal(t, []string{"Colombo"}, index.Districts)

	c.jsonData(http.MethodGet, "/?blood_type=A-", nil, http.StatusOK, &index)
	assert.Empty(t, index.Shortages)

	c.jsonData(http.MethodPost, "/dashboard/shortages/"+created.ID, url.Values{"blood_type": {"O+"}, "status": {"low"}}, http.StatusOK, &created)
	assert.Equal(t, "low", created.Status)

	c.jsonData(http.MethodPost, "/dashboard/shortages", url.Values{"blood_type": {"Z+"}, "status": {"low"}}, http.StatusUnprocessableEntity, nil)

	c.jsonData(http.MethodPost, "/dashboard/shortages/"+created.ID+"/delete", nil, http.StatusOK, nil)
	c.jsonData(http.MethodGet, "/api/shortages", nil, http.StatusOK, &listed)
	assert.Empty(t, listed)
}

func TestApp_HTMLPages(t *testing.T) {
	c := newTestServer(t)

	resp, body := c.html("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, `id="shortage-list"`)
	assert.Contains(t, body, "data-filter-form")
	assert.Contains(t, body, "/static/realtime.js")

	resp, _ = c.html("/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, body = c.html("/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<form")

	signupBloodBank(c)
	c.jsonData(http.MethodPost, "/dashboard/shortages", url.Values{"blood_type": {"AB-"}, "status": {"critical"}}, http.StatusOK, nil)

	resp, body = c.html("/?partial=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "AB-")
	assert.Contains(t, body, "Colombo General Blood Bank")
	assert.NotContains(t, strings.ToLower(body), "<!doctype")

	resp, body = c.html("/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "AB-")
}

func TestStaticScript_FiltersApplyLive(t *testing.T) {
	js, err := os.ReadFile("../../static/realtime.js")
	require.NoError(t, err)
	src := string(js)
	assert.Contains(t, src, "form[data-filter-form]")
	assert.Contains(t, src, "addEventListener('change', submit)")
	assert.Contains(t, src, "setTimeout(submit, SEARCH_DEBOUNCE_MS)")
	assert.Contains(t, src, "liveFilters();")
}

func TestApp_SignupValidation(t *testing.T) {
	c := newTestServer(t)

	resp, body := c.do(http.MethodPost, "/signup", "application/json", url.Values{
		"role":     {"blood_bank"},
		"email":    {"bank@example.org"},
		"password": {"correct-horse"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, `"error"`)

	resp, _ = c.do(http.MethodPost, "/signup", "application/json", url.Values{
		"role":      {"official"},
		"email":     {"official@example.org"},
		"password":  {"correct-horse"},
		"center_id": {"00000000-0000-0000-0000-000000000000"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApp_LoginLogout(t *testing.T) {
	c := newTestServer(t)
	signupBloodBank(c)

	c.jsonData(http.MethodPost, "/logout", nil, http.StatusOK, nil)
	c.jsonData(http.MethodGet, "/api/me/center", nil, http.StatusUnauthorized, nil)

	c.jsonData(http.MethodPost, "/login", url.Values{"email": {"bank@example.org"}, "password": {"wrong-password"}}, http.StatusBadRequest, nil)

	c.jsonData(http.MethodPost, "/login", url.Values{"email": {"bank@example.org"}, "password": {"correct-horse"}}, http.StatusOK, nil)
	c.jsonData(http.MethodGet, "/api/me/center", nil, http.StatusOK, nil)
}

func TestApp_FailedLoginDropsExistingSession(t *testing.T) {
	c := newTestServer(t)
	signupBloodBank(c)
	c.jsonData(http.MethodGet, "/api/me/center", nil, http.StatusOK, nil)

	c.jsonData(http.MethodPost, "/login", url.Values{"email": {"someone-else@example.org"}, "password": {"wrong-password"}}, http.StatusBadRequest, nil)
	c.jsonData(http.MethodGet, "/api/me/center", nil, http.StatusUnauthorized, nil)

	c.jsonData(http.MethodPost, "/login", url.Values{"email": {"bank@example.org"}, "password": {"correct-horse"}}, http.StatusOK, nil)
	c.jsonData(http.MethodPost, "/login/otp/verify", url.Values{"email": {"bank@example.org"}, "token": {"0000000"}}, http.StatusBadRequest, nil)
	c.jsonData(http.MethodGet, "/api/me/center", nil, http.StatusUnauthorized, nil)
}

func TestApp_AuditForAdmins(t *testing.T) {
	c := newTestServer(t)

	c.jsonData(http.MethodGet, "/dashboard/audit", nil, http.StatusUnauthorized, nil)

	signup := signupBloodBank(c)
	c.jsonData(http.MethodPost, "/dashboard/shortages", url.Values{"blood_type": {"B+"}, "status": {"low"}}, http.StatusOK, nil)

	var logs []struct {
		Action   string  `json:"action"`
		Table    string  `json:"table_name"`
		CenterID *string `json:"center_id"`
	}
	c.jsonData(http.MethodGet, "/dashboard/audit?action=create", nil, http.StatusOK, &logs)
	require.NotEmpty(t, logs)
	var found bool
	for _, l := range logs {
		assert.Equal(t, "create", l.Action)
		if l.Table == "shortages" {
			found = true
			require.NotNil(t, l.CenterID)
			assert.Equal(t, signup["center_id"], *l.CenterID)
		}
	}
	assert.True(t, found, "shortage insert is audited")

	resp, body := c.do(http.MethodGet, "/dashboard/audit/export", "*/*", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxMIME, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "audit-log-")
	assert.True(t, strings.HasPrefix(body, "PK"), "xlsx is a zip archive")
}

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func TestApp_Healthz(t *testing.T) {
	c := newTestServer(t)
	resp, body := c.do(http.MethodGet, "/healthz", "application/json", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:5123"
	assert.Equal(t, "10.0.0.9", clientIP(r))

	r.Header.Set("X-Real-IP", "192.0.2.4")
	assert.Equal(t, "192.0.2.4", clientIP(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", clientIP(r))
}

func TestSiteHost(t *testing.T) {
	assert.Equal(t, "blood.example.org", siteHost("https://blood.example.org"))
	assert.Equal(t, "localhost:8080", siteHost("http://localhost:8080/"))
}
