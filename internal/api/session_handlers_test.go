package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"district-api/internal/assign"
	"district-api/internal/locate"
	"district-api/internal/session"
	"district-api/internal/sources"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	units []sources.Unit
}

func (s *stubSource) Name() string    { return "stub" }
func (s *stubSource) Version() string { return "test" }
func (s *stubSource) Weight() float64 { return 9 }
func (s *stubSource) Query(ctx context.Context, shape orb.Geometry, geolevelID int64) ([]sources.Unit, error) {
	return s.units, nil
}
func (s *stubSource) Heartbeat(ctx context.Context) error { return nil }

func newTestDeps(t *testing.T, assignBody string) (Deps, *session.Session) {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(assignBody))
	}))
	t.Cleanup(backend.Close)

	srcMgr := sources.NewManager()
	srcMgr.Register(&stubSource{units: []sources.Unit{{ID: 10, GeolevelID: 1}, {ID: 11, GeolevelID: 1}}})

	d := Deps{
		Sessions: session.NewManager(),
		Sources:  srcMgr,
		Assign:   assign.New(backend.URL, backend.Client()),
		Locator:  locate.Open(""),
	}
	s := d.Sessions.Create(1, 1, [4]float64{-125, 24, -66, 50})
	return d, s
}

func post(mux *http.ServeMux, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func postJSON(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("content-type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSessionEditFlow(t *testing.T) {
	d, s := newTestDeps(t, `{"success":true,"version":2}`)
	mux := BuildRoutes(d)
	base := "/session/" + s.ID

	rec := post(mux, base+"/tool", url.Values{"tool": {"box"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active_tool":"box"`)

	rec = postJSON(mux, base+"/select", `{"type":"box","coordinates":[-123,37,-122,38]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"applied":true`)
	assert.Contains(t, rec.Body.String(), `"added":2`)
	assert.Len(t, s.Snapshot().Units, 2)

	rec = post(mux, base+"/assign", url.Values{"district": {"3"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	// 成功后恢复此前工具，缓冲区等待图层重载
	st := s.Snapshot()
	assert.Equal(t, session.ToolBox, st.ActiveTool)
	assert.True(t, st.Committed)
	assert.Len(t, st.Units, 2)

	rec = post(mux, base+"/loadend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.Snapshot().Units)
}

func TestSessionAssignRejectedKeepsSelection(t *testing.T) {
	d, s := newTestDeps(t, `{"success":false,"message":"district is locked"}`)
	mux := BuildRoutes(d)
	base := "/session/" + s.ID

	post(mux, base+"/tool", url.Values{"tool": {"point"}})
	postJSON(mux, base+"/select", `{"type":"point","coordinates":[-122.5,37.5]}`)
	require.Len(t, s.Snapshot().Units, 2)

	rec := post(mux, base+"/assign", url.Values{"district": {"1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "district is locked")

	st := s.Snapshot()
	assert.Equal(t, session.ToolAssign, st.ActiveTool)
	assert.False(t, st.Committed)
	assert.Len(t, st.Units, 2)
}

func TestSelectRejectsMismatchedShape(t *testing.T) {
	d, s := newTestDeps(t, `{}`)
	mux := BuildRoutes(d)
	base := "/session/" + s.ID

	post(mux, base+"/tool", url.Values{"tool": {"point"}})
	rec := postJSON(mux, base+"/select", `{"type":"box","coordinates":[-123,37,-122,38]}`)
	assert.Contains(t, rec.Body.String(), "does not match")
	assert.Empty(t, s.Snapshot().Units)
}

func TestSessionNotFound(t *testing.T) {
	d, _ := newTestDeps(t, `{}`)
	mux := BuildRoutes(d)
	rec := post(mux, "/session/nope/tool", url.Values{"tool": {"box"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetVisitorIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:5123"
	assert.Equal(t, "203.0.113.9", getVisitorIP(r))

	r.Header.Set("x-forwarded-for", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", getVisitorIP(r))

	r.Header.Del("x-forwarded-for")
	r.Header.Set("x-real-ip", "192.0.2.4")
	assert.Equal(t, "192.0.2.4", getVisitorIP(r))
}
