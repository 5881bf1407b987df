package api

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevertPlanRejectsBadVersion(t *testing.T) {
	d, _ := newTestDeps(t, `{}`)
	mux := BuildRoutes(d)

	rec := post(mux, "/plan/1/revert", url.Values{"version": {"latest"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "bad version")

	rec = post(mux, "/plan/1/revert", url.Values{})
	assert.Contains(t, rec.Body.String(), "bad version")
}

func TestPurgeVersionsRejectsBadBefore(t *testing.T) {
	d, _ := newTestDeps(t, `{}`)
	mux := BuildRoutes(d)

	rec := post(mux, "/plan/1/purge", url.Values{"before": {"all"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "bad before")
}

func TestHistoryRoutesRequireIntegerPlanID(t *testing.T) {
	d, _ := newTestDeps(t, `{}`)
	mux := BuildRoutes(d)

	rec := post(mux, "/plan/abc/revert", url.Values{"version": {"1"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = post(mux, "/plan/abc/purge", url.Values{"before": {"1"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
