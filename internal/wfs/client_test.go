package wfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const featureBody = `{
  "type": "FeatureCollection",
  "features": [
    {"type":"Feature","geometry":{"type":"Point","coordinates":[-122.1,37.4]},
     "properties":{"geounit_id":101,"geolevel_id":1,"portable_id":"060855046"}},
    {"type":"Feature","geometry":{"type":"Point","coordinates":[-122.2,37.5]},
     "properties":{"geounit_id":102,"geolevel_id":1,"portable_id":"060855047"}},
    {"type":"Feature","geometry":{"type":"Point","coordinates":[-122.3,37.6]},
     "properties":{"geolevel_id":1}}
  ]
}`

func TestGetFeatures(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(featureBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gmu:geounit", "the_geom", srv.Client())
	shape := orb.Polygon{{{-123, 37}, {-122, 37}, {-122, 38}, {-123, 38}, {-123, 37}}}
	units, err := c.GetFeatures(context.Background(), shape, 1)
	require.NoError(t, err)

	assert.Equal(t, "WFS", query.Get("service"))
	assert.Equal(t, "2.0.0", query.Get("version"))
	assert.Equal(t, "GetFeature", query.Get("request"))
	assert.Equal(t, "gmu:geounit", query.Get("typeNames"))
	assert.Equal(t, "application/json", query.Get("outputFormat"))
	filter := query.Get("cql_filter")
	assert.Contains(t, filter, "INTERSECTS(the_geom, POLYGON")
	assert.Contains(t, filter, "AND geolevel_id = 1")

	// geounit_id 缺失的要素被跳过
	require.Len(t, units, 2)
	assert.Equal(t, int64(101), units[0].ID)
	assert.Equal(t, "060855046", units[0].PortableID)
	assert.Equal(t, int64(1), units[0].GeolevelID)
	assert.Equal(t, int64(102), units[1].ID)
}

func TestGetFeaturesOmitsGeolevelFilterWhenZero(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gmu:geounit", "", srv.Client())
	units, err := c.GetFeatures(context.Background(), orb.Point{-122, 37}, 0)
	require.NoError(t, err)
	assert.Empty(t, units)
	assert.NotContains(t, query.Get("cql_filter"), "geolevel_id")
	assert.Contains(t, query.Get("cql_filter"), "INTERSECTS(geom, POINT")
}

func TestGetFeaturesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gmu:geounit", "", srv.Client())
	_, err := c.GetFeatures(context.Background(), orb.Point{-122, 37}, 1)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GetCapabilities", r.URL.Query().Get("request"))
		_, _ = w.Write([]byte(`<wfs:WFS_Capabilities/>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gmu:geounit", "", srv.Client())
	assert.NoError(t, c.Ping(context.Background()))

	srv.Close()
	assert.Error(t, c.Ping(context.Background()))
}
