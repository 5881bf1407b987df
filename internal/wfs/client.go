// 包 wfs：外部空间要素服务（WFS）客户端
// 背景：圈选查询对接 GeoServer 等实现的 GetFeature 接口，intersects 空间过滤，
// GeoJSON 输出；服务不可用时由管理器降级到本地索引源。
package wfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"district-api/internal/logger"
	"district-api/internal/metrics"
	"district-api/internal/sources"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// Client: 单个 WFS 端点的查询入口
// 约束：typeName 与几何字段名需与服务端图层发布一致；仅消费 GeoJSON 输出格式。
type Client struct {
	base      string
	typeName  string
	geomField string
	hc        *http.Client
}

func NewClient(base, typeName, geomField string, hc *http.Client) *Client {
	if geomField == "" {
		geomField = "geom"
	}
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{base: base, typeName: typeName, geomField: geomField, hc: hc}
}

// GetFeatures: intersects 过滤的 GetFeature 查询
// 参数：shape 为查询几何（WGS84）；geolevelID 作为属性过滤叠加在空间条件上。
// 返回：命中单元引用列表；HTTP 或解析失败返回错误，由上层决定降级。
func (c *Client) GetFeatures(ctx context.Context, shape orb.Geometry, geolevelID int64) ([]sources.Unit, error) {
	q := url.Values{}
	q.Set("service", "WFS")
	q.Set("version", "2.0.0")
	q.Set("request", "GetFeature")
	q.Set("typeNames", c.typeName)
	q.Set("outputFormat", "application/json")
	q.Set("srsName", "EPSG:4326")
	filter := fmt.Sprintf("INTERSECTS(%s, %s)", c.geomField, wkt.MarshalString(shape))
	if geolevelID > 0 {
		filter += fmt.Sprintf(" AND geolevel_id = %d", geolevelID)
	}
	q.Set("cql_filter", filter)
	u := c.base + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	t0 := time.Now()
	metrics.WFSRequestsTotal.Inc()
	logger.L().Debug("wfs_req", "type", c.typeName, "geolevel_id", geolevelID)
	resp, err := c.hc.Do(req)
	if err != nil {
		logger.L().Error("wfs_http_error", "err", err)
		metrics.WFSFailTotal.Inc()
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.WFSFailTotal.Inc()
		return nil, fmt.Errorf("wfs status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.WFSFailTotal.Inc()
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		logger.L().Error("wfs_decode_error", "err", err)
		metrics.WFSFailTotal.Inc()
		return nil, err
	}
	dur := time.Since(t0).Milliseconds()
	metrics.WFSDurationMs.Observe(float64(dur))
	out := make([]sources.Unit, 0, len(fc.Features))
	for _, f := range fc.Features {
		u := sources.Unit{
			ID:         propInt64(f.Properties, "geounit_id"),
			GeolevelID: propInt64(f.Properties, "geolevel_id"),
			PortableID: propString(f.Properties, "portable_id"),
		}
		if u.ID == 0 {
			continue
		}
		out = append(out, u)
	}
	logger.L().Debug("wfs_resp", "features", len(fc.Features), "units", len(out), "duration_ms", dur)
	return out, nil
}

// Ping: GetCapabilities 可达性探测，供心跳使用
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("service", "WFS")
	q.Set("request", "GetCapabilities")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errors.New("wfs capabilities status " + resp.Status)
	}
	return nil
}

func propInt64(p geojson.Properties, key string) int64 {
	switch v := p[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func propString(p geojson.Properties, key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}
