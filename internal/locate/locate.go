// 包 locate：按访问者 IP 估算初始地图范围
// 背景：会话创建时用 GeoIP 城市库定位访问来源，给前端一个合理的初始
// 视野中心；库缺失或 IP 未命中时回退到配置的默认范围。地图画布本身
// 仍是外部协作方，这里只产出范围数字。
package locate

import (
	"net"
	"os"
	"strconv"
	"strings"

	"district-api/internal/logger"

	"github.com/oschwald/geoip2-golang"
)

// Locator: GeoIP 城市库的查询入口
type Locator struct {
	r             *geoip2.Reader
	defaultExtent [4]float64
}

// Open: 打开 mmdb 城市库；path 为空或文件缺失时返回仅含默认范围的定位器
func Open(path string) *Locator {
	l := &Locator{defaultExtent: defaultExtentFromEnv()}
	if path == "" {
		logger.L().Info("geoip_disabled")
		return l
	}
	r, err := geoip2.Open(path)
	if err != nil {
		logger.L().Error("geoip_open_error", "path", path, "err", err)
		return l
	}
	l.r = r
	logger.L().Info("geoip_ready", "path", path)
	return l
}

// Close: 释放 mmdb 句柄
func (l *Locator) Close() {
	if l.r != nil {
		_ = l.r.Close()
	}
}

// Extent: 以访问者城市为中心构造初始范围 [minLon, minLat, maxLon, maxLat]
// 约束：半径固定 0.5 度，足够覆盖城市级视野；未命中返回默认范围与 false。
func (l *Locator) Extent(ipText string) ([4]float64, bool) {
	if l.r == nil {
		return l.defaultExtent, false
	}
	ip := net.ParseIP(ipText)
	if ip == nil {
		return l.defaultExtent, false
	}
	rec, err := l.r.City(ip)
	if err != nil || rec == nil || (rec.Location.Latitude == 0 && rec.Location.Longitude == 0) {
		return l.defaultExtent, false
	}
	lat := rec.Location.Latitude
	lon := rec.Location.Longitude
	const half = 0.5
	logger.L().Debug("geoip_extent", "ip", ipText, "lat", lat, "lon", lon)
	return [4]float64{lon - half, lat - half, lon + half, lat + half}, true
}

// defaultExtentFromEnv: DEFAULT_EXTENT=minLon,minLat,maxLon,maxLat
func defaultExtentFromEnv() [4]float64 {
	// 默认覆盖美国本土
	out := [4]float64{-125, 24, -66, 50}
	s := os.Getenv("DEFAULT_EXTENT")
	if s == "" {
		return out
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out
	}
	var parsed [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out
		}
		parsed[i] = f
	}
	return parsed
}
