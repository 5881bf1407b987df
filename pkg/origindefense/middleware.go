package origindefense

import (
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
)

// 文档注释：源站防御（IP/CIDR白名单）
// 背景：作为源站部署在 CDN 或反向代理之后，仅允许回源网段与指定开发调试
// IP 直接访问源站；其他请求统一返回 403。
// 约束：
// 1) 不依赖项目内部代码，提供独立包以便在其他项目直接复用；
// 2) 支持 IPv4/IPv6 CIDR；
// 3) 真实来源 IP 以 RemoteAddr 为准；如需识别上游真实 IP，请通过 ORIGIN_REAL_IP_HEADER 指定。
type Middleware struct {
	l            *slog.Logger
	enabled      bool
	allowIPs     map[string]struct{}
	allowCIDRs   []*net.IPNet
	realIPHeader string
	mu           sync.RWMutex
}

// NewFromEnv：按环境变量构建中间件
// 环境变量：
// ORIGIN_DEFENSE_ENABLE=true              是否启用防御
// ORIGIN_ALLOW_IPS=1.2.3.4,5.6.7.8       允许的单 IP 列表（逗号分隔）
// ORIGIN_ALLOW_CIDRS=10.0.0.0/8,...      允许的 CIDR 列表（逗号分隔，支持 v4/v6）
// ORIGIN_ALLOW_LOCAL=true                 允许 127.0.0.1/::1（本地开发）
// ORIGIN_REAL_IP_HEADER=X-Forwarded-For   指定上游真实 IP 头（首个有效 IP 生效）
func NewFromEnv(l *slog.Logger) *Middleware {
	m := &Middleware{
		l:            l,
		enabled:      os.Getenv("ORIGIN_DEFENSE_ENABLE") == "true",
		allowIPs:     map[string]struct{}{},
		realIPHeader: strings.TrimSpace(os.Getenv("ORIGIN_REAL_IP_HEADER")),
	}
	if s := os.Getenv("ORIGIN_ALLOW_IPS"); s != "" {
		for _, p := range strings.Split(s, ",") {
			p = strings.TrimSpace(p)
			if ip := net.ParseIP(p); ip != nil {
				m.allowIPs[ip.String()] = struct{}{}
			}
		}
	}
	if s := os.Getenv("ORIGIN_ALLOW_CIDRS"); s != "" {
		for _, c := range strings.Split(s, ",") {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if _, n, err := net.ParseCIDR(c); err == nil {
				m.allowCIDRs = append(m.allowCIDRs, n)
			}
		}
	}
	if os.Getenv("ORIGIN_ALLOW_LOCAL") != "false" {
		m.allowIPs["127.0.0.1"] = struct{}{}
		m.allowIPs["::1"] = struct{}{}
	}
	return m
}

// Wrap：返回带防御检查的处理器；未启用时透传
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if !m.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.sourceIP(r)
		if !m.allowed(ip) {
			m.l.Debug("origin_defense_block", "ip", ip, "path", r.URL.Path)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) sourceIP(r *http.Request) string {
	if m.realIPHeader != "" {
		if v := r.Header.Get(m.realIPHeader); v != "" {
			first := strings.TrimSpace(strings.Split(v, ",")[0])
			if ip := net.ParseIP(first); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *Middleware) allowed(ipText string) bool {
	ip := net.ParseIP(ipText)
	if ip == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.allowIPs[ip.String()]; ok {
		return true
	}
	for _, n := range m.allowCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
