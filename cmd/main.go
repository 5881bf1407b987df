// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"crypto/tls"
	"district-api/internal/api"
	"district-api/internal/assign"
	"district-api/internal/locate"
	"district-api/internal/logger"
	"district-api/internal/metrics"
	"district-api/internal/middleware"
	"district-api/internal/migrate"
	"district-api/internal/session"
	"district-api/internal/sources"
	"district-api/internal/spatialindex"
	"district-api/internal/store"
	"district-api/internal/utils"
	"district-api/internal/version"
	"district-api/internal/wfs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	// 日志初始化
	l := logger.Setup()
	l.Debug("log_init_ok")
	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	l.Debug("config_api_base", "base", apiBase)
	ui := os.Getenv("UI_DIST")
	if ui == "" {
		ui = filepath.Join("ui", "dist")
	}
	l.Debug("config_ui_dir", "dir", ui)

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	l.Info("db_open_ok")
	if err := db.Ping(); err != nil {
		l.Error("db_ping_error", "err", err)
	} else {
		l.Info("db_ping_ok")
	}
	st := store.AttachDB(db)
	if err := migrate.EnsureSchema(db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	// 文档注释：要素源管理器初始化
	// 背景：统一管理本地空间索引与外部 WFS 两类要素源，提供健康源集合给
	// 圈选查询；在后台启动心跳监控。
	srcMgr := sources.NewManager()
	dyn := &spatialindex.Dynamic{}
	srcMgr.Register(spatialindex.NewLocalSource(dyn))
	l.Info("source_register", "name", "local")
	if ep := os.Getenv("WFS_ENDPOINT"); ep != "" {
		typeName := os.Getenv("WFS_TYPENAME")
		if typeName == "" {
			typeName = "gmu:geounit"
		}
		geomField := os.Getenv("WFS_GEOM_FIELD")
		if geomField == "" {
			geomField = "geom"
		}
		client := &http.Client{Timeout: 4 * time.Second}
		srcMgr.Register(wfs.NewSource(wfs.NewClient(ep, typeName, geomField, client)))
		l.Info("source_register", "name", "wfs", "endpoint", ep)
	}
	srcMgr.Start(context.Background())

	// 动态空间索引：在几何单元导入就绪时构建并加载，避免空库时空转查询
	go func() {
		for {
			n, err := st.CountGeoUnits(context.Background())
			if err == nil && n > 0 {
				units, err := st.GeoUnitsByLevel(context.Background(), 0)
				if err != nil {
					l.Error("index_load_error", "err", err)
				} else {
					ix, skipped := spatialindex.Build(units)
					dyn.Set(ix)
					l.Info("index_ready", "units", ix.Count(), "skipped", skipped)
					break
				}
			}
			time.Sleep(2 * time.Second)
		}
	}()

	// 地理定位：按访问者 IP 估算初始视野；库缺失时回退到默认范围
	mmdbPath := os.Getenv("GEOIP_MMDB_PATH")
	if mmdbPath == "" {
		mmdbPath = filepath.Join("data", "geoip", "GeoLite2-City.mmdb")
	}
	loc := locate.Open(mmdbPath)
	defer loc.Close()

	// 指派服务客户端：默认回环指向本服务自身的指派端点
	assignHC := &http.Client{Timeout: 8 * time.Second}
	assignBase := os.Getenv("ASSIGN_BASE")
	if assignBase == "" {
		addr := os.Getenv("ADDR")
		if addr == "" {
			addr = ":8080"
		}
		scheme := "http"
		if os.Getenv("TLS_ENABLE") == "" || os.Getenv("TLS_ENABLE") == "true" {
			scheme = "https"
			// 回环访问自签证书，跳过校验
			assignHC.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
		}
		assignBase = scheme + "://127.0.0.1" + addr + apiBase
	}
	ac := assign.New(assignBase, assignHC)
	l.Debug("config_assign_base", "base", assignBase)

	sm := session.NewManager()
	sm.Start(context.Background())

	mux := http.NewServeMux()
	// 文档注释：构建路由（携带会话管理器与要素源管理器）
	apiMux := api.BuildRoutes(api.Deps{
		Store:    st,
		Redis:    rc,
		Sessions: sm,
		Sources:  srcMgr,
		Assign:   ac,
		Locator:  loc,
	})
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())
	mux.HandleFunc(apiBase+"/reload-index", func(w http.ResponseWriter, r *http.Request) {
		t := r.Header.Get("x-admin-token")
		if t == "" || t != os.Getenv("ADMIN_TOKEN") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		units, err := st.GeoUnitsByLevel(r.Context(), 0)
		if err != nil {
			l.Error("index_load_error", "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ix, skipped := spatialindex.Build(units)
		dyn.Set(ix)
		l.Info("index_reloaded", "units", ix.Count(), "skipped", skipped)
		w.WriteHeader(http.StatusNoContent)
	})

	fs := http.FileServer(http.Dir(ui))
	mux.Handle("/", fs)

	// NOTE: 向前端暴露 API 基础路径，避免硬编码；生产环境由后端统一提供
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + apiBase + "'"))
		_, _ = w.Write([]byte("\n"))
		_, _ = w.Write([]byte("window.__COMMIT_SHA__='" + version.Commit + "'"))
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler}
	tlsEnable := os.Getenv("TLS_ENABLE")
	if tlsEnable == "" || tlsEnable == "true" {
		certPath := os.Getenv("TLS_CERT_PATH")
		keyPath := os.Getenv("TLS_KEY_PATH")
		if certPath == "" {
			certPath = filepath.Join("data", "certs", "server.crt")
		}
		if keyPath == "" {
			keyPath = filepath.Join("data", "certs", "server.key")
		}
		_ = utils.EnsureSelfSignedCert(certPath, keyPath, "district-api.local")
		// 可选：启动HTTP重定向到HTTPS（不改变HTTPS运行端口）
		if os.Getenv("TLS_REDIRECT_ENABLE") == "true" {
			redirAddr := os.Getenv("TLS_REDIRECT_ADDR")
			if redirAddr == "" {
				redirAddr = ":80"
			}
			go func() {
				httpRedir := http.NewServeMux()
				httpRedir.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
					host := r.Host
					httpsPort := strings.TrimPrefix(addr, ":")
					baseHost := host
					if i := strings.LastIndex(host, ":"); i != -1 {
						baseHost = host[:i]
					}
					targetHost := baseHost
					if httpsPort != "" {
						targetHost = baseHost + ":" + httpsPort
					}
					target := "https://" + targetHost + r.URL.RequestURI()
					http.Redirect(w, r, target, http.StatusMovedPermanently)
					l.Debug("http_redirect", "from", r.Host, "to", target)
				})
				l.Info("http_redirect_listening", "addr", redirAddr, "to", "https"+addr)
				_ = http.ListenAndServe(redirAddr, logger.AccessMiddleware(l)(httpRedir))
			}()
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		_ = s.ListenAndServeTLS(certPath, keyPath)
		return
	}
	l.Info("listening", "addr", addr)
	_ = s.ListenAndServe()
}
