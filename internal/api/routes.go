// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"district-api/internal/assign"
	"district-api/internal/locate"
	"district-api/internal/logger"
	"district-api/internal/metrics"
	"district-api/internal/notify"
	"district-api/internal/session"
	"district-api/internal/sources"
	"district-api/internal/store"

	"github.com/paulmach/orb/geojson"
	"github.com/redis/go-redis/v9"
)

// Deps: 路由依赖的全部协作方；主入口装配后传入
type Deps struct {
	Store    *store.Store
	Redis    *redis.Client
	Sessions *session.Manager
	Sources  *sources.Manager
	Assign   *assign.Client
	Locator  *locate.Locator
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 /api 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /plan/{planID}/district/{districtID}/add", d.handleAssignUnits)
	mux.HandleFunc("GET /plan/{planID}/districts", d.handleDistrictLayer)
	mux.HandleFunc("GET /plan/{planID}", d.handlePlanInfo)
	mux.HandleFunc("POST /plan/{planID}/copy", d.handleCopyPlan)
	mux.HandleFunc("POST /plan/{planID}/revert", d.handleRevertPlan)
	mux.HandleFunc("POST /plan/{planID}/purge", d.handlePurgeVersions)
	mux.HandleFunc("POST /plan/{planID}/district/{districtID}/lock", d.handleDistrictLock)
	mux.HandleFunc("POST /plan/{planID}/submit", d.handleSubmitPlan)

	mux.HandleFunc("POST /session", d.handleCreateSession)
	mux.HandleFunc("GET /session/{sessionID}", d.handleSessionState)
	mux.HandleFunc("POST /session/{sessionID}/tool", d.handleActivateTool)
	mux.HandleFunc("POST /session/{sessionID}/geolevel", d.handleSetGeolevel)
	mux.HandleFunc("POST /session/{sessionID}/select", d.handleSelect)
	mux.HandleFunc("POST /session/{sessionID}/deselect", d.handleDeselect)
	mux.HandleFunc("POST /session/{sessionID}/assign", d.handleSessionAssign)
	mux.HandleFunc("POST /session/{sessionID}/loadend", d.handleLoadEnd)

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		t, _ := d.Store.GetTotals(r.Context())
		writeJSON(w, map[string]any{"total": t.Total, "today": t.Today})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}

func pathInt64(r *http.Request, key string) (int64, bool) {
	n, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	return n, err == nil
}

func layerCacheKey(planID int64) string { return "layer:" + strconv.FormatInt(planID, 10) }

// handleAssignUnits: 指派端点——服务端是合法性唯一权威
// 背景：表单字段 geolevel 与竖线分隔的 geounits；业务拒绝（锁定、层级不符）
// 与请求畸形都返回 success=false，HTTP 层保持 200 以维持响应契约。
func (d Deps) handleAssignUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, ok1 := pathInt64(r, "planID")
	districtID, ok2 := pathInt64(r, "districtID")
	if !ok1 || !ok2 {
		writeJSON(w, assignResult{Success: false, Message: "bad path"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, assignResult{Success: false, Message: "bad form"})
		return
	}
	geolevelID, err := strconv.ParseInt(r.PostFormValue("geolevel"), 10, 64)
	if err != nil {
		writeJSON(w, assignResult{Success: false, Message: "bad geolevel"})
		return
	}
	var unitIDs []int64
	for _, tok := range strings.Split(r.PostFormValue("geounits"), "|") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		id, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			writeJSON(w, assignResult{Success: false, Message: "bad geounit id: " + tok})
			return
		}
		unitIDs = append(unitIDs, id)
	}
	version, err := d.Store.AddGeounits(ctx, planID, int(districtID), geolevelID, unitIDs)
	if err != nil {
		if isDomainErr(err) {
			writeJSON(w, assignResult{Success: false, Message: err.Error()})
			return
		}
		logger.L().Error("assign_store_error", "plan_id", planID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, assignResult{Success: false, Message: "internal error"})
		return
	}
	if d.Redis != nil {
		_ = d.Redis.Del(ctx, layerCacheKey(planID)).Err()
	}
	_ = d.Store.IncrStats(ctx, 1, 0)
	writeJSON(w, assignResult{Success: true, Version: version})
}

func isDomainErr(err error) bool {
	return errors.Is(err, store.ErrPlanNotFound) ||
		errors.Is(err, store.ErrDistrictNotFound) ||
		errors.Is(err, store.ErrDistrictLocked) ||
		errors.Is(err, store.ErrGeolevelMismatch) ||
		errors.Is(err, store.ErrNoGeounits)
}

// handleDistrictLayer: 选区图层——最新指派视图的 GeoJSON 输出
// 背景：成功指派会使缓存失效，前端 loadend 前拿到的必然是新版本；
// 缓存命中与重建都计入指标。
func (d Deps) handleDistrictLayer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, ok := pathInt64(r, "planID")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	key := layerCacheKey(planID)
	if d.Redis != nil {
		if s, _ := d.Redis.Get(ctx, key).Result(); s != "" {
			metrics.LayerCacheHitsTotal.Inc()
			w.Header().Set("content-type", "application/json; charset=utf-8")
			w.Header().Set("cache-control", "no-store")
			_, _ = w.Write([]byte(s))
			return
		}
	}
	metrics.LayerCacheMissesTotal.Inc()
	units, err := d.Store.DistrictLayer(ctx, planID)
	if err != nil {
		logger.L().Error("layer_query_error", "plan_id", planID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, u := range units {
		g, err := geojson.UnmarshalGeometry([]byte(u.Geom))
		if err != nil {
			continue
		}
		f := geojson.NewFeature(g.Geometry())
		f.ID = u.GeounitID
		f.Properties = geojson.Properties{
			"geounit_id":    u.GeounitID,
			"geolevel_id":   u.GeolevelID,
			"portable_id":   u.PortableID,
			"name":          u.Name,
			"district_id":   u.DistrictID,
			"district_name": u.DistrictName,
		}
		fc.Append(f)
	}
	b, err := json.Marshal(fc)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if d.Redis != nil {
		_ = d.Redis.Set(ctx, key, string(b), 24*time.Hour).Err()
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	_, _ = w.Write(b)
}

func (d Deps) handlePlanInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, ok := pathInt64(r, "planID")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p, err := d.Store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	ds, err := d.Store.Districts(ctx, planID)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	type districtInfo struct {
		DistrictID int    `json:"district_id"`
		Name       string `json:"name"`
		Version    int    `json:"version"`
		IsLocked   bool   `json:"is_locked"`
	}
	out := map[string]any{
		"id":               p.ID,
		"name":             p.Name,
		"legislative_body": p.LegislativeBody,
		"owner":            p.OwnerName,
		"version":          p.Version,
	}
	var infos []districtInfo
	for _, dd := range ds {
		infos = append(infos, districtInfo{DistrictID: dd.DistrictID, Name: dd.Name, Version: dd.Version, IsLocked: dd.IsLocked})
	}
	out["districts"] = infos
	writeJSON(w, out)
}

func (d Deps) handleCopyPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, ok := pathInt64(r, "planID")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	name := r.PostFormValue("name")
	if name == "" {
		writeJSON(w, map[string]any{"success": false, "message": "name required"})
		return
	}
	newID, err := d.Store.CopyPlan(ctx, planID, name)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		logger.L().Error("plan_copy_error", "plan_id", planID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true, "plan_id": newID})
}

// handleRevertPlan: 回退到指定历史版本；成功后图层缓存失效
func (d Deps) handleRevertPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, ok := pathInt64(r, "planID")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	version, err := strconv.Atoi(r.PostFormValue("version"))
	if err != nil {
		writeJSON(w, map[string]any{"success": false, "message": "bad version"})
		return
	}
	if err := d.Store.RevertPlan(ctx, planID, version); err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if errors.Is(err, store.ErrBadVersion) {
			writeJSON(w, map[string]any{"success": false, "message": err.Error()})
			return
		}
		logger.L().Error("plan_revert_error", "plan_id", planID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if d.Redis != nil {
		_ = d.Redis.Del(ctx, layerCacheKey(planID)).Err()
	}
	writeJSON(w, map[string]any{"success": true, "version": version})
}

// handlePurgeVersions: 清理历史版本行；最新视图不受影响，缓存无需失效
func (d Deps) handlePurgeVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, ok := pathInt64(r, "planID")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	before, err := strconv.Atoi(r.PostFormValue("before"))
	if err != nil {
		writeJSON(w, map[string]any{"success": false, "message": "bad before"})
		return
	}
	removed, err := d.Store.PurgeVersions(ctx, planID, before)
	if err != nil {
		logger.L().Error("plan_purge_error", "plan_id", planID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true, "removed": removed})
}

func (d Deps) handleDistrictLock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, ok1 := pathInt64(r, "planID")
	districtID, ok2 := pathInt64(r, "districtID")
	if !ok1 || !ok2 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	lock := r.PostFormValue("lock") == "true"
	if err := d.Store.SetDistrictLock(ctx, planID, int(districtID), lock); err != nil {
		if errors.Is(err, store.ErrDistrictNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true, "locked": lock})
}

// handleSubmitPlan: 计划提交通知——表单键值原样转储进邮件正文
func (d Deps) handleSubmitPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, ok := pathInt64(r, "planID")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p, err := d.Store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	fields := map[string]string{}
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			fields[k] = vs[0]
		}
	}
	sub := notify.Submission{
		UserName:        r.PostFormValue("user"),
		PlanID:          p.ID,
		PlanVersion:     p.Version,
		PlanName:        p.Name,
		LegislativeBody: p.LegislativeBody,
		Fields:          fields,
	}
	if err := notify.Send(sub); err != nil {
		writeJSON(w, map[string]any{"success": false, "message": "notification failed"})
		return
	}
	writeJSON(w, map[string]any{"success": true})
}
