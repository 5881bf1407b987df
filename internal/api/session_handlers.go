package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"district-api/internal/logger"
	"district-api/internal/metrics"
	"district-api/internal/session"
	"district-api/internal/sources"
	"district-api/internal/store"
)

// handleCreateSession: 建立编辑会话
// 背景：按访问者 IP 估算初始视野范围；布隆过滤器对新访客去重后
// 仅为首次访客累计会话统计，重复创建不会虚增计数。
func (d Deps) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	planID, err := strconv.ParseInt(r.PostFormValue("plan"), 10, 64)
	if err != nil {
		writeJSON(w, map[string]any{"success": false, "message": "bad plan id"})
		return
	}
	if _, err := d.Store.GetPlan(ctx, planID); err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	geolevelID := int64(1)
	if v := r.PostFormValue("geolevel"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			geolevelID = n
		}
	}
	ip := getVisitorIP(r)
	extent, located := d.Locator.Extent(ip)
	s := d.Sessions.Create(planID, geolevelID, extent)
	if d.Redis != nil {
		pos := bloomPositions([]byte(ip), bloomBits, bloomHashes)
		first, err := bloomCheckAndSet(ctx, d.Redis, "bloom:visitors", pos, 48*time.Hour)
		if err == nil && first {
			_ = d.Store.IncrStats(ctx, 0, 1)
		}
	}
	logger.L().Info("session_created", "session", s.ID, "plan_id", planID, "ip", ip, "located", located)
	writeJSON(w, s.Snapshot())
}

const (
	bloomBits   = 1 << 24
	bloomHashes = 7
)

func (d Deps) session(w http.ResponseWriter, r *http.Request) *session.Session {
	s := d.Sessions.Get(r.PathValue("sessionID"))
	if s == nil {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"success": false, "message": "session not found"})
		return nil
	}
	return s
}

func (d Deps) handleSessionState(w http.ResponseWriter, r *http.Request) {
	s := d.session(w, r)
	if s == nil {
		return
	}
	writeJSON(w, s.Snapshot())
}

func (d Deps) handleActivateTool(w http.ResponseWriter, r *http.Request) {
	s := d.session(w, r)
	if s == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	t, ok := session.ParseTool(r.PostFormValue("tool"))
	if !ok {
		writeJSON(w, map[string]any{"success": false, "message": "unknown tool"})
		return
	}
	if err := s.ActivateTool(t); err != nil {
		writeJSON(w, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, s.Snapshot())
}

func (d Deps) handleSetGeolevel(w http.ResponseWriter, r *http.Request) {
	s := d.session(w, r)
	if s == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(r.PostFormValue("geolevel"), 10, 64)
	if err != nil {
		writeJSON(w, map[string]any{"success": false, "message": "bad geolevel"})
		return
	}
	s.SetGeolevel(id)
	writeJSON(w, s.Snapshot())
}

// handleSelect: 圈选入口
// 背景：请求体携带形状；按形状推断所需工具并与当前激活工具核对，
// 取代计数后向要素源发查询，回包经 ApplySelection 裁决——代已过期
// 的结果丢弃并计入指标，不落入缓冲区。
func (d Deps) handleSelect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := d.session(w, r)
	if s == nil {
		return
	}
	metrics.SelectionRequestsTotal.Inc()
	var sr shapeReq
	if err := json.NewDecoder(r.Body).Decode(&sr); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, selectResult{Applied: false, Message: "bad shape payload"})
		return
	}
	want, ok := toolForShape(sr.Type)
	if !ok {
		writeJSON(w, selectResult{Applied: false, Message: "unknown shape type: " + sr.Type})
		return
	}
	shape, err := parseShape(sr)
	if err != nil {
		writeJSON(w, selectResult{Applied: false, Message: err.Error()})
		return
	}
	snap := s.Snapshot()
	if snap.ActiveTool != want {
		writeJSON(w, selectResult{Applied: false, Message: "shape does not match active tool"})
		return
	}
	gen, err := s.BeginSelect()
	if err != nil {
		writeJSON(w, selectResult{Applied: false, Message: err.Error()})
		return
	}
	units, src, err := d.Sources.Query(ctx, shape, s.GeolevelID())
	if err != nil {
		if errors.Is(err, sources.ErrNoHealthySource) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeJSON(w, selectResult{Applied: false, Source: src, Message: err.Error()})
		return
	}
	added, applied := s.ApplySelection(gen, units)
	if !applied {
		metrics.SelectionStaleTotal.Inc()
		writeJSON(w, selectResult{Applied: false, Source: src, Message: "selection superseded"})
		return
	}
	metrics.SelectionUnits.Observe(float64(len(units)))
	logger.L().Debug("selection_applied", "session", s.ID, "source", src, "hit", len(units), "added", added)
	writeJSON(w, selectResult{Applied: true, Added: added, Source: src})
}

func (d Deps) handleDeselect(w http.ResponseWriter, r *http.Request) {
	s := d.session(w, r)
	if s == nil {
		return
	}
	var req struct {
		Geounits []int64 `json:"geounits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	removed, err := s.Deselect(req.Geounits)
	if err != nil {
		writeJSON(w, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"success": true, "removed": removed})
}

// handleSessionAssign: 会话内一键指派
// 背景：先激活 assign 工具（记录前一工具），取缓冲区快照后调用指派
// 服务。成功路径恢复工具、标记已提交并使图层缓存失效；失败路径
// 工具与缓冲区一概不动。任何结局都先解除在途态。
func (d Deps) handleSessionAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := d.session(w, r)
	if s == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	districtID, err := strconv.Atoi(r.PostFormValue("district"))
	if err != nil {
		writeJSON(w, assignResult{Success: false, Message: "bad district id"})
		return
	}
	if err := s.ActivateTool(session.ToolAssign); err != nil {
		writeJSON(w, assignResult{Success: false, Message: err.Error()})
		return
	}
	units, err := s.BeginAssign()
	if err != nil {
		writeJSON(w, assignResult{Success: false, Message: err.Error()})
		return
	}
	ids := make([]int64, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	res, err := d.Assign.Assign(ctx, s.PlanID, districtID, s.GeolevelID(), ids)
	if err != nil {
		s.FinishAssign(false)
		logger.L().Warn("assign_transport_error", "session", s.ID, "err", err)
		w.WriteHeader(http.StatusBadGateway)
		writeJSON(w, assignResult{Success: false, Message: "assignment service unreachable"})
		return
	}
	s.FinishAssign(res.Success)
	if res.Success && d.Redis != nil {
		_ = d.Redis.Del(ctx, layerCacheKey(s.PlanID)).Err()
	}
	writeJSON(w, assignResult{Success: res.Success, Version: res.Version, Message: res.Message})
}

func (d Deps) handleLoadEnd(w http.ResponseWriter, r *http.Request) {
	s := d.session(w, r)
	if s == nil {
		return
	}
	s.LoadEnd()
	writeJSON(w, s.Snapshot())
}
