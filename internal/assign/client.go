// 包 assign：指派服务客户端
// 背景：把圈选缓冲区的单元提交到计划服务的指派端点；请求体为表单字段
// geolevel 与竖线分隔的 geounits，响应为含 success 布尔的 JSON。
package assign

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"district-api/internal/logger"
	"district-api/internal/metrics"
)

// Result: 指派响应的归一化结果
// 约束：响应缺失 success 字段或解析失败一律按失败处理，服务端不作担保的
// 状态不得当作成功。
type Result struct {
	Success bool   `json:"success"`
	Version int    `json:"version"`
	Message string `json:"message"`
}

// Client: 指派端点客户端；base 可指向本进程或独立部署的计划服务
type Client struct {
	base string
	hc   *http.Client
}

func New(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), hc: hc}
}

// Assign: 发起一次指派请求
// 背景：一次调用一笔请求，不重试；网络错误与业务拒绝都交由会话层决定
// 后续动作（保留选择与工具状态，用户手工重试）。
func (c *Client) Assign(ctx context.Context, planID int64, districtID int, geolevelID int64, unitIDs []int64) (*Result, error) {
	ids := make([]string, len(unitIDs))
	for i, id := range unitIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	form := url.Values{}
	form.Set("geolevel", strconv.FormatInt(geolevelID, 10))
	form.Set("geounits", strings.Join(ids, "|"))
	u := fmt.Sprintf("%s/plan/%d/district/%d/add", c.base, planID, districtID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	t0 := time.Now()
	metrics.AssignRequestsTotal.Inc()
	metrics.AssignUnits.Observe(float64(len(unitIDs)))
	logger.L().Debug("assign_req", "plan_id", planID, "district_id", districtID, "units", len(unitIDs))
	resp, err := c.hc.Do(req)
	if err != nil {
		logger.L().Error("assign_http_error", "err", err)
		metrics.AssignFailTotal.Inc()
		return nil, err
	}
	defer resp.Body.Close()
	dur := time.Since(t0).Milliseconds()
	metrics.AssignDurationMs.Observe(float64(dur))
	// success 字段缺席视为失败：用指针承接以区分 false 与缺失
	var raw struct {
		Success *bool  `json:"success"`
		Version int    `json:"version"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		logger.L().Error("assign_decode_error", "err", err)
		metrics.AssignFailTotal.Inc()
		return &Result{Success: false, Message: "malformed response"}, nil
	}
	out := &Result{Version: raw.Version, Message: raw.Message}
	if raw.Success != nil {
		out.Success = *raw.Success
	}
	if out.Success {
		metrics.AssignSuccessTotal.Inc()
	} else {
		metrics.AssignFailTotal.Inc()
	}
	logger.L().Debug("assign_resp", "plan_id", planID, "district_id", districtID, "success", out.Success, "version", out.Version, "duration_ms", dur)
	return out, nil
}
