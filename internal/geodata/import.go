// 包 geodata：地理单元数据导入
// 背景：从 GeoJSON FeatureCollection 批量写入地理单元表，按层级归档；
// 启动期与管理端重建本地空间索引均以该表为数据源。
package geodata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"district-api/internal/logger"
	"district-api/internal/store"

	"github.com/paulmach/orb/geojson"
)

// ImportGeoJSON: 导入单个层级的 GeoJSON 文件
// 参数：geolevelName/rank 决定层级归属；portable id 依次取 feature id、
// portable_id、GEOID、id 属性，名称取 name/NAME。
// 返回：成功写入的单元数；单元级错误跳过并记数，文件级错误中断。
func ImportGeoJSON(ctx context.Context, st *store.Store, path string, geolevelName string, rank int) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return 0, err
	}
	if len(fc.Features) == 0 {
		return 0, errors.New("empty feature collection")
	}
	levelID, err := st.EnsureGeolevel(ctx, geolevelName, rank)
	if err != nil {
		return 0, err
	}
	logger.L().Info("geodata_import_begin", "path", path, "geolevel", geolevelName, "features", len(fc.Features))
	imported := 0
	skipped := 0
	for _, f := range fc.Features {
		pid := portableID(f)
		if pid == "" || f.Geometry == nil {
			skipped++
			continue
		}
		gb, err := json.Marshal(geojson.NewGeometry(f.Geometry))
		if err != nil {
			skipped++
			continue
		}
		_, err = st.UpsertGeoUnit(ctx, store.GeoUnit{
			GeolevelID: levelID,
			PortableID: pid,
			Name:       displayName(f),
			Geom:       string(gb),
		})
		if err != nil {
			return imported, err
		}
		imported++
		if imported%1000 == 0 {
			logger.L().Info("geodata_import_progress", "done", imported, "total", len(fc.Features))
		}
	}
	logger.L().Info("geodata_import_done", "imported", imported, "skipped", skipped)
	return imported, nil
}

func portableID(f *geojson.Feature) string {
	if f.ID != nil {
		switch v := f.ID.(type) {
		case string:
			return v
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	for _, k := range []string{"portable_id", "GEOID", "id"} {
		if s, ok := f.Properties[k].(string); ok && s != "" {
			return s
		}
		if n, ok := f.Properties[k].(float64); ok {
			return fmt.Sprintf("%.0f", n)
		}
	}
	return ""
}

func displayName(f *geojson.Feature) string {
	for _, k := range []string{"name", "NAME"} {
		if s, ok := f.Properties[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
