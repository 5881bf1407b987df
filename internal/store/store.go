// 包 store: 提供与 PostgreSQL 的数据访问层，包含计划/选区/地理单元与统计读写
package store

import (
	"context"
	"database/sql"
	"errors"

	"district-api/internal/logger"

	_ "github.com/lib/pq"
)

// Store: 数据库访问入口，持有连接池并提供编辑与查询接口
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Open: 使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	return &Store{db: db}, nil
}

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// 业务错误：由 API 层翻译为 success=false 响应，服务端是合法性唯一权威
var (
	ErrPlanNotFound     = errors.New("plan not found")
	ErrDistrictNotFound = errors.New("district not found")
	ErrDistrictLocked   = errors.New("district is locked")
	ErrGeolevelMismatch = errors.New("geounits do not belong to the geolevel")
	ErrNoGeounits       = errors.New("no geounits given")
	ErrBadVersion       = errors.New("version out of range")
)

// Geolevel: 粒度层级（如 block、tract、county）
type Geolevel struct {
	ID   int64
	Name string
	Rank int
}

// GeoUnit: 可指派的最小地理单元，几何以 GeoJSON 文本存储
type GeoUnit struct {
	ID         int64
	GeolevelID int64
	PortableID string
	Name       string
	Geom       string
}

// EnsureGeolevel: 按名称取或建层级，导入与播种共用
func (s *Store) EnsureGeolevel(ctx context.Context, name string, rank int) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO _rd_geolevels(name, rank) VALUES($1,$2)
         ON CONFLICT (name) DO UPDATE SET rank=EXCLUDED.rank
         RETURNING id`, name, rank).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GeolevelByName: 名称查层级；未找到返回 nil
func (s *Store) GeolevelByName(ctx context.Context, name string) (*Geolevel, error) {
	var g Geolevel
	err := s.db.QueryRowContext(ctx, `SELECT id, name, rank FROM _rd_geolevels WHERE name=$1`, name).
		Scan(&g.ID, &g.Name, &g.Rank)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// UpsertGeoUnit: 导入路径使用，按 (geolevel, portable_id) 去重
func (s *Store) UpsertGeoUnit(ctx context.Context, u GeoUnit) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO _rd_geounits(geolevel_id, portable_id, name, geom)
         VALUES($1,$2,$3,$4)
         ON CONFLICT (geolevel_id, portable_id) DO UPDATE SET name=EXCLUDED.name, geom=EXCLUDED.geom
         RETURNING id`,
		u.GeolevelID, u.PortableID, u.Name, u.Geom).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GeoUnitsByLevel: 取层级全部单元（含几何），用于构建内存空间索引
// 约束：geolevelID 为 0 时返回全部层级；大数据量时由调用方分层构建
func (s *Store) GeoUnitsByLevel(ctx context.Context, geolevelID int64) ([]GeoUnit, error) {
	q := `SELECT id, geolevel_id, portable_id, name, geom FROM _rd_geounits`
	var rows *sql.Rows
	var err error
	if geolevelID > 0 {
		rows, err = s.db.QueryContext(ctx, q+` WHERE geolevel_id=$1`, geolevelID)
	} else {
		rows, err = s.db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GeoUnit
	for rows.Next() {
		var u GeoUnit
		if err := rows.Scan(&u.ID, &u.GeolevelID, &u.PortableID, &u.Name, &u.Geom); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountGeoUnits: 导入就绪探测（索引构建循环使用）
func (s *Store) CountGeoUnits(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM _rd_geounits`).Scan(&n)
	return n, err
}

// IncrStats: 成功指派后递增总计与当日计数；会话创建时递增会话计数
func (s *Store) IncrStats(ctx context.Context, assignments int, sessions int) error {
	if assignments > 0 {
		_, _ = s.db.ExecContext(ctx, "UPDATE _rd_stats_total SET total_assignments=total_assignments+$1 WHERE id=1", assignments)
		_, _ = s.db.ExecContext(ctx, "INSERT INTO _rd_stats_daily(day, assignments) VALUES(current_date, $1) ON CONFLICT (day) DO UPDATE SET assignments=_rd_stats_daily.assignments+$1", assignments)
	}
	if sessions > 0 {
		_, _ = s.db.ExecContext(ctx, "UPDATE _rd_stats_total SET total_sessions=total_sessions+$1 WHERE id=1", sessions)
		_, _ = s.db.ExecContext(ctx, "INSERT INTO _rd_stats_daily(day, sessions) VALUES(current_date, $1) ON CONFLICT (day) DO UPDATE SET sessions=_rd_stats_daily.sessions+$1", sessions)
	}
	logger.L().Debug("stats_incr", "assignments", assignments, "sessions", sessions)
	return nil
}

// Totals: 统计返回结构，包含累计与当日指派次数
type Totals struct {
	Total int64
	Today int64
}

// GetTotals: 读取累计与当日指派次数，用于接口返回
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, "SELECT total_assignments FROM _rd_stats_total WHERE id=1")
	_ = row.Scan(&t.Total)
	row2 := s.db.QueryRowContext(ctx, "SELECT assignments FROM _rd_stats_daily WHERE day=current_date")
	_ = row2.Scan(&t.Today)
	logger.L().Debug("stats_totals", "total", t.Total, "today", t.Today)
	return &t, nil
}
