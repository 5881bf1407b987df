package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"district-api/internal/logger"

	"github.com/lib/pq"
)

// Plan: 一次完整划分的容器；version 在每次成功指派后递增
type Plan struct {
	ID              int64
	Name            string
	LegislativeBody string
	OwnerName       string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// District: 计划内的命名选区；每次指派产生新 version 行，保留编辑历史
type District struct {
	PlanID     int64
	DistrictID int
	Name       string
	Version    int
	IsLocked   bool
}

// LayerUnit: 选区图层的一个单元（最新指派视图），几何为 GeoJSON 文本
type LayerUnit struct {
	GeounitID    int64
	GeolevelID   int64
	PortableID   string
	Name         string
	Geom         string
	DistrictID   int
	DistrictName string
}

// CreatePlan: 建计划并播种 Unassigned(0) 与 N 个空选区
// 背景：未指派单元归属 0 号选区的语义由指派视图隐含
func (s *Store) CreatePlan(ctx context.Context, name, legislativeBody, owner string, numDistricts int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	var planID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO _rd_plans(name, legislative_body, owner_name) VALUES($1,$2,$3) RETURNING id`,
		name, legislativeBody, owner).Scan(&planID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _rd_districts(plan_id, district_id, name, version) VALUES($1, 0, 'Unassigned', 0)`,
		planID); err != nil {
		return 0, err
	}
	for i := 1; i <= numDistricts; i++ {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO _rd_districts(plan_id, district_id, name, version) VALUES($1, $2, $3, 0)`,
			planID, i, districtName(i)); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L().Info("plan_created", "plan_id", planID, "name", name, "districts", numDistricts)
	return planID, nil
}

func districtName(i int) string { return "District " + strconv.Itoa(i) }

// GetPlan: 读取计划；未找到返回 ErrPlanNotFound
func (s *Store) GetPlan(ctx context.Context, planID int64) (*Plan, error) {
	var p Plan
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, legislative_body, owner_name, version, created_at, updated_at FROM _rd_plans WHERE id=$1`,
		planID).Scan(&p.ID, &p.Name, &p.LegislativeBody, &p.OwnerName, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Districts: 计划当前版本下每个选区的最新状态
func (s *Store) Districts(ctx context.Context, planID int64) ([]District, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ON (district_id) plan_id, district_id, name, version, is_locked
         FROM _rd_districts WHERE plan_id=$1 ORDER BY district_id, version DESC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []District
	for rows.Next() {
		var d District
		if err := rows.Scan(&d.PlanID, &d.DistrictID, &d.Name, &d.Version, &d.IsLocked); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddGeounits: 指派核心事务；返回新计划版本
// 背景：锁定选区拒绝写入、层级不符整体拒绝；每次成功指派产生新选区
// 版本行并递增计划版本。单元由旧选区移出是指派视图（按最高 version
// 取最新归属）的自然结果，不做几何聚合。
func (s *Store) AddGeounits(ctx context.Context, planID int64, districtID int, geolevelID int64, unitIDs []int64) (int, error) {
	ids := dedupe(unitIDs)
	if len(ids) == 0 {
		return 0, ErrNoGeounits
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx, `SELECT version FROM _rd_plans WHERE id=$1 FOR UPDATE`, planID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, ErrPlanNotFound
	}
	if err != nil {
		return 0, err
	}

	var dName string
	var locked bool
	err = tx.QueryRowContext(ctx,
		`SELECT name, is_locked FROM _rd_districts WHERE plan_id=$1 AND district_id=$2 ORDER BY version DESC LIMIT 1`,
		planID, districtID).Scan(&dName, &locked)
	if err == sql.ErrNoRows {
		return 0, ErrDistrictNotFound
	}
	if err != nil {
		return 0, err
	}
	if locked {
		return 0, ErrDistrictLocked
	}

	// 服务端是层级合法性的唯一权威：任一单元不属于声明层级即整体拒绝
	var n int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM _rd_geounits WHERE id = ANY($1) AND geolevel_id=$2`,
		pq.Array(ids), geolevelID).Scan(&n)
	if err != nil {
		return 0, err
	}
	if n != len(ids) {
		return 0, ErrGeolevelMismatch
	}

	newVersion := version + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _rd_assignments(plan_id, geounit_id, district_id, version)
         SELECT $1, unnest($2::bigint[]), $3, $4`,
		planID, pq.Array(ids), districtID, newVersion); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _rd_districts(plan_id, district_id, name, version, is_locked) VALUES($1,$2,$3,$4,FALSE)`,
		planID, districtID, dName, newVersion); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE _rd_plans SET version=$2, updated_at=now() WHERE id=$1`,
		planID, newVersion); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L().Info("assign_committed", "plan_id", planID, "district_id", districtID, "units", len(ids), "version", newVersion)
	return newVersion, nil
}

// DistrictLayer: 每个已指派单元的最新归属，驱动前端选区图层重载
func (s *Store) DistrictLayer(ctx context.Context, planID int64) ([]LayerUnit, error) {
	names := map[int]string{}
	ds, err := s.Districts(ctx, planID)
	if err != nil {
		return nil, err
	}
	for _, d := range ds {
		names[d.DistrictID] = d.Name
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ON (a.geounit_id) a.geounit_id, g.geolevel_id, g.portable_id, g.name, g.geom, a.district_id
         FROM _rd_assignments a JOIN _rd_geounits g ON g.id = a.geounit_id
         WHERE a.plan_id=$1 ORDER BY a.geounit_id, a.version DESC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LayerUnit
	for rows.Next() {
		var u LayerUnit
		if err := rows.Scan(&u.GeounitID, &u.GeolevelID, &u.PortableID, &u.Name, &u.Geom, &u.DistrictID); err != nil {
			return nil, err
		}
		u.DistrictName = names[u.DistrictID]
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetDistrictLock: 锁定/解锁选区的最新版本行
func (s *Store) SetDistrictLock(ctx context.Context, planID int64, districtID int, lock bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE _rd_districts SET is_locked=$3
         WHERE id = (SELECT id FROM _rd_districts WHERE plan_id=$1 AND district_id=$2 ORDER BY version DESC LIMIT 1)`,
		planID, districtID, lock)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrDistrictNotFound
	}
	logger.L().Info("district_lock", "plan_id", planID, "district_id", districtID, "lock", lock)
	return nil
}

// CopyPlan: 复制计划——新计划从版本 0 开始，携带源计划的最新选区与指派快照
func (s *Store) CopyPlan(ctx context.Context, planID int64, newName string) (int64, error) {
	src, err := s.GetPlan(ctx, planID)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	var newID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO _rd_plans(name, legislative_body, owner_name, version) VALUES($1,$2,$3,0) RETURNING id`,
		newName, src.LegislativeBody, src.OwnerName).Scan(&newID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _rd_districts(plan_id, district_id, name, version, is_locked)
         SELECT $2, district_id, name, 0, is_locked FROM (
             SELECT DISTINCT ON (district_id) district_id, name, is_locked
             FROM _rd_districts WHERE plan_id=$1 ORDER BY district_id, version DESC
         ) d`, planID, newID); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _rd_assignments(plan_id, geounit_id, district_id, version)
         SELECT $2, geounit_id, district_id, 0 FROM (
             SELECT DISTINCT ON (geounit_id) geounit_id, district_id
             FROM _rd_assignments WHERE plan_id=$1 ORDER BY geounit_id, version DESC
         ) a`, planID, newID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L().Info("plan_copied", "src_plan_id", planID, "new_plan_id", newID, "name", newName)
	return newID, nil
}

// RevertPlan: 回退计划到指定历史版本
// 背景：撤销编辑等价于删除目标版本之后的全部版本行并回拨计划版本号。
// 约束：选区在建计划时播种 0 版本行，回退到任意合法版本后每个选区仍有
// 最新行可取；version 越界返回 ErrBadVersion，回退到当前版本为空操作。
func (s *Store) RevertPlan(ctx context.Context, planID int64, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var cur int
	err = tx.QueryRowContext(ctx, `SELECT version FROM _rd_plans WHERE id=$1 FOR UPDATE`, planID).Scan(&cur)
	if err == sql.ErrNoRows {
		return ErrPlanNotFound
	}
	if err != nil {
		return err
	}
	if version < 0 || version > cur {
		return ErrBadVersion
	}
	if version == cur {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM _rd_assignments WHERE plan_id=$1 AND version > $2`, planID, version); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM _rd_districts WHERE plan_id=$1 AND version > $2`, planID, version); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE _rd_plans SET version=$2, updated_at=now() WHERE id=$1`, planID, version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Info("plan_reverted", "plan_id", planID, "from_version", cur, "to_version", version)
	return nil
}

// PurgeVersions: 清理 before 之前的历史版本行
// 背景：长编辑过程累积大量过期版本行；清理删除过往中间版本，但保留
// 每个选区与每个已指派单元的最新行（即使其版本号低于 before），
// 计划版本号与最新视图均不受影响。返回删除的行数。
func (s *Store) PurgeVersions(ctx context.Context, planID int64, before int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM _rd_districts WHERE plan_id=$1 AND version < $2 AND id NOT IN (
             SELECT DISTINCT ON (district_id) id FROM _rd_districts
             WHERE plan_id=$1 ORDER BY district_id, version DESC)`, planID, before)
	if err != nil {
		return 0, err
	}
	nd, _ := res.RowsAffected()
	res, err = tx.ExecContext(ctx,
		`DELETE FROM _rd_assignments WHERE plan_id=$1 AND version < $2 AND (geounit_id, version) NOT IN (
             SELECT DISTINCT ON (geounit_id) geounit_id, version FROM _rd_assignments
             WHERE plan_id=$1 ORDER BY geounit_id, version DESC)`, planID, before)
	if err != nil {
		return 0, err
	}
	na, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	removed := nd + na
	logger.L().Info("plan_purged", "plan_id", planID, "before", before, "removed", removed)
	return removed, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
