package migrate

import (
	"database/sql"
	"district-api/internal/logger"
)

// 背景：首次运行自动创建所需表与索引，保障后续导入与编辑操作
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _rd_geolevels (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL UNIQUE,
            rank INT NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS _rd_geounits (
            id BIGSERIAL PRIMARY KEY,
            geolevel_id INT NOT NULL REFERENCES _rd_geolevels(id),
            portable_id TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            geom TEXT NOT NULL
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_geounit_portable ON _rd_geounits(geolevel_id, portable_id)`,
		`CREATE TABLE IF NOT EXISTS _rd_plans (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            legislative_body TEXT NOT NULL DEFAULT '',
            owner_name TEXT NOT NULL DEFAULT '',
            version INT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE TABLE IF NOT EXISTS _rd_districts (
            id BIGSERIAL PRIMARY KEY,
            plan_id BIGINT NOT NULL REFERENCES _rd_plans(id),
            district_id INT NOT NULL,
            name TEXT NOT NULL,
            version INT NOT NULL DEFAULT 0,
            is_locked BOOLEAN NOT NULL DEFAULT FALSE
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_district_version ON _rd_districts(plan_id, district_id, version)`,
		`CREATE TABLE IF NOT EXISTS _rd_assignments (
            plan_id BIGINT NOT NULL REFERENCES _rd_plans(id),
            geounit_id BIGINT NOT NULL REFERENCES _rd_geounits(id),
            district_id INT NOT NULL,
            version INT NOT NULL,
            PRIMARY KEY (plan_id, geounit_id, version)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_assignment_plan_version ON _rd_assignments(plan_id, version)`,
		`CREATE TABLE IF NOT EXISTS _rd_stats_total (
            id INT PRIMARY KEY,
            total_assignments BIGINT NOT NULL DEFAULT 0,
            total_sessions BIGINT NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS _rd_stats_daily (
            day DATE PRIMARY KEY,
            assignments BIGINT NOT NULL DEFAULT 0,
            sessions BIGINT NOT NULL DEFAULT 0
        )`,
		`INSERT INTO _rd_stats_total(id, total_assignments, total_sessions)
         VALUES(1, 0, 0)
         ON CONFLICT (id) DO NOTHING`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	// 外键调整为可延迟检查，降低并行导入时父子可见性问题
	if _, err := db.Exec(`ALTER TABLE _rd_geounits DROP CONSTRAINT IF EXISTS _rd_geounits_geolevel_id_fkey`); err != nil {
		return err
	}
	if _, err := db.Exec(`ALTER TABLE _rd_geounits ADD CONSTRAINT _rd_geounits_geolevel_id_fkey FOREIGN KEY (geolevel_id) REFERENCES _rd_geolevels(id) DEFERRABLE INITIALLY DEFERRED`); err != nil {
		return err
	}
	logger.L().Debug("schema_done")
	return nil
}
