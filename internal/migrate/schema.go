// 包 migrate：首次运行自动创建指标表与访问统计表
package migrate

import (
	"context"
	"database/sql"

	"geo-dash/internal/logger"
)

// Statements：建表语句，均为 IF NOT EXISTS，可重复执行
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS _region_metrics (
            level TEXT NOT NULL,
            state TEXT NOT NULL,
            district TEXT NOT NULL DEFAULT '',
            region TEXT NOT NULL,
            value DOUBLE PRECISION NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (level, state, district, region)
        )`,
	`CREATE INDEX IF NOT EXISTS idx_region_metrics_scope ON _region_metrics(level, state, district)`,
	`CREATE TABLE IF NOT EXISTS _region_views_daily (
            day DATE NOT NULL,
            state TEXT NOT NULL,
            views BIGINT NOT NULL DEFAULT 0,
            PRIMARY KEY (day, state)
        )`,
}

// EnsureSchema：依次执行建表语句，任一失败即返回
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range Statements {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
