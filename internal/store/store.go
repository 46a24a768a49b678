// 包 store：PostgreSQL 数据访问层，读写行政区指标与按州访问统计
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"geo-dash/internal/logger"

	_ "github.com/lib/pq"
)

// Store：数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Open：使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// 文档注释：指标作用域
// 约束：Level 取 "district" 或 "subdistrict"；区县级指标的 District 为空串；名称比较前去除首尾空白。
type Scope struct {
	Level    string
	State    string
	District string
}

func (k Scope) norm() Scope {
	return Scope{
		Level:    strings.ToLower(strings.TrimSpace(k.Level)),
		State:    strings.TrimSpace(k.State),
		District: strings.TrimSpace(k.District),
	}
}

var ErrBadScope = errors.New("scope requires level and state")

func (k Scope) valid() error {
	if k.Level == "" || k.State == "" {
		return ErrBadScope
	}
	return nil
}

// Entry：一条指标记录
type Entry struct {
	Region string
	Value  float64
}

// Metrics：读取作用域内全部指标，返回 region -> value
func (s *Store) Metrics(ctx context.Context, k Scope) (map[string]float64, error) {
	k = k.norm()
	if err := k.valid(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT region, value FROM _region_metrics WHERE level=$1 AND state=$2 AND district=$3`, k.Level, k.State, k.District)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var name string
		var v float64
		if err := rows.Scan(&name, &v); err != nil {
			return nil, err
		}
		out[name] = v
	}
	logger.L().Debug("db_metrics", "level", k.Level, "state", k.State, "district", k.District, "count", len(out))
	return out, rows.Err()
}

// List：按名称排序的指标列表，供管理命令展示
func (s *Store) List(ctx context.Context, k Scope) ([]Entry, error) {
	k = k.norm()
	if err := k.valid(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT region, value FROM _region_metrics WHERE level=$1 AND state=$2 AND district=$3 ORDER BY region`, k.Level, k.State, k.District)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Region, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get：读取单个区域指标；不存在时 ok=false
func (s *Store) Get(ctx context.Context, k Scope, region string) (float64, bool, error) {
	k = k.norm()
	if err := k.valid(); err != nil {
		return 0, false, err
	}
	var v float64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM _region_metrics WHERE level=$1 AND state=$2 AND district=$3 AND region=$4`, k.Level, k.State, k.District, strings.TrimSpace(region)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Upsert：写入或覆盖单个区域指标
func (s *Store) Upsert(ctx context.Context, k Scope, region string, value float64) error {
	k = k.norm()
	if err := k.valid(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO _region_metrics(level, state, district, region, value)
        VALUES($1,$2,$3,$4,$5)
        ON CONFLICT (level, state, district, region) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`,
		k.Level, k.State, k.District, strings.TrimSpace(region), value)
	return err
}

// Insert：仅在不存在时写入；已存在返回 false
func (s *Store) Insert(ctx context.Context, k Scope, region string, value float64) (bool, error) {
	k = k.norm()
	if err := k.valid(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO _region_metrics(level, state, district, region, value)
        VALUES($1,$2,$3,$4,$5) ON CONFLICT DO NOTHING`,
		k.Level, k.State, k.District, strings.TrimSpace(region), value)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Delete：删除单个区域指标；不存在返回 false
func (s *Store) Delete(ctx context.Context, k Scope, region string) (bool, error) {
	k = k.norm()
	if err := k.valid(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM _region_metrics WHERE level=$1 AND state=$2 AND district=$3 AND region=$4`, k.Level, k.State, k.District, strings.TrimSpace(region))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IncrViews：按州累加当日浏览次数；失败只记日志
func (s *Store) IncrViews(ctx context.Context, state string) {
	if state == "" {
		return
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO _region_views_daily(day, state, views) VALUES(current_date, $1, 1)
        ON CONFLICT (day, state) DO UPDATE SET views=_region_views_daily.views+1`, strings.TrimSpace(state))
	if err != nil {
		logger.L().Warn("db_views_error", "state", state, "err", err)
	}
}

// Totals：某州累计与当日浏览次数
type Totals struct {
	Total int64
	Today int64
}

func (s *Store) GetTotals(ctx context.Context, state string) (*Totals, error) {
	var t Totals
	state = strings.TrimSpace(state)
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(views),0) FROM _region_views_daily WHERE state=$1`, state).Scan(&t.Total); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(views),0) FROM _region_views_daily WHERE state=$1 AND day=current_date`, state).Scan(&t.Today); err != nil {
		return nil, err
	}
	return &t, nil
}
