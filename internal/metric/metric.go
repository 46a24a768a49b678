// 包 metric：行政区指标来源（区域名 -> 数值），与控制器、视口计算解耦
package metric

import (
	"context"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"geo-dash/internal/logger"
	"geo-dash/internal/store"
)

// Level：指标所属层级
type Level string

const (
	LevelDistrict    Level = "district"
	LevelSubdistrict Level = "subdistrict"
)

// 文档注释：一次取数请求
// 约束：Names 按要素顺序给出当前展示的区域名；子区县层级时 District 为所选区县。
type Request struct {
	Level    Level
	State    string
	District string
	Names    []string
}

// Source：返回区域名到指标值的映射；缺失的区域由调用方按 0 处理
type Source interface {
	Values(ctx context.Context, req Request) (map[string]float64, error)
}

type SourceFunc func(ctx context.Context, req Request) (map[string]float64, error)

func (f SourceFunc) Values(ctx context.Context, req Request) (map[string]float64, error) {
	return f(ctx, req)
}

// 文档注释：演示用随机指标
// 背景：仪表盘在没有真实数据时以固定种子生成“Change”列，保证同一视图每次展示一致。
// 约束：每次请求都以 Seed 重新播种，按 Names 顺序抽样；区县取 [DistrictMin, DistrictMax)，子区县取 [SubMin, SubMax)。
type Demo struct {
	Seed        int64
	DistrictMin float64
	DistrictMax float64
	SubMin      float64
	SubMax      float64
}

func NewDemo(seed int64) *Demo {
	return &Demo{Seed: seed, DistrictMin: -50, DistrictMax: 100, SubMin: 0, SubMax: 100}
}

func (d *Demo) Values(_ context.Context, req Request) (map[string]float64, error) {
	lo, hi := d.DistrictMin, d.DistrictMax
	if req.Level == LevelSubdistrict {
		lo, hi = d.SubMin, d.SubMax
	}
	r := rand.New(rand.NewSource(d.Seed))
	out := make(map[string]float64, len(req.Names))
	for _, n := range req.Names {
		v := lo + r.Float64()*(hi-lo)
		if _, dup := out[n]; !dup {
			out[n] = v
		}
	}
	return out, nil
}

// Stored：以 PostgreSQL _region_metrics 为来源
type Stored struct {
	st *store.Store
}

func NewStored(st *store.Store) *Stored { return &Stored{st: st} }

func (s *Stored) Values(ctx context.Context, req Request) (map[string]float64, error) {
	k := store.Scope{Level: string(req.Level), State: req.State}
	if req.Level == LevelSubdistrict {
		k.District = req.District
	}
	return s.st.Metrics(ctx, k)
}

// Chain：依次尝试，返回第一个无错误且非空的结果；全部为空时返回空映射
type Chain []Source

func (c Chain) Values(ctx context.Context, req Request) (map[string]float64, error) {
	var lastErr error
	for _, s := range c {
		if s == nil {
			continue
		}
		m, err := s.Values(ctx, req)
		if err != nil {
			logger.L().Warn("metric_source_error", "level", req.Level, "state", req.State, "err", err)
			lastErr = err
			continue
		}
		if len(m) > 0 {
			return m, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return map[string]float64{}, nil
}

// Overlay：Base 提供全部区域，Top 中存在的区域覆盖 Base；Top 出错时退回 Base
type Overlay struct {
	Base Source
	Top  Source
}

func (o Overlay) Values(ctx context.Context, req Request) (map[string]float64, error) {
	base, err := o.Base.Values(ctx, req)
	if err != nil {
		return nil, err
	}
	if o.Top == nil {
		return base, nil
	}
	top, err := o.Top.Values(ctx, req)
	if err != nil {
		logger.L().Warn("metric_overlay_error", "level", req.Level, "state", req.State, "err", err)
		return base, nil
	}
	out := make(map[string]float64, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out, nil
}

// FromEnv：按 METRIC_SOURCE（demo|store|chain|overlay）组装来源；st 为 nil 时只能使用 demo
func FromEnv(st *store.Store) Source {
	seed := int64(42)
	if v, err := strconv.ParseInt(os.Getenv("DEMO_SEED"), 10, 64); err == nil {
		seed = v
	}
	demo := NewDemo(seed)
	if st == nil {
		return demo
	}
	switch strings.ToLower(os.Getenv("METRIC_SOURCE")) {
	case "demo":
		return demo
	case "store":
		return NewStored(st)
	case "chain":
		return Chain{NewStored(st), demo}
	default:
		return Overlay{Base: demo, Top: NewStored(st)}
	}
}
