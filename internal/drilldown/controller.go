package drilldown

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"geo-dash/internal/geodata"
	"geo-dash/internal/logger"
	"geo-dash/internal/metric"
	"geo-dash/internal/viewport"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// 文档注释：下钻控制器
// 背景：每个会话持有一个实例；所有动作经 Dispatch 进入同一个转换函数，状态只在数据加载成功后提交。
// 约束：非并发安全，由会话层保证同一时刻只处理一个动作；自身不做 I/O，只调用注入的加载器与指标来源。
type Controller struct {
	cfg     Config
	loader  Loader
	metrics metric.Source
	fitter  *viewport.Fitter
	log     *slog.Logger

	state   ViewState
	view    View
	shown   *geodata.GeometrySet
	started bool
}

func New(cfg Config, loader Loader, metrics metric.Source, fitter *viewport.Fitter) *Controller {
	if fitter == nil {
		fitter = viewport.NewFitter(viewport.DefaultConfig())
	}
	if metrics == nil {
		metrics = metric.NewDemo(42)
	}
	return &Controller{cfg: cfg, loader: loader, metrics: metrics, fitter: fitter, log: logger.Component("drilldown")}
}

// Start：进入初始 State 视图，预选给定州
func (c *Controller) Start(ctx context.Context, state string) (View, error) {
	return c.Dispatch(ctx, Action{Kind: ActionSelectState, Name: state})
}

func (c *Controller) State() ViewState { return c.state }

// View：最近一次成功的视图
func (c *Controller) View() View { return c.view }

func (c *Controller) Started() bool { return c.started }

// 文档注释：处理一个动作并返回当前视图
// 约束：出错时状态与视图保持为上一个成功结果，返回值仍是可展示的视图。
func (c *Controller) Dispatch(ctx context.Context, a Action) (View, error) {
	var err error
	switch a.Kind {
	case ActionSelectState:
		err = c.selectState(ctx, a.Name, "")
	case ActionSelectDistrict:
		err = c.selectDistrict(ctx, a.Name)
	case ActionClickMap:
		err = c.clickMap(ctx, a)
	case ActionBack:
		err = c.back(ctx)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
	if err != nil {
		c.log.Debug("action_rejected", "kind", a.Kind, "name", a.Name, "level", c.state.Level, "err", err)
	} else {
		c.log.Debug("action_applied", "kind", a.Kind, "name", a.Name, "level", c.state.Level, "state", c.state.State, "district", c.state.District)
	}
	return c.view, err
}

func (c *Controller) selectState(ctx context.Context, name, selected string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: state name required", ErrUnknownAction)
	}
	path := geodata.DistrictsPath(name)
	set, err := c.loader.Load(ctx, path)
	if err != nil {
		return &DataUnavailableError{Path: path, Err: err}
	}
	if len(set.Features) == 0 {
		return &EmptyRegionError{Name: name}
	}
	records := c.records(ctx, set, c.cfg.DistrictKey, metric.Request{Level: metric.LevelDistrict, State: name})
	vp, ok := c.cfg.Layouts.Lookup(name)
	if ok {
		vp = c.fitter.Clamp(vp)
	} else {
		vp = c.fitter.FitAll(boundsOf(records, set))
	}
	options := set.Names(c.cfg.DistrictKey)
	if !containsFold(options, selected) && len(options) > 0 {
		selected = options[0]
	}
	title := titleCase(name)
	c.commit(ViewState{Level: LevelState, State: name}, set, View{
		Path:     path,
		Records:  records,
		Viewport: vp,
		Titles: Titles{
			Map:    "District-wise Map of " + title,
			Bar:    "District Data Comparison",
			Header: "State View: " + title,
		},
		Options:  options,
		Selected: selected,
	})
	return nil
}

func (c *Controller) selectDistrict(ctx context.Context, name string) error {
	if !c.started {
		return fmt.Errorf("%w: no state selected", ErrUnknownAction)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: district name required", ErrUnknownAction)
	}
	state := c.state.State
	path := geodata.SubdistrictsPath(state)
	all, err := c.loader.Load(ctx, path)
	if err != nil {
		return &DataUnavailableError{Path: path, Err: err}
	}
	set := all.Filter(c.cfg.DistrictKey, name)
	if len(set.Features) == 0 {
		return &EmptyRegionError{Name: name}
	}
	if n := set.Features[0].Name(c.cfg.DistrictKey); n != "" {
		name = n
	}
	records := c.records(ctx, set, c.cfg.SubdistrictKey, metric.Request{Level: metric.LevelSubdistrict, State: state, District: name})
	c.commit(ViewState{Level: LevelSubRegion, State: state, District: name}, set, View{
		Path:     path,
		Records:  records,
		Viewport: c.fitter.FitAll(boundsOf(records, set)),
		Titles: Titles{
			Map:    "Sub-District Map of " + name,
			Bar:    "Sub-District Data for " + name,
			Header: "Sub-District View: " + name,
		},
		Options:  c.view.Options,
		Selected: name,
	})
	return nil
}

// clickMap：State 层级下钻到被点击的区县；SubRegion 层级只报告被点击的子区县
func (c *Controller) clickMap(ctx context.Context, a Action) error {
	if !c.started {
		return fmt.Errorf("%w: no state selected", ErrUnknownAction)
	}
	key := c.cfg.DistrictKey
	if c.state.Level == LevelSubRegion {
		key = c.cfg.SubdistrictKey
	}
	name, err := c.resolveClick(a, key)
	if err != nil {
		return err
	}
	if c.state.Level == LevelState {
		return c.selectDistrict(ctx, name)
	}
	c.view.Focus = name
	return nil
}

// resolveClick：先按标签匹配当前展示的区域，再按点入多边形判定；必须唯一命中
func (c *Controller) resolveClick(a Action, key string) (string, error) {
	if label := clickLabel(a.Label); label != "" {
		var matched []string
		for _, r := range c.view.Records {
			if strings.EqualFold(r.Name, label) {
				matched = append(matched, r.Name)
			}
		}
		switch {
		case len(matched) == 1:
			return matched[0], nil
		case len(matched) > 1:
			return "", &AmbiguousClickError{Level: c.state.Level, Matches: len(matched)}
		}
	}
	if a.Point == nil {
		if a.Label == "" {
			return "", fmt.Errorf("%w: click needs a label or a point", ErrUnknownAction)
		}
		return "", &AmbiguousClickError{Level: c.state.Level}
	}
	hits := c.shown.Locate(key, a.Point.Lon, a.Point.Lat)
	if len(hits) != 1 || hits[0] == "" {
		return "", &AmbiguousClickError{Level: c.state.Level, Matches: len(hits)}
	}
	return hits[0], nil
}

// back：SubRegion 回到所属州的 State 视图；State 层级为空操作
func (c *Controller) back(ctx context.Context) error {
	if !c.started || c.state.Level == LevelState {
		return nil
	}
	return c.selectState(ctx, c.state.State, c.state.District)
}

func (c *Controller) records(ctx context.Context, set *geodata.GeometrySet, key string, req metric.Request) []RegionRecord {
	names := make([]string, len(set.Features))
	for i, f := range set.Features {
		names[i] = f.Name(key)
	}
	req.Names = names
	values, err := c.metrics.Values(ctx, req)
	if err != nil {
		c.log.Warn("metric_values_error", "level", req.Level, "state", req.State, "err", err)
		values = nil
	}
	out := make([]RegionRecord, len(set.Features))
	for i, f := range set.Features {
		b, _ := f.Bounds()
		out[i] = RegionRecord{Name: names[i], Bounds: b, Metric: values[names[i]]}
	}
	return out
}

func (c *Controller) commit(st ViewState, set *geodata.GeometrySet, v View) {
	v.State = st
	v.ColorScale = c.cfg.ColorScale
	v.BarHeight = barHeight(len(v.Records), c.cfg.MinBarHeight, c.cfg.BarRowHeight)
	c.state = st
	c.shown = set
	c.view = v
	c.started = true
}

// FeatureCollection：当前展示要素的 GeoJSON，附加 name 与 Change 属性
func (c *Controller) FeatureCollection() map[string]any {
	if c.shown == nil {
		return map[string]any{"type": "FeatureCollection", "features": []any{}}
	}
	recs := c.view.Records
	return c.shown.FeatureCollection(func(i int, _ geodata.Feature) map[string]any {
		if i >= len(recs) {
			return nil
		}
		return map[string]any{"name": recs[i].Name, "Change": recs[i].Metric}
	})
}

// boundsOf：有几何的要素的包围盒
func boundsOf(records []RegionRecord, set *geodata.GeometrySet) []viewport.BoundingBox {
	out := make([]viewport.BoundingBox, 0, len(records))
	for i, f := range set.Features {
		if len(f.Polys) == 0 {
			continue
		}
		out = append(out, records[i].Bounds)
	}
	return out
}

func barHeight(n, min, row int) int {
	if h := n * row; h > min {
		return h
	}
	return min
}

// clickLabel：悬停标签形如 "名称<br>数值"，取第一段
func clickLabel(label string) string {
	first, _, _ := strings.Cut(label, "<br>")
	return strings.TrimSpace(first)
}

func containsFold(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}

// titleCase：州名多为全大写，标题中转为首字母大写；Caser 有状态，每次新建
func titleCase(s string) string { return cases.Title(language.English).String(strings.ToLower(s)) }
