// 包 render：把下钻视图渲染为 HTML 页面（上方区域着色地图，下方横向柱状图）
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"geo-dash/internal/drilldown"
	"geo-dash/internal/metrics"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// 文档注释：渲染配置
// 约束：AssetsHost 为空时使用 go-echarts 默认 CDN；Width/MapHeight 为 CSS 尺寸。
type Config struct {
	AssetsHost string
	Width      string
	MapHeight  string
	PageTitle  string
}

func DefaultConfig() Config {
	return Config{Width: "1100px", MapHeight: "640px", PageTitle: "Regional Data Dashboard"}
}

func ConfigFromEnv() Config {
	c := DefaultConfig()
	if v := os.Getenv("CHART_ASSETS_HOST"); v != "" {
		c.AssetsHost = v
	}
	if v := os.Getenv("CHART_WIDTH"); v != "" {
		c.Width = v
	}
	if v := os.Getenv("CHART_MAP_HEIGHT"); v != "" {
		c.MapHeight = v
	}
	return c
}

// 色带：ColorBrewer 发散/顺序色阶，从低到高
var scales = map[string][]string{
	"RdYlGn":  {"#a50026", "#d73027", "#f46d43", "#fdae61", "#fee08b", "#ffffbf", "#d9ef8b", "#a6d96a", "#66bd63", "#1a9850", "#006837"},
	"RdBu":    {"#67001f", "#b2182b", "#d6604d", "#f4a582", "#fddbc7", "#f7f7f7", "#d1e5f0", "#92c5de", "#4393c3", "#2166ac", "#053061"},
	"Viridis": {"#440154", "#482878", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"},
	"Blues":   {"#f7fbff", "#deebf7", "#c6dbef", "#9ecae1", "#6baed6", "#4292c6", "#2171b5", "#08519c", "#08306b"},
}

// Colors：色带名对应的颜色序列；未知名称回退到 RdYlGn
func Colors(scale string) []string {
	for k, v := range scales {
		if strings.EqualFold(k, scale) {
			return v
		}
	}
	return scales["RdYlGn"]
}

// Renderer：无状态，可并发使用
type Renderer struct {
	cfg Config
}

func New(cfg Config) *Renderer { return &Renderer{cfg: cfg} }

// 文档注释：渲染完整页面
// 参数：view 为控制器输出；geo 为当前展示要素的 FeatureCollection（properties.name 与记录名一致）。
func (r *Renderer) Render(w io.Writer, view drilldown.View, geo map[string]any) error {
	m, err := r.mapChart(view, geo)
	if err != nil {
		return err
	}
	page := components.NewPage()
	page.PageTitle = r.cfg.PageTitle
	if view.Titles.Header != "" {
		page.PageTitle = view.Titles.Header
	}
	if r.cfg.AssetsHost != "" {
		page.AssetsHost = r.cfg.AssetsHost
	}
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(m, r.barChart(view))
	if err := page.Render(w); err != nil {
		return err
	}
	metrics.ChartRendersTotal.Inc()
	return nil
}

func (r *Renderer) init(id, height string) opts.Initialization {
	in := opts.Initialization{ChartID: id, Width: r.cfg.Width, Height: height}
	if r.cfg.AssetsHost != "" {
		in.AssetsHost = r.cfg.AssetsHost
	}
	return in
}

func (r *Renderer) visualMap(view drilldown.View) opts.VisualMap {
	lo, hi := valueRange(view.Records)
	return opts.VisualMap{
		Calculable: opts.Bool(true),
		Min:        float32(lo),
		Max:        float32(hi),
		Text:       []string{"High", "Low"},
		InRange:    &opts.VisualMapInRange{Color: Colors(view.ColorScale)},
	}
}

// mapChart：区域着色地图；GeoJSON 在页面脚本中注册，地图范围取视口边界
func (r *Renderer) mapChart(view drilldown.View, geo map[string]any) (*charts.Map, error) {
	const id = "region_map"
	m := charts.NewMap()
	m.SetGlobalOptions(
		charts.WithInitializationOpts(r.init(id, r.cfg.MapHeight)),
		charts.WithTitleOpts(opts.Title{Title: view.Titles.Map}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: "{b}<br>{c}"}),
		charts.WithVisualMapOpts(r.visualMap(view)),
	)
	data := make([]opts.MapData, 0, len(view.Records))
	for _, rec := range view.Records {
		data = append(data, opts.MapData{Name: rec.Name, Value: round2(rec.Metric)})
	}
	m.AddSeries("Change", data)
	js, err := mapScript(id, view, geo)
	if err != nil {
		return nil, err
	}
	m.AddJSFuncs(js)
	return m, nil
}

// mapScript：注册地图并把视口边界作为地图范围；点击事件回传给父页面以驱动下钻
func mapScript(id string, view drilldown.View, geo map[string]any) (string, error) {
	gj, err := json.Marshal(geo)
	if err != nil {
		return "", fmt.Errorf("encode geojson: %w", err)
	}
	name, _ := json.Marshal(mapName(view))
	b := view.Viewport.Bounds
	coords, _ := json.Marshal([][]float64{{b.MinLon, b.MaxLat}, {b.MaxLon, b.MinLat}})
	chart := "goecharts_" + id
	return fmt.Sprintf(`echarts.registerMap(%[1]s, %[2]s);
%[3]s.setOption({series: [{type: "map", map: %[1]s, roam: true, boundingCoords: %[4]s}]});
%[3]s.on("click", function (p) { if (window.parent) { window.parent.postMessage({kind: "click_map", label: p.name}, "*"); } });`,
		name, gj, chart, coords), nil
}

func mapName(view drilldown.View) string {
	n := view.State.State
	if view.State.District != "" {
		n += "/" + view.State.District
	}
	return n
}

// barChart：按指标升序的横向柱状图，高度随条目数增长
func (r *Renderer) barChart(view drilldown.View) *charts.Bar {
	recs := barRows(view.Records)
	names := make([]string, 0, len(recs))
	data := make([]opts.BarData, 0, len(recs))
	for _, rec := range recs {
		names = append(names, rec.Name)
		data = append(data, opts.BarData{Name: rec.Name, Value: round2(rec.Metric)})
	}
	height := view.BarHeight
	if height <= 0 {
		height = 400
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(r.init("region_bar", fmt.Sprintf("%dpx", height))),
		charts.WithTitleOpts(opts.Title{Title: view.Titles.Bar}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: "{b}<br>{c}"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithVisualMapOpts(r.visualMap(view)),
	)
	bar.SetXAxis(names).AddSeries("Change", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right", Formatter: "{c}"}),
	)
	bar.XYReversal()
	return bar
}

// barRows：按指标升序（相等时保持原顺序）
func barRows(in []drilldown.RegionRecord) []drilldown.RegionRecord {
	recs := append([]drilldown.RegionRecord(nil), in...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Metric < recs[j].Metric })
	return recs
}

// valueRange：色带范围；全部相等时上下各扩 1，避免零宽区间
func valueRange(recs []drilldown.RegionRecord) (float64, float64) {
	if len(recs) == 0 {
		return 0, 1
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range recs {
		lo = math.Min(lo, r.Metric)
		hi = math.Max(hi, r.Metric)
	}
	if lo == hi {
		return lo - 1, hi + 1
	}
	return lo, hi
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
