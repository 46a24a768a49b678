package viewport

import (
	"math"
	"os"
	"strconv"
)

// 文档注释：视口计算参数
// 约束：各常量均可通过环境变量调整；DefaultConfig 给出本项目行政区数据的默认值。
// PaddingFactor 作用于正方形半边长（1.1 即每侧约 5%）；TinyPaddingFactor 用于宽高均小于 TinySpan 的小区域。
// SkewRatio：输入宽高比超过该值时按中心纬度的墨卡托拉伸系数加宽经度方向。
type Config struct {
	PaddingFactor     float64
	TinyPaddingFactor float64
	TinySpan          float64
	SkewRatio         float64
	MinZoom           int
	MaxZoom           int
	DegenerateZoom    int
	FallbackCenter    LonLat
}

func DefaultConfig() Config {
	return Config{
		PaddingFactor:     1.1,
		TinyPaddingFactor: 1.002,
		TinySpan:          1.2,
		SkewRatio:         1.68,
		MinZoom:           1,
		MaxZoom:           15,
		DegenerateZoom:    12,
		FallbackCenter:    LonLat{Lon: 78.9629, Lat: 20.5937},
	}
}

// ConfigFromEnv：在默认值基础上读取 VIEWPORT_* 环境变量；解析失败的项保持默认
func ConfigFromEnv() Config {
	c := DefaultConfig()
	readFloat("VIEWPORT_PADDING", &c.PaddingFactor)
	readFloat("VIEWPORT_TINY_PADDING", &c.TinyPaddingFactor)
	readFloat("VIEWPORT_TINY_SPAN", &c.TinySpan)
	readFloat("VIEWPORT_SKEW_RATIO", &c.SkewRatio)
	readInt("VIEWPORT_MIN_ZOOM", &c.MinZoom)
	readInt("VIEWPORT_MAX_ZOOM", &c.MaxZoom)
	readInt("VIEWPORT_DEGENERATE_ZOOM", &c.DegenerateZoom)
	readFloat("VIEWPORT_FALLBACK_LON", &c.FallbackCenter.Lon)
	readFloat("VIEWPORT_FALLBACK_LAT", &c.FallbackCenter.Lat)
	return c
}

func readFloat(env string, dst *float64) {
	if s := os.Getenv(env); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			*dst = f
		}
	}
}

func readInt(env string, dst *int) {
	if s := os.Getenv(env); s != "" {
		if n, e := strconv.Atoi(s); e == nil {
			*dst = n
		}
	}
}

// normalize：修正不合法的组合，保证包含关系与缩放区间成立
func (c Config) normalize() Config {
	if c.PaddingFactor < 1 {
		c.PaddingFactor = 1
	}
	if c.TinyPaddingFactor < 1 {
		c.TinyPaddingFactor = 1
	}
	if c.MinZoom < 0 {
		c.MinZoom = 0
	}
	if c.MaxZoom < c.MinZoom {
		c.MaxZoom = c.MinZoom
	}
	if c.SkewRatio <= 0 {
		c.SkewRatio = math.Inf(1)
	}
	return c
}

// Fitter：纯函数式的视口计算器，无内部可变状态，可并发使用
type Fitter struct {
	cfg Config
}

func NewFitter(cfg Config) *Fitter { return &Fitter{cfg: cfg.normalize()} }

func (f *Fitter) Config() Config { return f.cfg }

// Fallback：空输入时的默认视口（配置的原点、最小缩放、全球边界）
func (f *Fitter) Fallback() Viewport {
	return Viewport{Center: f.cfg.FallbackCenter, Zoom: f.cfg.MinZoom, Bounds: World(), Square: World()}
}

// FitAll：合并一组区域包围盒后计算视口；空集合返回 Fallback
func (f *Fitter) FitAll(boxes []BoundingBox) Viewport {
	box, ok := Combine(boxes)
	if !ok {
		return f.Fallback()
	}
	return f.Fit(box)
}

// 文档注释：按默认边距计算视口
// 约束：宽高均小于 TinySpan 时使用 TinyPaddingFactor 代替 PaddingFactor。
func (f *Fitter) Fit(box BoundingBox) Viewport {
	box = NewBoundingBox(box.MinLon, box.MinLat, box.MaxLon, box.MaxLat)
	pad := f.cfg.PaddingFactor
	if box.Width() < f.cfg.TinySpan && box.Height() < f.cfg.TinySpan {
		pad = f.cfg.TinyPaddingFactor
	}
	return f.fit(box, pad)
}

// FitWithPadding：使用显式边距系数（小于 1 视为 1）
func (f *Fitter) FitWithPadding(box BoundingBox, paddingFactor float64) Viewport {
	box = NewBoundingBox(box.MinLon, box.MinLat, box.MaxLon, box.MaxLat)
	if paddingFactor < 1 || math.IsNaN(paddingFactor) {
		paddingFactor = 1
	}
	return f.fit(box, paddingFactor)
}

func (f *Fitter) fit(box BoundingBox, pad float64) Viewport {
	if !finite(box) {
		return f.Fallback()
	}
	c := box.Center()
	w, h := box.Width(), box.Height()
	maxSpan := math.Max(w, h)
	half := maxSpan / 2
	var zoom int
	if box.Degenerate() {
		// 单点或线段：固定缩放，正方形边长取该缩放级别对应的跨度
		zoom = f.clampZoom(f.cfg.DegenerateZoom)
		half = math.Max(half, 360/math.Exp2(float64(f.cfg.DegenerateZoom))/2)
	} else {
		zoom = f.zoomForSpan(maxSpan)
	}
	square := BoundingBox{MinLon: c.Lon - half, MinLat: c.Lat - half, MaxLon: c.Lon + half, MaxLat: c.Lat + half}
	lonHalf := half * pad
	latHalf := half * pad
	if !box.Degenerate() && w/h > f.cfg.SkewRatio {
		lonHalf = math.Max(lonHalf, math.Min(lonHalf*mercatorStretch(c.Lat), 180))
	}
	return Viewport{
		Center: c,
		Zoom:   zoom,
		Bounds: BoundingBox{MinLon: c.Lon - lonHalf, MinLat: c.Lat - latHalf, MaxLon: c.Lon + lonHalf, MaxLat: c.Lat + latHalf},
		Square: square,
	}
}

// zoomForSpan：zoom = floor(log2(360/span))，限制在 [MinZoom, MaxZoom]
func (f *Fitter) zoomForSpan(span float64) int {
	if span <= 0 {
		return f.clampZoom(f.cfg.DegenerateZoom)
	}
	z := math.Floor(math.Log2(360 / span))
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return f.clampZoom(f.cfg.DegenerateZoom)
	}
	if z < float64(f.cfg.MinZoom) {
		return f.cfg.MinZoom
	}
	if z > float64(f.cfg.MaxZoom) {
		return f.cfg.MaxZoom
	}
	return int(z)
}

// Clamp：把外部给定的视口（如布局覆盖表）的缩放级别截断到 [MinZoom, MaxZoom]
func (f *Fitter) Clamp(v Viewport) Viewport {
	v.Zoom = f.clampZoom(v.Zoom)
	return v
}

func (f *Fitter) clampZoom(z int) int {
	if z < f.cfg.MinZoom {
		return f.cfg.MinZoom
	}
	if z > f.cfg.MaxZoom {
		return f.cfg.MaxZoom
	}
	return z
}

// mercatorStretch：纬度 lat 处墨卡托投影的纵向拉伸系数 1/cos(lat)
func mercatorStretch(lat float64) float64 {
	lat = math.Max(-85, math.Min(85, lat))
	return 1 / math.Cos(lat*math.Pi/180)
}

func finite(b BoundingBox) bool {
	for _, v := range [4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
