package viewport

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
)

// layoutJSON：单个州的手工视口，字段名与前端地图组件参数一致；缩放允许小数（如 5.5）
type layoutJSON struct {
	Center LonLat      `json:"mapbox_center"`
	Zoom   float64     `json:"mapbox_zoom"`
	Bounds BoundingBox `json:"mapbox_bounds"`
}

// 文档注释：按州名索引的视口覆盖表
// 背景：部分州（群岛、狭长州）自动计算的视口观感不佳，允许用手工调好的视口覆盖。
// 约束：键在加载时统一转为去空白的大写；只读使用，可并发访问。
type Layouts struct {
	m map[string]Viewport
}

func NewLayouts() *Layouts { return &Layouts{m: map[string]Viewport{}} }

func layoutKey(name string) string { return strings.ToUpper(strings.TrimSpace(name)) }

// LoadLayouts：从 JSON 文件读取覆盖表；path 为空返回空表
func LoadLayouts(path string) (*Layouts, error) {
	if path == "" {
		return NewLayouts(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeLayouts(f)
}

func DecodeLayouts(r io.Reader) (*Layouts, error) {
	raw := map[string]layoutJSON{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode layouts: %w", err)
	}
	l := NewLayouts()
	for k, v := range raw {
		// 小数缩放四舍五入；范围截断由使用方的 Fitter.Clamp 负责
		l.m[layoutKey(k)] = Viewport{Center: v.Center, Zoom: int(math.Round(v.Zoom)), Bounds: v.Bounds, Square: v.Bounds}
	}
	return l, nil
}

func (l *Layouts) Lookup(state string) (Viewport, bool) {
	if l == nil {
		return Viewport{}, false
	}
	v, ok := l.m[layoutKey(state)]
	return v, ok
}

func (l *Layouts) Set(state string, v Viewport) { l.m[layoutKey(state)] = v }

func (l *Layouts) Len() int {
	if l == nil {
		return 0
	}
	return len(l.m)
}

func (l *Layouts) States() []string {
	out := make([]string, 0, len(l.m))
	for k := range l.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Encode：写出与 LoadLayouts 兼容的 JSON（键有序，带缩进）
func (l *Layouts) Encode(w io.Writer) error {
	raw := make(map[string]layoutJSON, len(l.m))
	for k, v := range l.m {
		raw[k] = layoutJSON{Center: v.Center, Zoom: float64(v.Zoom), Bounds: v.Bounds}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(raw)
}
