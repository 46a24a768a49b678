// 包 geodata：行政区 GeoJSON 的解析、缓存与加载（本地目录优先，远端镜像兜底）
package geodata

import (
	"sort"
	"strings"

	"geo-dash/internal/viewport"
)

// 点坐标（WGS84）
type Point struct {
	Lat float64
	Lon float64
}

// Polygon：按 GeoJSON 约定的环集合，第一环是外环，其后为洞
type Polygon struct {
	Rings [][]Point
	BBox  viewport.BoundingBox
}

// 文档注释：单个行政区要素
// 约束：几何仅支持 Polygon/MultiPolygon；Properties 保留原始属性，名称字段由调用方指定键读取。
type Feature struct {
	Properties map[string]any
	Polys      []Polygon
}

// Name：读取属性 key 的字符串值并去除首尾空白
func (f Feature) Name(key string) string {
	if v, ok := f.Properties[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Bounds：要素所有多边形包围盒的并集；无几何时返回 false
func (f Feature) Bounds() (viewport.BoundingBox, bool) {
	boxes := make([]viewport.BoundingBox, 0, len(f.Polys))
	for _, p := range f.Polys {
		boxes = append(boxes, p.BBox)
	}
	return viewport.Combine(boxes)
}

// Contains：点是否落在任一多边形内（先包围盒过滤再精确判定）
func (f Feature) Contains(pt Point) bool {
	for _, p := range f.Polys {
		if !inBBox(pt, p.BBox) {
			continue
		}
		if pointInPoly(pt, p) {
			return true
		}
	}
	return false
}

// 文档注释：一次加载得到的要素集合
// 背景：对应一个逻辑路径（如某州的全部区县）；加载后只读，可在会话间共享。
type GeometrySet struct {
	Path     string
	Features []Feature
}

// Bounds：逐要素包围盒，跳过无几何的要素
func (s *GeometrySet) Bounds() []viewport.BoundingBox {
	out := make([]viewport.BoundingBox, 0, len(s.Features))
	for _, f := range s.Features {
		if b, ok := f.Bounds(); ok {
			out = append(out, b)
		}
	}
	return out
}

// Names：属性 key 的去重排序名称列表（空名称忽略）
func (s *GeometrySet) Names(key string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range s.Features {
		n := f.Name(key)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Filter：返回属性 key 与 value 匹配（忽略大小写与首尾空白）的子集，保持原顺序
func (s *GeometrySet) Filter(key, value string) *GeometrySet {
	want := strings.TrimSpace(value)
	out := &GeometrySet{Path: s.Path}
	for _, f := range s.Features {
		if strings.EqualFold(f.Name(key), want) {
			out.Features = append(out.Features, f)
		}
	}
	return out
}

// Locate：返回包含点 (lon, lat) 的要素的 key 名称（去重，保持要素顺序）
func (s *GeometrySet) Locate(key string, lon, lat float64) []string {
	pt := Point{Lat: lat, Lon: lon}
	seen := map[string]struct{}{}
	var out []string
	for _, f := range s.Features {
		if !f.Contains(pt) {
			continue
		}
		n := f.Name(key)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// FeatureCollection：导出为 GeoJSON FeatureCollection；props 可为每个要素追加属性
func (s *GeometrySet) FeatureCollection(props func(i int, f Feature) map[string]any) map[string]any {
	feats := make([]any, 0, len(s.Features))
	for i, f := range s.Features {
		p := make(map[string]any, len(f.Properties)+2)
		for k, v := range f.Properties {
			p[k] = v
		}
		if props != nil {
			for k, v := range props(i, f) {
				p[k] = v
			}
		}
		feats = append(feats, map[string]any{
			"type":       "Feature",
			"properties": p,
			"geometry":   geometryOf(f),
		})
	}
	return map[string]any{"type": "FeatureCollection", "features": feats}
}

func geometryOf(f Feature) map[string]any {
	polys := make([]any, 0, len(f.Polys))
	for _, p := range f.Polys {
		rings := make([]any, 0, len(p.Rings))
		for _, r := range p.Rings {
			pts := make([]any, 0, len(r))
			for _, pt := range r {
				pts = append(pts, []float64{pt.Lon, pt.Lat})
			}
			rings = append(rings, pts)
		}
		polys = append(polys, rings)
	}
	if len(polys) == 1 {
		return map[string]any{"type": "Polygon", "coordinates": polys[0]}
	}
	return map[string]any{"type": "MultiPolygon", "coordinates": polys}
}
