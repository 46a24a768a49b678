package geodata

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"geo-dash/internal/viewport"
)

var ErrInvalidGeoJSON = errors.New("invalid geojson")

// 文档注释：解析 GeoJSON 字节为要素集合
// 背景：数据源为州/区县/子区县边界文件，顶层为 FeatureCollection，个别文件为单个 Feature。
// 约束：不识别的几何类型保留属性但不含多边形；坐标按 [lon, lat] 读取。
func Parse(path string, data []byte) (*GeometrySet, error) {
	var gj map[string]any
	if err := json.Unmarshal(data, &gj); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidGeoJSON, path, err)
	}
	set := &GeometrySet{Path: path}
	switch strings.ToLower(getStr(gj, "type")) {
	case "featurecollection":
		arr, _ := gj["features"].([]any)
		for _, it := range arr {
			if f, ok := it.(map[string]any); ok {
				set.Features = append(set.Features, parseFeature(f))
			}
		}
	case "feature":
		set.Features = append(set.Features, parseFeature(gj))
	default:
		return nil, fmt.Errorf("%w: %s: unsupported type %q", ErrInvalidGeoJSON, path, getStr(gj, "type"))
	}
	return set, nil
}

func parseFeature(f map[string]any) Feature {
	var out Feature
	if p, ok := f["properties"].(map[string]any); ok {
		out.Properties = p
	} else {
		out.Properties = map[string]any{}
	}
	if g, ok := f["geometry"].(map[string]any); ok {
		out.Polys = polysFromGeometry(g)
	}
	return out
}

func polysFromGeometry(g map[string]any) []Polygon {
	coords, _ := g["coordinates"].([]any)
	switch strings.ToLower(getStr(g, "type")) {
	case "polygon":
		if poly, ok := polygonFromRings(coords); ok {
			return []Polygon{poly}
		}
		return nil
	case "multipolygon":
		out := make([]Polygon, 0, len(coords))
		for _, part := range coords {
			rings, ok := part.([]any)
			if !ok {
				continue
			}
			if poly, ok := polygonFromRings(rings); ok {
				out = append(out, poly)
			}
		}
		return out
	case "geometrycollection":
		var out []Polygon
		geoms, _ := g["geometries"].([]any)
		for _, it := range geoms {
			if sub, ok := it.(map[string]any); ok {
				out = append(out, polysFromGeometry(sub)...)
			}
		}
		return out
	}
	return nil
}

// polygonFromRings：没有任何坐标点的多边形返回 ok=false，调用方丢弃
func polygonFromRings(rings []any) (Polygon, bool) {
	var poly Polygon
	for _, ring := range rings {
		arr, ok := ring.([]any)
		if !ok {
			continue
		}
		rr := make([]Point, 0, len(arr))
		for _, p := range arr {
			if vv, ok := p.([]any); ok && len(vv) >= 2 {
				rr = append(rr, Point{Lon: toFloat(vv[0]), Lat: toFloat(vv[1])})
			}
		}
		if len(rr) > 0 {
			poly.Rings = append(poly.Rings, rr)
		}
	}
	bb, ok := computeBBox(poly)
	if !ok {
		return Polygon{}, false
	}
	poly.BBox = bb
	return poly, true
}

// computeBBox：外环决定包围盒；无坐标点时 ok=false
func computeBBox(p Polygon) (viewport.BoundingBox, bool) {
	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)
	for _, r := range p.Rings {
		for _, pt := range r {
			minLon = math.Min(minLon, pt.Lon)
			minLat = math.Min(minLat, pt.Lat)
			maxLon = math.Max(maxLon, pt.Lon)
			maxLat = math.Max(maxLat, pt.Lat)
		}
	}
	if math.IsInf(minLon, 1) {
		return viewport.BoundingBox{}, false
	}
	return viewport.BoundingBox{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}, true
}

func getStr(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		f, _ := x.Float64()
		return f
	default:
		return 0
	}
}
