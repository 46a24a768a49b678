// 包 viewport：由行政区包围盒计算地图视口（中心、缩放级别、边界）
package viewport

import (
	"encoding/json"
	"math"
)

// LonLat：经纬度点（WGS84，度）
type LonLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// 文档注释：轴对齐包围盒
// 约束：MinLon ≤ MaxLon 且 MinLat ≤ MaxLat；通过 NewBoundingBox 构造时自动纠正顺序。
// JSON 形式与地图组件的 bounds 参数一致：west/south/east/north。
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

func NewBoundingBox(minLon, minLat, maxLon, maxLat float64) BoundingBox {
	if minLon > maxLon {
		minLon, maxLon = maxLon, minLon
	}
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	return BoundingBox{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}
}

// World：整个经纬度范围，作为空输入时的边界
func World() BoundingBox { return BoundingBox{MinLon: -180, MinLat: -90, MaxLon: 180, MaxLat: 90} }

func (b BoundingBox) Width() float64  { return b.MaxLon - b.MinLon }
func (b BoundingBox) Height() float64 { return b.MaxLat - b.MinLat }

func (b BoundingBox) Center() LonLat {
	return LonLat{Lon: (b.MinLon + b.MaxLon) / 2, Lat: (b.MinLat + b.MaxLat) / 2}
}

// Degenerate：宽或高为零（单点或线段）
func (b BoundingBox) Degenerate() bool { return b.Width() <= 0 || b.Height() <= 0 }

// Contains：o 完全落在 b 内（含边界）
func (b BoundingBox) Contains(o BoundingBox) bool {
	return o.MinLon >= b.MinLon && o.MaxLon <= b.MaxLon && o.MinLat >= b.MinLat && o.MaxLat <= b.MaxLat
}

// ContainsPoint：点落在 b 内（含边界）
func (b BoundingBox) ContainsPoint(p LonLat) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		MinLon: math.Min(b.MinLon, o.MinLon),
		MinLat: math.Min(b.MinLat, o.MinLat),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
	}
}

// Combine：合并一组包围盒；输入为空时返回 false
func Combine(boxes []BoundingBox) (BoundingBox, bool) {
	if len(boxes) == 0 {
		return BoundingBox{}, false
	}
	out := boxes[0]
	for _, b := range boxes[1:] {
		out = out.Union(b)
	}
	return out, true
}

type boundsJSON struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(boundsJSON{West: b.MinLon, South: b.MinLat, East: b.MaxLon, North: b.MaxLat})
}

func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var v boundsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = NewBoundingBox(v.West, v.South, v.East, v.North)
	return nil
}

// 文档注释：地图视口
// 约束：Bounds 必然包含输入包围盒；Zoom 为整数且在配置的 [MinZoom, MaxZoom] 内。
// Square 为补齐为正方形、尚未加边距的包围盒，便于调用方核对。
type Viewport struct {
	Center LonLat      `json:"center"`
	Zoom   int         `json:"zoom"`
	Bounds BoundingBox `json:"bounds"`
	Square BoundingBox `json:"-"`
}
