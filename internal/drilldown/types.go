// 包 drilldown：州 → 区县 → 子区县的下钻视图状态机
package drilldown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"geo-dash/internal/geodata"
	"geo-dash/internal/viewport"
)

// Level：当前视图层级
type Level int

const (
	// LevelState：展示某州全部区县
	LevelState Level = iota
	// LevelSubRegion：展示某区县全部子区县
	LevelSubRegion
)

func (l Level) String() string {
	if l == LevelSubRegion {
		return "sub_region"
	}
	return "state"
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	switch string(b) {
	case "state":
		*l = LevelState
	case "sub_region":
		*l = LevelSubRegion
	default:
		return fmt.Errorf("unknown level %q", b)
	}
	return nil
}

// ViewState：会话唯一的视图状态；District 仅在 LevelSubRegion 时有值
type ViewState struct {
	Level    Level  `json:"level"`
	State    string `json:"state"`
	District string `json:"district,omitempty"`
}

// RegionRecord：一个展示中的区域（与数据集中的要素一一对应，顺序相同）
type RegionRecord struct {
	Name   string               `json:"name"`
	Bounds viewport.BoundingBox `json:"bounds"`
	Metric float64              `json:"metric"`
}

// ActionKind：动作类型
type ActionKind string

const (
	ActionSelectState    ActionKind = "select_state"
	ActionSelectDistrict ActionKind = "select_district"
	ActionClickMap       ActionKind = "click_map"
	ActionBack           ActionKind = "back"
)

// 文档注释：用户动作（带标签的联合类型）
// 约束：select_* 使用 Name；click_map 使用 Label（悬停文本，取 <br> 之前部分）或 Point，二者至少其一。
type Action struct {
	Kind  ActionKind       `json:"kind"`
	Name  string           `json:"name,omitempty"`
	Label string           `json:"label,omitempty"`
	Point *viewport.LonLat `json:"point,omitempty"`
}

// Titles：视图标题
type Titles struct {
	Map    string `json:"map"`
	Bar    string `json:"bar"`
	Header string `json:"header"`
}

// 文档注释：一次转换后的完整视图
// 背景：界面层据此重绘地图与柱状图；Path 为数据集引用，Options 为区县下拉选项。
type View struct {
	State      ViewState         `json:"state"`
	Path       string            `json:"path"`
	Records    []RegionRecord    `json:"records"`
	Viewport   viewport.Viewport `json:"viewport"`
	Titles     Titles            `json:"titles"`
	Options    []string          `json:"options"`
	Selected   string            `json:"selected,omitempty"`
	Focus      string            `json:"focus,omitempty"`
	ColorScale string            `json:"color_scale"`
	BarHeight  int               `json:"bar_height"`
}

// Loader：几何数据加载器；失败时返回错误（通常包装 geodata.ErrAbsent）
type Loader interface {
	Load(ctx context.Context, path string) (*geodata.GeometrySet, error)
}

// 文档注释：控制器配置
// 约束：DistrictKey/SubdistrictKey 为 GeoJSON 属性名；Layouts 可为 nil。
type Config struct {
	DistrictKey    string
	SubdistrictKey string
	ColorScale     string
	MinBarHeight   int
	BarRowHeight   int
	Layouts        *viewport.Layouts
}

func DefaultConfig() Config {
	return Config{
		DistrictKey:    "dtname",
		SubdistrictKey: "sdtname",
		ColorScale:     "RdYlGn",
		MinBarHeight:   400,
		BarRowHeight:   25,
	}
}

// ConfigFromEnv：读取属性键、色带与手工视口覆盖文件（MAP_LAYOUTS_PATH）
func ConfigFromEnv() (Config, error) {
	c := DefaultConfig()
	if v := os.Getenv("GEO_DISTRICT_KEY"); v != "" {
		c.DistrictKey = v
	}
	if v := os.Getenv("GEO_SUBDISTRICT_KEY"); v != "" {
		c.SubdistrictKey = v
	}
	if v := os.Getenv("COLOR_SCALE"); v != "" {
		c.ColorScale = v
	}
	l, err := viewport.LoadLayouts(os.Getenv("MAP_LAYOUTS_PATH"))
	if err != nil {
		return c, err
	}
	c.Layouts = l
	return c, nil
}

// MarshalJSON：records 为空时输出 []，便于前端直接遍历
func (v View) MarshalJSON() ([]byte, error) {
	type alias View
	a := alias(v)
	if a.Records == nil {
		a.Records = []RegionRecord{}
	}
	if a.Options == nil {
		a.Options = []string{}
	}
	return json.Marshal(a)
}
