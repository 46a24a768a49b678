package drilldown

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"geo-dash/internal/geodata"
	"geo-dash/internal/metric"
	"geo-dash/internal/viewport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader：按路径返回预置的 GeoJSON；未登记的路径视为不存在
type fakeLoader struct {
	files map[string]string
	calls []string
}

func (f *fakeLoader) Load(_ context.Context, path string) (*geodata.GeometrySet, error) {
	f.calls = append(f.calls, path)
	src, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", geodata.ErrAbsent, path)
	}
	return geodata.Parse(path, []byte(src))
}

func box(props string, minLon, minLat, maxLon, maxLat float64) string {
	return fmt.Sprintf(`{"type":"Feature","properties":%s,"geometry":{"type":"Polygon","coordinates":[[[%[2]g,%[3]g],[%[4]g,%[3]g],[%[4]g,%[5]g],[%[2]g,%[5]g],[%[2]g,%[3]g]]]}}`,
		props, minLon, minLat, maxLon, maxLat)
}

func collection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

func newFixture() *fakeLoader {
	return &fakeLoader{files: map[string]string{
		geodata.DistrictsPath("TEST"): collection(
			box(`{"dtname":"ALPHA"}`, 70, 10, 75, 15),
			box(`{"dtname":"BETA"}`, 74, 12, 78, 16),
		),
		geodata.SubdistrictsPath("TEST"): collection(
			box(`{"dtname":"ALPHA","sdtname":"A1"}`, 70, 10, 72, 15),
			box(`{"dtname":"ALPHA","sdtname":"A2"}`, 72, 10, 75, 15),
			box(`{"dtname":"BETA","sdtname":"B1"}`, 74, 12, 78, 16),
		),
		geodata.DistrictsPath("OTHER"): collection(
			box(`{"dtname":"GAMMA"}`, 80, 20, 81, 21),
		),
		geodata.DistrictsPath("HOLLOW"): collection(),
	}}
}

func newController(l Loader) *Controller {
	return New(DefaultConfig(), l, metric.NewDemo(42), viewport.NewFitter(viewport.DefaultConfig()))
}

func TestStartSelectsState(t *testing.T) {
	c := newController(newFixture())
	v, err := c.Start(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Equal(t, ViewState{Level: LevelState, State: "TEST"}, c.State())
	assert.Equal(t, geodata.DistrictsPath("TEST"), v.Path)
	require.Len(t, v.Records, 2)
	assert.Equal(t, "ALPHA", v.Records[0].Name)
	assert.Equal(t, []string{"ALPHA", "BETA"}, v.Options)
	assert.Equal(t, "ALPHA", v.Selected)
	assert.Equal(t, "District-wise Map of Test", v.Titles.Map)
	assert.Equal(t, "District Data Comparison", v.Titles.Bar)
	assert.Equal(t, "State View: Test", v.Titles.Header)
	assert.Equal(t, "RdYlGn", v.ColorScale)
	assert.Equal(t, 400, v.BarHeight)

	// 合并包围盒 (70,10,78,16)：正方形 8x8，中心 (74,13)
	assert.InDelta(t, 74, v.Viewport.Center.Lon, 1e-9)
	assert.InDelta(t, 13, v.Viewport.Center.Lat, 1e-9)
	assert.InDelta(t, v.Viewport.Square.Width(), v.Viewport.Square.Height(), 1e-9)
	assert.True(t, v.Viewport.Bounds.Contains(viewport.NewBoundingBox(70, 10, 78, 16)))

	for _, r := range v.Records {
		assert.GreaterOrEqual(t, r.Metric, -50.0)
		assert.Less(t, r.Metric, 100.0)
	}
}

func TestSelectDistrictAndBack(t *testing.T) {
	l := newFixture()
	c := newController(l)
	ctx := context.Background()
	_, err := c.Start(ctx, "TEST")
	require.NoError(t, err)

	v, err := c.Dispatch(ctx, Action{Kind: ActionSelectDistrict, Name: "ALPHA"})
	require.NoError(t, err)
	assert.Equal(t, ViewState{Level: LevelSubRegion, State: "TEST", District: "ALPHA"}, c.State())
	assert.Equal(t, geodata.SubdistrictsPath("TEST"), v.Path)
	require.Len(t, v.Records, 2)
	assert.Equal(t, []string{"A1", "A2"}, []string{v.Records[0].Name, v.Records[1].Name})
	assert.Equal(t, "Sub-District Map of ALPHA", v.Titles.Map)
	assert.Equal(t, "Sub-District Data for ALPHA", v.Titles.Bar)
	assert.Equal(t, "Sub-District View: ALPHA", v.Titles.Header)
	assert.Equal(t, []string{"ALPHA", "BETA"}, v.Options)
	for _, r := range v.Records {
		assert.GreaterOrEqual(t, r.Metric, 0.0)
	}

	// 同州内切换区县
	v, err = c.Dispatch(ctx, Action{Kind: ActionSelectDistrict, Name: "beta"})
	require.NoError(t, err)
	assert.Equal(t, ViewState{Level: LevelSubRegion, State: "TEST", District: "BETA"}, c.State())
	require.Len(t, v.Records, 1)

	v, err = c.Dispatch(ctx, Action{Kind: ActionBack})
	require.NoError(t, err)
	assert.Equal(t, ViewState{Level: LevelState, State: "TEST"}, c.State())
	assert.Equal(t, "BETA", v.Selected)
	assert.Len(t, v.Records, 2)
}

func TestBackInStateIsNoop(t *testing.T) {
	l := newFixture()
	c := newController(l)
	ctx := context.Background()
	before, err := c.Start(ctx, "TEST")
	require.NoError(t, err)
	calls := len(l.calls)
	after, err := c.Dispatch(ctx, Action{Kind: ActionBack})
	require.NoError(t, err)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, calls, len(l.calls))
}

func TestClickMapByPoint(t *testing.T) {
	c := newController(newFixture())
	ctx := context.Background()
	_, err := c.Start(ctx, "TEST")
	require.NoError(t, err)

	v, err := c.Dispatch(ctx, Action{Kind: ActionClickMap, Point: &viewport.LonLat{Lon: 77, Lat: 15.5}})
	require.NoError(t, err)
	assert.Equal(t, ViewState{Level: LevelSubRegion, State: "TEST", District: "BETA"}, v.State)

	// 子区县层级的点击只报告，不转换
	v, err = c.Dispatch(ctx, Action{Kind: ActionClickMap, Point: &viewport.LonLat{Lon: 75, Lat: 14}})
	require.NoError(t, err)
	assert.Equal(t, "B1", v.Focus)
	assert.Equal(t, ViewState{Level: LevelSubRegion, State: "TEST", District: "BETA"}, c.State())
}

func TestClickMapByLabel(t *testing.T) {
	c := newController(newFixture())
	ctx := context.Background()
	_, err := c.Start(ctx, "TEST")
	require.NoError(t, err)
	v, err := c.Dispatch(ctx, Action{Kind: ActionClickMap, Label: "alpha<br>12.34"})
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", v.State.District)
}

func TestClickMapOutsideKeepsState(t *testing.T) {
	c := newController(newFixture())
	ctx := context.Background()
	before, err := c.Start(ctx, "TEST")
	require.NoError(t, err)

	v, err := c.Dispatch(ctx, Action{Kind: ActionClickMap, Point: &viewport.LonLat{Lon: 100, Lat: 40}})
	assert.ErrorIs(t, err, ErrAmbiguousClick)
	assert.Equal(t, before.State, v.State)
	assert.Equal(t, before.Records, v.Records)
	kind, msg := Notice(err)
	assert.Equal(t, NoticeAmbiguousClick, kind)
	assert.Equal(t, "You clicked outside of any district boundary.", msg)

	// 重叠区域命中两个区县，同样拒绝
	_, err = c.Dispatch(ctx, Action{Kind: ActionClickMap, Point: &viewport.LonLat{Lon: 74.5, Lat: 13}})
	var ac *AmbiguousClickError
	require.ErrorAs(t, err, &ac)
	assert.Equal(t, 2, ac.Matches)
	assert.Equal(t, LevelState, c.State().Level)

	// 标签不对应任何展示区域且无坐标
	_, err = c.Dispatch(ctx, Action{Kind: ActionClickMap, Label: "NOWHERE<br>1"})
	assert.ErrorIs(t, err, ErrAmbiguousClick)

	_, err = c.Dispatch(ctx, Action{Kind: ActionClickMap})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestClickMapDuplicateLabelIsAmbiguous(t *testing.T) {
	l := newFixture()
	l.files[geodata.DistrictsPath("TWIN")] = collection(
		box(`{"dtname":"Aurangabad"}`, 70, 10, 72, 12),
		box(`{"dtname":"AURANGABAD"}`, 80, 20, 82, 22),
	)
	c := newController(l)
	ctx := context.Background()
	_, err := c.Start(ctx, "TWIN")
	require.NoError(t, err)

	_, err = c.Dispatch(ctx, Action{Kind: ActionClickMap, Label: "aurangabad<br>3"})
	var ac *AmbiguousClickError
	require.ErrorAs(t, err, &ac)
	assert.Equal(t, 2, ac.Matches)
	assert.Equal(t, LevelState, c.State().Level)
}

func TestEmptyGeometryDoesNotSkewViewport(t *testing.T) {
	l := newFixture()
	l.files[geodata.DistrictsPath("SPARSE")] = collection(
		box(`{"dtname":"ALPHA"}`, 70, 10, 75, 15),
		`{"type":"Feature","properties":{"dtname":"GHOST"},"geometry":{"type":"Polygon","coordinates":[]}}`,
		`{"type":"Feature","properties":{"dtname":"SPLIT"},"geometry":{"type":"MultiPolygon","coordinates":[[]]}}`,
	)
	c := newController(l)
	v, err := c.Start(context.Background(), "SPARSE")
	require.NoError(t, err)
	assert.InDelta(t, 72.5, v.Viewport.Center.Lon, 1e-9)
	assert.InDelta(t, 12.5, v.Viewport.Center.Lat, 1e-9)
	assert.True(t, v.Viewport.Bounds.Contains(viewport.NewBoundingBox(70, 10, 75, 15)))
	assert.Greater(t, v.Viewport.Bounds.MinLon, 60.0)
	assert.Greater(t, v.Viewport.Zoom, 2)
	assert.Len(t, v.Records, 3)
}

func TestSubregionDataUnavailable(t *testing.T) {
	l := newFixture()
	delete(l.files, geodata.SubdistrictsPath("TEST"))
	c := newController(l)
	ctx := context.Background()
	before, err := c.Start(ctx, "TEST")
	require.NoError(t, err)

	v, err := c.Dispatch(ctx, Action{Kind: ActionSelectDistrict, Name: "ALPHA"})
	require.ErrorIs(t, err, ErrDataUnavailable)
	assert.ErrorIs(t, err, geodata.ErrAbsent)
	var du *DataUnavailableError
	require.ErrorAs(t, err, &du)
	assert.Equal(t, geodata.SubdistrictsPath("TEST"), du.Path)
	assert.Equal(t, ViewState{Level: LevelState, State: "TEST"}, c.State())
	assert.Equal(t, before.Records, v.Records)
	kind, msg := Notice(err)
	assert.Equal(t, NoticeDataUnavailable, kind)
	assert.Contains(t, msg, "TEST_SUBDISTRICTS.geojson")
}

func TestBackDataUnavailableKeepsSubregion(t *testing.T) {
	l := newFixture()
	c := newController(l)
	ctx := context.Background()
	_, err := c.Start(ctx, "TEST")
	require.NoError(t, err)
	_, err = c.Dispatch(ctx, Action{Kind: ActionSelectDistrict, Name: "ALPHA"})
	require.NoError(t, err)

	delete(l.files, geodata.DistrictsPath("TEST"))
	v, err := c.Dispatch(ctx, Action{Kind: ActionBack})
	require.ErrorIs(t, err, ErrDataUnavailable)
	assert.Equal(t, LevelSubRegion, v.State.Level)
	assert.Equal(t, "ALPHA", c.State().District)
}

func TestEmptyRegionSetKeepsState(t *testing.T) {
	c := newController(newFixture())
	ctx := context.Background()
	_, err := c.Start(ctx, "TEST")
	require.NoError(t, err)

	_, err = c.Dispatch(ctx, Action{Kind: ActionSelectDistrict, Name: "DELTA"})
	require.ErrorIs(t, err, ErrEmptyRegionSet)
	assert.Equal(t, LevelState, c.State().Level)
	kind, msg := Notice(err)
	assert.Equal(t, NoticeEmptyRegionSet, kind)
	assert.Equal(t, "No data for DELTA.", msg)

	_, err = c.Dispatch(ctx, Action{Kind: ActionSelectState, Name: "HOLLOW"})
	require.ErrorIs(t, err, ErrEmptyRegionSet)
	assert.Equal(t, "TEST", c.State().State)
}

func TestSelectStateFromSubregion(t *testing.T) {
	c := newController(newFixture())
	ctx := context.Background()
	_, err := c.Start(ctx, "TEST")
	require.NoError(t, err)
	_, err = c.Dispatch(ctx, Action{Kind: ActionSelectDistrict, Name: "ALPHA"})
	require.NoError(t, err)

	v, err := c.Dispatch(ctx, Action{Kind: ActionSelectState, Name: "OTHER"})
	require.NoError(t, err)
	assert.Equal(t, ViewState{Level: LevelState, State: "OTHER"}, v.State)
	assert.Equal(t, []string{"GAMMA"}, v.Options)
}

func TestLayoutOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Layouts = viewport.NewLayouts()
	want := viewport.Viewport{Center: viewport.LonLat{Lon: 1, Lat: 2}, Zoom: 7, Bounds: viewport.NewBoundingBox(0, 1, 2, 3)}
	cfg.Layouts.Set("test", want)
	c := New(cfg, newFixture(), nil, nil)
	v, err := c.Start(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Equal(t, want, v.Viewport)

	// 超出缩放范围的覆盖值按拟合器范围截断
	cfg.Layouts.Set("test", viewport.Viewport{Center: want.Center, Zoom: 40, Bounds: want.Bounds})
	c = New(cfg, newFixture(), nil, nil)
	v, err = c.Start(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Equal(t, viewport.DefaultConfig().MaxZoom, v.Viewport.Zoom)
	assert.Equal(t, want.Center, v.Viewport.Center)

	// 子区县视图不受覆盖影响
	v, err = c.Dispatch(context.Background(), Action{Kind: ActionSelectDistrict, Name: "ALPHA"})
	require.NoError(t, err)
	assert.NotEqual(t, 7, v.Viewport.Zoom)
}

func TestMetricSourceFailureDegradesToZero(t *testing.T) {
	failing := metric.SourceFunc(func(context.Context, metric.Request) (map[string]float64, error) {
		return nil, fmt.Errorf("db down")
	})
	c := New(DefaultConfig(), newFixture(), failing, nil)
	v, err := c.Start(context.Background(), "TEST")
	require.NoError(t, err)
	for _, r := range v.Records {
		assert.Equal(t, 0.0, r.Metric)
	}
}

func TestUnknownAndPrematureActions(t *testing.T) {
	c := newController(newFixture())
	ctx := context.Background()
	_, err := c.Dispatch(ctx, Action{Kind: "zoom"})
	assert.ErrorIs(t, err, ErrUnknownAction)
	_, err = c.Dispatch(ctx, Action{Kind: ActionSelectDistrict, Name: "ALPHA"})
	assert.ErrorIs(t, err, ErrUnknownAction)
	_, err = c.Dispatch(ctx, Action{Kind: ActionSelectState})
	assert.ErrorIs(t, err, ErrUnknownAction)
	kind, _ := Notice(err)
	assert.Equal(t, NoticeBadAction, kind)
	assert.False(t, c.Started())

	_, err = c.Dispatch(ctx, Action{Kind: ActionSelectState, Name: "MISSING"})
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.False(t, c.Started())
}

func TestFeatureCollection(t *testing.T) {
	c := newController(newFixture())
	fc := c.FeatureCollection()
	assert.Empty(t, fc["features"])

	v, err := c.Start(context.Background(), "TEST")
	require.NoError(t, err)
	fc = c.FeatureCollection()
	feats := fc["features"].([]any)
	require.Len(t, feats, 2)
	props := feats[1].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "BETA", props["name"])
	assert.Equal(t, v.Records[1].Metric, props["Change"])
}

func TestViewJSON(t *testing.T) {
	data, err := json.Marshal(View{State: ViewState{Level: LevelSubRegion, State: "S", District: "D"}})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "sub_region", m["state"].(map[string]any)["level"])
	assert.Equal(t, []any{}, m["records"])

	var a Action
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"click_map","point":{"lon":1.5,"lat":2.5}}`), &a))
	assert.Equal(t, ActionClickMap, a.Kind)
	assert.Equal(t, 1.5, a.Point.Lon)
}

func TestBarHeight(t *testing.T) {
	assert.Equal(t, 400, barHeight(3, 400, 25))
	assert.Equal(t, 1000, barHeight(40, 400, 25))
}

func TestFitState(t *testing.T) {
	f := viewport.NewFitter(viewport.DefaultConfig())
	vp, err := FitState(context.Background(), newFixture(), f, "TEST")
	require.NoError(t, err)
	assert.Equal(t, viewport.LonLat{Lon: 74, Lat: 13}, vp.Center)

	_, err = FitState(context.Background(), newFixture(), f, "NOWHERE")
	assert.ErrorIs(t, err, ErrDataUnavailable)
	_, err = FitState(context.Background(), newFixture(), f, "HOLLOW")
	assert.ErrorIs(t, err, ErrEmptyRegionSet)
}
