package drilldown

import (
	"context"

	"geo-dash/internal/geodata"
	"geo-dash/internal/viewport"
)

// FitState：某州区县视图的拟合视口（不考虑手工覆盖）；用于布局导出与视口查询
func FitState(ctx context.Context, l Loader, f *viewport.Fitter, state string) (viewport.Viewport, error) {
	path := geodata.DistrictsPath(state)
	set, err := l.Load(ctx, path)
	if err != nil {
		return viewport.Viewport{}, &DataUnavailableError{Path: path, Err: err}
	}
	if len(set.Features) == 0 {
		return viewport.Viewport{}, &EmptyRegionError{Name: state}
	}
	boxes := make([]viewport.BoundingBox, 0, len(set.Features))
	for _, feat := range set.Features {
		if b, ok := feat.Bounds(); ok {
			boxes = append(boxes, b)
		}
	}
	return f.FitAll(boxes), nil
}
