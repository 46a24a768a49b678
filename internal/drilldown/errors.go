package drilldown

import (
	"errors"
	"fmt"
)

var (
	ErrDataUnavailable = errors.New("data unavailable")
	ErrEmptyRegionSet  = errors.New("empty region set")
	ErrAmbiguousClick  = errors.New("ambiguous click")
	ErrUnknownAction   = errors.New("unknown action")
)

// DataUnavailableError：加载器无法提供 Path 对应的数据
type DataUnavailableError struct {
	Path string
	Err  error
}

func (e *DataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data unavailable for %s: %v", e.Path, e.Err)
	}
	return "data unavailable for " + e.Path
}

func (e *DataUnavailableError) Is(target error) bool { return target == ErrDataUnavailable }

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// EmptyRegionError：过滤后没有任何要素
type EmptyRegionError struct {
	Name string
}

func (e *EmptyRegionError) Error() string { return "no data for " + e.Name }

func (e *EmptyRegionError) Is(target error) bool { return target == ErrEmptyRegionSet }

// AmbiguousClickError：点击位置未能唯一对应一个区域；Matches 为命中数量（0 表示落在所有边界之外）
type AmbiguousClickError struct {
	Level   Level
	Matches int
}

func (e *AmbiguousClickError) Error() string {
	return fmt.Sprintf("click resolved to %d regions", e.Matches)
}

func (e *AmbiguousClickError) Is(target error) bool { return target == ErrAmbiguousClick }

// Notice kinds
const (
	NoticeDataUnavailable = "data_unavailable"
	NoticeEmptyRegionSet  = "empty_region_set"
	NoticeAmbiguousClick  = "ambiguous_click"
	NoticeBadAction       = "bad_action"
	NoticeError           = "error"
)

// 文档注释：把控制器错误转换为界面提示
// 约束：err 为 nil 时返回空串；所有类型都可恢复，调用方继续展示上一个视图。
func Notice(err error) (kind, message string) {
	if err == nil {
		return "", ""
	}
	var du *DataUnavailableError
	var er *EmptyRegionError
	var ac *AmbiguousClickError
	switch {
	case errors.As(err, &du):
		return NoticeDataUnavailable, "Data unavailable for " + du.Path + "."
	case errors.As(err, &er):
		return NoticeEmptyRegionSet, "No data for " + er.Name + "."
	case errors.As(err, &ac):
		unit := "district"
		if ac.Level == LevelSubRegion {
			unit = "sub-district"
		}
		if ac.Matches > 1 {
			return NoticeAmbiguousClick, fmt.Sprintf("That location matches %d %ss; click closer to one of them.", ac.Matches, unit)
		}
		return NoticeAmbiguousClick, "You clicked outside of any " + unit + " boundary."
	case errors.Is(err, ErrDataUnavailable):
		return NoticeDataUnavailable, "Data unavailable."
	case errors.Is(err, ErrEmptyRegionSet):
		return NoticeEmptyRegionSet, "No data for this selection."
	case errors.Is(err, ErrAmbiguousClick):
		return NoticeAmbiguousClick, "No region at this location."
	case errors.Is(err, ErrUnknownAction):
		return NoticeBadAction, err.Error()
	}
	return NoticeError, "Something went wrong."
}
