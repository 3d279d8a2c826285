package config

import "fmt"

// Region 屏幕上的矩形目标区域，Clicks 为该区域的点击次数 N。
type Region struct {
	StartX uint32 `yaml:"startX" json:"start_x"`
	StartY uint32 `yaml:"startY" json:"start_y"`
	EndX   uint32 `yaml:"endX" json:"end_x"`
	EndY   uint32 `yaml:"endY" json:"end_y"`
	Clicks uint8  `yaml:"clicks" json:"n"`
}

func DefaultRegion() Region {
	return Region{StartX: 1, StartY: 1, EndX: 2, EndY: 2, Clicks: 1}
}

// Validate 起点必须在两个轴上都严格小于终点。
func (r Region) Validate() error {
	if r.StartX < r.EndX && r.StartY < r.EndY {
		return nil
	}
	return ErrInvalid(fmt.Sprintf("invalid region: start (%d,%d) must be < end (%d,%d)",
		r.StartX, r.StartY, r.EndX, r.EndY))
}

// RegionKind 区域用途。
type RegionKind string

const (
	RegionEntryBuy  RegionKind = "entry-buy"
	RegionEntrySell RegionKind = "entry-sell"
	RegionExit      RegionKind = "exit"
)

// ParseRegionKind accepts the kinds exposed on the control surface.
func ParseRegionKind(s string) (RegionKind, error) {
	switch RegionKind(s) {
	case RegionEntryBuy, RegionEntrySell, RegionExit:
		return RegionKind(s), nil
	default:
		return "", ErrInvalid(fmt.Sprintf("unknown region kind %q", s))
	}
}

func (rc RegionsConfig) Validate() error {
	if err := rc.EntryBuy.Validate(); err != nil {
		return fmt.Errorf("regions.entryBuy: %w", err)
	}
	if err := rc.EntrySell.Validate(); err != nil {
		return fmt.Errorf("regions.entrySell: %w", err)
	}
	if err := rc.Exit.Validate(); err != nil {
		return fmt.Errorf("regions.exit: %w", err)
	}
	return nil
}

func (rc RegionsConfig) Get(kind RegionKind) Region {
	switch kind {
	case RegionEntryBuy:
		return rc.EntryBuy
	case RegionEntrySell:
		return rc.EntrySell
	default:
		return rc.Exit
	}
}

// With 返回替换了指定区域的副本。
func (rc RegionsConfig) With(kind RegionKind, r Region) RegionsConfig {
	switch kind {
	case RegionEntryBuy:
		rc.EntryBuy = r
	case RegionEntrySell:
		rc.EntrySell = r
	case RegionExit:
		rc.Exit = r
	}
	return rc
}
