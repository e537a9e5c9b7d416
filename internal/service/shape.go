package service

import (
	"sort"

	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// shapeResponse projects the merged series onto the caller-facing wire
// shape: premium OHLC, total volume, per-group volumes, and the
// reference closing-price series. The group and reference projections
// are emitted only when that side produced data; candleData and
// volumeData are always present (empty arrays, never null).
func shapeResponse(premium []model.Candle, domestic, foreign map[int64]model.Candle, reference []model.Candle) *model.KlineResponse {
	resp := &model.KlineResponse{
		CandleData: make([]model.CandlePoint, 0, len(premium)),
		VolumeData: make([]model.VolumePoint, 0, len(premium)),
	}

	for _, p := range premium {
		resp.CandleData = append(resp.CandleData, model.CandlePoint{
			Time:  p.Timestamp,
			Open:  p.Open.InexactFloat64(),
			High:  p.High.InexactFloat64(),
			Low:   p.Low.InexactFloat64(),
			Close: p.Close.InexactFloat64(),
		})
		resp.VolumeData = append(resp.VolumeData, model.VolumePoint{
			Time:  p.Timestamp,
			Value: p.Volume.InexactFloat64(),
		})
	}

	resp.Ex1VolumeData = groupVolumes(domestic)
	resp.Ex2VolumeData = groupVolumes(foreign)

	if len(reference) > 0 {
		points := make([]model.VolumePoint, 0, len(reference))
		for _, c := range reference {
			points = append(points, model.VolumePoint{
				Time:  c.Timestamp,
				Value: c.Close.InexactFloat64(),
			})
		}
		resp.USDTCandleData = points
	}

	return resp
}

// groupVolumes flattens one market group's merged volumes into an
// ascending series; nil when the group had no data so the field is
// omitted from the payload.
func groupVolumes(group map[int64]model.Candle) []model.VolumePoint {
	if len(group) == 0 {
		return nil
	}

	points := make([]model.VolumePoint, 0, len(group))
	for ts, c := range group {
		points = append(points, model.VolumePoint{Time: ts, Value: c.Volume.InexactFloat64()})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time < points[j].Time })
	return points
}
