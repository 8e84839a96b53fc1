package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"fibermap/internal/domain"
	"fibermap/pkg/geodesy"
)

// Trace будує GeoJSON траси лінії: ламана голова -> точки -> абонент,
// сегменти і окремі точки з їхніми атрибутами.
func (s *TopologyService) Trace(ctx context.Context, liaisonID uuid.UUID) (*geojson.FeatureCollection, error) {
	t, err := s.topologies.LoadTopology(ctx, liaisonID)
	if err != nil {
		return nil, err
	}
	return TraceFeatures(t), nil
}

// TraceFeatures перетворює знімок у FeatureCollection
func TraceFeatures(t *domain.Topology) *geojson.FeatureCollection {
	t = t.Clone()
	t.SortPoints()

	fc := geojson.NewFeatureCollection()

	route := orb.LineString{toOrb(t.Liaison.HeadEnd)}
	for _, p := range t.Points {
		route = append(route, toOrb(p.Location))
	}
	route = append(route, toOrb(t.Liaison.TailEnd))

	line := geojson.NewFeature(route)
	line.ID = t.Liaison.ID.String()
	line.Properties["kind"] = "liaison"
	line.Properties["name"] = t.Liaison.Name
	line.Properties["status"] = string(t.Liaison.Status)
	line.Properties["total_length_km"] = t.Liaison.TotalLengthKm
	fc.Append(line)

	head := geojson.NewFeature(toOrb(t.Liaison.HeadEnd))
	head.Properties["kind"] = "head_end"
	head.Properties["distance_km"] = 0.0
	fc.Append(head)

	for _, p := range t.Points {
		f := geojson.NewFeature(toOrb(p.Location))
		f.ID = p.ID.String()
		f.Properties["kind"] = "point"
		f.Properties["ordre"] = p.Ordre
		f.Properties["type"] = string(p.Type)
		f.Properties["name"] = p.Name
		f.Properties["distance_km"] = p.DistanceFromHeadEndKm
		fc.Append(f)
	}

	tail := geojson.NewFeature(toOrb(t.Liaison.TailEnd))
	tail.Properties["kind"] = "tail_end"
	tail.Properties["distance_km"] = t.Liaison.TotalLengthKm
	fc.Append(tail)

	for _, seg := range t.OrderedSegments() {
		var ls orb.LineString
		var traceKm float64
		if len(seg.Trace) >= 2 {
			pts := make([][2]float64, len(seg.Trace))
			for i, c := range seg.Trace {
				ls = append(ls, toOrb(c))
				pts[i] = [2]float64{c.Latitude, c.Longitude}
			}
			// координати траси перевірені при створенні сегмента
			traceKm, _ = geodesy.LineLengthKm(pts)
		} else {
			from, okFrom := t.FromCoordinate(&seg)
			to, okTo := t.ToCoordinate(&seg)
			if !okFrom || !okTo {
				continue
			}
			ls = orb.LineString{toOrb(from), toOrb(to)}
		}
		f := geojson.NewFeature(ls)
		f.ID = seg.ID.String()
		f.Properties["kind"] = "segment"
		f.Properties["gps_distance_km"] = seg.GPSDistanceKm
		f.Properties["cable_distance_km"] = seg.CableDistanceKm
		if traceKm > 0 {
			f.Properties["trace_length_km"] = traceKm
		}
		fc.Append(f)
	}

	return fc
}

// FaultFeature повертає точку оцінки обриву як GeoJSON, або nil без координати
func FaultFeature(f *domain.Fault) *geojson.Feature {
	if f.EstimatedLocation == nil {
		return nil
	}
	feat := geojson.NewFeature(toOrb(*f.EstimatedLocation))
	feat.ID = f.ID.String()
	feat.Properties["kind"] = "fault"
	feat.Properties["status"] = string(f.Status)
	feat.Properties["precision"] = string(f.Precision)
	feat.Properties["absolute_distance_km"] = f.AbsoluteDistanceKm
	return feat
}

func toOrb(c domain.Coordinate) orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}
