// Package dispatch реализует подбор ближайшей точки обслуживания по координатам клиента.
package dispatch

import (
	"errors"
	"math"
	"sort"

	"github.com/mmeshcher/laundry-system/internal/model"
)

// EarthRadiusKm — средний радиус Земли для формулы гаверсинусов.
const EarthRadiusKm = 6371.0

// DefaultMaxDistanceKm — радиус обслуживания по умолчанию.
const DefaultMaxDistanceKm = 30.0

// ErrInvalidLocation возвращается при координатах вне допустимых диапазонов.
var ErrInvalidLocation = errors.New("invalid location coordinates")

// Match описывает выбранную точку обслуживания и расстояние до неё.
type Match struct {
	Outlet     model.Outlet
	DistanceKm float64
}

// HaversineKm вычисляет расстояние по дуге большого круга между двумя
// точками в километрах. Погрешность сферического приближения меньше 0.5%,
// чего достаточно для внутригородской диспетчеризации.
func HaversineKm(a, b model.GeoPoint) float64 {
	const degToRad = math.Pi / 180

	dLat := (b.Lat - a.Lat) * degToRad
	dLon := (b.Lon - a.Lon) * degToRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// FindNearest выбирает ближайшую к origin точку обслуживания из candidates
// в пределах maxDistanceKm. Точки без координат не участвуют в ранжировании.
// При равных расстояниях выбирается точка с меньшим идентификатором.
// Возвращает found=false, если ни одна точка не попала в радиус; это не
// ошибка, а штатный исход, который вызывающий обязан обработать.
func FindNearest(origin model.GeoPoint, candidates []model.Outlet, maxDistanceKm float64) (Match, bool, error) {
	if !origin.Valid() {
		return Match{}, false, ErrInvalidLocation
	}

	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultMaxDistanceKm
	}

	var matches []Match
	for _, o := range candidates {
		if o.Location == nil {
			continue
		}

		d := HaversineKm(origin, *o.Location)
		if d > maxDistanceKm {
			continue
		}

		matches = append(matches, Match{Outlet: o, DistanceKm: d})
	}

	if len(matches) == 0 {
		return Match{}, false, nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceKm != matches[j].DistanceKm {
			return matches[i].DistanceKm < matches[j].DistanceKm
		}
		return matches[i].Outlet.ID < matches[j].Outlet.ID
	})

	return matches[0], true, nil
}
