package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"

	"github.com/rendis/mapcrawl/internal/model"
)

// viewportPx is the browser viewport edge the grid spacing is derived from.
const viewportPx = 800

// maxGridPoints bounds a single grid pass so a degenerate spacing cannot
// allocate without limit.
const maxGridPoints = 250_000

// ErrGridTooLarge is returned when an area needs more seed points than
// maxGridPoints at the requested zoom.
var ErrGridTooLarge = eris.New("seed grid too large, lower the zoom or narrow the region")

// SpacingKm is the distance between seed points at zoom for an area whose
// northern edge sits at lat.
func SpacingKm(lat float64, zoom int) float64 {
	return distanceByZoom(lat, zoom) * viewportPx / 1000
}

// SeedGrid returns the search seed points covering r at zoom. For every area
// the spacing starts at one viewport and shrinks by 1 km until the grid has
// at least one point inside the area. An area that never yields a point
// contributes nothing. Point and LineString regions also seed their anchors.
// An area whose grid would exceed maxGridPoints fails with ErrGridTooLarge.
func SeedGrid(r *Region, zoom int) ([]model.SeedPoint, error) {
	if r == nil {
		return nil, nil
	}

	var points []model.SeedPoint
	for _, area := range r.Areas() {
		b := area.Bound()
		for spacing := SpacingKm(b.Max.Lat(), zoom); spacing > 0; spacing-- {
			cell := spacing
			if r.Kind() == KindPoint {
				cell = spacing / 2
			}
			found, err := pointGrid(b, cell, area)
			if err != nil {
				return nil, eris.Wrapf(err, "zoom %d, spacing %.3f km", zoom, cell)
			}
			if len(found) > 0 {
				points = append(points, found...)
				break
			}
		}
	}

	for _, p := range r.Anchors() {
		points = append(points, model.SeedPoint{Lat: p.Lat(), Lon: p.Lon()})
	}
	return points, nil
}

// pointGrid lays a regular grid with cellKm sides over b, centred within the
// box, and keeps the points that fall inside mask.
func pointGrid(b orb.Bound, cellKm float64, mask orb.Polygon) ([]model.SeedPoint, error) {
	west, south := b.Min.Lon(), b.Min.Lat()
	east, north := b.Max.Lon(), b.Max.Lat()

	widthKm := geo.Distance(orb.Point{west, south}, orb.Point{east, south}) / 1000
	heightKm := geo.Distance(orb.Point{west, south}, orb.Point{west, north}) / 1000
	if cellKm <= 0 || widthKm == 0 || heightKm == 0 {
		return nil, nil
	}

	bboxWidth := east - west
	bboxHeight := north - south
	cellWidth := cellKm / widthKm * bboxWidth
	cellHeight := cellKm / heightKm * bboxHeight

	columns := math.Floor(bboxWidth / cellWidth)
	rows := math.Floor(bboxHeight / cellHeight)
	if (columns+1)*(rows+1) > maxGridPoints {
		return nil, ErrGridTooLarge
	}
	deltaX := (bboxWidth - columns*cellWidth) / 2
	deltaY := (bboxHeight - rows*cellHeight) / 2

	var points []model.SeedPoint
	for x := west + deltaX; x <= east; x += cellWidth {
		for y := south + deltaY; y <= north; y += cellHeight {
			if planar.PolygonContains(mask, orb.Point{x, y}) {
				points = append(points, model.SeedPoint{Lat: y, Lon: x})
			}
		}
	}
	return points, nil
}
