package components

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"

	"github.com/rendis/mapcrawl/internal/engine/geo"
	"github.com/rendis/mapcrawl/internal/tui/styles"
)

// Point is a geographic point to plot.
type Point struct {
	Lat float64
	Lng float64
}

// MapView renders the crawl region, the candidates seen in search results
// and the stored places as Braille dots.
type MapView struct {
	width      int
	height     int
	places     []Point
	candidates []Point
	border     [][]Point // one ring per region area
	// Viewport bounds
	minLat, maxLat float64
	minLng, maxLng float64
	// Base bounds (for zoom reference)
	basMinLat, basMaxLat float64
	basMinLng, basMaxLng float64
	zoomLevel            float64 // 1.0 = no zoom, >1 = zoomed in
	panLat, panLng       float64 // pan offset in degrees
}

func NewMapView(width, height int) MapView {
	return MapView{
		width:     width,
		height:    height,
		zoomLevel: 1.0,
	}
}

func (m *MapView) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetRegion draws the outer ring of every area of r. A nil region clears
// the outline and the viewport follows the plotted points.
func (m *MapView) SetRegion(r *geo.Region) {
	m.border = nil
	if r != nil {
		for _, area := range r.Areas() {
			if len(area) == 0 {
				continue
			}
			m.border = append(m.border, ringPoints(area[0]))
		}
	}
	m.fitBounds()
}

func (m *MapView) SetPlaces(points []Point) {
	m.places = points
	if len(m.border) == 0 {
		m.fitBounds()
	}
}

func (m *MapView) SetCandidates(points []Point) {
	m.candidates = points
	if len(m.border) == 0 {
		m.fitBounds()
	}
}

func (m *MapView) ZoomIn() {
	m.zoomLevel *= 1.5
	if m.zoomLevel > 20 {
		m.zoomLevel = 20
	}
	m.applyZoom()
}

func (m *MapView) ZoomOut() {
	m.zoomLevel /= 1.5
	if m.zoomLevel < 0.5 {
		m.zoomLevel = 0.5
	}
	m.applyZoom()
}

func (m *MapView) ZoomReset() {
	m.zoomLevel = 1.0
	m.panLat = 0
	m.panLng = 0
	m.applyZoom()
}

func (m *MapView) Pan(dLat, dLng float64) {
	latRange := m.basMaxLat - m.basMinLat
	lngRange := m.basMaxLng - m.basMinLng
	m.panLat += dLat * latRange * 0.1 / m.zoomLevel
	m.panLng += dLng * lngRange * 0.1 / m.zoomLevel
	m.applyZoom()
}

func (m *MapView) applyZoom() {
	centerLat := (m.basMinLat+m.basMaxLat)/2 + m.panLat
	centerLng := (m.basMinLng+m.basMaxLng)/2 + m.panLng
	halfLat := (m.basMaxLat - m.basMinLat) / 2 / m.zoomLevel
	halfLng := (m.basMaxLng - m.basMinLng) / 2 / m.zoomLevel
	m.minLat = centerLat - halfLat
	m.maxLat = centerLat + halfLat
	m.minLng = centerLng - halfLng
	m.maxLng = centerLng + halfLng
}

// fitBounds frames the region outline, or every plotted point when there
// is no outline.
func (m *MapView) fitBounds() {
	var pts []Point
	if len(m.border) > 0 {
		for _, ring := range m.border {
			pts = append(pts, ring...)
		}
	} else {
		pts = append(pts, m.places...)
		pts = append(pts, m.candidates...)
	}
	if len(pts) == 0 {
		return
	}

	m.basMinLat, m.basMaxLat = pts[0].Lat, pts[0].Lat
	m.basMinLng, m.basMaxLng = pts[0].Lng, pts[0].Lng
	for _, p := range pts {
		m.basMinLat = math.Min(m.basMinLat, p.Lat)
		m.basMaxLat = math.Max(m.basMaxLat, p.Lat)
		m.basMinLng = math.Min(m.basMinLng, p.Lng)
		m.basMaxLng = math.Max(m.basMaxLng, p.Lng)
	}
	// Add padding
	latPad := (m.basMaxLat - m.basMinLat) * 0.05
	lngPad := (m.basMaxLng - m.basMinLng) * 0.05
	if latPad == 0 {
		latPad = 0.01
	}
	if lngPad == 0 {
		lngPad = 0.01
	}
	m.basMinLat -= latPad
	m.basMaxLat += latPad
	m.basMinLng -= lngPad
	m.basMaxLng += lngPad
	m.applyZoom()
}

// Braille character encoding:
// Each braille char is a 2x4 dot grid.
// Dot positions:  0 3
//
//	1 4
//	2 5
//	6 7
//
// Unicode: 0x2800 + sum of raised dot bits
var brailleDots = [8]rune{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80}

var dotPositions = [8][2]int{
	{0, 0}, {1, 0}, {2, 0}, {0, 1},
	{1, 1}, {2, 1}, {3, 0}, {3, 1},
}

func (m MapView) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}

	// Each braille char represents 2 columns x 4 rows of dots
	cols := m.width
	rows := m.height
	dotW := cols * 2
	dotH := rows * 4

	latRange := m.maxLat - m.minLat
	lngRange := m.maxLng - m.minLng
	if latRange == 0 || lngRange == 0 {
		return strings.TrimSuffix(strings.Repeat(strings.Repeat(" ", cols)+"\n", rows), "\n")
	}

	// 1° lng is shorter than 1° lat away from the equator; braille dots are
	// roughly square on screen.
	avgLat := (m.minLat + m.maxLat) / 2
	cosLat := math.Cos(avgLat * math.Pi / 180)
	geoAspect := lngRange * cosLat / latRange
	dotAspect := float64(dotW) / float64(dotH)

	effectiveW, effectiveH := dotW, dotH
	offsetX, offsetY := 0, 0
	if geoAspect < dotAspect {
		effectiveW = max(int(float64(dotH)*geoAspect), 4)
		offsetX = (dotW - effectiveW) / 2
	} else {
		effectiveH = max(int(float64(dotW)/geoAspect), 4)
		offsetY = (dotH - effectiveH) / 2
	}

	borderGrid := newGrid(dotW, dotH)
	candidateGrid := newGrid(dotW, dotH)
	placeGrid := newGrid(dotW, dotH)

	toDot := func(lat, lng float64) (int, int) {
		x := offsetX + int((lng-m.minLng)/lngRange*float64(effectiveW-1))
		y := offsetY + int((m.maxLat-lat)/latRange*float64(effectiveH-1))
		return x, y
	}

	// Region outline as closed rings (Bresenham)
	for _, ring := range m.border {
		for i := 0; i < len(ring); i++ {
			x0, y0 := toDot(ring[i].Lat, ring[i].Lng)
			next := (i + 1) % len(ring)
			x1, y1 := toDot(ring[next].Lat, ring[next].Lng)
			drawLine(borderGrid, x0, y0, x1, y1, dotW, dotH)
		}
	}

	plot := func(grid [][]bool, pts []Point) {
		for _, p := range pts {
			x, y := toDot(p.Lat, p.Lng)
			if x >= 0 && x < dotW && y >= 0 && y < dotH {
				grid[y][x] = true
			}
		}
	}
	plot(candidateGrid, m.candidates)
	plot(placeGrid, m.places)

	borderStyle := lipgloss.NewStyle().Foreground(styles.Secondary)
	candidateStyle := lipgloss.NewStyle().Foreground(styles.Muted)
	placeStyle := lipgloss.NewStyle().Foreground(styles.Success)

	var sb strings.Builder
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			borderVal := cell(borderGrid, row, col)
			candidateVal := cell(candidateGrid, row, col)
			placeVal := cell(placeGrid, row, col)

			switch {
			case placeVal != 0x2800:
				sb.WriteString(placeStyle.Render(string(placeVal)))
			case candidateVal != 0x2800:
				sb.WriteString(candidateStyle.Render(string(candidateVal)))
			case borderVal != 0x2800:
				sb.WriteString(borderStyle.Render(string(borderVal)))
			default:
				sb.WriteRune(' ')
			}
		}
		if row < rows-1 {
			sb.WriteRune('\n')
		}
	}

	return sb.String()
}

func newGrid(w, h int) [][]bool {
	grid := make([][]bool, h)
	for i := range grid {
		grid[i] = make([]bool, w)
	}
	return grid
}

// cell encodes the 2x4 dots of a character cell as a braille rune.
func cell(grid [][]bool, row, col int) rune {
	var val rune = 0x2800
	for dot := 0; dot < 8; dot++ {
		dy := row*4 + dotPositions[dot][0]
		dx := col*2 + dotPositions[dot][1]
		if dy < len(grid) && dx < len(grid[dy]) && grid[dy][dx] {
			val |= brailleDots[dot]
		}
	}
	return val
}

func ringPoints(ring orb.Ring) []Point {
	pts := make([]Point, 0, len(ring))
	for _, p := range ring {
		pts = append(pts, Point{Lat: p.Lat(), Lng: p.Lon()})
	}
	return pts
}

// drawLine draws a line between two points using Bresenham's algorithm.
func drawLine(grid [][]bool, x0, y0, x1, y1, maxW, maxH int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 >= x1 {
		sx = -1
	}
	sy := 1
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy

	for {
		if x0 >= 0 && x0 < maxW && y0 >= 0 && y0 < maxH {
			grid[y0][x0] = true
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
