package decoder

import (
	"regexp"
	"strings"

	"github.com/rendis/mapcrawl/internal/model"
)

var (
	imageSizeRe        = regexp.MustCompile(`=s\d+`)
	imageWidthHeightRe = regexp.MustCompile(`=w\d+-h\d+`)
	imageStyleURLRe    = regexp.MustCompile(`url\("(.*)"\)`)
	openingHoursLineRe = regexp.MustCompile(`(\S+)\s(.*)`)
)

// EnlargeImageURL rewrites the size suffix of a photo URL to full resolution.
func EnlargeImageURL(u string) string {
	if m := imageSizeRe.FindString(u); m != "" {
		return strings.Replace(u, m, "=s1920", 1)
	}
	if m := imageWidthHeightRe.FindString(u); m != "" {
		return strings.Replace(u, m, "=w1920-h1080", 1)
	}
	return u
}

// ImageURLFromStyle extracts the background image of a gallery tile style
// attribute. Protocol-relative URLs get https.
func ImageURLFromStyle(style string) string {
	m := imageStyleURLRe.FindStringSubmatch(style)
	if m == nil {
		return ""
	}
	u := m[1]
	if strings.HasPrefix(u, "/") {
		u = "https:" + u
	}
	return u
}

// ParseOpeningHoursText parses the aria-label of the opening hours table,
// e.g. "Monday 9AM–5PM; Tuesday 9AM–5PM. Hide open hours for the week".
func ParseOpeningHoursText(text string) []model.OpeningHours {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	sep := ","
	if strings.Contains(text, ";") {
		sep = ";"
	}
	var out []model.OpeningHours
	for _, line := range strings.Split(text, sep) {
		m := openingHoursLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		hours, _, _ := strings.Cut(m[2], ".")
		out = append(out, model.OpeningHours{Day: m[1], Hours: hours})
	}
	return out
}
