package decoder

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/rendis/mapcrawl/internal/model"
)

const (
	originalMarker   = "\n\n(Original)\n"
	translatedNotice = "(Translated by Google)"

	// ReviewsPageSize is how far the feed offset advances per request.
	ReviewsPageSize = 10
)

var (
	feedSortRe   = regexp.MustCompile(`!3e\d`)
	feedOffsetRe = regexp.MustCompile(`!1i(\d+)`)
)

// IsReviewsFeedURL reports whether u is a reviews feed request.
func IsReviewsFeedURL(u string) bool {
	return strings.Contains(u, "preview/review/listentitiesreviews")
}

// ReviewsFeedURL rewrites an intercepted feed URL to the requested sort
// order, starting at offset zero.
func ReviewsFeedURL(raw string, sort model.ReviewsSort) string {
	u := feedSortRe.ReplaceAllString(raw, "!3e"+strconv.Itoa(sort.Code()+1))
	return feedOffsetRe.ReplaceAllString(u, "!1i0")
}

// NextReviewsFeedURL advances the feed offset by one page.
func NextReviewsFeedURL(raw string) string {
	return feedOffsetRe.ReplaceAllStringFunc(raw, func(m string) string {
		n, _ := strconv.Atoi(m[len("!1i"):])
		return "!1i" + strconv.Itoa(n+ReviewsPageSize)
	})
}

// ParseReviewsResponse decodes a reviews feed payload. An empty feed yields
// no reviews and no error; an unparseable one is an error.
func ParseReviewsResponse(body []byte, mode model.ReviewsTranslation) ([]model.Review, error) {
	var data []any
	if err := json.Unmarshal(stripXSSI(body), &data); err != nil {
		return nil, eris.Wrap(err, "parsing reviews feed")
	}
	return DecodeReviews(safeSlice(safeGet(data, reviewsFeedResults...)), mode), nil
}

// DecodeReviews decodes a list of review arrays.
func DecodeReviews(raw []any, mode model.ReviewsTranslation) []model.Review {
	reviews := make([]model.Review, 0, len(raw))
	for _, r := range raw {
		reviews = append(reviews, DecodeReview(r, mode))
	}
	return reviews
}

// DecodeReview reads one review array.
func DecodeReview(r any, mode model.ReviewsTranslation) model.Review {
	f := reviewFields
	review := model.Review{
		Name:                    optString(r, f.Name...),
		Text:                    optString(r, f.Text...),
		PublishAt:               optString(r, f.PublishAt...),
		PublishedAtDate:         optTime(r, f.PublishedAtDate...),
		LikesCount:              optInt(r, f.LikesCount...),
		ReviewID:                optString(r, f.ReviewID...),
		ReviewURL:               optString(r, f.ReviewURL...),
		ReviewerID:              optString(r, f.ReviewerID...),
		ReviewerURL:             optString(r, f.ReviewerURL...),
		ReviewerNumberOfReviews: optInt(r, f.ReviewerNumberOfReviews...),
		IsLocalGuide:            safeSlice(safeGet(r, f.LocalGuideBadge...)) != nil,
		Stars:                   optInt(r, f.Stars...),
		Rating:                  optFloat(r, f.Rating...),
		ResponseFromOwnerDate:   optTime(r, f.OwnerResponseDate...),
		ResponseFromOwnerText:   optString(r, f.OwnerResponseText...),
	}
	if review.Text != nil {
		text := ApplyTranslation(*review.Text, mode)
		review.Text = &text
	}
	return review
}

// ApplyTranslation keeps the half of a machine-translated review selected by
// mode and strips the translation notices. Only originalAndTranslated leaves
// text as is; any other mode keeps the translated half.
func ApplyTranslation(text string, mode model.ReviewsTranslation) string {
	if mode == model.TranslationOriginalAndTranslated {
		return text
	}
	parts := strings.SplitN(text, originalMarker, 2)
	text = parts[0]
	if mode == model.TranslationOnlyOriginal && len(parts) == 2 && parts[1] != "" {
		text = parts[1]
	}
	text = strings.Replace(text, translatedNotice, "", 1)
	return strings.TrimSpace(text)
}

// optTime reads an epoch-milliseconds timestamp.
func optTime(data any, path ...int) *time.Time {
	v, ok := safeGet(data, path...).(float64)
	if !ok {
		return nil
	}
	t := time.UnixMilli(int64(v)).UTC()
	return &t
}
