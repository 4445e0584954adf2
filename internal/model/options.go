package model

// ReviewsSort selects the order reviews are collected in.
type ReviewsSort string

const (
	SortMostRelevant   ReviewsSort = "mostRelevant"
	SortNewest         ReviewsSort = "newest"
	SortHighestRanking ReviewsSort = "highestRanking"
	SortLowestRanking  ReviewsSort = "lowestRanking"
)

// Code is the value the reviews feed expects for this sort order.
func (s ReviewsSort) Code() int {
	switch s {
	case SortNewest:
		return 1
	case SortHighestRanking:
		return 2
	case SortLowestRanking:
		return 3
	default:
		return 0
	}
}

// ReviewsTranslation selects which half of a machine-translated review is kept.
type ReviewsTranslation string

const (
	TranslationOriginalAndTranslated ReviewsTranslation = "originalAndTranslated"
	TranslationOnlyOriginal          ReviewsTranslation = "onlyOriginal"
	TranslationOnlyTranslated        ReviewsTranslation = "onlyTranslated"
)

// PersonalDataOptions toggles reviewer-identifying review fields.
type PersonalDataOptions struct {
	ScrapeReviewerName          bool `yaml:"scrape_reviewer_name" mapstructure:"scrape_reviewer_name"`
	ScrapeReviewerID            bool `yaml:"scrape_reviewer_id" mapstructure:"scrape_reviewer_id"`
	ScrapeReviewerURL           bool `yaml:"scrape_reviewer_url" mapstructure:"scrape_reviewer_url"`
	ScrapeReviewID              bool `yaml:"scrape_review_id" mapstructure:"scrape_review_id"`
	ScrapeReviewURL             bool `yaml:"scrape_review_url" mapstructure:"scrape_review_url"`
	ScrapeResponseFromOwnerText bool `yaml:"scrape_response_from_owner_text" mapstructure:"scrape_response_from_owner_text"`
}

// AllPersonalData keeps every personal field.
func AllPersonalData() PersonalDataOptions {
	return PersonalDataOptions{
		ScrapeReviewerName:          true,
		ScrapeReviewerID:            true,
		ScrapeReviewerURL:           true,
		ScrapeReviewID:              true,
		ScrapeReviewURL:             true,
		ScrapeResponseFromOwnerText: true,
	}
}

// Redact clears the review fields the options exclude.
func (o PersonalDataOptions) Redact(r *Review) {
	if !o.ScrapeReviewerName {
		r.Name = nil
	}
	if !o.ScrapeReviewerID {
		r.ReviewerID = nil
	}
	if !o.ScrapeReviewerURL {
		r.ReviewerURL = nil
	}
	if !o.ScrapeReviewID {
		r.ReviewID = nil
	}
	if !o.ScrapeReviewURL {
		r.ReviewURL = nil
	}
	if !o.ScrapeResponseFromOwnerText {
		r.ResponseFromOwnerText = nil
	}
}

// ScrapingOptions controls what the detail visitor extracts.
type ScrapingOptions struct {
	IncludeHistogram        bool
	IncludeOpeningHours     bool
	IncludePeopleAlsoSearch bool
	AdditionalInfo          bool
	MaxReviews              int
	MaxImages               int
	ReviewsSort             ReviewsSort
	ReviewsTranslation      ReviewsTranslation
	Language                string
	PersonalData            PersonalDataOptions
}
