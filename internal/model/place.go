package model

import "time"

// Coordinates is a WGS84 position. Public output is always {lat, lng}.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SeedPoint is a grid point a search is started from.
type SeedPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// AddressParsed holds the structured address parts. Any part may be absent.
type AddressParsed struct {
	Neighborhood *string `json:"neighborhood"`
	Street       *string `json:"street"`
	City         *string `json:"city"`
	PostalCode   *string `json:"postalCode"`
	State        *string `json:"state"`
	CountryCode  *string `json:"countryCode"`
}

// Candidate is a place as seen in a search results data page, before its
// detail page has been visited.
type Candidate struct {
	PlaceID         string        `json:"placeId"`
	Coords          *Coordinates  `json:"location"`
	Address         AddressParsed `json:"addressParsed"`
	Categories      []string      `json:"categories"`
	Website         *string       `json:"website"`
	IsAdvertisement bool          `json:"isAdvertisement"`
}

// HourOccupancy is one bucket of the popular times histogram.
type HourOccupancy struct {
	Hour             int `json:"hour"`
	OccupancyPercent int `json:"occupancyPercent"`
}

// PopularTimes is the busy-hours block of a place.
type PopularTimes struct {
	LiveText    *string                    `json:"popularTimesLiveText"`
	LivePercent *int                       `json:"popularTimesLivePercent"`
	Histogram   map[string][]HourOccupancy `json:"popularTimesHistogram"`
}

// OpeningHours is one day row of the opening hours table.
type OpeningHours struct {
	Day   string `json:"day"`
	Hours string `json:"hours"`
}

// ReviewsDistribution counts reviews per star rating.
type ReviewsDistribution struct {
	OneStar   int `json:"oneStar"`
	TwoStar   int `json:"twoStar"`
	ThreeStar int `json:"threeStar"`
	FourStar  int `json:"fourStar"`
	FiveStar  int `json:"fiveStar"`
}

// OrderLink is an "order online" provider link.
type OrderLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RelatedPlace is an entry of the "people also search for" carousel.
type RelatedPlace struct {
	Title        string   `json:"title"`
	TotalScore   *float64 `json:"totalScore"`
	ReviewsCount *int     `json:"reviewsCount"`
}

// Review is one user review of a place.
type Review struct {
	Name                    *string    `json:"name"`
	Text                    *string    `json:"text"`
	PublishAt               *string    `json:"publishAt"`
	PublishedAtDate         *time.Time `json:"publishedAtDate"`
	LikesCount              *int       `json:"likesCount"`
	ReviewID                *string    `json:"reviewId"`
	ReviewURL               *string    `json:"reviewUrl"`
	ReviewerID              *string    `json:"reviewerId"`
	ReviewerURL             *string    `json:"reviewerUrl"`
	ReviewerNumberOfReviews *int       `json:"reviewerNumberOfReviews"`
	IsLocalGuide            bool       `json:"isLocalGuide"`
	Stars                   *int       `json:"stars"`
	Rating                  *float64   `json:"rating"`
	ResponseFromOwnerDate   *time.Time `json:"responseFromOwnerDate"`
	ResponseFromOwnerText   *string    `json:"responseFromOwnerText"`
}

// Place is the record emitted for every visited detail page. Fields the page
// did not carry stay nil; identity fields are always set.
type Place struct {
	PlaceID           string        `json:"placeId"`
	Title             *string       `json:"title"`
	SubTitle          *string       `json:"subTitle"`
	Description       *string       `json:"description"`
	Price             *string       `json:"price"`
	Menu              *string       `json:"menu"`
	CategoryName      *string       `json:"categoryName"`
	Categories        []string      `json:"categories"`
	Address           *string       `json:"address"`
	LocatedIn         *string       `json:"locatedIn"`
	AddressParsed     AddressParsed `json:"addressParsed"`
	PlusCode          *string       `json:"plusCode"`
	Website           *string       `json:"website"`
	Phone             *string       `json:"phone"`
	Location          *Coordinates  `json:"location"`
	TotalScore        *float64      `json:"totalScore"`
	ReviewsCount      *int          `json:"reviewsCount"`
	PermanentlyClosed bool          `json:"permanentlyClosed"`
	TemporarilyClosed bool          `json:"temporarilyClosed"`
	CID               *string       `json:"cid"`
	Thumbnail         *string       `json:"thumbnail"`

	URL             string  `json:"url"`
	SearchString    *string `json:"searchString"`
	SearchPageURL   *string `json:"searchPageUrl"`
	Rank            *int    `json:"rank"`
	IsAdvertisement bool    `json:"isAdvertisement"`

	PopularTimes        *PopularTimes                `json:"popularTimes,omitempty"`
	OpeningHours        []OpeningHours               `json:"openingHours,omitempty"`
	AdditionalInfo      map[string][]map[string]bool `json:"additionalInfo,omitempty"`
	PeopleAlsoSearch    []RelatedPlace               `json:"peopleAlsoSearch,omitempty"`
	ReviewsDistribution *ReviewsDistribution         `json:"reviewsDistribution"`
	OrderBy             []OrderLink                  `json:"orderBy"`
	ImageURLs           []string                     `json:"imageUrls"`
	Reviews             []Review                     `json:"reviews"`
	ScrapedAt           time.Time                    `json:"scrapedAt"`
}

// PlaceURL is the record emitted in URL-export mode instead of a Place.
type PlaceURL struct {
	PlaceID      string  `json:"placeId"`
	URL          string  `json:"url"`
	SearchString *string `json:"searchString"`
	Rank         int     `json:"rank"`
}

// FailedRequest is stored for a work item that exhausted its retries.
type FailedRequest struct {
	URL       string   `json:"#url"`
	Succeeded bool     `json:"#succeeded"`
	Errors    []string `json:"#errors"`
}

// PlaceOutOfRegion describes a candidate rejected by the region filter.
type PlaceOutOfRegion struct {
	URL          string       `json:"url"`
	SearchPage   string       `json:"searchPageUrl"`
	SearchString string       `json:"searchString"`
	Location     *Coordinates `json:"location"`
}
