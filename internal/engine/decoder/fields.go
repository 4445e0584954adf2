package decoder

// Path is an index path into the positional place and review arrays.
type Path []int

// placeFields is the decode contract for a place array. The same layout is
// served in search data pages (entry[14]) and in the detail page state. When
// the frontend shifts its format only this table changes.
var placeFields = struct {
	PlaceID             Path
	Title               Path
	Categories          Path
	Address             Path
	AddressParts        Path
	Coords              Path
	Website             Path
	Phone               Path
	Description         Path
	Price               Path
	TotalScore          Path
	ReviewsCount        Path
	CID                 Path
	ClosedStatus        Path
	ReviewsDistribution Path
	DefaultReviews      Path
	PopularTimes        Path
	OrderBy             Path
	OpeningHours        Path
	Thumbnail           Path
	PlusCode            Path
}{
	PlaceID:             Path{78},
	Title:               Path{11},
	Categories:          Path{13},
	Address:             Path{18},
	AddressParts:        Path{183, 1},
	Coords:              Path{9},
	Website:             Path{7, 0},
	Phone:               Path{178, 0, 0},
	Description:         Path{32, 1, 1},
	Price:               Path{4, 2},
	TotalScore:          Path{4, 7},
	ReviewsCount:        Path{4, 8},
	CID:                 Path{10},
	ClosedStatus:        Path{203, 1, 4, 0},
	ReviewsDistribution: Path{52, 3},
	DefaultReviews:      Path{52, 0},
	PopularTimes:        Path{84},
	OrderBy:             Path{75, 0, 0, 2},
	OpeningHours:        Path{34, 1},
	Thumbnail:           Path{157},
	PlusCode:            Path{183, 2, 2, 0},
}

// Positions inside sub-arrays of a place.
const (
	coordLat = 2
	coordLng = 3

	addrNeighborhood = 1
	addrStreet       = 2
	addrCity         = 3
	addrPostalCode   = 4
	addrState        = 5
	addrCountryCode  = 6

	popularDays        = 0
	popularLiveText    = 6
	popularLivePercent = 7
)

// Positions of the search data page.
var searchFields = struct {
	Ads          Path
	AdPlace      Path
	Organic      Path
	OrganicPlace Path
}{
	Ads:          Path{2, 1, 0},
	AdPlace:      Path{15},
	Organic:      Path{0, 1},
	OrganicPlace: Path{14},
}

// reviewFields is the decode contract for a single review array.
var reviewFields = struct {
	Name                    Path
	ReviewerURL             Path
	ReviewerID              Path
	Text                    Path
	PublishAt               Path
	PublishedAtDate         Path
	LikesCount              Path
	ReviewID                Path
	ReviewURL               Path
	ReviewerNumberOfReviews Path
	LocalGuideBadge         Path
	Stars                   Path
	Rating                  Path
	OwnerResponseText       Path
	OwnerResponseDate       Path
}{
	Name:                    Path{0, 1},
	ReviewerURL:             Path{0, 0},
	ReviewerID:              Path{6},
	Text:                    Path{3},
	PublishAt:               Path{1},
	PublishedAtDate:         Path{27},
	LikesCount:              Path{16},
	ReviewID:                Path{10},
	ReviewURL:               Path{18},
	ReviewerNumberOfReviews: Path{12, 1, 1},
	LocalGuideBadge:         Path{12, 1, 0},
	Stars:                   Path{4},
	Rating:                  Path{25, 1},
	OwnerResponseText:       Path{9, 1},
	OwnerResponseDate:       Path{9, 3},
}

// reviewsFeedResults locates the review list in a reviews feed payload.
var reviewsFeedResults = Path{2}

// appStatePlace locates the place array inside the parsed detail page state.
var appStatePlace = Path{6}
