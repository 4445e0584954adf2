package crawler

import "github.com/rendis/mapcrawl/internal/model"

// Label tells the host which handler a work item goes to.
type Label string

const (
	LabelSearch Label = "search"
	LabelDetail Label = "detail"
)

// WorkItem is one unit of queued work: a search session or a detail visit.
type WorkItem struct {
	URL          string `json:"url"`
	UniqueKey    string `json:"uniqueKey"`
	Label        Label  `json:"label"`
	SearchString string `json:"searchString,omitempty"`

	// Set on detail items discovered by a search.
	Rank          *int             `json:"rank,omitempty"`
	SearchPageURL string           `json:"searchPageUrl,omitempty"`
	Candidate     *model.Candidate `json:"candidate,omitempty"`

	RetryCount int      `json:"-"`
	Errors     []string `json:"-"`
}

// SearchKey is the quota key of the item: its search string, or its URL for
// start URLs without one.
func (w *WorkItem) SearchKey() string {
	if w.SearchString != "" {
		return w.SearchString
	}
	return w.URL
}

func (w *WorkItem) key() string {
	if w.UniqueKey != "" {
		return w.UniqueKey
	}
	return w.URL
}
