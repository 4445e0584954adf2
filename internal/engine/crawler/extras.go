package crawler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/engine/decoder"
	"github.com/rendis/mapcrawl/internal/model"
)

const attributesWait = 5 * time.Second

// pageData is what the detail pane shows outside the embedded state.
type pageData struct {
	Title             string `json:"title"`
	SubTitle          string `json:"subTitle"`
	Price             string `json:"price"`
	Menu              string `json:"menu"`
	Category          string `json:"category"`
	Address           string `json:"address"`
	LocatedIn         string `json:"locatedIn"`
	PlusCode          string `json:"plusCode"`
	Phone             string `json:"phone"`
	TotalScore        string `json:"totalScore"`
	ReviewsButton     string `json:"reviewsButton"`
	TemporarilyClosed bool   `json:"temporarilyClosed"`
	PermanentlyClosed bool   `json:"permanentlyClosed"`
}

const pageDataScript = `(() => {
	const text = (sel) => { const el = document.querySelector(sel); return el ? el.textContent.trim() : ""; };
	const pane = document.querySelector("#pane");
	const paneText = pane ? pane.textContent : "";
	return {
		title: text('h1[class*="header-title-title"]'),
		subTitle: text(".section-hero-header-title-subtitle"),
		price: text("span[aria-label^='Price: ']"),
		menu: text("button[aria-label='Menu']").replace(/Menu/g, "").trim(),
		category: text('[jsaction="pane.rating.category"]'),
		address: text("button[data-tooltip*='address']") || text("button[data-item-id*='address']"),
		locatedIn: (text("button[data-tooltip*='locatedin']") || text("button[data-item-id*='locatedin']")).replace("Located in:", "").trim(),
		plusCode: text("button[data-tooltip*='plus code']") || text("button[data-item-id*='oloc']"),
		phone: text("button[data-tooltip*='phone']") || text("button[data-item-id*=phone]"),
		totalScore: text('[class*="section-star-display"]'),
		reviewsButton: text('button[jsaction="pane.reviewChart.moreReviews"]'),
		temporarilyClosed: paneText.includes("Temporarily closed"),
		permanentlyClosed: paneText.includes("Permanently closed"),
	};
})()`

const openingHoursScript = `(() => {
	const sels = [
		".section-open-hours-container.section-open-hours-container-hoverable",
		".section-open-hours-container.section-open-hours",
		".section-open-hours-container",
		"[jsaction*=openhours]+[class*=open]",
	];
	for (const sel of sels) {
		const el = document.querySelector(sel);
		if (el) return el.getAttribute("aria-label") || "";
	}
	return "";
})()`

const peopleAlsoSearchScript = `(() => {
	const box = document.querySelector(".section-carousel-scroll-container");
	if (!box) return [];
	return [...box.querySelectorAll('button[class$="card"]')].map((card) => {
		const text = (sel) => { const el = card.querySelector(sel); return el ? el.textContent.trim() : ""; };
		return { title: text('div[class$="title"]'), totalScore: text('span[class$="rating"]'), reviewsCount: text('span[class$="reviews"]') };
	});
})()`

const additionalInfoScript = `(() => {
	const out = {};
	document.querySelectorAll('div[role="region"]').forEach((section) => {
		const head = section.querySelector('*[class*="subtitle"]');
		const key = head ? head.textContent.trim() : "";
		const values = [];
		section.querySelectorAll("li").forEach((li) => {
			if (!li.querySelector("span[aria-label]")) return;
			values.push({ [li.textContent.trim()]: !!li.querySelector("img[src*=check_black]") });
		});
		out[key] = values;
	});
	return out;
})()`

const hotelAmenitiesScript = `(() => {
	const base = 'div[class="fPmgbe-eTC1nf-vg2oCf-haAclf"] ';
	const names = (sel) => [...document.querySelectorAll(base + sel)].map((el) => (el.textContent || "").trim());
	const values = [];
	names("div:not([aria-disabled=true]) > span").forEach((n) => values.push({ [n]: true }));
	names("div[aria-disabled=true] > span").forEach((n) => values.push({ [n]: false }));
	return values;
})()`

func (c *Crawler) readPageData(ctx context.Context, page browser.Page) pageData {
	var d pageData
	if err := page.Evaluate(ctx, pageDataScript, &d); err != nil {
		c.log.Warn("reading detail pane", zap.Error(err))
	}
	return d
}

// mergePageData fills p with what the pane shows. Pane values win for the
// display fields; the embedded state wins for ratings.
func mergePageData(p *model.Place, d pageData) {
	preferPane := func(dst **string, v string) {
		if s := nonEmpty(v); s != nil {
			*dst = s
		}
	}
	preferPane(&p.Title, d.Title)
	preferPane(&p.SubTitle, d.SubTitle)
	preferPane(&p.Price, d.Price)
	preferPane(&p.Menu, d.Menu)
	preferPane(&p.CategoryName, d.Category)
	preferPane(&p.Address, d.Address)
	preferPane(&p.LocatedIn, d.LocatedIn)
	preferPane(&p.PlusCode, d.PlusCode)
	preferPane(&p.Phone, d.Phone)

	if p.TotalScore == nil {
		p.TotalScore = parseScore(d.TotalScore)
	}
	if p.ReviewsCount == nil || *p.ReviewsCount == 0 {
		if n := parseCount(d.ReviewsButton); n != nil {
			p.ReviewsCount = n
		}
	}
	p.PermanentlyClosed = p.PermanentlyClosed || d.PermanentlyClosed
	p.TemporarilyClosed = d.TemporarilyClosed
}

func parseScore(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v == 0 {
		return nil
	}
	return &v
}

func parseCount(s string) *int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	n, err := strconv.Atoi(digits)
	if err != nil || n == 0 {
		return nil
	}
	return &n
}

// openingHours reads the weekly table from the pane, falling back to the
// embedded state.
func (c *Crawler) openingHours(ctx context.Context, page browser.Page, place []any) []model.OpeningHours {
	var label string
	if err := page.Evaluate(ctx, openingHoursScript, &label); err != nil {
		c.log.Warn("reading opening hours", zap.Error(err))
	}
	if hours := decoder.ParseOpeningHoursText(label); len(hours) > 0 {
		return hours
	}
	return decoder.DecodeOpeningHours(place)
}

func (c *Crawler) peopleAlsoSearch(ctx context.Context, page browser.Page) []model.RelatedPlace {
	var cards []struct {
		Title        string `json:"title"`
		TotalScore   string `json:"totalScore"`
		ReviewsCount string `json:"reviewsCount"`
	}
	if err := page.Evaluate(ctx, peopleAlsoSearchScript, &cards); err != nil {
		c.log.Warn("reading people also search", zap.Error(err))
		return nil
	}
	var out []model.RelatedPlace
	for _, card := range cards {
		if card.Title == "" {
			continue
		}
		out = append(out, model.RelatedPlace{
			Title:        card.Title,
			TotalScore:   parseScore(card.TotalScore),
			ReviewsCount: parseCount(card.ReviewsCount),
		})
	}
	return out
}

// additionalInfo opens the amenities view and reads its sections. Hotels
// show amenities inline instead.
func (c *Crawler) additionalInfo(ctx context.Context, page browser.Page, placeURL string) map[string][]map[string]bool {
	if err := page.WaitFor(ctx, attributesSel, attributesWait); err != nil {
		var amenities []map[string]bool
		if err := page.Evaluate(ctx, hotelAmenitiesScript, &amenities); err != nil || len(amenities) == 0 {
			c.log.Debug("no additional info on place", zap.String("url", placeURL))
			return nil
		}
		return map[string][]map[string]bool{"Amenities": amenities}
	}

	defer func() {
		if err := c.navigateBack(ctx, page, placeURL); err != nil {
			c.log.Warn("navigating back from additional info", zap.Error(err))
		}
	}()
	if err := page.Click(ctx, attributesSel); err != nil {
		c.log.Warn("opening additional info", zap.Error(err))
		return nil
	}
	if err := c.waitGone(ctx, page, placeTitleSel, c.opts.OutcomeTimeout); err != nil {
		c.log.Warn("additional info did not open", zap.Error(err))
		return nil
	}
	var info map[string][]map[string]bool
	if err := page.Evaluate(ctx, additionalInfoScript, &info); err != nil {
		c.log.Warn("reading additional info", zap.Error(err))
		return nil
	}
	return info
}
