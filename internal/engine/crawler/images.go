package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/engine/decoder"
)

const (
	galleryScrollStart = 10000
	galleryScrollStep  = 6000
)

const mainImageScript = `(() => {
	const img = document.querySelector('[jsaction="pane.heroHeaderImage.click"] img');
	return img ? img.src : "";
})()`

const galleryStylesScript = `(() => [...document.querySelectorAll("[data-photo-index]")].map((el) => {
	const div = el.querySelector("div");
	return div ? div.getAttribute("style") || "" : "";
}))()`

func galleryScrollScript(top int) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(".section-scrollbox"); if (el) el.scrollTop = %d; return !!el; })()`, top)
}

// extractImages returns up to MaxImages photo URLs at full resolution. More
// than one image means opening the gallery and scrolling it until it stops
// growing. Failures only cost the images.
func (c *Crawler) extractImages(ctx context.Context, page browser.Page, placeURL string, reviewsTarget int) []string {
	maxImages := c.opts.Scraping.MaxImages
	if maxImages <= 0 {
		return nil
	}
	if err := page.WaitFor(ctx, mainImageSel, c.opts.PageLoadTimeout); err != nil {
		c.log.Warn("no main image, skipping images", zap.String("url", placeURL))
		return nil
	}

	var urls []string
	if maxImages == 1 {
		var src string
		if err := page.Evaluate(ctx, mainImageScript, &src); err != nil || src == "" {
			return nil
		}
		urls = []string{src}
	} else {
		var err error
		urls, err = c.scrollGallery(ctx, page, maxImages)
		if err != nil {
			c.log.Warn("reading image gallery", zap.String("url", placeURL), zap.Error(err))
		}
		if reviewsTarget > 0 {
			if err := c.navigateBack(ctx, page, placeURL); err != nil {
				c.log.Warn("navigating back from gallery", zap.Error(err))
			}
		}
	}

	for i, u := range urls {
		urls[i] = decoder.EnlargeImageURL(u)
	}
	return urls
}

func (c *Crawler) scrollGallery(ctx context.Context, page browser.Page, maxImages int) ([]string, error) {
	if err := page.Click(ctx, mainImageSel); err != nil {
		return nil, err
	}

	var (
		urls []string
		last string
	)
	bottom := galleryScrollStart
	err := c.poll(ctx, c.opts.PageLoadTimeout, func() (bool, error) {
		var scrolled bool
		if err := page.Evaluate(ctx, galleryScrollScript(bottom), &scrolled); err != nil {
			return false, err
		}
		var styles []string
		if err := page.Evaluate(ctx, galleryStylesScript, &styles); err != nil {
			return false, err
		}
		urls = urls[:0]
		for _, s := range styles {
			if u := decoder.ImageURLFromStyle(s); u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) >= maxImages || len(urls) == 0 || urls[len(urls)-1] == last {
			return true, nil
		}
		last = urls[len(urls)-1]
		bottom += galleryScrollStep
		return false, nil
	})
	if len(urls) > maxImages {
		urls = urls[:maxImages]
	}
	return urls, err
}
