package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/rendis/mapcrawl/internal/engine/storage"
	"github.com/rendis/mapcrawl/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored places to CSV or NDJSON",
	Example: `  mapcrawl export --db mapcrawl.db
  mapcrawl export --db mapcrawl.db --format ndjson --output places.ndjson
  mapcrawl export --urls --format csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		outputPath, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")
		urls, _ := cmd.Flags().GetBool("urls")

		if dbPath == "" {
			dbPath = cfg.Store.Path
		}
		if format != "csv" && format != "ndjson" {
			return eris.Errorf("unsupported format: %s (csv or ndjson)", format)
		}

		// Default output path
		if outputPath == "" {
			dir := filepath.Dir(dbPath)
			base := strings.TrimSuffix(filepath.Base(dbPath), ".db")
			if urls {
				base += "_urls"
			}
			outputPath = filepath.Join(dir, base+"."+format)
		}

		if _, err := os.Stat(dbPath); err != nil {
			return eris.Wrapf(err, "export: open %s", dbPath)
		}
		store, err := storage.NewSQLite(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrap(err, "export: create output")
		}
		defer f.Close()

		var n int
		switch {
		case urls && format == "csv":
			n, err = writePlaceURLsCSV(cmd.Context(), store, f)
		case urls:
			n, err = writePlaceURLsNDJSON(cmd.Context(), store, f)
		case format == "csv":
			n, err = writePlacesCSV(cmd.Context(), store, f)
		default:
			n, err = writePlacesNDJSON(cmd.Context(), store, f)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return eris.New("no records found in database")
		}

		fmt.Fprintf(os.Stderr, "Exported %d records to %s\n", n, outputPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("db", "", "SQLite database to export (default from config)")
	exportCmd.Flags().String("output", "", "output file path (default: next to the database)")
	exportCmd.Flags().String("format", "csv", "export format: csv or ndjson")
	exportCmd.Flags().Bool("urls", false, "export the place URLs of a URL-export crawl")
	rootCmd.AddCommand(exportCmd)
}

var placeColumns = []string{
	"place_id", "title", "category", "categories", "address", "city",
	"postal_code", "country_code", "lat", "lng", "phone", "website",
	"total_score", "reviews_count", "price", "cid", "permanently_closed",
	"temporarily_closed", "url", "search_string", "rank", "scraped_at",
}

func writePlacesCSV(ctx context.Context, store *storage.SQLiteStore, out io.Writer) (int, error) {
	w := csv.NewWriter(out)
	if err := w.Write(placeColumns); err != nil {
		return 0, eris.Wrap(err, "export: write header")
	}

	n := 0
	err := store.EachPlace(ctx, func(p *model.Place) error {
		var lat, lng string
		if p.Location != nil {
			lat = strconv.FormatFloat(p.Location.Lat, 'f', 6, 64)
			lng = strconv.FormatFloat(p.Location.Lng, 'f', 6, 64)
		}
		var score, reviews, rank string
		if p.TotalScore != nil {
			score = strconv.FormatFloat(*p.TotalScore, 'f', 1, 64)
		}
		if p.ReviewsCount != nil {
			reviews = strconv.Itoa(*p.ReviewsCount)
		}
		if p.Rank != nil {
			rank = strconv.Itoa(*p.Rank)
		}
		n++
		return w.Write([]string{
			p.PlaceID,
			str(p.Title),
			str(p.CategoryName),
			strings.Join(p.Categories, "; "),
			str(p.Address),
			str(p.AddressParsed.City),
			str(p.AddressParsed.PostalCode),
			str(p.AddressParsed.CountryCode),
			lat,
			lng,
			str(p.Phone),
			str(p.Website),
			score,
			reviews,
			str(p.Price),
			str(p.CID),
			strconv.FormatBool(p.PermanentlyClosed),
			strconv.FormatBool(p.TemporarilyClosed),
			p.URL,
			str(p.SearchString),
			rank,
			p.ScrapedAt.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return n, eris.Wrap(err, "export: places")
	}
	w.Flush()
	return n, eris.Wrap(w.Error(), "export: flush")
}

func writePlacesNDJSON(ctx context.Context, store *storage.SQLiteStore, out io.Writer) (int, error) {
	enc := json.NewEncoder(out)
	n := 0
	err := store.EachPlace(ctx, func(p *model.Place) error {
		n++
		return enc.Encode(p)
	})
	return n, eris.Wrap(err, "export: places")
}

func writePlaceURLsCSV(ctx context.Context, store *storage.SQLiteStore, out io.Writer) (int, error) {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"place_id", "url", "search_string", "rank"}); err != nil {
		return 0, eris.Wrap(err, "export: write header")
	}
	n := 0
	err := store.EachPlaceURL(ctx, func(u model.PlaceURL) error {
		n++
		return w.Write([]string{u.PlaceID, u.URL, str(u.SearchString), strconv.Itoa(u.Rank)})
	})
	if err != nil {
		return n, eris.Wrap(err, "export: place urls")
	}
	w.Flush()
	return n, eris.Wrap(w.Error(), "export: flush")
}

func writePlaceURLsNDJSON(ctx context.Context, store *storage.SQLiteStore, out io.Writer) (int, error) {
	enc := json.NewEncoder(out)
	n := 0
	err := store.EachPlaceURL(ctx, func(u model.PlaceURL) error {
		n++
		return enc.Encode(u)
	})
	return n, eris.Wrap(err, "export: place urls")
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
