package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/rendis/mapcrawl/internal/engine/crawler"
	"github.com/rendis/mapcrawl/internal/engine/fetch"
	"github.com/rendis/mapcrawl/internal/engine/geo"
	"github.com/rendis/mapcrawl/internal/engine/storage"
)

var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "Print the start URLs a crawl would use",
	Long:  "Resolves the configured region and prints the map URLs every search is started from, without opening a browser or touching the crawl state.",
	Example: `  mapcrawl seeds --search pizza --city Prague --country Czechia
  mapcrawl seeds --search cafe --lat 50.08 --lng 14.42 --zoom 15 --items`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applySearchFlags(cmd, cfg); err != nil {
			return err
		}
		showItems, _ := cmd.Flags().GetBool("items")

		in, err := cfg.PlanInput()
		if err != nil {
			return err
		}

		// Planning persists its result; keep it away from the real state.
		dir, err := os.MkdirTemp("", "mapcrawl-seeds-")
		if err != nil {
			return eris.Wrap(err, "seeds: temp dir")
		}
		defer os.RemoveAll(dir)
		scratch, err := storage.NewSQLite(filepath.Join(dir, "plan.db"))
		if err != nil {
			return err
		}
		defer scratch.Close()

		c := crawler.New(cfg.CrawlerOptions(), nil, scratch, scratch)
		plan, err := c.Plan(ctx, in, geo.NewGeocoder(fetch.NewClient(fetchOptions(cfg))))
		if err != nil {
			return eris.Wrap(err, "seeds: plan")
		}

		w := cmd.OutOrStdout()
		if r := plan.Region; r != nil {
			kind := r.Kind().String()
			if r.RadiusKm() > 0 {
				kind = fmt.Sprintf("%s (radius %.1f km)", kind, r.RadiusKm())
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Region: %s, zoom %d, %d seeds\n", kind, plan.Zoom, len(plan.SeedURLs))
		}
		if showItems {
			for _, item := range plan.Items {
				fmt.Fprintf(w, "%s\t%s\n", item.Label, item.URL)
			}
			return nil
		}
		for _, u := range plan.SeedURLs {
			fmt.Fprintln(w, u)
		}
		return nil
	},
}

func init() {
	addSearchFlags(seedsCmd)
	seedsCmd.Flags().Bool("items", false, "print every start work item instead of the seed URLs")
	rootCmd.AddCommand(seedsCmd)
}
