package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/selfie-search/internal/gallery"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the photos of an event a selfie appears in",
	Long: `Run a selfie search against an event, exactly as the API does.

Examples:
  # Search an event
  selfie-search search --event 8f3a2c --selfie me.jpg

  # Restrict to one album and store the result as a profile for a subject
  selfie-search search --event 8f3a2c --selfie me.jpg --album 1b7e... --subject user-42

  # Output as JSON
  selfie-search search --event 8f3a2c --selfie me.jpg --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("event", "", "Event hash (required)")
	searchCmd.Flags().String("selfie", "", "Path to the selfie image (required)")
	searchCmd.Flags().String("album", "", "Restrict results to an album id")
	searchCmd.Flags().String("subject", "", "Store the resulting prototype as this subject's profile")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
	_ = searchCmd.MarkFlagRequired("event")
	_ = searchCmd.MarkFlagRequired("selfie")
}

func runSearch(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(mustGetString(cmd, "selfie"))
	if err != nil {
		return fmt.Errorf("reading selfie: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.service.Search(context.Background(), gallery.SearchRequest{
		Selfie:    data,
		EventHash: mustGetString(cmd, "event"),
		AlbumID:   mustGetString(cmd, "album"),
		Subject:   mustGetString(cmd, "subject"),
	})
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(resp)
	}
	printMatches(resp)
	return nil
}

// printMatches prints both tiers as a table.
func printMatches(resp *gallery.SearchResponse) {
	fmt.Printf("Found %d photos in %d ms (%d refinement cycles, %d gateway calls)\n\n",
		resp.TotalMatches, resp.SearchTimeMs, resp.Cycles, resp.RoundTrips)
	if resp.TotalMatches == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tSCORE\tMEDIA\tALBUM\tURL")
	fmt.Fprintln(w, "----\t-----\t-----\t-----\t---")
	for _, tier := range [][]gallery.Match{resp.Tier1, resp.Tier2} {
		for i := range tier {
			m := &tier[i]
			album := m.AlbumID
			if album == "" {
				album = "-"
			}
			fmt.Fprintf(w, "%d\t%.3f\t%s\t%s\t%s\n", m.Tier, m.Score, m.MediaID, album, m.Full)
		}
	}
	w.Flush()
}
