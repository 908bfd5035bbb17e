package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var recallCmd = &cobra.Command{
	Use:   "recall",
	Short: "Repeat a search with a subject's stored profile",
	Long: `Search an event again with the prototype stored for a subject by an
earlier search. No selfie and no embedding call are needed.`,
	RunE: runRecall,
}

func init() {
	rootCmd.AddCommand(recallCmd)

	recallCmd.Flags().String("event", "", "Event hash (required)")
	recallCmd.Flags().String("subject", "", "Subject the profile belongs to (required)")
	recallCmd.Flags().Bool("json", false, "Output as JSON")
	_ = recallCmd.MarkFlagRequired("event")
	_ = recallCmd.MarkFlagRequired("subject")
}

func runRecall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.service.Recall(context.Background(), mustGetString(cmd, "event"), mustGetString(cmd, "subject"))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(resp)
	}
	if !resp.HasProfile {
		fmt.Println("No stored profile for this subject and event.")
		return nil
	}
	printMatches(&resp.SearchResponse)
	return nil
}
