package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"volowatch/internal/activity"
	"volowatch/internal/app"
	"volowatch/internal/watcher"
	logx "volowatch/pkg/logx"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fetch the feed once and print activities by sport",
	Long: `Fetch and normalize the current feed once and print every activity grouped
by sport. Nothing is written to the ledger and nothing is sent.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(contextOr(cmd), os.Interrupt)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logx.NewWriter(cmd.ErrOrStderr(), cfg.Logging.Level)
	client, norm, err := app.NewFeed(cfg, log)
	if err != nil {
		return err
	}
	raws, err := client.Fetch(ctx)
	if err != nil {
		return err
	}

	as := make([]activity.Activity, 0, len(raws))
	for _, r := range raws {
		a, err := norm.Normalize(r)
		if err != nil {
			var ne *activity.NormalizationError
			if errors.As(err, &ne) {
				log.Warn("row skipped", logx.String("id", r.ID), logx.Err(err))
				continue
			}
			return err
		}
		as = append(as, a)
	}
	printScan(cmd.OutOrStdout(), as)
	return nil
}

// printScan writes activities grouped by sport in feed order.
func printScan(w io.Writer, as []activity.Activity) {
	fmt.Fprintf(w, "Found %d activities\n", len(as))
	var order []string
	bySport := map[string][]activity.Activity{}
	for _, a := range as {
		if _, ok := bySport[a.Sport]; !ok {
			order = append(order, a.Sport)
		}
		bySport[a.Sport] = append(bySport[a.Sport], a)
	}
	for _, sport := range order {
		label := sport
		if label == "" {
			label = "Unknown sport"
		}
		fmt.Fprintf(w, "\n%s (%d)\n", label, len(bySport[sport]))
		for _, a := range bySport[sport] {
			mark := ""
			if !watcher.IsNotifiable(a) {
				mark = " [not notifiable]"
			}
			fmt.Fprintf(w, "  - %s [%s]%s\n", a.Name, a.Type, mark)
			fmt.Fprintf(w, "    %s %s-%s @ %s | %s\n", a.Date, a.StartTime, a.EndTime, a.Venue, a.SpotsLabel())
			if a.URL != "" {
				fmt.Fprintf(w, "    %s\n", a.URL)
			}
		}
	}
}
