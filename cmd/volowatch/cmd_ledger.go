package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"volowatch/internal/app"
	"volowatch/internal/ledger"
	logx "volowatch/pkg/logx"
)

var (
	ledgerPending bool
	ledgerLimit   int
	ledgerID      string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the seen-activities ledger",
	Long: `Inspect the ledger of seen activities.

Available subcommands:
  list - seen records in first-seen order
  log  - audit log entries in write order`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print seen activity records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		recs, err := st.List(contextOr(cmd), ledger.ListOptions{PendingOnly: ledgerPending, Limit: ledgerLimit})
		if err != nil {
			return err
		}
		printRecords(cmd.OutOrStdout(), recs)
		return nil
	},
}

var ledgerLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the activity audit log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		entries, err := st.Logs(contextOr(cmd), ledger.LogOptions{ActivityID: ledgerID, Limit: ledgerLimit})
		if err != nil {
			return err
		}
		printLog(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	ledgerCmd.PersistentFlags().IntVarP(&ledgerLimit, "limit", "n", 50, "maximum rows to print (0 = all)")
	ledgerListCmd.Flags().BoolVar(&ledgerPending, "pending", false, "only records not yet notified")
	ledgerLogCmd.Flags().StringVar(&ledgerID, "id", "", "only entries for this activity id")

	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerLogCmd)
}

func openLedger(cmd *cobra.Command) (ledger.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.OpenLedger(cfg, logx.NewWriter(cmd.ErrOrStderr(), cfg.Logging.Level))
}

const stamp = "2006-01-02 15:04"

func printRecords(w io.Writer, recs []ledger.SeenRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSPORT\tNAME\tDATE\tVENUE\tSPOTS\tFIRST SEEN\tLAST SEEN\tNOTIFIED")
	for _, r := range recs {
		spots := "?"
		if r.SpotsAvailable != nil {
			spots = strconv.Itoa(*r.SpotsAvailable)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			r.ID, r.Sport, r.Name, r.Date, r.Venue, spots,
			local(r.FirstSeenAt), local(r.LastSeenAt), r.Notified)
	}
	_ = tw.Flush()
}

func printLog(w io.Writer, entries []ledger.LogEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIME\tEVENT\tACTIVITY\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, local(e.CreatedAt), e.EventType, e.ActivityID, e.Details)
	}
	_ = tw.Flush()
}

func local(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(stamp)
}
