package main

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vonshlovens/spokesync/internal/dispatch"
)

func syncCmd() *cobra.Command {
	var noDispatch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "One-time full vault sync, then exit",
		Long:  `Stores every changed vault file and dispatches changed documents to their destinations, then exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var d *dispatch.Dispatcher
			if !noDispatch {
				d = a.dispatcher()
			}
			engine, err := a.engine(d)
			if err != nil {
				return err
			}

			if err := engine.FullReconcile(ctx); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			if err := engine.SaveState(); err != nil {
				slog.Warn("failed to save state", "error", err)
			}

			if n := engine.GetPendingRetries(); n > 0 {
				fmt.Printf("Sync completed with %d failed file(s); run again to retry.\n", n)
				return nil
			}
			fmt.Println("Sync completed successfully.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noDispatch, "no-dispatch", false, "store vault changes without syndicating them")
	return cmd
}

func dispatchCmd() *cobra.Command {
	var (
		to         []string
		updateOnly bool
	)

	cmd := &cobra.Command{
		Use:   "dispatch <path>",
		Short: "Send one synced document to its destinations",
		Long:  `Dispatches the document stored for a vault path to the destinations its frontmatter selects, or to the ones given with --to. With --update-only, destinations that never received the document are skipped.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			engine, err := a.engine(a.dispatcher())
			if err != nil {
				return err
			}
			send := engine.DispatchPath
			if updateOnly {
				send = engine.UpdatePath
			}
			if err := send(ctx, args[0], to...); err != nil {
				return err
			}

			doc, err := a.db.GetDocumentByPath(ctx, args[0])
			if err != nil {
				return err
			}
			deliveries, err := a.tracker.ForDocument(ctx, doc.ID)
			if err != nil {
				return err
			}
			for _, r := range deliveries {
				line := fmt.Sprintf("  %-36s %-9s", r.DestinationID, r.Status)
				if r.RemoteURL != "" {
					line += " " + r.RemoteURL
				}
				if r.LastError != "" {
					line += " (" + r.LastError + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&to, "to", nil, "destination names, ids or URLs (default: from frontmatter)")
	cmd.Flags().BoolVar(&updateOnly, "update-only", false, "only refresh destinations that already hold a copy")
	return cmd
}

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Retry failed deliveries",
		Long:  `Re-dispatches every failed delivery that has not used up sync.retry_attempts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.retryDeliveries(ctx, a.dispatcher())
			if err != nil {
				return fmt.Errorf("retry failed: %w", err)
			}
			if len(summary) == 0 {
				fmt.Println("No failed deliveries to retry.")
				return nil
			}

			ids := make([]int64, 0, len(summary))
			for id := range summary {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			for _, id := range ids {
				fmt.Printf("  document %d: %v\n", id, summary[id])
			}
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Fail deliveries stuck in pending",
		Long:  `Marks deliveries that have been pending longer than reconcile.stuck_after as failed so they become eligible for retry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.tracker.SweepStuck(ctx, a.cfg.Reconcile.StuckAfter)
			if err != nil {
				return fmt.Errorf("reconcile failed: %w", err)
			}
			fmt.Printf("Marked %d stuck deliveries as failed.\n", n)
			return nil
		},
	}
}
