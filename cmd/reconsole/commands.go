package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hugh/reconsole/internal/console"
	"github.com/hugh/reconsole/internal/models"
	"github.com/hugh/reconsole/internal/tui"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	var (
		scanType string
		watch    bool
		wait     bool
	)

	cmd := &cobra.Command{
		Use:   "scan DOMAIN",
		Short: "Start a scan and optionally follow it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.ctrl.Submit(cmd.Context(), args[0], scanType)
			printNotices(cmd.ErrOrStderr(), a.board.Snapshot().Notices)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scan started: %s (%s, %s)\n", rec.ScanID, rec.Domain, rec.ScanType)

			switch {
			case watch:
				return runDashboard(cmd.Context(), a)
			case wait:
				select {
				case <-a.finalized:
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
				printBoard(cmd.OutOrStdout(), a.board.Snapshot())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&scanType, "type", "t", string(models.ScanTypeLight), "Scan type: light, cool or ultra")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the scan in the dashboard")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the scan finishes, then print it")
	cmd.Flags().BoolVar(&opts.preflight, "preflight", false, "Warn when the domain does not resolve in DNS")
	cmd.MarkFlagsMutuallyExclusive("watch", "wait")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [SCAN_ID]",
		Short: "Open the dashboard, tracking SCAN_ID when given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.ctrl.RefreshRecent(cmd.Context()); err != nil {
				a.logger.Warn("recent scans unavailable", "error", err)
			}
			_, _ = a.ctrl.CheckTools(cmd.Context())
			if len(args) == 1 {
				if _, err := a.ctrl.View(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			return runDashboard(cmd.Context(), a)
		},
	}
}

func newViewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view SCAN_ID",
		Short: "Print a scan's status, log, results and files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.ctrl.View(cmd.Context(), args[0]); err != nil {
				return err
			}
			// a single snapshot is enough here
			a.ctrl.Stop()
			printBoard(cmd.OutOrStdout(), a.board.Snapshot())
			return nil
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			scans, err := a.ctrl.RefreshRecent(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCAN ID\tDOMAIN\tTYPE\tSTATUS\tCREATED")
			for _, s := range scans {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ScanID, s.Domain, s.ScanType, s.Status, s.CreatedAt)
			}
			return tw.Flush()
		},
	}
}

func newFilesCmd(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "files SCAN_ID",
		Short: "List a scan's output files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if all {
				err := a.ctrl.DownloadAll(args[0])
				printNotices(cmd.OutOrStdout(), a.board.Snapshot().Notices)
				if errors.Is(err, console.ErrNotImplemented) {
					return nil
				}
				return err
			}

			files, err := a.client.ListFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printFiles(cmd.OutOrStdout(), files)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Download every file at once")
	return cmd
}

func newFileCmd(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "file SCAN_ID NAME",
		Short: "Print one output file, or save it with --download",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if dir != "" {
				path, err := a.ctrl.DownloadFile(cmd.Context(), args[0], args[1], dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
				return nil
			}

			content, err := a.ctrl.FetchFile(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), content)
			return err
		},
	}

	cmd.Flags().StringVarP(&dir, "download", "d", "", "Save into this directory instead of printing")
	return cmd
}

func newResultsCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "results SCAN_ID",
		Short: "Export a scan's full record as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			f := console.ExportFormat(strings.ToLower(format))
			if outDir != "" {
				path, err := a.ctrl.DownloadResults(cmd.Context(), args[0], outDir, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
				return nil
			}

			_, data, err := a.ctrl.ExportResults(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(console.FormatJSON), "Output format: json or yaml")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Save into this directory instead of printing")
	return cmd
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Show which reconnaissance tools the service has installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ts, err := a.ctrl.CheckTools(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			categories := make([]string, 0, len(ts.AvailableTools))
			for category := range ts.AvailableTools {
				categories = append(categories, category)
			}
			sort.Strings(categories)
			for _, category := range categories {
				fmt.Fprintf(out, "%s: %s\n", category, strings.Join(ts.AvailableTools[category], ", "))
			}
			fmt.Fprintf(out, "%d tools available\n", ts.AvailableCount())
			printNotices(out, a.board.Snapshot().Notices)
			return nil
		},
	}
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var (
		expr     string
		scanType string
	)

	cmd := &cobra.Command{
		Use:   "schedule DOMAIN",
		Short: "Start a scan of DOMAIN on a cron schedule until interrupted",
		Example: `  reconsole schedule example.com --cron "0 3 * * *"
  reconsole schedule example.com --cron "@every 6h" --type cool`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := console.NewScheduler(a.ctrl.Submitter(), a.logger, a.cfg.Backend.Timeout())
			out := cmd.OutOrStdout()
			sched.OnSubmit = func(req models.ScanRequest, rec *models.ScanRecord, err error) {
				if err != nil {
					fmt.Fprintf(out, "%s: scan failed to start: %v\n", req.Domain, err)
					return
				}
				fmt.Fprintf(out, "%s: scan started: %s\n", req.Domain, rec.ScanID)
			}

			id, err := sched.Add(expr, args[0], scanType)
			if err != nil {
				return err
			}
			sched.Start()
			fmt.Fprintf(out, "next run at %s\n", sched.Next(id).Format("2006-01-02 15:04:05 MST"))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			<-sched.Stop().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&expr, "cron", "", "Cron expression (5 fields, or a descriptor like @daily)")
	cmd.Flags().StringVarP(&scanType, "type", "t", string(models.ScanTypeLight), "Scan type: light, cool or ultra")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

// runDashboard runs the terminal UI until the user quits.
func runDashboard(ctx context.Context, a *app) error {
	model, cancel := tui.New(a.board, a.ctrl)
	defer cancel()

	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func printBoard(w io.Writer, s console.Snapshot) {
	if s.Scan.Visible {
		fmt.Fprintf(w, "%s  %s  %s  %d%%\n", s.Scan.ScanID, s.Scan.Domain, s.Scan.Status.Badge, s.Scan.Status.Percent)
		for _, line := range s.Scan.Lines {
			fmt.Fprintln(w, "  "+line.Text)
		}
	}
	if s.Results.Visible {
		fmt.Fprintln(w, "results:")
		for _, c := range s.Results.Cards {
			fmt.Fprintf(w, "  %s %s: %d\n", c.Icon, c.Label, c.Value)
		}
		if s.Results.Message != "" {
			fmt.Fprintln(w, "  "+s.Results.Message)
		}
	}
	if s.Artifacts.Visible {
		if s.Artifacts.Error != "" {
			fmt.Fprintln(w, "files: "+s.Artifacts.Error)
		} else {
			printFiles(w, s.Artifacts.Files)
		}
	}
	printNotices(w, s.Notices)
}

func printFiles(w io.Writer, files []models.FileArtifact) {
	if len(files) == 0 {
		fmt.Fprintln(w, "no files")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLINES")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%d\n", f.Name, f.Lines)
	}
	_ = tw.Flush()
}

func printNotices(w io.Writer, notices []console.Notice) {
	for _, n := range notices {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	}
}
