package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"dms-go/internal/app"
	"dms-go/internal/dms"

	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:   "versions NODE",
	Short: "List the versions of a file, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "ListVersions")
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.Versions(ctx, args[0])
		if err != nil {
			return err
		}
		views := make([]app.VersionView, len(versions))
		for i, v := range versions {
			views[i] = app.NewVersionView(v.Version, v.Actor)
		}
		return render(views, func(w io.Writer) error {
			if len(views) == 0 {
				fmt.Fprintln(w, "No versions.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, v := range views {
				fmt.Fprintf(tw, "v%d\t%s\t%s\t%s\t%s\t%s\n", v.Number, v.ID, app.HumanSize(v.Size), v.Creator, app.HumanTime(v.CreatedAt), v.Comment)
			}
			return tw.Flush()
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore VERSION",
	Short: "Make a version current, backing up the current content first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "RestoreVersion")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Restore(ctx, args[0])
		if err != nil {
			return err
		}
		type restoreView struct {
			Node   app.NodeView    `json:"node" yaml:"node"`
			Target app.VersionView `json:"restored" yaml:"restored"`
			Backup app.VersionView `json:"backup" yaml:"backup"`
		}
		view := restoreView{
			Node:   app.NewNodeView(res.Node),
			Target: app.NewVersionView(res.Target, dms.Actor{}),
			Backup: app.NewVersionView(res.Backup, dms.Actor{}),
		}
		return render(view, func(w io.Writer) error {
			fmt.Fprintf(w, "Restored %s to version %d; previous content saved as version %d\n",
				view.Node.Path, view.Target.Number, view.Backup.Number)
			return nil
		})
	},
}

var processCmd = &cobra.Command{
	Use:   "process NODE...",
	Short: "Run document analysis on one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "ProcessDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			node, err := a.Process(ctx, args[0])
			if err != nil {
				return err
			}
			return printNode(node, "Processed")
		}

		outcomes, err := a.ProcessAll(ctx, args)
		if err != nil {
			return err
		}
		views := make([]app.ProcessOutcomeView, len(outcomes))
		var firstErr error
		failed := 0
		for i, o := range outcomes {
			views[i] = app.NewProcessOutcomeView(o)
			if o.Err != nil {
				failed++
				if firstErr == nil {
					firstErr = o.Err
				}
			}
		}
		if err := render(views, func(w io.Writer) error {
			for _, v := range views {
				if v.Error != "" {
					fmt.Fprintf(w, "failed: %s: %s\n", v.Ref, v.Error)
					continue
				}
				fmt.Fprintf(w, "Processed %s (%s)\n", v.Node.Path, v.Node.ID)
			}
			return nil
		}); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d document(s) not processed: %w", failed, len(outcomes), firstErr)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search TEXT",
	Short: "Find documents similar to TEXT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		limit, _ := cmd.Flags().GetInt("limit")

		a, ctx, err := newApp(cmd, "SearchDocuments")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Search(ctx, args[0], threshold, limit)
		if err != nil {
			return err
		}
		views := make([]app.SearchResultView, len(results))
		for i, r := range results {
			views[i] = app.NewSearchResultView(r)
		}
		return render(views, func(w io.Writer) error {
			if len(views) == 0 {
				fmt.Fprintln(w, "No matches.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, r := range views {
				fmt.Fprintf(tw, "%.3f\t%s\t%s\n", r.Similarity, r.ID, r.Path)
			}
			return tw.Flush()
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import DIR [PARENT]",
	Short: "Upload a local directory tree",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "Import")
		if err != nil {
			return err
		}
		defer a.Close()

		parent := ""
		if len(args) > 1 {
			parent = args[1]
		}
		res, err := a.Import(ctx, args[0], parent)
		if err != nil {
			return err
		}
		if err := render(res, func(w io.Writer) error {
			fmt.Fprintf(w, "Imported %d file(s) (%s) into %d new folder(s), skipped %d\n",
				res.Files, app.HumanSize(res.Bytes), res.Folders, len(res.Skipped))
			return nil
		}); err != nil {
			return err
		}
		for _, f := range res.Failures {
			fmt.Fprintf(os.Stderr, "failed: %s\n", f)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Float64("threshold", dms.DefaultSearchThreshold, "Minimum similarity")
	searchCmd.Flags().IntP("limit", "n", dms.DefaultSearchLimit, "Maximum number of results")

	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(importCmd)
}
