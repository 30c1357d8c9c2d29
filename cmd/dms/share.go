package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"dms-go/internal/app"

	"github.com/spf13/cobra"
)

var shareCmd = &cobra.Command{
	Use:   "share NODE ACTOR [LEVEL]",
	Short: "Grant view, comment or edit on a node (default view)",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		level := "view"
		if len(args) > 2 {
			level = args[2]
		}

		a, ctx, err := newApp(cmd, "ShareDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		share, err := a.Share(ctx, args[0], args[1], level)
		if err != nil {
			return err
		}
		view := app.NewShareView(share)
		return render(view, func(w io.Writer) error {
			fmt.Fprintf(w, "Shared %s with %s (%s), share %s\n", args[0], view.Name, view.Permission, view.ID)
			return nil
		})
	},
}

var shareUpdateCmd = &cobra.Command{
	Use:   "update SHARE LEVEL",
	Short: "Change the level of a grant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "UpdateSharePermission")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.UpdateShare(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Share %s is now %s\n", args[0], args[1])
		return nil
	},
}

var unshareCmd = &cobra.Command{
	Use:   "unshare SHARE",
	Short: "Revoke a grant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "RemoveShare")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Unshare(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed share %s\n", args[0])
		return nil
	},
}

var sharesCmd = &cobra.Command{
	Use:   "shares NODE",
	Short: "List the grants on a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "ListShares")
		if err != nil {
			return err
		}
		defer a.Close()

		shares, err := a.Shares(ctx, args[0])
		if err != nil {
			return err
		}
		views := make([]app.ShareView, len(shares))
		for i, s := range shares {
			views[i] = app.NewShareView(s)
		}
		return render(views, func(w io.Writer) error {
			if len(views) == 0 {
				fmt.Fprintln(w, "Not shared.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, s := range views {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.SharedWith, s.Name, s.Permission, app.HumanTime(s.UpdatedAt))
			}
			return tw.Flush()
		})
	},
}

var sharedWithMeCmd = &cobra.Command{
	Use:   "shared-with-me",
	Short: "List nodes others have shared with you",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "ListSharedWithMe")
		if err != nil {
			return err
		}
		defer a.Close()

		nodes, err := a.Service().ListSharedWithMe(ctx)
		if err != nil {
			return err
		}
		views := make([]app.SharedNodeView, len(nodes))
		for i, n := range nodes {
			views[i] = app.NewSharedNodeView(n)
		}
		return render(views, func(w io.Writer) error {
			if len(views) == 0 {
				fmt.Fprintln(w, "Nothing shared with you.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, n := range views {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, n.Name, n.SharedBy, n.Permission, app.HumanSize(n.Size))
			}
			return tw.Flush()
		})
	},
}

func init() {
	shareCmd.AddCommand(shareUpdateCmd)

	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(unshareCmd)
	rootCmd.AddCommand(sharesCmd)
	rootCmd.AddCommand(sharedWithMeCmd)
}
