package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"dms-go/internal/app"
	"dms-go/internal/dms"

	"github.com/spf13/cobra"
)

// printNodes prints a node table. Flat listings pass fullPaths so nodes
// from different folders stay distinguishable.
func printNodes(nodes []*dms.Node, empty string, fullPaths bool) error {
	views := app.NodeViews(nodes)
	return render(views, func(w io.Writer) error {
		if len(views) == 0 {
			fmt.Fprintln(w, empty)
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, n := range views {
			name := n.Name
			if fullPaths {
				name = n.Path
			}
			if n.Type == "folder" {
				name += "/"
			}
			flags := ""
			if n.Favorite {
				flags += "*"
			}
			if n.Archived {
				flags += "A"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", n.ID, flags, name, app.HumanSize(n.Size), n.Owner, app.HumanTime(n.UpdatedAt))
		}
		return tw.Flush()
	})
}

func printNode(n *dms.Node, verb string) error {
	view := app.NewNodeView(n)
	return render(view, func(w io.Writer) error {
		fmt.Fprintf(w, "%s %s (%s)\n", verb, view.Path, view.ID)
		return nil
	})
}

// parseMetadata parses repeated key=value flags. Values that are valid
// JSON (numbers, booleans, arrays, objects) keep their type.
func parseMetadata(pairs []string) (dms.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	md := make(dms.Metadata, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, &dms.ValidationError{Field: "meta", Reason: fmt.Sprintf("want key=value, got %q", p)}
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		md[key] = v
	}
	return md, nil
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir NAME [PARENT]",
	Short: "Create a folder",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "CreateFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		parent := ""
		if len(args) > 1 {
			parent = args[1]
		}
		node, err := a.CreateFolder(ctx, args[0], parent)
		if err != nil {
			return err
		}
		return printNode(node, "Created")
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload FILE [PARENT]",
	Short: "Upload a local file",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		pairs, _ := cmd.Flags().GetStringArray("meta")
		md, err := parseMetadata(pairs)
		if err != nil {
			return err
		}

		a, ctx, err := newApp(cmd, "UploadFile")
		if err != nil {
			return err
		}
		defer a.Close()

		parent := ""
		if len(args) > 1 {
			parent = args[1]
		}
		node, err := a.UploadFile(ctx, args[0], parent, name, md)
		if err != nil {
			return err
		}
		return printNode(node, "Uploaded")
	},
}

var updateCmd = &cobra.Command{
	Use:   "update NODE FILE",
	Short: "Replace a file's content, recording a version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("message")

		a, ctx, err := newApp(cmd, "UpdateFileContent")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.UpdateFile(ctx, args[0], args[1], comment)
		if err != nil {
			return err
		}
		view := app.NewVersionView(res.Version, dms.Actor{})
		return render(view, func(w io.Writer) error {
			fmt.Fprintf(w, "Updated %s to version %d (%s)\n", res.Node.ChildPath(), view.Number, app.HumanSize(view.Size))
			return nil
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download NODE [DEST]",
	Short: "Download a file (DEST - writes to stdout)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "Download")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}

		dest := ""
		if len(args) > 1 {
			dest = args[1]
		}
		if dest == "-" {
			_, err := a.Download(ctx, args[0], os.Stdout)
			return err
		}

		node, err := a.GetNode(ctx, args[0])
		if err != nil {
			return err
		}
		if dest == "" {
			dest = node.Name
		}
		if _, err := a.DownloadToFile(ctx, node.ID, dest); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Downloaded %s to %s (%s)\n", node.ChildPath(), dest, app.HumanSize(node.Size))
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info NODE",
	Short: "Show a node with its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "GetNode")
		if err != nil {
			return err
		}
		defer a.Close()

		node, err := a.GetNode(ctx, args[0])
		if err != nil {
			return err
		}
		view := app.NewNodeView(node)
		return render(view, func(w io.Writer) error {
			fmt.Fprintf(w, "ID:        %s\n", view.ID)
			fmt.Fprintf(w, "Path:      %s\n", view.Path)
			fmt.Fprintf(w, "Type:      %s\n", view.Type)
			fmt.Fprintf(w, "Owner:     %s\n", view.Owner)
			fmt.Fprintf(w, "Size:      %s\n", app.HumanSize(view.Size))
			fmt.Fprintf(w, "Updated:   %s\n", app.HumanTime(view.UpdatedAt))
			fmt.Fprintf(w, "Accessed:  %s\n", app.HumanTime(view.AccessedAt))
			fmt.Fprintf(w, "Favorite:  %t\n", view.Favorite)
			fmt.Fprintf(w, "Archived:  %t\n", view.Archived)
			if len(view.Metadata) > 0 {
				b, err := json.MarshalIndent(view.Metadata, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "Metadata:  %s\n", b)
			}
			return nil
		})
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [FOLDER]",
	Short: "List a folder (the root when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archived, _ := cmd.Flags().GetBool("archived")
		all, _ := cmd.Flags().GetBool("all")
		if all && (archived || len(args) > 0) {
			return &dms.ValidationError{Field: "all", Reason: "cannot be combined with a folder or --archived"}
		}

		operation := "ListChildren"
		if all {
			operation = "ListAll"
		}
		a, ctx, err := newApp(cmd, operation)
		if err != nil {
			return err
		}
		defer a.Close()

		if all {
			nodes, err := a.Service().ListAll(ctx)
			if err != nil {
				return err
			}
			return printNodes(nodes, "Nothing stored yet.", true)
		}

		ref := ""
		if len(args) > 0 {
			ref = args[0]
		}
		nodes, err := a.List(ctx, ref, archived)
		if err != nil {
			return err
		}
		return printNodes(nodes, "Empty.", false)
	},
}

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "List favorite nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "ListFavorites")
		if err != nil {
			return err
		}
		defer a.Close()

		nodes, err := a.Service().ListFavorites(ctx)
		if err != nil {
			return err
		}
		return printNodes(nodes, "No favorites.", false)
	},
}

var archivedCmd = &cobra.Command{
	Use:   "archived",
	Short: "List every archived node",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "ListArchived")
		if err != nil {
			return err
		}
		defer a.Close()

		nodes, err := a.Service().ListArchived(ctx)
		if err != nil {
			return err
		}
		return printNodes(nodes, "Archive is empty.", false)
	},
}

type flagSetter func(a *app.DMSApp, ctx context.Context, ref string, value bool) error

// newFlagCmd builds the fav/unfav/archive/unarchive commands.
func newFlagCmd(use, short, done, operation string, set flagSetter, value bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NODE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := newApp(cmd, operation)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := set(a, ctx, args[0], value); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", done, args[0])
			return nil
		},
	}
}

var rmCmd = &cobra.Command{
	Use:   "rm NODE",
	Short: "Delete a node with its contents and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "DeleteNode")
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.Delete(ctx, args[0])
		var partial *dms.PartialDeleteError
		if errors.As(err, &partial) {
			fmt.Fprintf(os.Stderr, "Deleted %s, but %d blob(s) remain:\n", args[0], len(partial.Failures))
			for _, f := range partial.Failures {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Key, f.Err)
			}
			return err
		}
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("name", "", "Name in the registry (default: local base name)")
	uploadCmd.Flags().StringArray("meta", nil, "Metadata entry key=value (repeatable)")
	updateCmd.Flags().StringP("message", "m", "", "Version comment")
	lsCmd.Flags().Bool("archived", false, "List the archive view")
	lsCmd.Flags().BoolP("all", "a", false, "List every node you own at any depth")

	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(archivedCmd)
	rootCmd.AddCommand(newFlagCmd("fav", "Mark a node as favorite", "Favorited", "SetFavorite", (*app.DMSApp).SetFavorite, true))
	rootCmd.AddCommand(newFlagCmd("unfav", "Remove a node from favorites", "Unfavorited", "SetFavorite", (*app.DMSApp).SetFavorite, false))
	rootCmd.AddCommand(newFlagCmd("archive", "Move a node to the archive", "Archived", "SetArchived", (*app.DMSApp).SetArchived, true))
	rootCmd.AddCommand(newFlagCmd("unarchive", "Restore a node from the archive", "Unarchived", "SetArchived", (*app.DMSApp).SetArchived, false))
	rootCmd.AddCommand(rmCmd)
}
