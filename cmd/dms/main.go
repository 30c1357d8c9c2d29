package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"dms-go/internal/app"
	"dms-go/internal/config"
	"dms-go/internal/identity"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(app.ExitCode(err))
	}
}

var (
	actAs        string
	outputFlag   string
	outputFormat = app.FormatText
)

// loadConfig reads the config file named by the defaults.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a DMSApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "UploadFile", "ShareDocument").
// The returned context carries the --as actor override.
func newApp(cmd *cobra.Command, operation string) (*app.DMSApp, context.Context, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	ctx := cmd.Context()
	a, err := app.NewDMSApp(ctx, cfg, operation)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}

	if actAs != "" {
		ctx = identity.WithActor(ctx, actAs)
	}
	return a, ctx, nil
}

// unlock prompts for the key passphrase when the blob store is encrypted.
// DMS_PASSPHRASE is used instead of the prompt when set.
func unlock(a *app.DMSApp) error {
	if !a.NeedsPassphrase() {
		return nil
	}
	passphrase := os.Getenv("DMS_PASSPHRASE")
	if passphrase == "" {
		var err error
		passphrase, err = readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
	}
	return a.Unlock(passphrase)
}

// readPassphrase reads a line from the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("passphrase required but stdin is not a terminal (set DMS_PASSPHRASE)")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// render prints v in the selected output format.
func render(v any, text func(w io.Writer) error) error {
	return app.Render(os.Stdout, outputFormat, v, text)
}

var rootCmd = &cobra.Command{
	Use:          "dms",
	Short:        "Document management",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		f, err := app.ParseFormat(outputFlag)
		if err != nil {
			return err
		}
		outputFormat = f
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&actAs, "as", "", "Act as another actor id")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "text", "Output format: text, json or yaml")
}
