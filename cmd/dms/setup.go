package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"dms-go/internal/app"
	"dms-go/internal/config"
	"dms-go/internal/database"
	"dms-go/internal/encryption"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		actorID, _ := cmd.Flags().GetString("actor")
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		if actorID == "" {
			actorID = os.Getenv("USER")
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"])
		cfg.Actor = config.ActorConfig{ID: actorID, Email: email, Name: name}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Actor:       %s\n", actorID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		shown := *cfg
		if shown.Blob.S3SecretAccessKey != "" {
			shown.Blob.S3SecretAccessKey = "********"
		}
		return render(shown, func(w io.Writer) error {
			fmt.Fprintf(w, "Configuration from %s:\n\n", path)
			fmt.Fprintf(w, "Instance ID: %s\n", cfg.InstanceID)
			fmt.Fprintf(w, "Actor:       %s\n", cfg.Actor.ID)
			fmt.Fprintf(w, "Base Dir:    %s\n", cfg.BaseDir)
			fmt.Fprintf(w, "Log Dir:     %s\n", cfg.LogDir)
			fmt.Fprintf(w, "Database:    %s\n", cfg.Database.Type)
			fmt.Fprintf(w, "Blob Store:  %s (%s) encrypted=%t\n", cfg.Blob.Name, cfg.Blob.Type, cfg.Blob.Encrypt)
			fmt.Fprintf(w, "Max Upload:  %s\n", app.HumanSize(cfg.Spool.MaxSize))
			if cfg.Analysis.BaseURL != "" {
				fmt.Fprintf(w, "Analysis:    %s\n", cfg.Analysis.BaseURL)
			}
			return nil
		})
	},
}

// init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or upgrade the metadata database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage blob encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		enc := encryption.NewAgeEncryptor(cfg.Encryption)

		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}
		if err := enc.Setup(passphrase); err != nil {
			return err
		}

		recipient, err := enc.Recipient()
		if err != nil {
			return err
		}
		fmt.Printf("Public key: %s\n", recipient)
		fmt.Println("Set blob.encrypt = true in the config to encrypt new content.")
		return nil
	},
}

var keysPassphraseCmd = &cobra.Command{
	Use:   "passphrase",
	Short: "Change the private key passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		old, err := readPassphrase("Current passphrase: ")
		if err != nil {
			return err
		}
		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}
		if err := encryption.NewAgeEncryptor(cfg.Encryption).ChangePassphrase(old, passphrase); err != nil {
			return err
		}
		fmt.Println("Passphrase changed.")
		return nil
	},
}

func readNewPassphrase() (string, error) {
	first, err := readPassphrase("New passphrase: ")
	if err != nil {
		return "", err
	}
	second, err := readPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Metadata database maintenance",
}

var dbSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Copy the metadata database into the blob store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "Snapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.Snapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot stored at %s\n", key)
		return nil
	},
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the metadata database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		schema, err := db.Schema(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(schema)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View the operation log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, ctx, err := newApp(cmd, "GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(ctx, limit)
		if err != nil {
			return err
		}

		views := make([]app.OperationView, len(ops))
		for i, op := range ops {
			views[i] = app.NewOperationView(op)
		}
		return render(views, func(w io.Writer) error {
			if len(views) == 0 {
				fmt.Fprintln(w, "No operations recorded.")
				return nil
			}
			for _, op := range views {
				duration := ""
				if op.FinishedAt != nil {
					duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
				}
				fmt.Fprintf(w, "#%d  %-16s  %s  %-8s  %-10s  %s\n",
					op.ID,
					op.Operation,
					op.StartedAt.Format("2006-01-02 15:04:05"),
					op.Actor,
					op.Status,
					duration,
				)
			}
			return nil
		})
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("actor", "", "Actor id commands run as (default $USER)")
	configInitCmd.Flags().String("email", "", "Actor email")
	configInitCmd.Flags().String("name", "", "Actor display name")

	keysCmd.AddCommand(keysInitCmd)
	keysCmd.AddCommand(keysPassphraseCmd)

	dbCmd.AddCommand(dbSnapshotCmd)
	dbCmd.AddCommand(dbSchemaCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
