package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vonshlovens/spokesync/internal/config"
	"github.com/vonshlovens/spokesync/internal/db"
	"github.com/vonshlovens/spokesync/internal/domain"
	"github.com/vonshlovens/spokesync/internal/registry"
)

func statusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database status and delivery problems",
		Long:  `Shows the database connection, document and media counts, delivery totals and the most recent failed or pending deliveries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			database, err := db.New(ctx, &cfg.Database)
			if err != nil {
				fmt.Printf("Database Status: Disconnected\n")
				fmt.Printf("Error: %v\n", err)
				return nil
			}
			defer database.Close()

			status, err := database.GetStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			fmt.Println("=== spokesync status ===")
			fmt.Printf("Database Status: Connected\n")
			fmt.Printf("  Host: %s\n", cfg.Database.Host)
			fmt.Printf("  Database: %s\n", cfg.Database.Database)
			fmt.Printf("  Schema: %s\n", cfg.Database.Schema)
			fmt.Println()
			fmt.Printf("Site URL: %s\n", cfg.SiteURL)
			if cfg.HasVault() {
				fmt.Printf("Vault Path: %s\n", cfg.VaultPath)
			}
			fmt.Println()
			fmt.Printf("Documents: %d\n", status.Documents)
			fmt.Printf("Media: %d\n", status.Media)
			fmt.Printf("Destinations: %d\n", status.Destinations)
			fmt.Printf("Sources: %d\n", status.Sources)
			if status.LastActivity != nil {
				fmt.Printf("Last Activity: %s\n", status.LastActivity.Format(time.RFC3339))
			}

			if len(status.Deliveries) > 0 {
				fmt.Println("\nDeliveries:")
				keys := make([]string, 0, len(status.Deliveries))
				for k := range status.Deliveries {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %s: %d\n", k, status.Deliveries[k])
				}
			}

			reports, err := database.DeliveryReport(ctx, []domain.DeliveryStatus{domain.DeliveryFailed, domain.DeliveryPending}, limit)
			if err != nil {
				return fmt.Errorf("failed to load delivery report: %w", err)
			}
			if len(reports) > 0 {
				fmt.Println("\nNeeds attention:")
				for _, r := range reports {
					var dest *domain.Connection
					if r.DestinationName != "" {
						dest = &domain.Connection{Name: r.DestinationName}
					}
					fmt.Printf("  [%s] %q -> %s (retries %d, last attempt %s)\n",
						r.Status, r.DocumentTitle, domain.DisplayName(dest, r.DestinationID),
						r.RetryCount, r.LastAttemptAt.Format(time.RFC3339))
					if r.LastError != "" {
						fmt.Printf("      %s\n", r.LastError)
					}
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of problem deliveries to list")
	return cmd
}

func migrateCmd() *cobra.Command {
	var showStatus bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Applies all pending migrations embedded in the binary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			database, err := db.New(ctx, &cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()

			if showStatus {
				return database.MigrationStatus(ctx)
			}

			if err := database.RunMigrations(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Println("Migrations completed successfully.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&showStatus, "status", false, "print migration status instead of migrating")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup to create config file",
		Long:  `Interactively creates a configuration file for a hub, a spoke or both.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)
			ask := func(prompt, def string) string {
				if def != "" {
					fmt.Printf("%s [%s]: ", prompt, def)
				} else {
					fmt.Printf("%s: ", prompt)
				}
				answer, _ := reader.ReadString('\n')
				answer = strings.TrimSpace(answer)
				if answer == "" {
					return def
				}
				return answer
			}

			fmt.Println("=== spokesync setup ===")
			fmt.Println()

			siteURL, err := registry.ValidateBaseURL(ask("Public URL of this site", ""))
			if err != nil {
				return err
			}

			vaultPath := ask("Vault path (leave empty for a spoke-only site)", "")
			if vaultPath != "" {
				if info, err := os.Stat(vaultPath); err != nil || !info.IsDir() {
					return fmt.Errorf("vault path does not exist: %s", vaultPath)
				}
			}

			fmt.Println("\nDatabase Configuration:")
			host := ask("  Host", "localhost")
			port := ask("  Port", "5432")
			user := ask("  User", "")
			dbName := ask("  Database name", "")
			if dbName == "" {
				return fmt.Errorf("database name is required")
			}

			probe := &config.Config{SiteURL: siteURL, VaultPath: vaultPath}
			schema := ask("  Schema name", probe.DefaultSchema())
			sslMode := ask("  SSL mode", "require")

			fmt.Println("\nReceiver:")
			listen := ask("  Listen address", ":8080")
			author := ask("  Default author login", "admin")

			var vaultLine string
			if vaultPath != "" {
				vaultLine = fmt.Sprintf("vault_path: %q\n", vaultPath)
			}

			configContent := fmt.Sprintf(`site_url: %q
%s
database:
  host: %q
  port: %s
  user: %q
  password: "${DB_PASSWORD}"  # Set DB_PASSWORD environment variable
  database: %q
  schema: %q
  sslmode: %q

receiver:
  listen_addr: %q
  default_author: %q
  download_images: true

ai:
  provider: none
  api_key: "${ANTHROPIC_API_KEY}"

ignore_patterns:
  - ".obsidian/**"
  - ".trash/**"
  - ".git/**"
  - "**/.DS_Store"
  - "**/node_modules/**"
`, siteURL, vaultLine, host, port, user, dbName, schema, sslMode, listen, author)

			configDir, err := config.GetStateDir()
			if err != nil {
				return err
			}
			configPath := filepath.Join(configDir, "config.yaml")

			if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Printf("\nConfig file written to: %s\n", configPath)
			fmt.Println("\nIMPORTANT: Set the DB_PASSWORD environment variable before running any command.")
			fmt.Println("To run migrations, run: spokesync migrate")
			fmt.Println("To register a destination, run: spokesync connections add --role outbound --name <name> --url <url> --secret <key>")
			fmt.Println("To accept content from a hub, run: spokesync connections add --role inbound --name <name> --url <hub url>")
			fmt.Println("To receive, run: spokesync serve")
			if vaultPath != "" {
				fmt.Println("To start syndicating, run: spokesync daemon")
			}

			return nil
		},
	}
}
