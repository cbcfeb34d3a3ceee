package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vonshlovens/spokesync/internal/domain"
	"github.com/vonshlovens/spokesync/internal/registry"
)

func connectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage destinations and sources",
	}

	cmd.AddCommand(
		connectionsAddCmd(),
		connectionsListCmd(),
		connectionsRemoveCmd(),
		connectionsTestCmd(),
		connectionsSetStatusCmd(),
	)
	return cmd
}

// withRegistry opens the database for the duration of fn
func withRegistry(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func connectionsAddCmd() *cobra.Command {
	var (
		name, baseURL, secret, role string
		noCategories, noTags        bool
		noFeatured, drafts          bool
		allowSEO, allowTheme        bool
		aiEnabled                   bool
		ai                          domain.AISettings
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a destination (outbound) or source (inbound)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("role must be %q or %q", domain.RoleOutbound, domain.RoleInbound)
			}

			settings := domain.DefaultSyncSettings()
			settings.Categories = !noCategories
			settings.Tags = !noTags
			settings.FeaturedImage = !noFeatured
			settings.AutoPublish = !drafts
			settings.AllowSEOOverride = allowSEO
			settings.AllowThemeOverride = allowTheme
			ai.Enabled = aiEnabled

			return withRegistry(func(ctx context.Context, a *app) error {
				c, err := a.registry.Add(ctx, registry.AddParams{
					Name:    name,
					BaseURL: baseURL,
					Secret:  secret,
					Role:    r,
					Sync:    &settings,
					AI:      ai,
				})
				if err != nil {
					return err
				}

				fmt.Printf("Registered %s connection %s (%s)\n", c.Role, c.ID, c.Name)
				if r == domain.RoleInbound && secret == "" {
					fmt.Printf("Give this key to the hub: %s\n", c.Secret)
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "display name")
	f.StringVar(&baseURL, "url", "", "base URL of the other site")
	f.StringVar(&secret, "secret", "", "shared key (generated for inbound connections when empty)")
	f.StringVar(&role, "role", string(domain.RoleOutbound), "outbound (destination) or inbound (source)")
	f.BoolVar(&noCategories, "no-categories", false, "do not send categories")
	f.BoolVar(&noTags, "no-tags", false, "do not send tags")
	f.BoolVar(&noFeatured, "no-featured-image", false, "do not send the featured image")
	f.BoolVar(&drafts, "drafts", false, "store received documents as drafts")
	f.BoolVar(&allowSEO, "allow-seo-override", false, "let this source overwrite local SEO metadata")
	f.BoolVar(&allowTheme, "allow-theme-override", false, "let this source overwrite local theme metadata")
	f.BoolVar(&aiEnabled, "ai", false, "rewrite content with AI for this destination")
	f.StringVar(&ai.Tone, "ai-tone", "", "tone for AI rewriting")
	f.StringVar(&ai.Audience, "ai-audience", "", "audience for AI rewriting")
	f.StringVar(&ai.Instructions, "ai-instructions", "", "extra instructions for AI rewriting")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func connectionsListCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, a *app) error {
				conns, err := a.registry.List(ctx, domain.Role(role))
				if err != nil {
					return err
				}
				if len(conns) == 0 {
					fmt.Println("No connections registered.")
					return nil
				}

				fmt.Printf("%-36s  %-8s  %-8s  %-20s  %-30s  %s\n", "ID", "ROLE", "STATUS", "NAME", "URL", "LAST CONTACT")
				for _, c := range conns {
					last := "never"
					if c.LastContactAt != nil {
						last = c.LastContactAt.Format(time.RFC3339)
					}
					fmt.Printf("%-36s  %-8s  %-8s  %-20s  %-30s  %s\n", c.ID, c.Role, c.Status, c.Name, c.BaseURL, last)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "only list outbound or inbound connections")
	return cmd
}

func connectionsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id|name|url>",
		Short: "Remove a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, a *app) error {
				c, err := a.registry.Resolve(ctx, "", args[0])
				if err != nil {
					return err
				}
				if err := a.registry.Remove(ctx, c.ID); err != nil {
					return err
				}
				fmt.Printf("Removed %s\n", domain.DisplayName(c, c.ID))
				return nil
			})
		},
	}
}

func connectionsTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <id|name|url>",
		Short: "Check that a destination is reachable and accepts our key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, a *app) error {
				c, err := a.registry.Resolve(ctx, domain.RoleOutbound, args[0])
				if err != nil {
					return err
				}

				a.client.EnsureAwake(ctx, c)
				status, testErr := a.client.Status(ctx, c)
				if err := a.registry.RecordTestResult(ctx, c.ID, testErr); err != nil {
					return err
				}
				if testErr != nil {
					return fmt.Errorf("connection test failed: %w", testErr)
				}

				fmt.Printf("%s is reachable: %s, version %s, role %s, %d documents\n",
					domain.DisplayName(c, c.ID), status.Status, status.Version, status.Role, status.Stats.Documents)
				return nil
			})
		},
	}
}

func connectionsSetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <id|name|url> <active|inactive>",
		Short: "Activate or deactivate a connection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, a *app) error {
				c, err := a.registry.Resolve(ctx, "", args[0])
				if err != nil {
					return err
				}
				if err := a.registry.SetStatus(ctx, c.ID, domain.ConnectionStatus(args[1])); err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", domain.DisplayName(c, c.ID), args[1])
				return nil
			})
		},
	}
}
