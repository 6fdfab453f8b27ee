package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agini/astro-notion-blog/internal/blocks"
	"github.com/agini/astro-notion-blog/internal/config"
	"github.com/agini/astro-notion-blog/internal/images"
	"github.com/agini/astro-notion-blog/internal/notion"
	"github.com/agini/astro-notion-blog/internal/posts"
	"github.com/agini/astro-notion-blog/internal/sync"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "notionblog",
		Short:   "Notion content sync for a static blog",
		Long:    `Syncs published posts from a Notion database to local content: resolved block trees plus downloaded, normalized images.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		syncCmd(),
		postsCmd(),
		postCmd(),
		tagsCmd(),
		statusCmd(),
		initCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newCatalog builds the client and catalog from config.
func newCatalog(cfg *config.Config) (*posts.Catalog, error) {
	client, err := notion.New(&cfg.Notion)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return posts.NewCatalog(client, cfg.Posts.PerPage), nil
}

// newEngine wires the full sync pipeline from config.
func newEngine(cfg *config.Config) (*sync.Engine, error) {
	client, err := notion.New(&cfg.Notion)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	catalog := posts.NewCatalog(client, cfg.Posts.PerPage)
	resolver := blocks.NewResolver(client, blocks.WithConcurrency(cfg.Sync.Concurrency))

	state, err := images.NewStateTracker(cfg.Images.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create state tracker: %w", err)
	}
	pipeline := images.NewPipeline(&cfg.Images, state)

	opts := []sync.EngineOption{sync.WithProgress(), sync.WithStateSaver(pipeline)}
	if cfg.Sync.SnapshotDir != "" {
		opts = append(opts, sync.WithSnapshotWriter(blocks.NewFileSnapshots(cfg.Sync.SnapshotDir)))
	}

	engine := sync.NewEngine(catalog, resolver, pipeline, &cfg.Sync, opts...)
	return engine, nil
}

func syncCmd() *cobra.Command {
	watch := false

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync all published posts and their images",
		Long:  `Resolves the block tree of every published post and downloads all referenced images. With --watch, repeats on an interval until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			engine, err := newEngine(cfg)
			if err != nil {
				return err
			}

			images.Startup()
			defer images.Shutdown()

			report, err := engine.SyncAll(ctx)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			printReport(report)

			if !watch {
				return nil
			}

			// Handle graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			interval := cfg.Sync.WatchInterval()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			slog.Info("watch mode started", "interval", interval)
			fmt.Println("Watching for content changes. Press Ctrl+C to stop.")

			for {
				select {
				case <-sigCh:
					slog.Info("shutting down...")
					return nil

				case <-ticker.C:
					// The catalog caches per process; each pass needs a
					// fresh one to see new or edited posts.
					engine, err := newEngine(cfg)
					if err != nil {
						slog.Error("rebuilding engine failed", "error", err)
						continue
					}
					report, err := engine.SyncAll(ctx)
					if err != nil {
						slog.Error("sync pass failed", "error", err)
						continue
					}
					printReport(report)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "resync on an interval until interrupted")
	return cmd
}

func printReport(r *sync.Report) {
	fmt.Printf("Synced %d posts (%d failed): %d images stored, %d cached, %d skipped in %.1fs\n",
		r.Posts, r.FailedPosts, r.ImagesStored, r.ImagesCached, r.ImagesSkipped, r.Duration.Seconds())
}

func postsCmd() *cobra.Command {
	var (
		tag  string
		page int
	)

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List published posts",
		Long:  `Lists published posts, newest first, optionally filtered by tag and paginated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			catalog, err := newCatalog(cfg)
			if err != nil {
				return err
			}

			var list []posts.Post
			switch {
			case tag != "" && page > 0:
				list, err = catalog.PostsByTagAndPage(ctx, tag, page)
			case tag != "":
				list, err = catalog.PostsByTag(ctx, tag)
			case page > 0:
				list, err = catalog.PostsByPage(ctx, page)
			default:
				list, err = catalog.AllPosts(ctx)
			}
			if err != nil {
				return fmt.Errorf("failed to load posts: %w", err)
			}

			for _, p := range list {
				tags := ""
				if len(p.Tags) > 0 {
					tags = "  [" + strings.Join(p.Tags, ", ") + "]"
				}
				fmt.Printf("%s  %-30s %s%s\n", p.Date.Format("2006-01-02"), p.Slug, p.Title, tags)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "only posts with this tag")
	cmd.Flags().IntVar(&page, "page", 0, "pagination page, 1-indexed")
	return cmd
}

func postCmd() *cobra.Command {
	offline := false

	cmd := &cobra.Command{
		Use:   "post <slug>",
		Short: "Sync one post and print its resolved content",
		Long:  `Resolves a single post by slug, downloads its images, and prints the resolved block tree as JSON. With --offline, block trees are served from the snapshot directory when present.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			client, err := notion.New(&cfg.Notion)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			resolverOpts := []blocks.ResolverOption{blocks.WithConcurrency(cfg.Sync.Concurrency)}
			if offline && cfg.Sync.SnapshotDir != "" {
				resolverOpts = append(resolverOpts, blocks.WithSnapshots(blocks.NewFileSnapshots(cfg.Sync.SnapshotDir)))
			}

			state, err := images.NewStateTracker(cfg.Images.Dir)
			if err != nil {
				return fmt.Errorf("failed to create state tracker: %w", err)
			}

			catalog := posts.NewCatalog(client, cfg.Posts.PerPage)
			pipeline := images.NewPipeline(&cfg.Images, state)
			engine := sync.NewEngine(catalog,
				blocks.NewResolver(client, resolverOpts...),
				pipeline,
				&cfg.Sync,
				sync.WithStateSaver(pipeline))

			images.Startup()
			defer images.Shutdown()

			rp, err := engine.SyncPost(ctx, args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(rp, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode post: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "serve block trees from snapshots when present")
	return cmd
}

func tagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List all tags across published posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			catalog, err := newCatalog(cfg)
			if err != nil {
				return err
			}

			tags, err := catalog.AllTags(ctx)
			if err != nil {
				return fmt.Errorf("failed to load tags: %w", err)
			}
			for _, tag := range tags {
				fmt.Println(tag)
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show source database and local download status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			catalog, err := newCatalog(cfg)
			if err != nil {
				return err
			}

			fmt.Println("=== Notionblog Status ===")

			db, err := catalog.Database(ctx)
			if err != nil {
				fmt.Printf("Source: Unreachable\n")
				fmt.Printf("Error: %v\n", err)
				return nil
			}

			all, err := catalog.AllPosts(ctx)
			if err != nil {
				return fmt.Errorf("failed to load posts: %w", err)
			}
			tags, err := catalog.AllTags(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Source: Connected\n")
			fmt.Printf("  Database: %s\n", db.Title)
			if db.Description != "" {
				fmt.Printf("  Description: %s\n", db.Description)
			}
			fmt.Println()
			fmt.Printf("Published posts: %d\n", len(all))
			fmt.Printf("Tags: %d\n", len(tags))

			state, err := images.NewStateTracker(cfg.Images.Dir)
			if err == nil {
				fmt.Println()
				fmt.Printf("Downloaded images: %d (%.1f MB) in %s\n",
					state.Count(), float64(state.TotalBytes())/(1024*1024), cfg.Images.Dir)
			}
			return nil
		},
	}
}

// initFile is the config document written by init, in config file order.
type initFile struct {
	Notion struct {
		Token      string `yaml:"token"`
		DatabaseID string `yaml:"database_id"`
	} `yaml:"notion"`
	Posts struct {
		PerPage int `yaml:"per_page"`
	} `yaml:"posts"`
	Images struct {
		Dir       string `yaml:"dir"`
		Width     int    `yaml:"width"`
		MaxSizeMB int    `yaml:"max_size_mb"`
	} `yaml:"images"`
	Sync struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"sync"`
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup to create config file",
		Long:  `Interactively creates a configuration file for the sync.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)

			fmt.Println("=== Notionblog Setup ===")
			fmt.Println()

			fmt.Print("Notion integration token (leave empty to use NOTION_TOKEN): ")
			token, _ := reader.ReadString('\n')
			token = strings.TrimSpace(token)
			if token == "" {
				token = "${NOTION_TOKEN}"
			}

			fmt.Print("Notion database id: ")
			databaseID, _ := reader.ReadString('\n')
			databaseID = strings.TrimSpace(databaseID)
			if _, err := config.CanonicalID(databaseID); err != nil {
				return fmt.Errorf("invalid database id: %w", err)
			}

			defaults := config.DefaultConfig()

			fmt.Printf("Image directory [%s]: ", defaults.Images.Dir)
			imageDir, _ := reader.ReadString('\n')
			imageDir = strings.TrimSpace(imageDir)
			if imageDir == "" {
				imageDir = defaults.Images.Dir
			}

			var doc initFile
			doc.Notion.Token = token
			doc.Notion.DatabaseID = databaseID
			doc.Posts.PerPage = defaults.Posts.PerPage
			doc.Images.Dir = imageDir
			doc.Images.Width = defaults.Images.Width
			doc.Images.MaxSizeMB = defaults.Images.MaxSizeMB
			doc.Sync.Concurrency = defaults.Sync.Concurrency

			content, err := yaml.Marshal(&doc)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}

			configPath, err := config.GetConfigPath()
			if err != nil {
				return err
			}

			if err := os.WriteFile(configPath, content, 0600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Printf("\nConfig file written to: %s\n", configPath)
			if token == "${NOTION_TOKEN}" {
				fmt.Println("\nIMPORTANT: Set the NOTION_TOKEN environment variable before syncing.")
			}
			fmt.Println("\nTo check the connection, run: notionblog status")
			fmt.Println("To start syncing, run: notionblog sync")

			return nil
		},
	}
}
