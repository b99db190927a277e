package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/refresher/internal/acquire"
	"github.com/TobiSchelling/refresher/internal/articles"
	"github.com/TobiSchelling/refresher/internal/catalog"
	"github.com/TobiSchelling/refresher/internal/config"
	"github.com/TobiSchelling/refresher/internal/database"
	"github.com/TobiSchelling/refresher/internal/extract"
	"github.com/TobiSchelling/refresher/internal/llm"
	"github.com/TobiSchelling/refresher/internal/logger"
	"github.com/TobiSchelling/refresher/internal/picker"
	"github.com/TobiSchelling/refresher/internal/pipeline"
	"github.com/TobiSchelling/refresher/internal/rewrite"
	"github.com/TobiSchelling/refresher/internal/search"
	"github.com/TobiSchelling/refresher/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        logger.Logger = logger.NewNop()
)

func main() {
	err := rootCmd.Execute()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "refresher",
	Short:         "Refresh blog articles with current references",
	Long:          "refresher searches the web for up-to-date references on a blog article, rewrites it with an LLM and publishes the updated version.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadEnv(); err != nil {
			return err
		}
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(logger.Options{Level: level, Console: cfg.Logging.Console})
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(articlesCmd)
	articlesCmd.AddCommand(articlesListCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("refresher", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/refresher/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the LLM provider, blocklist and your blog's listing page.")
		return nil
	},
}

// --- run command ---

var (
	runArticleID string
	runLatest    bool
	runDryRun    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Refresh one article: fetch -> search -> acquire -> rewrite -> publish",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		client := articles.NewClient(cfg.Articles, log)
		id, err := chooseArticle(ctx, client)
		if err != nil {
			return err
		}

		provider, err := llm.CreateProvider(ctx, cfg.LLM, log)
		if err != nil {
			return err
		}
		searchProvider, err := search.New(cfg.Search, log)
		if err != nil {
			return err
		}
		extractor := extract.New(cfg.Extractor, log)
		pipe := pipeline.New(
			client,
			searchProvider,
			acquire.New(extractor, log),
			rewrite.New(provider, cfg.Rewrite, log),
			pipeline.Options{Target: cfg.Acquisition.Target, DryRun: runDryRun},
			log,
		)

		result := pipe.Run(ctx, id)
		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/5: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if err := result.Err(); err != nil {
			return fmt.Errorf("refresh failed in state %s: %w", result.State, err)
		}

		switch {
		case runDryRun && result.Rewrite != nil:
			fmt.Println("\n--- rewritten article (not published) ---")
			fmt.Println(result.Rewrite.Content)
			fmt.Println("\nReferences:")
			for _, u := range result.Rewrite.ReferenceURLs {
				fmt.Println("  -", u)
			}
		case result.Published != nil:
			fmt.Printf("\nPublished %q (id %s)\n", result.Published.Title, result.Published.ID)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runArticleID, "article-id", "", "Refresh the article with this id")
	runCmd.Flags().BoolVar(&runLatest, "latest", false, "Refresh the newest original article without prompting")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Rewrite but do not publish")
	runCmd.MarkFlagsMutuallyExclusive("article-id", "latest")
}

func chooseArticle(ctx context.Context, client *articles.Client) (string, error) {
	switch {
	case runArticleID != "":
		return runArticleID, nil
	case runLatest:
		a, err := client.LatestOriginal(ctx)
		if err != nil {
			return "", fmt.Errorf("finding latest original article: %w", err)
		}
		fmt.Printf("Refreshing latest original: %s\n", a.Title)
		return a.ID, nil
	}

	list, err := client.List(ctx)
	if err != nil {
		return "", fmt.Errorf("listing articles: %w", err)
	}
	a, err := picker.Pick(list, os.Stdin, os.Stdout)
	if err != nil {
		if errors.Is(err, picker.ErrAborted) {
			fmt.Println("Aborted.")
		}
		return "", err
	}
	return a.ID, nil
}

// --- search / extract commands ---

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Show reference candidates for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		provider, err := search.New(cfg.Search, log)
		if err != nil {
			return err
		}
		candidates, err := provider.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		for i, c := range candidates {
			fmt.Printf("%2d. %s\n    %s\n", i+1, c.Title, c.URL)
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract URL",
	Short: "Extract the readable text of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		doc, err := extract.New(cfg.Extractor, log).Extract(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n\n%s\n\n(%d characters)\n", doc.Title, doc.Content, doc.Length)
		return nil
	},
}

// --- serve / seed commands ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the article API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		srv, err := server.New(db, newSeeder(db), log)
		if err != nil {
			return err
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.Serve(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 3000, "Port to run server on")
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store the newest posts from the blog listing as original articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := newSeeder(db).Seed(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Seeding complete:")
		fmt.Printf("  Posts found: %d\n", res.Found)
		fmt.Printf("  Inserted: %d\n", res.Inserted)
		fmt.Printf("  Skipped: %d\n", res.Skipped)
		return nil
	},
}

// --- articles command ---

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Inspect stored articles",
}

var articlesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List articles from the article API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		list, err := articles.NewClient(cfg.Articles, log).List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No articles stored. Populate with: refresher seed")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tCREATED\tTITLE")
		for _, a := range list {
			title := a.Title
			if r := []rune(title); len(r) > 60 {
				title = string(r[:60]) + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Source, a.CreatedAt.Format("2006-01-02 15:04"), title)
		}
		return w.Flush()
	},
}

func newSeeder(db *database.DB) *catalog.Seeder {
	return catalog.New(cfg.Catalog, db, extract.New(cfg.Extractor, log), log,
		catalog.WithUserAgent(cfg.Extractor.UserAgent))
}

func openDB() (*database.DB, error) {
	dbPath := filepath.Join(cfg.GetDataDir(), "refresher.db")
	return database.Open(dbPath, log)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
