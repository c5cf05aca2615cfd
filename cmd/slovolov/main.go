package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promodesk/slovolov/internal/config"
	"github.com/promodesk/slovolov/internal/database"
	"github.com/promodesk/slovolov/internal/engine"
	"github.com/promodesk/slovolov/internal/logging"
	"github.com/promodesk/slovolov/internal/pipeline"
	"github.com/promodesk/slovolov/internal/reconcile"
	"github.com/promodesk/slovolov/internal/registry"
	"github.com/promodesk/slovolov/internal/remote"
	"github.com/promodesk/slovolov/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        *logging.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "slovolov",
	Short:   "Keyword corpus filtering and synchronization",
	Long:    "Slovolov keeps per-subcluster keyword corpora filtered with minus-word lists and synchronized with search model runs.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
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
		log, err = logging.New(level)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(filtersCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("slovolov", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/slovolov/",
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
		fmt.Println("Edit it to configure the data directory and the remote mirror.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Directory:")
		fmt.Printf("  Clusters: %d\n", stats.Clusters)
		fmt.Printf("  Subclusters: %d\n", stats.Subclusters)
		fmt.Println("\nCorpora:")
		fmt.Printf("  Keywords: %d\n", stats.Keywords)
		fmt.Println("\nConfiguration:")
		fmt.Printf("  Filters: %d\n", stats.Filters)
		fmt.Printf("  Cached configs: %d\n", stats.Configs)
		fmt.Printf("  Remote mirror: %v\n", cfg.Remote.Enabled)
		return nil
	},
}

// --- filters command ---

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Manage minus-word filters",
}

var filtersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		filters, err := eng.ListFilters()
		if err != nil {
			return err
		}
		if len(filters) == 0 {
			fmt.Println("No filters defined. Add one with: slovolov filters add")
			return nil
		}

		fmt.Println("Filters:")
		for _, f := range filters {
			fmt.Printf("  %s  %s (%d words)\n", f.ID, f.Name, f.ItemCount)
		}
		return nil
	},
}

var filtersAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a new filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		f, err := eng.CreateFilter(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created filter %s: %s\n", f.ID, f.Name)
		return nil
	},
}

var filtersRenameCmd = &cobra.Command{
	Use:   "rename [id] [new-name]",
	Short: "Rename a filter (bindings follow the new id)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		f, err := eng.RenameFilter(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Renamed to %s: %s\n", f.ID, f.Name)
		return nil
	},
}

var filtersRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Delete a filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := eng.DeleteFilter(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed filter %s\n", args[0])
		return nil
	},
}

var filtersWordsCmd = &cobra.Command{
	Use:   "words [id] [word]...",
	Short: "Replace a filter's minus-words; no words prints the current list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		if len(args) == 1 {
			f, err := eng.GetFilter(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s):\n", f.Name, f.ID)
			for _, item := range f.Items {
				fmt.Printf("  -%s\n", item)
			}
			return nil
		}

		f, err := eng.SetFilterItems(args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Filter %s now has %d words\n", f.ID, len(f.Items))
		return nil
	},
}

func init() {
	filtersCmd.AddCommand(filtersListCmd)
	filtersCmd.AddCommand(filtersAddCmd)
	filtersCmd.AddCommand(filtersRenameCmd)
	filtersCmd.AddCommand(filtersRemoveCmd)
	filtersCmd.AddCommand(filtersWordsCmd)
}

// --- config command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage per-subcluster binding configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show [subcluster-id]",
	Short: "Show a subcluster's configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		c, err := eng.GetConfig(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Subcluster %s:\n", args[0])
		fmt.Printf("  Models: %s\n", joinOrNone(c.Models))
		fmt.Printf("  Filters: %s\n", joinOrNone(c.Filters))
		fmt.Printf("  Apply filters: %v\n", c.ApplyFilters)
		fmt.Printf("  Min frequency: %d\n", c.MinFrequency)
		return nil
	},
}

var configMinFreqCmd = &cobra.Command{
	Use:   "min-frequency [subcluster-id] [threshold]",
	Short: "Set the frequency threshold (0 disables)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, err := strconv.Atoi(args[1])
		if err != nil || threshold < 0 {
			return fmt.Errorf("invalid threshold: %s", args[1])
		}

		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		c, err := eng.UpdateConfig(context.Background(), args[0], reconcile.Patch{MinFrequency: &threshold})
		if err != nil {
			return err
		}
		fmt.Printf("Min frequency for %s: %d\n", args[0], c.MinFrequency)
		return nil
	},
}

var configToggleCmd = &cobra.Command{
	Use:   "toggle-filter [subcluster-id] [filter-id]",
	Short: "Select or deselect a filter on a subcluster",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		c, err := eng.ToggleFilterBinding(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Filters on %s: %s (active: %v)\n", args[0], joinOrNone(c.Filters), c.ApplyFilters)
		return nil
	},
}

var configBindCmd = &cobra.Command{
	Use:   "bind-model [subcluster-id] [model-id]",
	Short: "Bind a search model to a subcluster",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		c, err := eng.BindModel(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Models on %s: %s\n", args[0], joinOrNone(c.Models))
		return nil
	},
}

var configUnbindCmd = &cobra.Command{
	Use:   "unbind-model [subcluster-id] [model-id]",
	Short: "Remove a model binding from a subcluster",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		c, err := eng.UnbindModel(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Models on %s: %s\n", args[0], joinOrNone(c.Models))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configMinFreqCmd)
	configCmd.AddCommand(configToggleCmd)
	configCmd.AddCommand(configBindCmd)
	configCmd.AddCommand(configUnbindCmd)
}

// --- clusters command ---

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Manage the cluster/subcluster directory",
}

var clustersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clusters and their subclusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		clusters, err := db.ListClusters()
		if err != nil {
			return err
		}
		if len(clusters) == 0 {
			fmt.Println("No clusters defined. Add one with: slovolov clusters add")
			return nil
		}

		for _, c := range clusters {
			fmt.Printf("%s  %s\n", c.ID, c.Name)
			subs, err := db.ListSubclusters(c.ID)
			if err != nil {
				return err
			}
			for _, s := range subs {
				fmt.Printf("  %s  %s\n", s.ID, s.Name)
			}
		}
		return nil
	},
}

var clustersAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id := registry.Slugify(args[0])
		if id == "" {
			return fmt.Errorf("cluster name %q produces an empty id", args[0])
		}
		added, err := db.InsertCluster(id, args[0])
		if err != nil {
			return err
		}
		if !added {
			fmt.Printf("Cluster %s already exists\n", id)
			return nil
		}
		fmt.Printf("Added cluster %s: %s\n", id, args[0])
		return nil
	},
}

var clustersAddSubCmd = &cobra.Command{
	Use:   "add-sub [cluster-id] [name]",
	Short: "Add a subcluster under a cluster",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id := args[0] + "-" + registry.Slugify(args[1])
		if _, err := db.InsertSubcluster(id, args[0], args[1]); err != nil {
			return fmt.Errorf("adding subcluster: %w", err)
		}
		fmt.Printf("Added subcluster %s: %s\n", id, args[1])
		return nil
	},
}

func init() {
	clustersCmd.AddCommand(clustersListCmd)
	clustersCmd.AddCommand(clustersAddCmd)
	clustersCmd.AddCommand(clustersAddSubCmd)
}

// --- sync command ---

var syncInput string

var syncCmd = &cobra.Command{
	Use:   "sync [model-id]",
	Short: "Push a model's fresh corpus into its bound subclusters",
	Long:  "Reads 'query;count' lines from --input and merges them into every subcluster bound to the model.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readCorpusFile(syncInput)
		if err != nil {
			return err
		}

		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := eng.RunModelSync(context.Background(), args[0], records)
		if err != nil {
			return err
		}

		if len(report.Targets) == 0 {
			fmt.Printf("Model %s has no bound subclusters.\n", args[0])
			return nil
		}

		fmt.Printf("Synced %d record(s) to %d subcluster(s):\n", len(records), len(report.Targets))
		for _, t := range report.Targets {
			name := t.SubclusterID
			if t.SubclusterName != "" {
				name = fmt.Sprintf("%s / %s", t.ClusterName, t.SubclusterName)
			}
			if t.Err != nil {
				fmt.Printf("  %s: FAILED (%v)\n", name, t.Err)
				continue
			}
			fmt.Printf("  %s: %d new, %d updated\n", name, t.New, t.Updated)
		}
		if failed := report.Failed(); len(failed) > 0 {
			fmt.Printf("\n%d subcluster(s) failed; the rest were updated.\n", len(failed))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncInput, "input", "i", "", "File with 'query;count' lines (required)")
	syncCmd.MarkFlagRequired("input")
}

// readCorpusFile parses 'query;count' lines. Blank lines and lines starting
// with # are skipped.
func readCorpusFile(path string) ([]database.KeywordRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus file: %w", err)
	}
	defer f.Close()

	var records []database.KeywordRecord
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		idx := strings.LastIndex(text, ";")
		if idx <= 0 {
			return nil, fmt.Errorf("line %d: expected 'query;count', got %q", line, text)
		}
		count, err := strconv.Atoi(strings.TrimSpace(text[idx+1:]))
		if err != nil || count < 0 {
			return nil, fmt.Errorf("line %d: invalid count in %q", line, text)
		}
		records = append(records, database.KeywordRecord{
			Query: strings.TrimSpace(text[:idx]),
			Count: count,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus file: %w", err)
	}
	return records, nil
}

// --- results command ---

var (
	resultsSearch   string
	resultsCategory string
	resultsLimit    int
)

var resultsCmd = &cobra.Command{
	Use:   "results [subcluster-id]",
	Short: "Show the filtered result set for a subcluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, ok := pipeline.ParseCategory(resultsCategory)
		if !ok {
			return fmt.Errorf("unknown category: %s (all, high, medium, low)", resultsCategory)
		}

		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		r, err := eng.GetFilteredResult(args[0], engine.ViewOptions{
			SearchText: resultsSearch,
			Category:   category,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Results for %s (%d of %d, %d removed, total frequency %d):\n",
			args[0], r.Stats.Filtered, r.Stats.Total, r.Stats.Removed, r.Stats.TotalFrequency)
		fmt.Printf("  all %d / high %d / medium %d / low %d\n\n",
			r.Counts.All, r.Counts.High, r.Counts.Medium, r.Counts.Low)

		shown := r.Items
		if resultsLimit > 0 && len(shown) > resultsLimit {
			shown = shown[:resultsLimit]
		}
		for _, item := range shown {
			fmt.Printf("  %8d  %s\n", item.Count, item.Query)
		}
		if len(shown) < len(r.Items) {
			fmt.Printf("  ... %d more\n", len(r.Items)-len(shown))
		}
		return nil
	},
}

func init() {
	resultsCmd.Flags().StringVarP(&resultsSearch, "search", "s", "", "Free-text search")
	resultsCmd.Flags().StringVar(&resultsCategory, "category", "all", "Frequency category: all, high, medium, low")
	resultsCmd.Flags().IntVarP(&resultsLimit, "limit", "n", 50, "Max rows to print (0 = all)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.New(eng, log).Serve(port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- helpers ---

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, "slovolov.db"))
}

// openEngine builds the engine with the configured remote mirror. The
// cleanup closes the database and any remote connection.
func openEngine() (*engine.Engine, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	var store remote.Store = remote.Noop{}
	var closeRemote func()
	if cfg.Remote.Enabled {
		r, err := remote.Dial(cfg.Remote.Addr, cfg.Remote.Key)
		if err != nil {
			// Remote being down must not block local work.
			log.Warn("remote mirror unavailable, running local-only", "error", err)
		} else {
			store = r
			closeRemote = func() { r.Close() }
		}
	}

	cleanup := func() {
		if closeRemote != nil {
			closeRemote()
		}
		db.Close()
	}
	return engine.New(db, store, log), cleanup, nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
