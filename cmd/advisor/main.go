package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/soldasur/advisor/internal/api"
	"github.com/soldasur/advisor/internal/catalog"
	"github.com/soldasur/advisor/internal/embedding"
	"github.com/soldasur/advisor/internal/genai"
	"github.com/soldasur/advisor/internal/graph"
	"github.com/soldasur/advisor/internal/orchestrator"
	"github.com/soldasur/advisor/internal/retrieval"
	"github.com/soldasur/advisor/internal/store"
	"github.com/soldasur/advisor/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for advisor state data
	DefaultStateDir = "/var/lib/advisor"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "advisor.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping advisor with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"openai_key_set", *flags.openaiKey != "",
		"api_addr", *flags.apiAddr,
		"catalog_path", *flags.catalogPath,
		"graph_path", *flags.graphPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("Advisor failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Advisor exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	StateDir    string `envconfig:"STATE_DIR"`
	OpenAIKey   string `envconfig:"OPENAI_API_KEY"`
	APIAddr     string `envconfig:"API_ADDR"`
	CatalogPath string `envconfig:"CATALOG_PATH"`
	GraphPath   string `envconfig:"GRAPH_PATH"`
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	apiAddr     *string
	catalogPath *string
	graphPath   *string
}

// initializeLogger sets up structured logging. ADVISOR_DEBUG=true lowers
// the level to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("ADVISOR_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var config Config
	if err := envconfig.Process("advisor", &config); err != nil {
		slog.Warn("Failed to process environment configuration", "error", err)
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No state dir set, using default", "default_state_dir", config.StateDir)
	}

	// Without a database URL, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"CATALOG_PATH", config.CatalogPath,
		"GRAPH_PATH", config.GraphPath)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for advisor data (overrides $ADVISOR_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "conversation store DSN: postgres://, redis:// or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		catalogPath: flag.String("catalog", config.CatalogPath, "product catalog file, JSON or YAML (overrides $ADVISOR_CATALOG_PATH; empty uses the embedded catalog)"),
		graphPath:   flag.String("graph", config.GraphPath, "dialogue graph file, JSON or YAML (overrides $ADVISOR_GRAPH_PATH; empty uses the embedded graph)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"catalogPath", *flags.catalogPath,
		"graphPath", *flags.graphPath)

	// Follow a relocated state directory when the DSN was derived from it
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != store.DSNTypeSQLite {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// run wires the catalog, retrieval, dialogue and storage modules together
// and serves the API until the context is canceled.
func run(ctx context.Context, flags Flags) error {
	products, err := catalog.Load(*flags.catalogPath)
	if err != nil {
		return err
	}
	slog.Info("Product catalog loaded", "products", len(products))

	var embedder embedding.Embedder
	if *flags.openaiKey != "" {
		openaiEmbedder, err := embedding.NewOpenAIEmbedder(embedding.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		embedder = openaiEmbedder
		slog.Debug("Using OpenAI embeddings")
	} else {
		embedder = embedding.NewHashingEmbedder(embedding.DefaultHashingDim)
		slog.Warn("No OpenAI API key set, using hashing embeddings")
	}

	index, err := catalog.BuildIndex(ctx, products, embedder)
	if err != nil {
		return err
	}
	retriever, err := retrieval.NewEngine(products, index, embedder)
	if err != nil {
		return err
	}

	dialogueGraph, err := graph.Load(*flags.graphPath)
	if err != nil {
		return err
	}
	slog.Info("Dialogue graph loaded", "nodes", dialogueGraph.Len())
	engine := graph.NewEngine(dialogueGraph, products, retriever)

	conversationStore, err := store.NewStore(store.WithDSN(*flags.dbDSN))
	if err != nil {
		return err
	}
	defer conversationStore.Close()

	orchOpts := []orchestrator.Option{
		orchestrator.WithStore(conversationStore),
		orchestrator.WithGraph(engine),
		orchestrator.WithRetriever(retriever),
	}
	if *flags.openaiKey != "" {
		generator, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		orchOpts = append(orchOpts, orchestrator.WithGenerator(generator))
	} else {
		slog.Warn("No OpenAI API key set, free-form answers fall back to product listings")
	}

	orch, err := orchestrator.New(orchOpts...)
	if err != nil {
		return err
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server, err := api.NewServer(orch, apiOpts...)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
