package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-analyzer/internal/analysis"
	"github.com/zombor/receipt-analyzer/internal/logger"
	"github.com/zombor/receipt-analyzer/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	port int

	store       string
	dbPath      string
	databaseURL string

	storage     string
	storagePath string
	s3          receipt.S3Config
	gcsBucket   string
	gcsPrefix   string

	analyzer      string
	azureEndpoint string
	azureKey      string
	azureModel    string
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string

	auth receipt.BasicAuth
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-analyzer")
	var (
		port          = fs.IntLong("port", 8000, "HTTP server port")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		store         = fs.StringLong("store", "bolt", "Receipt store: 'bolt' or 'postgres'")
		dbPath        = fs.StringLong("db", "receipts.db", "BoltDB file path")
		databaseURL   = fs.StringLong("database-url", "", "PostgreSQL connection URL")
		storage       = fs.StringLong("storage", "local", "Upload storage: 'local', 's3' or 'gcs'")
		storagePath   = fs.StringLong("storage-path", "./uploads", "Local upload directory")
		s3Bucket      = fs.StringLong("s3-bucket", "", "S3 bucket name")
		s3Region      = fs.StringLong("s3-region", "", "S3 region")
		s3Endpoint    = fs.StringLong("s3-endpoint", "", "S3-compatible endpoint URL (optional)")
		s3AccessKey   = fs.StringLong("s3-access-key", "", "S3 access key ID (optional)")
		s3SecretKey   = fs.StringLong("s3-secret-key", "", "S3 secret access key (optional)")
		s3Prefix      = fs.StringLong("s3-prefix", "", "S3 key prefix")
		gcsBucket     = fs.StringLong("gcs-bucket", "", "Google Cloud Storage bucket name")
		gcsPrefix     = fs.StringLong("gcs-prefix", "", "Google Cloud Storage object prefix")
		analyzer      = fs.StringLong("analyzer", "azure", "Analyzer: 'azure', 'gemini' or 'ollama'")
		azureEndpoint = fs.StringLong("azure-endpoint", "", "Azure Document Intelligence endpoint")
		azureKey      = fs.StringLong("azure-key", "", "Azure Document Intelligence API key")
		azureModel    = fs.StringLong("azure-model", "prebuilt-receipt", "Azure Document Intelligence model ID")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		authPassHash  = fs.StringLong("auth-pass-hash", "", "Basic auth bcrypt password hash (optional)")
		_             = fs.StringLong("config", "", "YAML config file (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_ANALYZER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(parseYAMLConfig),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg := config{
		port:          *port,
		store:         *store,
		dbPath:        *dbPath,
		databaseURL:   *databaseURL,
		storage:       *storage,
		storagePath:   *storagePath,
		gcsBucket:     *gcsBucket,
		gcsPrefix:     *gcsPrefix,
		analyzer:      *analyzer,
		azureEndpoint: *azureEndpoint,
		azureKey:      *azureKey,
		azureModel:    *azureModel,
		geminiKey:     *geminiKey,
		geminiModel:   *geminiModel,
		ollamaURL:     *ollamaURL,
		ollamaModel:   *ollamaModel,
		s3: receipt.S3Config{
			Bucket:          *s3Bucket,
			Region:          *s3Region,
			Endpoint:        *s3Endpoint,
			AccessKeyID:     *s3AccessKey,
			SecretAccessKey: *s3SecretKey,
			Prefix:          *s3Prefix,
		},
		auth: receipt.BasicAuth{
			Username:     *authUser,
			Password:     *authPass,
			PasswordHash: *authPassHash,
		},
	}

	log := logger.New(*logLevel)

	// Amounts are serialized as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
	log.Info().Msg("Shut down")
}

func run(ctx context.Context, cfg config, log zerolog.Logger) error {
	db, err := openDB(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	analyzer, err := newAnalyzer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer analyzer.Close()

	storage, closeStorage, err := newStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	service := receipt.NewService(receipt.NewStore(db), analyzer, storage, log)
	server := receipt.NewServer(service, cfg.auth, log, version)

	if cfg.auth.Username != "" {
		log.Info().Str("user", cfg.auth.Username).Msg("Basic auth enabled")
	}
	return server.Start(ctx, fmt.Sprintf(":%d", cfg.port))
}

func openDB(cfg config, log zerolog.Logger) (receipt.DB, error) {
	switch cfg.store {
	case "bolt":
		log.Info().Str("path", cfg.dbPath).Msg("Opening BoltDB store")
		db, err := receipt.NewBoltDB(cfg.dbPath)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		return db, nil
	case "postgres":
		if cfg.databaseURL == "" {
			return nil, fmt.Errorf("--database-url is required for the postgres store")
		}
		log.Info().Msg("Running database migrations")
		if err := receipt.Migrate(cfg.databaseURL); err != nil {
			return nil, err
		}
		db, err := receipt.NewPostgresDB(cfg.databaseURL)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("invalid store %q: expected bolt or postgres", cfg.store)
	}
}

func newAnalyzer(ctx context.Context, cfg config, log zerolog.Logger) (analysis.Analyzer, error) {
	switch cfg.analyzer {
	case "azure":
		log.Info().Str("endpoint", cfg.azureEndpoint).Str("model", cfg.azureModel).Msg("Initializing Document Intelligence analyzer")
		return analysis.NewDocumentIntelligence(cfg.azureEndpoint, cfg.azureKey, cfg.azureModel)
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		log.Info().Str("model", cfg.geminiModel).Msg("Initializing Gemini analyzer")
		return analysis.NewGemini(ctx, apiKey, cfg.geminiModel)
	case "ollama":
		log.Info().Str("url", cfg.ollamaURL).Str("model", cfg.ollamaModel).Msg("Initializing Ollama analyzer")
		return analysis.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid analyzer %q: expected azure, gemini or ollama", cfg.analyzer)
	}
}

func newStorage(ctx context.Context, cfg config, log zerolog.Logger) (receipt.Storage, func(), error) {
	noop := func() {}
	switch cfg.storage {
	case "local":
		log.Info().Str("path", cfg.storagePath).Msg("Using local upload storage")
		storage, err := receipt.NewLocalStorage(cfg.storagePath)
		if err != nil {
			return nil, noop, fmt.Errorf("initializing storage: %w", err)
		}
		return storage, noop, nil
	case "s3":
		log.Info().Str("bucket", cfg.s3.Bucket).Msg("Using S3 upload storage")
		storage, err := receipt.NewS3Storage(ctx, cfg.s3)
		if err != nil {
			return nil, noop, fmt.Errorf("initializing storage: %w", err)
		}
		return storage, noop, nil
	case "gcs":
		log.Info().Str("bucket", cfg.gcsBucket).Msg("Using Google Cloud Storage for uploads")
		storage, err := receipt.NewGCSStorage(ctx, cfg.gcsBucket, cfg.gcsPrefix)
		if err != nil {
			return nil, noop, fmt.Errorf("initializing storage: %w", err)
		}
		return storage, func() {
			if err := storage.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close storage client")
			}
		}, nil
	default:
		return nil, noop, fmt.Errorf("invalid storage %q: expected local, s3 or gcs", cfg.storage)
	}
}
