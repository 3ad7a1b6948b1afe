package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/taple-mesh/node/pkg/aot"
	"github.com/taple-mesh/node/pkg/compiler"
	"github.com/taple-mesh/node/pkg/config"
	"github.com/taple-mesh/node/pkg/contractstore"
	"github.com/taple-mesh/node/pkg/digest"
	"github.com/taple-mesh/node/pkg/governanceview"
	"github.com/taple-mesh/node/pkg/notary"
	"github.com/taple-mesh/node/pkg/notaryregister"
	"github.com/taple-mesh/node/pkg/observability"
	"github.com/taple-mesh/node/pkg/signer"
	"github.com/taple-mesh/node/pkg/toolchain"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"
)

// Dispatcher.
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint used by tests; production main() just forwards to
// it against the real os.Args/stdio.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		runServer(stdout)
		return 0
	}

	switch args[1] {
	case "init":
		return runInit(stdout, stderr)
	case "update-contracts":
		return runUpdateContracts(args[2:], stdout, stderr)
	case "serve", "server":
		runServer(stdout)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "taple-mesh node")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "usage: node <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  serve                                run the notary HTTP server (default)")
	fmt.Fprintln(w, "  init                                 bootstrap the governance contract cache entry")
	fmt.Fprintln(w, "  update-contracts <gov-id> <version>  resync the contract cache against governance")
	fmt.Fprintln(w, "  help                                 show this help")
}

type deps struct {
	cfg       *config.Config
	db        *sql.DB
	dialect   contractstore.Dialect
	view      governanceview.View
	cache     contractstore.Store
	register  notaryregister.Store
	signer    signer.Signer
	obsProv   *observability.Provider
	orchestra *compiler.Orchestrator
	engine    *notary.Engine
}

func wireUp(ctx context.Context) (*deps, error) {
	cfg, err := config.Load(os.Getenv("NODE_CONFIG_FILE"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	dialect, driverName := dialectFor(cfg.DatabaseURL)
	db, err := sql.Open(driverName, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	sqlCache := contractstore.NewSQLStore(db, dialect)
	if err := sqlCache.Init(ctx); err != nil {
		return nil, fmt.Errorf("init contract cache schema: %w", err)
	}

	var cacheStore contractstore.Store = sqlCache
	if cfg.S3Bucket != "" {
		s3Store, err := contractstore.NewS3BlobStore(ctx, cacheStore, contractstore.S3BlobConfig{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			InlineThreshold: cfg.S3InlineThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("wiring s3 blob store: %w", err)
		}
		cacheStore = s3Store
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cacheStore = contractstore.NewRedisReadCache(cacheStore, rdb, cfg.RedisTTL)
	}

	registerStore := notaryregister.NewSQLStore(db, notaryregister.Dialect(dialect))
	if err := registerStore.Init(ctx); err != nil {
		return nil, fmt.Errorf("init notary register schema: %w", err)
	}

	sg, err := loadOrGenerateSigner()
	if err != nil {
		return nil, fmt.Errorf("loading signer: %w", err)
	}

	view, err := governanceViewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("wiring governance view: %w", err)
	}

	obsProv, err := observability.New(ctx, &observability.Config{
		ServiceName:  "taple-mesh-node",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Insecure:     cfg.OTLPInsecure,
		Enabled:      cfg.OTLPEndpoint != "",
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Printf("[node] observability disabled: %v", err)
		obsProv = nil
	}

	driver := toolchain.New(toolchain.Config{
		ContractsPath: cfg.ContractsPath,
		BuildCmd:      cfg.BuildCmd,
		BuildArgs:     cfg.BuildArgs,
		RateLimit:     rate.Limit(cfg.RateLimitPerSec),
		RateBurst:     cfg.RateBurst,
	})
	aotc := aot.New(cfg.ContractsPath + "/aot-scratch")

	var compilerOpts []compiler.Option
	var notaryOpts []notary.Option
	if obsProv != nil {
		compilerOpts = append(compilerOpts, compiler.WithObservability(obsProv))
		notaryOpts = append(notaryOpts, notary.WithObservability(obsProv))
	}

	orchestrator := compiler.New(view, cacheStore, driver, aotc, compilerOpts...)
	engine := notary.New(view, registerStore, sg, notaryOpts...)

	return &deps{
		cfg:       cfg,
		db:        db,
		dialect:   dialect,
		view:      view,
		cache:     cacheStore,
		register:  registerStore,
		signer:    sg,
		obsProv:   obsProv,
		orchestra: orchestrator,
		engine:    engine,
	}, nil
}

func dialectFor(databaseURL string) (contractstore.Dialect, string) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return contractstore.DialectPostgres, "postgres"
	}
	return contractstore.DialectSQLite, "sqlite"
}

func governanceViewFromEnv() (governanceview.View, error) {
	base := os.Getenv("NODE_GOVERNANCE_URL")
	if base == "" {
		return governanceview.NewStaticView(), nil
	}
	return governanceview.NewHTTPView(base, nil)
}

func loadOrGenerateSigner() (signer.Signer, error) {
	keyPath := os.Getenv("NODE_KEY_PATH")
	if keyPath == "" {
		keyPath = "data/node.key"
	}

	if raw, err := os.ReadFile(keyPath); err == nil {
		seed, decodeErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decodeErr != nil {
			return nil, fmt.Errorf("invalid key file %s: %w", keyPath, decodeErr)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return signer.NewEd25519SignerFromKey(priv), nil
	}

	if os.Getenv("NODE_PRODUCTION") == "1" {
		return nil, fmt.Errorf("production mode requires %s to exist", keyPath)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll("data", 0o755); err == nil {
		_ = os.WriteFile(keyPath, []byte(hex.EncodeToString(priv.Seed())), 0o600)
	}
	return signer.NewEd25519SignerFromKey(priv), nil
}

func runInit(stdout, stderr io.Writer) int {
	ctx := context.Background()
	d, err := wireUp(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	defer func() { _ = d.db.Close() }()

	if err := d.orchestra.Init(ctx); err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "governance contract bootstrapped")
	return 0
}

func runUpdateContracts(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "usage: node update-contracts <gov-id-hex> <version>")
		return 2
	}
	govID, err := digest.Parse(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "invalid governance id: %v\n", err)
		return 2
	}
	version, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(stderr, "invalid governance version: %v\n", err)
		return 2
	}

	ctx := context.Background()
	d, err := wireUp(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "update-contracts: %v\n", err)
		return 1
	}
	defer func() { _ = d.db.Close() }()

	if err := d.orchestra.UpdateContracts(ctx, govID, version); err != nil {
		fmt.Fprintf(stderr, "update-contracts: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "contract cache synced")
	return 0
}

func runServer(stdout io.Writer) {
	ctx := context.Background()
	d, err := wireUp(ctx)
	if err != nil {
		log.Fatalf("[node] wiring failed: %v", err)
	}
	defer func() { _ = d.db.Close() }()
	if d.obsProv != nil {
		defer func() { _ = d.obsProv.Shutdown(ctx) }()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/notary/events", notaryHandler(d.engine))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              d.cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		fmt.Fprintf(stdout, "[node] listening on %s\n", d.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[node] server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	fmt.Fprintln(stdout, "[node] shut down")
}

type notaryEventRequest struct {
	GovernanceID      string `json:"governance_id"`
	SubjectID         string `json:"subject_id"`
	Owner             string `json:"owner"`
	EventHash         string `json:"event_hash"`
	Sn                uint64 `json:"sn"`
	GovernanceVersion uint64 `json:"governance_version"`
	OwnerSignature    string `json:"owner_signature"`
}

type notaryEventResponse struct {
	Signature             string `json:"signature"`
	GovernanceVersionSeen uint64 `json:"governance_version_seen"`
}

func notaryHandler(engine *notary.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req notaryEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		govID, err := digest.Parse(req.GovernanceID)
		if err != nil {
			http.Error(w, "invalid governance_id", http.StatusBadRequest)
			return
		}
		subjectID, err := digest.Parse(req.SubjectID)
		if err != nil {
			http.Error(w, "invalid subject_id", http.StatusBadRequest)
			return
		}
		eventHash, err := digest.Parse(req.EventHash)
		if err != nil {
			http.Error(w, "invalid event_hash", http.StatusBadRequest)
			return
		}
		owner, err := hex.DecodeString(req.Owner)
		if err != nil {
			http.Error(w, "invalid owner", http.StatusBadRequest)
			return
		}
		ownerSig, err := hex.DecodeString(req.OwnerSignature)
		if err != nil {
			http.Error(w, "invalid owner_signature", http.StatusBadRequest)
			return
		}

		resp, err := engine.Admit(r.Context(), notary.Request{
			GovID:          govID,
			SubjectID:      subjectID,
			Owner:          owner,
			EventHash:      eventHash,
			Sn:             req.Sn,
			GovVersion:     req.GovernanceVersion,
			OwnerSignature: ownerSig,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(notaryEventResponse{
			Signature:             hex.EncodeToString(resp.Signature),
			GovernanceVersionSeen: resp.GovVersionNotary,
		})
	}
}
