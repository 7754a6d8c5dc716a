// cmd/finchat/main.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"finchat-assistant/internal/calculator"
	"finchat-assistant/internal/common/config"
	"finchat-assistant/internal/common/database"
	"finchat-assistant/internal/common/logger"
	"finchat-assistant/internal/llm"
	"finchat-assistant/internal/market"
	"finchat-assistant/internal/profile"
	"finchat-assistant/internal/retriever"
	"finchat-assistant/internal/router"
)

const banner = `
============================================================
  FinChat - AI Financial Assistant for India
  Stocks | Mutual Funds | SIP | EMI | Retirement Planning
  Type 'quit', 'exit' or 'bye' to leave.
============================================================`

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting FinChat assistant...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 5, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry; the assistant degrades to in-process
	// caches when it stays down ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 3, time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Warn("redis unavailable, using in-process caches", zap.Error(err))
		redis = nil
	} else {
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Init Elasticsearch when enabled; knowledge retrieval falls
	// back to keyword scoring without it ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 3, time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, using keyword search", zap.Error(err))
			esClient = nil
		} else {
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Assemble the assistant ---
	profiles := profile.NewManager(
		profile.NewPostgresStore(pg.GetDB()),
		redis,
		config.TTL(cfg.Cache.ProfileTTL),
		log,
	)

	engine := llm.NewEngine(cfg.LLM, log)
	knowledge, err := retriever.New(ctx, cfg.Knowledge, esClient, log)
	if err != nil {
		zapLog.Fatal("knowledge retriever failed", zap.Error(err))
	}

	agent := market.New(ctx, cfg.Market, cfg.Cache, redis, log)
	calc := calculator.New(cfg.Limits, cfg.Defaults, log)

	queryRouter := router.New(
		cfg.Router,
		router.NewDetectors(cfg.Limits, cfg.Defaults, cfg.Market.TopFundsLimit),
		router.NewExecutor(agent, calc, log),
		engine,
		knowledge,
		profiles,
		log,
	)

	// --- Health & Metrics Server ---
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "healthy",
					"time":   time.Now().Format(time.RFC3339),
				})
			})
			mux.Handle("/metrics", promhttp.Handler())
			zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.ListenAddress))
			if err := http.ListenAndServe(cfg.Metrics.ListenAddress, mux); err != nil {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	fmt.Println(banner)

	reader := bufio.NewScanner(os.Stdin)
	userID := promptUser(ctx, reader, profiles)
	if userID == "" {
		return
	}

	chatLoop(ctx, reader, queryRouter, profiles, userID)

	zapLog.Info("FinChat assistant stopped")
}

// promptUser asks for a user id and bootstraps a profile when none
// exists yet. Returns "" when input ends before setup completes.
func promptUser(ctx context.Context, reader *bufio.Scanner, profiles *profile.Manager) string {
	userID := prompt(reader, "Enter your user ID (e.g. your first name): ")
	if userID == "" {
		return ""
	}

	if p, err := profiles.Load(ctx, userID); err == nil && p != nil {
		fmt.Printf("Welcome back, %s!\n", userID)
		return userID
	}

	fmt.Println("Setting up a new profile. Press enter to skip any question.")
	details := profile.Details{
		Age:           promptInt(reader, "Your age: "),
		MonthlyIncome: float64(promptInt(reader, "Monthly income (₹): ")),
		RiskAppetite:  prompt(reader, "Risk appetite (conservative/moderate/aggressive): "),
	}
	details.Income = details.MonthlyIncome * 12
	if details.RiskAppetite == "" {
		details.RiskAppetite = "moderate"
	}

	if _, err := profiles.Create(ctx, userID, details); err != nil {
		fmt.Println("Could not save your profile, continuing without one.")
	}
	fmt.Printf("Profile created. Let's talk money, %s!\n", userID)
	return userID
}

func chatLoop(ctx context.Context, reader *bufio.Scanner, queryRouter *router.Router, profiles *profile.Manager, userID string) {
	for {
		if ctx.Err() != nil {
			return
		}

		fmt.Print("\nYou: ")
		if !reader.Scan() {
			return
		}
		query := strings.TrimSpace(reader.Text())
		if query == "" {
			continue
		}

		switch strings.ToLower(query) {
		case "quit", "exit", "bye":
			fmt.Println("FinChat: Goodbye! Invest wisely.")
			return
		}

		resp := queryRouter.HandleQuery(ctx, query, userID)
		fmt.Printf("\nFinChat: %s\n", resp.Response)

		if resp.Type != router.TypeError {
			_ = profiles.AddConversation(ctx, userID, query, resp.Response)
		}
	}
}

func prompt(reader *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !reader.Scan() {
		return ""
	}
	return strings.TrimSpace(reader.Text())
}

func promptInt(reader *bufio.Scanner, label string) int {
	raw := prompt(reader, label)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}
