package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mdesk/internal/config"
	"github.com/xxxsen/mdesk/internal/handler"
	"github.com/xxxsen/mdesk/internal/job"
	"github.com/xxxsen/mdesk/internal/middleware"
	"github.com/xxxsen/mdesk/internal/pkg/jwt"
	"github.com/xxxsen/mdesk/internal/search"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mdesk",
		Short: "mdesk search and assistant backend",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	load := func() (*config.Config, error) {
		if configPath == "" {
			return nil, fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(
			cfg.LogConfig.File,
			cfg.LogConfig.Level,
			int(cfg.LogConfig.FileCount),
			int(cfg.LogConfig.FileSize),
			int(cfg.LogConfig.KeepDays),
			cfg.LogConfig.Console,
		)
		logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
		return cfg, nil
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run mdesk server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(cfg, a)
		},
	}

	var (
		searchUser  string
		searchQuery string
		searchTypes string
		searchLimit int
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "search records as a user and print the grouped result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			types, err := search.ParseEntityTypes(searchTypes)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			scope, err := a.scopes.Resolve(ctx, searchUser)
			if err != nil {
				return err
			}
			result, err := a.search.Search(ctx, scope, searchQuery, types, searchLimit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	searchCmd.Flags().StringVar(&searchUser, "user", "", "user id to search as")
	searchCmd.Flags().StringVar(&searchQuery, "q", "", "query text")
	searchCmd.Flags().StringVar(&searchTypes, "types", "", "comma separated entity types, empty for all")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "max hits per group")

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "run one document text extraction pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.scheduler.RunOnce(cmd.Context(), job.ExtractJobName)
		},
	}

	var (
		tokenUser string
		tokenTTL  time.Duration
	)
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue an api token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if tokenUser == "" {
				return fmt.Errorf("--user is required")
			}
			tk, err := jwt.GenerateToken(tokenUser, []byte(cfg.JWTSecret), tokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tk)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(runCmd, searchCmd, extractCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, a *app) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Int("ai_providers", len(cfg.AI.Providers)),
	)

	deps := handler.RouterDeps{
		Search:      handler.NewSearchHandler(a.search),
		Assistant:   handler.NewAssistantHandler(a.assistant),
		Scopes:      a.scopes,
		JWTSecret:   []byte(cfg.JWTSecret),
		AskInterval: time.Duration(cfg.RateLimitMS) * time.Millisecond,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.scheduler.Start(ctx)
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
