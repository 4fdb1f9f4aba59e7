package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/RichardoC/gemchat/internal/api"
	"github.com/RichardoC/gemchat/internal/chat"
	"github.com/RichardoC/gemchat/internal/cli"
	"github.com/RichardoC/gemchat/internal/config"
	"github.com/RichardoC/gemchat/internal/db"
	"github.com/RichardoC/gemchat/internal/llm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
	}

	v := config.New()

	rootCmd := &cobra.Command{
		Use:          "gemchat",
		Short:        "Chat with Gemini over HTTP or in the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v)
		},
	}

	rootCmd.PersistentFlags().String("addr", "", "listen address (overrides PORT)")
	rootCmd.PersistentFlags().String("web-dir", "", "directory of static files to serve")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	for key, flag := range map[string]string{"ADDR": "addr", "WEB_DIR": "web-dir", "LOG_LEVEL": "log-level"} {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(serveCmd(v))
	rootCmd.AddCommand(chatCmd(v))

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			fmt.Fprintln(os.Stderr, "Please create a .env file with your API key:")
			fmt.Fprintln(os.Stderr, "GEMINI_API_KEY=your_api_key_here")
		}
		os.Exit(1)
	}
}

func serveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v)
		},
	}
}

func chatCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := setup(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			gen, err := llm.New(ctx, cfg.LLM)
			if err != nil {
				logger.Error("failed to initialize LLM service", zap.Error(err))
				return err
			}

			// terminal history is never persisted
			svc := chat.NewService(db.NewMemoryStore(), gen, logger)
			catalog := llm.NewModelCatalog(ctx, cfg.LLM.GeminiAPIKey)

			return cli.NewREPL(svc, catalog, gen.Model(), cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
		},
	}
}

func serve(ctx context.Context, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup(v)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store := db.Open(cfg.Appwrite, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	gen, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		logger.Error("failed to initialize LLM service", zap.Error(err))
		return err
	}
	catalog := llm.NewModelCatalog(ctx, cfg.LLM.GeminiAPIKey)

	if logger.Core().Enabled(zap.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(store, chat.NewService(store, gen, logger), catalog, gen.Model(), logger)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(handler, logger, cfg.WebDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("addr", cfg.Addr),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", gen.Model()),
			zap.Bool("appwriteEnabled", store.Remote()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		logger.Error("failed to start server", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setup loads the configuration and builds the process logger.
func setup(v *viper.Viper) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", cfg.LogLevel)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		return nil, nil, errors.Wrap(err, "build logger")
	}
	return cfg, logger, nil
}
