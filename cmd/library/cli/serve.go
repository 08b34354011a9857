package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/andrewwphillips/library"
	"github.com/andrewwphillips/library/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GraphQL server",
	Long: `Start the GraphQL server.  Books, authors and users are kept in PostgreSQL
if database.url (LIBRARY_DATABASE_URL) is set, otherwise they are kept in memory.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "address to listen on (default :4000)")
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	serveCmd.Flags().Bool("seed", false, "add sample authors and books at startup")
	_ = viper.BindPFlag("seed", serveCmd.Flags().Lookup("seed"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := library.New(ctx, library.FromConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("error closing service")
		}
	}()

	// the server's WriteTimeout would also end websocket connections so the handler is wrapped instead
	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     writeTimeout(s.Handler(), cfg.HTTP.WriteTimeout),
		ReadTimeout: cfg.HTTP.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("path", cfg.Path).Bool("postgres", cfg.Database.URL != "").Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		return err
	}
	log.Info().Msg("library stopped")
	return nil
}

// writeTimeout limits the time taken to handle ordinary requests but not websocket upgrades
func writeTimeout(h http.Handler, d time.Duration) http.Handler {
	timeout := http.TimeoutHandler(h, d, `{"errors":[{"message":"request timed out"}]}`)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			h.ServeHTTP(w, r)
			return
		}
		timeout.ServeHTTP(w, r)
	})
}
