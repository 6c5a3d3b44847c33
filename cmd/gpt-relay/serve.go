package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/gpt-relay/internal/adapters/discord"
	httpadapter "github.com/PabloGalante/gpt-relay/internal/adapters/http"
	"github.com/PabloGalante/gpt-relay/internal/observability"
)

const shutdownTimeout = 10 * time.Second

var (
	serveDiscord bool
	serveHTTP    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the discord bot and/or the HTTP command API",
	Long: `Runs the selected surfaces until SIGINT or SIGTERM.
With no flags the discord bot is started.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDiscord, "discord", false, "connect the discord bot")
	serveCmd.Flags().BoolVar(&serveHTTP, "http", false, "serve the HTTP command API on HTTP_ADDR")
}

func runServe(cmd *cobra.Command, args []string) error {
	if !serveDiscord && !serveHTTP {
		serveDiscord = true
	}
	if serveDiscord {
		if err := cfg.RequireDiscord(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)

	if serveDiscord {
		gw, err := discord.NewGateway(cfg.DiscordToken, a.dispatcher, cfg.CompletionTimeout+5*time.Second)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return gw.Run(ctx)
		})
	}

	if serveHTTP {
		e := httpadapter.NewServer(a.dispatcher, a.store)
		g.Go(func() error {
			observability.WithFields("surface", "http").Info("http api listening", "addr", cfg.HTTPAddr)
			if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	observability.Logger().Info("gpt-relay stopped")
	return err
}
