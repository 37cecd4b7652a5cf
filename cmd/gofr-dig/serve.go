package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/gofr-dig/internal/crawl"
	"github.com/FranksOps/gofr-dig/internal/logging"
	"github.com/FranksOps/gofr-dig/internal/rpcserver"
	"github.com/FranksOps/gofr-dig/internal/webserver"
)

// serveCmd starts both the tool-call RPC listener and the HTTP API
// listener, matching app/main_web.py's dual-server process. Either
// listener's fatal error tears down the other, via errgroup.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server and the tool-call RPC listener",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd.Flags())

		antiDetect := buildAntiDetect()
		fetcher := buildFetcher(cfg, antiDetect)
		checker := buildRobotsChecker(fetcher)
		store := buildSessionStore(cfg)

		rpc := &rpcserver.Server{
			Fetcher:    fetcher,
			Robots:     checker,
			Crawler:    crawl.New(fetcher, checker),
			Sessions:   store,
			AntiDetect: antiDetect,
			Authz:      buildAuthorizer(),
		}

		srv := &webserver.Server{
			RPC:       rpc,
			Authz:     rpc.Authz,
			RateLimit: buildRateLimiter(cfg),
		}

		g, ctx := errgroup.WithContext(context.Background())

		webAddr := fmt.Sprintf(":%d", cfg.WebPort)
		webSrv := &http.Server{Addr: webAddr, Handler: srv.Mux()}
		g.Go(func() error {
			logging.Base().Info("starting HTTP API server", "addr", webAddr)
			return webSrv.ListenAndServe()
		})

		mcpAddr := fmt.Sprintf(":%d", cfg.MCPPort)
		mcpSrv := &http.Server{Addr: mcpAddr, Handler: srv.ToolMux()}
		g.Go(func() error {
			logging.Base().Info("starting tool-call RPC listener", "addr", mcpAddr)
			return mcpSrv.ListenAndServe()
		})

		g.Go(func() error {
			<-ctx.Done()
			_ = webSrv.Close()
			_ = mcpSrv.Close()
			return nil
		})

		if err := g.Wait(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "gofr-dig: serve exited: %v\n", err)
			os.Exit(1)
		}
	},
}
