package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/abhisek/quizrag/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd, true)
		if err != nil {
			return err
		}
		defer d.Close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = d.cfg.HTTPAddr
		}
		grace, _ := cmd.Flags().GetDuration("shutdown-grace")

		if d.cfg.LogMode == "prod" || d.cfg.LogMode == "production" {
			gin.SetMode(gin.ReleaseMode)
		}

		srv := httpapi.NewServer(httpapi.RouterConfig{
			Log:             d.log,
			DocumentHandler: httpapi.NewDocumentHandler(d.log, d.store, d.ingester, d.retriever),
			GenerateHandler: httpapi.NewGenerateHandler(d.log, d.service),
			CORSOrigins:     d.cfg.CORSOrigins,
			RequestTimeout:  d.cfg.RequestTimeout,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d.log.Info("listening", "addr", addr, "store", d.cfg.Store, "model", d.provider.ModelID())
		if err := srv.Run(ctx, addr, grace); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		d.log.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides QUIZRAG_HTTP_ADDR)")
	serveCmd.Flags().Duration("shutdown-grace", 10*time.Second, "How long to drain in-flight requests on shutdown")
}
