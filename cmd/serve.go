package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/abhisek/radgrade/internal/api"
	"github.com/abhisek/radgrade/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the grading API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		gin.SetMode(cfg.Server.Mode)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := buildServices(ctx, cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		n, err := svc.store.CaseRepo().Count(ctx)
		if err != nil {
			return fmt.Errorf("count cases: %w", err)
		}
		log := logging.New("api")
		if n == 0 {
			log.Warn("case library is empty; run 'radgrade cases import' first")
		}

		srv := api.New(svc.engine, svc.store.CaseRepo(), svc.vocab.Version(), api.Options{
			CORSOrigins: cfg.Server.CORSOrigins,
		}, log)
		return srv.Serve(ctx, cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}
