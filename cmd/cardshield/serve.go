package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardshield/cardshield/observability"
	"github.com/cardshield/cardshield/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := buildEnv()
			registry := buildRegistry(env)

			opts := []server.Option{server.WithOutputDir(flagOutputDir)}
			for _, id := range registry.IDs() {
				cfg, err := packConfig(id)
				if err != nil {
					return err
				}
				opts = append(opts, server.WithPackConfig(id, cfg))
			}
			srv := server.New(registry, env.Log, opts...)

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			env.Log.Info("listening", observability.String("addr", addr))
			return httpSrv.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8087", "listen address")
	return cmd
}
