package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/diet-tracker/billsync/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only bill API over HTTP",
	Long:  "Exposes bills, process history, stage counts, and on-demand audits as JSON. All endpoints are read-only.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		serverCfg := cfg.Server
		if servePort > 0 {
			serverCfg.Port = servePort
		}
		srv := server.New(st, newAuditor(st), serverCfg)
		if err := srv.ListenAndServe(ctx); err != nil {
			return eris.Wrap(err, "serve")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
