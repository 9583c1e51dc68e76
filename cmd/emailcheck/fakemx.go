package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbouchez/emailcheck.go/smtptest"
)

var (
	fakeAddr     string
	fakeHostname string
	fakeAccept   []string
	fakeReject   []string
)

func init() {
	fakemxCmd.Flags().StringVar(&fakeAddr, "addr", "127.0.0.1:2525", "listen address")
	fakemxCmd.Flags().StringVar(&fakeHostname, "hostname", "mx.test.example", "hostname in the greeting")
	fakemxCmd.Flags().StringSliceVar(&fakeAccept, "accept", nil, "only these recipients exist")
	fakemxCmd.Flags().StringSliceVar(&fakeReject, "reject", nil, "these recipients do not exist")
	rootCmd.AddCommand(fakemxCmd)
}

var fakemxCmd = &cobra.Command{
	Use:   "fakemx",
	Short: "Run a local SMTP peer that answers mailbox probes",
	Long: `Run a local SMTP peer for trying out checks. By default every recipient
exists; --accept restricts that to a list and --reject removes addresses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []smtptest.Option{
			smtptest.WithAddr(fakeAddr),
			smtptest.WithHostname(fakeHostname),
			smtptest.WithLogger(logger),
		}
		switch {
		case len(fakeAccept) > 0:
			opts = append(opts, smtptest.WithRcptHandler(smtptest.Mailboxes(fakeAccept)))
		case len(fakeReject) > 0:
			opts = append(opts, smtptest.WithRcptHandler(smtptest.Reject(fakeReject)))
		}
		srv := smtptest.NewServer(opts...)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() { errc <- srv.ListenAndServe() }()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
