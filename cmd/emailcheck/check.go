package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alexisbouchez/emailcheck.go/checker"
)

var checkJSON bool

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print one JSON object per address")
	checkCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while checking")
	bindFlag(checkCmd, "metrics-addr")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check [addresses...]",
	Short: "Check whether mailboxes exist",
	Long: `Check each address and print its status. Addresses are read from standard
input, one per line, when none are given or the only argument is "-".`,
	RunE: runCheck,
}

// checkOutput is the JSON form of one result.
type checkOutput struct {
	checker.Result
	Error string `json:"error,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	addrs := args
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		addrs, err = readAddresses(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := viper.GetString("metrics_addr"); addr != "" {
		srv := serveMetrics(addr, logger)
		defer srv.Close()
	}

	c, err := cfg.NewChecker(logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Shutdown(shutdownCtx)
	}()

	handles, err := submitAll(ctx, c, addrs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, h := range handles {
		res, err := h.Wait(ctx)
		if err != nil {
			return err
		}
		if checkJSON {
			out := checkOutput{Result: res}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.Address, res.Status)
	}
	return nil
}

// submitAll submits every address in order. When the backlog is full it
// waits for the oldest pending check before retrying.
func submitAll(ctx context.Context, c *checker.Checker, addrs []string) ([]*checker.Handle, error) {
	handles := make([]*checker.Handle, 0, len(addrs))
	next := 0 // Oldest handle not yet known to be done.
	for _, addr := range addrs {
		for {
			h, err := c.Submit(addr)
			if err == nil {
				handles = append(handles, h)
				break
			}
			if !errors.Is(err, checker.ErrSaturated) {
				return nil, err
			}
			if next >= len(handles) {
				// Nothing of ours is pending; the workers are about to
				// pick up the queue.
				select {
				case <-time.After(10 * time.Millisecond):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			if _, err := handles[next].Wait(ctx); err != nil {
				return nil, err
			}
			next++
		}
	}
	return handles, nil
}

func readAddresses(r io.Reader) ([]string, error) {
	var addrs []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addrs = append(addrs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read addresses: %w", err)
	}
	return addrs, nil
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}
