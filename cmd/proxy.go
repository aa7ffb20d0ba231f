package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleettrack/config"
	"github.com/kilianp07/fleettrack/core/proxy"
	"github.com/kilianp07/fleettrack/core/telemetry"
	"github.com/kilianp07/fleettrack/infra/logger"
	"github.com/kilianp07/fleettrack/infra/wialon"
)

var (
	callSID     string
	callTimeout time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange the configured token for a provider session",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var callCmd = &cobra.Command{
	Use:   "call <service> [params]",
	Short: "Issue one telemetry call through the proxy",
	Long: `Issue one telemetry call through the proxy and print the provider answer.
Params default to {} and may be read from stdin with "-".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callSID, "sid", "", "session identifier to try before the proxy session")
	for _, c := range []*cobra.Command{loginCmd, callCmd} {
		c.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "overall deadline")
		rootCmd.AddCommand(c)
	}
}

func newProxy(cfg *config.Config) *proxy.Proxy {
	return proxy.New(wialon.NewClient(cfg.Provider), proxy.Options{
		Token:       cfg.Provider.Token,
		MaxRenewals: cfg.Provider.MaxRenewals,
		Logger:      logger.New("telemetry-proxy"),
	})
}

func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	return ctx, func() { cancel(); stop() }
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	sid, err := newProxy(cfg).Login(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), sid)
	return err
}

func runCall(cmd *cobra.Command, args []string) error {
	params, err := readParams(cmd.InOrStdin(), args[1:])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	resp, err := newProxy(cfg).Execute(ctx, telemetry.Request{Service: args[0], Params: params, SID: callSID})
	if err != nil && resp == nil {
		return err
	}
	if perr := printJSON(cmd.OutOrStdout(), resp); perr != nil {
		return perr
	}
	return err
}

func readParams(stdin io.Reader, args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return json.RawMessage("{}"), nil
	}
	raw := []byte(args[0])
	if args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read params: %w", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("params are not valid JSON")
	}
	return json.RawMessage(bytes.TrimSpace(raw)), nil
}

func printJSON(w io.Writer, resp telemetry.Response) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, resp, "", "  "); err != nil {
		buf.Reset()
		buf.Write(resp)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
