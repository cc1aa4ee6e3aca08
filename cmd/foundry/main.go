// foundry is a small CLI over the go-foundry SDK: establish a machine
// identity, submit and complete jobs against the FoundryNet service,
// or record work directly on chain.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foundrynet/go-foundry/config"
)

var (
	configFile    string
	apiURL        string
	credentialDir string
	rpcURL        string
	logLevel      string
)

func init() {
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&apiURL, "api-url", "", "override service base URL")
	root.PersistentFlags().StringVar(&credentialDir, "credential-dir", "", "override credential directory")
	root.PersistentFlags().StringVar(&rpcURL, "rpc-url", "", "override ledger RPC endpoint")
	root.PersistentFlags().StringVar(&logLevel, "level", "info", "logging level")

	root.AddCommand(initCmd, submitCmd, completeCmd, jobCmd, flagCmd, metricsCmd)
	root.AddCommand(recordCmd, registerCmd, balanceCmd)
}

var root = &cobra.Command{
	Use:           "foundry",
	Short:         "report verified machine work to FoundryNet",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, err
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if credentialDir != "" {
		cfg.CredentialDir = credentialDir
	}
	if rpcURL != "" {
		cfg.RPCURL = rpcURL
	}
	return cfg, nil
}

func newLogger() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(logLevel))
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

// printJSON renders service responses for the terminal.
func printJSON(raw json.RawMessage) {
	var buf map[string]any
	if err := json.Unmarshal(raw, &buf); err != nil {
		fmt.Println(string(raw))
		return
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(string(pretty))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
