package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foundrynet/go-foundry/keystore"
	"github.com/foundrynet/go-foundry/onchain"
)

var (
	recordDuration   uint64
	recordComplexity float64
)

func init() {
	recordCmd.Flags().Uint64Var(&recordDuration, "duration", 60, "work duration in seconds")
	recordCmd.Flags().Float64Var(&recordComplexity, "complexity", 1.0, "relative difficulty (clamped to 0.5-2.0)")
}

func newRecorder() (*onchain.Recorder, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	id, err := keystore.Load(cfg.CredentialDir)
	if errors.Is(err, keystore.ErrNotFound) {
		id, err = keystore.Generate()
		if err != nil {
			return nil, nil, err
		}
		if err := keystore.Save(id, cfg.CredentialDir); err != nil {
			return nil, nil, err
		}
		logger.Info("generated new machine identity", zap.String("machine_uuid", id.MachineID))
	} else if err != nil {
		return nil, nil, err
	}

	r, err := onchain.New(id, cfg, onchain.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return r, logger, nil
}

var recordCmd = &cobra.Command{
	Use:   "record <description>",
	Short: "record completed work on chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, logger, err := newRecorder()
		if err != nil {
			return err
		}
		defer logger.Sync()

		sig, err := r.Record(cmd.Context(), args[0], recordDuration, recordComplexity)
		if err != nil {
			return err
		}
		fmt.Printf("recorded, expected ~%.3f MINT\ntx %s\n",
			onchain.EstimateEarnings(recordDuration, recordComplexity), sig)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "create the on-chain machine account",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, logger, err := newRecorder()
		if err != nil {
			return err
		}
		defer logger.Sync()

		registered, err := r.Registered(cmd.Context())
		if err != nil {
			return err
		}
		if registered {
			fmt.Printf("machine %s already registered\n", r.WalletAddress())
			return nil
		}
		sig, err := r.Register(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("registered machine %s\ntx %s\n", r.WalletAddress(), sig)
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "show the wallet's MINT balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, logger, err := newRecorder()
		if err != nil {
			return err
		}
		defer logger.Sync()

		balance, err := r.MintBalance(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %.4f MINT\n", r.WalletAddress(), balance)
		return nil
	},
}
