package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foundrynet/go-foundry/client"
	"github.com/foundrynet/go-foundry/jobhash"
)

var (
	submitComplexity float64
	submitDescriptor string
	flagDetails      string
	flagMember       string
	initMetadata     []string
)

func init() {
	initCmd.Flags().StringArrayVar(&initMetadata, "meta", nil, "machine metadata as key=value, repeatable")
	submitCmd.Flags().Float64Var(&submitComplexity, "complexity", 1.0, "relative job difficulty (0.5-2.0)")
	submitCmd.Flags().StringVar(&submitDescriptor, "descriptor", "", "derive the job id from this content descriptor")
	flagCmd.Flags().StringVar(&flagDetails, "details", "", "additional detail appended to the reason")
	flagCmd.Flags().StringVar(&flagMember, "member", "anonymous", "community member name")
}

func newServiceClient() (*client.Client, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return c, logger, nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "load or create the machine identity and register it",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, logger, err := newServiceClient()
		if err != nil {
			return err
		}
		defer logger.Sync()

		metadata := map[string]any{}
		for _, kv := range initMetadata {
			k, v, ok := splitKeyValue(kv)
			if !ok {
				return fmt.Errorf("invalid --meta %q, expected key=value", kv)
			}
			metadata[k] = v
		}

		res, err := c.Init(cmd.Context(), metadata)
		if err != nil {
			return err
		}
		fmt.Printf("machine %s (existing=%v)\npublic key %s\n", res.MachineID, res.Existing, res.PublicKey)
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit [job-id]",
	Short: "announce a job to the network",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, logger, err := newServiceClient()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if _, err := c.Init(cmd.Context(), nil); err != nil {
			return err
		}

		var jobID string
		switch {
		case len(args) == 1:
			jobID = args[0]
		case submitDescriptor != "":
			jobID = jobhash.New(c.MachineID(), submitDescriptor)
		default:
			return fmt.Errorf("either a job id argument or --descriptor is required")
		}

		res, err := c.SubmitJob(cmd.Context(), jobID, submitComplexity, nil)
		if err != nil {
			return err
		}
		if res.Duplicate {
			fmt.Printf("job %s already known\n", res.JobHash)
			return nil
		}
		fmt.Printf("job %s submitted\n", res.JobHash)
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <job-id> <recipient-wallet>",
	Short: "sign and submit a completion proof",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, logger, err := newServiceClient()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if _, err := c.Init(cmd.Context(), nil); err != nil {
			return err
		}
		settlement, err := c.CompleteJob(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printJSON(settlement)
		return nil
	},
}

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "fetch job details including community flags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, logger, err := newServiceClient()
		if err != nil {
			return err
		}
		defer logger.Sync()

		details, err := c.JobDetails(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJSON(details)
		return nil
	},
}

var flagCmd = &cobra.Command{
	Use:   "flag <job-id> <reason>",
	Short: "flag a job as suspicious",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, logger, err := newServiceClient()
		if err != nil {
			return err
		}
		defer logger.Sync()

		res, err := c.FlagJob(cmd.Context(), args[0], args[1], flagDetails, flagMember)
		if err != nil {
			return err
		}
		printJSON(res)
		return nil
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "fetch real-time network metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, logger, err := newServiceClient()
		if err != nil {
			return err
		}
		defer logger.Sync()

		metrics, err := c.Metrics(cmd.Context())
		if err != nil {
			return err
		}
		printJSON(metrics)
		return nil
	},
}

func splitKeyValue(kv string) (string, string, bool) {
	for i := range kv {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], i > 0
		}
	}
	return "", "", false
}
