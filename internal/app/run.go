// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"time"

	encerrors "github.com/gardener/volume-encryptor/internal/errors"
	awsec2 "github.com/gardener/volume-encryptor/pkg/aws/ec2"
	"github.com/gardener/volume-encryptor/pkg/client/kubernetes"
	"github.com/gardener/volume-encryptor/pkg/encryption"
	"github.com/gardener/volume-encryptor/pkg/report"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"
)

func newRunCommand(loggerFn func() logr.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replace the unencrypted volumes of all nodes",
		Long: `run checks the volume of every node and, unless --dry-run is set, replaces unencrypted
volumes: snapshot, encrypted copy, new volume, attachment, PV/PVC rebind and statefulset scale-up.
One record per node is appended to the JSON report given by --output-file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplacement(cmd, loggerFn())
		},
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func runReplacement(cmd *cobra.Command, logger logr.Logger) error {
	ctx := cmd.Context()

	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	config, err := configurationFrom(v)
	if err != nil {
		return err
	}
	if config.OutputFile == "" {
		config.OutputFile = report.DefaultFileName(time.Now())
	}
	logger.Info("Running with configuration", "target", config.Target, "aws", config.AWS, "dryRun", config.DryRun, "outputFile", config.OutputFile)

	c, err := kubernetes.NewClient(config.Kubeconfig)
	if err != nil {
		return fmt.Errorf("unable to get client for cluster: %w", err)
	}
	ec2Client, err := awsec2.NewFromConfig(ctx, config.AWS.Region, logger)
	if err != nil {
		return err
	}

	existing, err := report.Load(config.OutputFile)
	if err != nil {
		return err
	}
	logger.Info("Loaded report", "path", config.OutputFile, "records", len(existing))

	records, runErr := encryption.New(c, ec2Client, config, clock.RealClock{}, logger).Run(ctx)
	if err = report.Save(config.OutputFile, report.Merge(existing, records)); err != nil {
		if runErr != nil {
			logger.Error(err, "Unable to save report")
			return runErr
		}
		return err
	}
	logger.Info("Saved report", "path", config.OutputFile, "records", len(records))

	if runErr != nil {
		logStepFailure(logger, runErr)
		return fmt.Errorf("volume replacement failed: %w", runErr)
	}
	return nil
}

// logStepFailure logs the code and operation of the step that failed the run.
func logStepFailure(logger logr.Logger, err error) {
	stepErr := encerrors.AsStepError(err)
	if stepErr == nil {
		logger.Error(err, "Volume replacement failed")
		return
	}
	logger.Error(stepErr.Cause, "Volume replacement step failed", "code", stepErr.Code, "operation", stepErr.Operation, "message", stepErr.Message, "observedAt", stepErr.ObservedAt)
}
