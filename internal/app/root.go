// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// NewRootCommand returns the encrypt-volumes command with its subcommands.
func NewRootCommand() *cobra.Command {
	var logger logr.Logger

	cmd := &cobra.Command{
		Use:   "encrypt-volumes",
		Short: "Replace unencrypted EBS volumes behind a statefulset's persistent volume",
		Long: `encrypt-volumes walks all nodes of a cluster, looks up the EBS volume of each node's
instance and replaces unencrypted volumes by encrypted copies. The configured persistent volume
and claim are recreated on top of the new volume and the statefulset is scaled back up.

Every flag can also be set through an ENCRYPT_VOLUMES_<FLAG> environment variable
(e.g. ENCRYPT_VOLUMES_DRY_RUN=true) or through a YAML file passed with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			if logger, err = newLogger(cmd.ErrOrStderr(), v.GetString(flagLogLevel), v.GetBool(flagLogDev)); err != nil {
				return err
			}
			logf.SetLogger(logger)
			return nil
		},
	}
	addGlobalFlags(cmd.PersistentFlags())

	loggerFn := func() logr.Logger { return logger }
	cmd.AddCommand(newRunCommand(loggerFn))
	cmd.AddCommand(newSummarizeCommand(loggerFn))

	return cmd
}
