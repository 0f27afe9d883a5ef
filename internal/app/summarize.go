// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/gardener/volume-encryptor/pkg/report"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

func newSummarizeCommand(loggerFn func() logr.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Print volume counts per region and state of a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			path := v.GetString(flagOutputFile)
			if path == "" {
				return fmt.Errorf("--%s is required", flagOutputFile)
			}

			records, err := report.Load(path)
			if err != nil {
				return err
			}
			loggerFn().Info("Summarizing report", "path", path, "records", len(records))
			return report.Summarize(records).Print(cmd.OutOrStdout())
		},
	}
	addOutputFileFlag(cmd.Flags())
	return cmd
}
