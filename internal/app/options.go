// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/gardener/volume-encryptor/api/v1alpha1"
	"github.com/gardener/volume-encryptor/pkg/client/kubernetes"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// EnvPrefix is the prefix of all environment variables that override flags, e.g. ENCRYPT_VOLUMES_DRY_RUN.
	EnvPrefix = "ENCRYPT_VOLUMES"
	// EnvAWSRegion is the environment variable the default region is taken from.
	EnvAWSRegion = "AWS_REGION"
)

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
	flagLogDev   = "log-dev"

	flagKubeconfig      = "kubeconfig"
	flagPVName          = "pv-name"
	flagPVCName         = "pvc-name"
	flagNamespace       = "namespace"
	flagStatefulSetName = "statefulset-name"
	flagReplicas        = "replicas"
	flagRegion          = "region"
	flagZone            = "zone"
	flagDeviceName      = "device-name"
	flagKMSKeyID        = "kms-key-id"
	flagPollInterval    = "poll-interval"
	flagSnapshotTimeout = "snapshot-timeout"
	flagVolumeTimeout   = "volume-timeout"
	flagDeletionTimeout = "deletion-timeout"
	flagScaleTimeout    = "scale-timeout"
	flagDryRun          = "dry-run"
	flagManifestDir     = "manifest-dir"
	flagOutputFile      = "output-file"
)

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String(flagConfig, "", "Path to a YAML file with flag values, keyed by flag name.")
	fs.String(flagLogLevel, "info", "Log level, one of debug, info or error.")
	fs.Bool(flagLogDev, false, "Use the human readable development log encoder.")
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.String(flagKubeconfig, "", fmt.Sprintf("Path to kubeconfig file. Default: value of %s environment variable, then in-cluster config.", kubernetes.EnvKubeconfig))
	fs.String(flagPVName, v1alpha1.DefaultPersistentVolumeName, "Name of the persistent volume to rebind.")
	fs.String(flagPVCName, v1alpha1.DefaultPersistentVolumeClaimName, "Name of the persistent volume claim bound to the persistent volume.")
	fs.String(flagNamespace, v1alpha1.DefaultNamespace, "Namespace of the persistent volume claim and the statefulset.")
	fs.String(flagStatefulSetName, v1alpha1.DefaultStatefulSetName, "Name of the statefulset to scale after the rebind.")
	fs.Int32(flagReplicas, v1alpha1.DefaultReplicas, "Replicas the statefulset is scaled to after the rebind.")
	fs.String(flagRegion, defaultRegion(), fmt.Sprintf("AWS region of the instances. Default: value of %s environment variable, then %s.", EnvAWSRegion, v1alpha1.DefaultRegion))
	fs.String(flagZone, "", "Availability zone new volumes are created in. Default: zone of the replaced volume.")
	fs.String(flagDeviceName, v1alpha1.DefaultDeviceName, "Device name the encrypted volume is attached under.")
	fs.String(flagKMSKeyID, "", "KMS key used to encrypt snapshot copies. Default: the account's default EBS key.")
	fs.Duration(flagPollInterval, v1alpha1.DefaultPollInterval, "Interval of all polls.")
	fs.Duration(flagSnapshotTimeout, v1alpha1.DefaultSnapshotTimeout, "Timeout for a snapshot to complete.")
	fs.Duration(flagVolumeTimeout, v1alpha1.DefaultVolumeTimeout, "Timeout for a volume to become available.")
	fs.Duration(flagDeletionTimeout, v1alpha1.DefaultDeletionTimeout, "Timeout for the persistent volume and claim to be deleted.")
	fs.Duration(flagScaleTimeout, v1alpha1.DefaultScaleTimeout, "Timeout for the statefulset to become ready.")
	fs.Bool(flagDryRun, false, "Only report the encryption state of the volumes.")
	fs.String(flagManifestDir, v1alpha1.DefaultManifestDir, "Directory existing_pv.yaml and existing_pvc.yaml are written to.")
	addOutputFileFlag(fs)
}

func addOutputFileFlag(fs *pflag.FlagSet) {
	fs.String(flagOutputFile, "", "Path to the JSON report. If the file does not exist, it is created.")
}

func defaultRegion() string {
	if region := os.Getenv(EnvAWSRegion); region != "" {
		return region
	}
	return v1alpha1.DefaultRegion
}

// newViper returns a viper instance that resolves every flag of the command from, in order of precedence,
// the command line, the environment and the config file.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("unable to bind flags: %w", err)
	}

	if file := v.GetString(flagConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file %s: %w", file, err)
		}
	}
	return v, nil
}

// configurationFrom builds a defaulted and validated configuration from the resolved settings.
func configurationFrom(v *viper.Viper) (*v1alpha1.Configuration, error) {
	config := &v1alpha1.Configuration{
		Kubeconfig: v.GetString(flagKubeconfig),
		Target: v1alpha1.TargetSpec{
			PersistentVolumeName:      v.GetString(flagPVName),
			PersistentVolumeClaimName: v.GetString(flagPVCName),
			Namespace:                 v.GetString(flagNamespace),
			StatefulSetName:           v.GetString(flagStatefulSetName),
			Replicas:                  v.GetInt32(flagReplicas),
		},
		AWS: v1alpha1.AWSSpec{
			Region:           v.GetString(flagRegion),
			AvailabilityZone: v.GetString(flagZone),
			DeviceName:       v.GetString(flagDeviceName),
			KMSKeyID:         v.GetString(flagKMSKeyID),
		},
		Polling: v1alpha1.PollingSpec{
			Interval:        metav1.Duration{Duration: v.GetDuration(flagPollInterval)},
			SnapshotTimeout: metav1.Duration{Duration: v.GetDuration(flagSnapshotTimeout)},
			VolumeTimeout:   metav1.Duration{Duration: v.GetDuration(flagVolumeTimeout)},
			DeletionTimeout: metav1.Duration{Duration: v.GetDuration(flagDeletionTimeout)},
			ScaleTimeout:    metav1.Duration{Duration: v.GetDuration(flagScaleTimeout)},
		},
		DryRun:      v.GetBool(flagDryRun),
		ManifestDir: v.GetString(flagManifestDir),
		OutputFile:  v.GetString(flagOutputFile),
	}

	v1alpha1.SetDefaults(config)
	if errs := v1alpha1.Validate(config); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errs.ToAggregate())
	}
	return config, nil
}
