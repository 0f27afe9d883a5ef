// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

// SetDefaults fills in every unset field of the configuration.
func SetDefaults(c *Configuration) {
	if c.Target.PersistentVolumeName == "" {
		c.Target.PersistentVolumeName = DefaultPersistentVolumeName
	}
	if c.Target.PersistentVolumeClaimName == "" {
		c.Target.PersistentVolumeClaimName = DefaultPersistentVolumeClaimName
	}
	if c.Target.Namespace == "" {
		c.Target.Namespace = DefaultNamespace
	}
	if c.Target.StatefulSetName == "" {
		c.Target.StatefulSetName = DefaultStatefulSetName
	}
	if c.AWS.Region == "" {
		c.AWS.Region = DefaultRegion
	}
	if c.AWS.DeviceName == "" {
		c.AWS.DeviceName = DefaultDeviceName
	}
	if c.ManifestDir == "" {
		c.ManifestDir = DefaultManifestDir
	}

	if c.Polling.Interval.Duration == 0 {
		c.Polling.Interval.Duration = DefaultPollInterval
	}
	if c.Polling.SnapshotTimeout.Duration == 0 {
		c.Polling.SnapshotTimeout.Duration = DefaultSnapshotTimeout
	}
	if c.Polling.VolumeTimeout.Duration == 0 {
		c.Polling.VolumeTimeout.Duration = DefaultVolumeTimeout
	}
	if c.Polling.DeletionTimeout.Duration == 0 {
		c.Polling.DeletionTimeout.Duration = DefaultDeletionTimeout
	}
	if c.Polling.ScaleTimeout.Duration == 0 {
		c.Polling.ScaleTimeout.Duration = DefaultScaleTimeout
	}
}
