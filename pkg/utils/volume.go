// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

const (
	// EBSCSIDriverName is the name of the AWS EBS CSI driver.
	EBSCSIDriverName = "ebs.csi.aws.com"

	// LabelTopologyZone is the well-known zone label on nodes and PVs.
	LabelTopologyZone = "topology.kubernetes.io/zone"
	// LabelFailureDomainZone is the deprecated zone label still set by the in-tree EBS plugin.
	LabelFailureDomainZone = "failure-domain.beta.kubernetes.io/zone"
	// LabelEBSCSIZone is the zone topology key of the EBS CSI driver.
	LabelEBSCSIZone = "topology.ebs.csi.aws.com/zone"
)

// EBSVolumeID returns the plain EBS volume ID of an in-tree volume ID, which may be
// given as `vol-0123` or `aws://<zone>/vol-0123`.
func EBSVolumeID(volumeID string) string {
	items := strings.Split(volumeID, "/")
	return items[len(items)-1]
}

// RegionFromZone returns the region of a standard availability zone, e.g. eu-north-1 for eu-north-1a.
func RegionFromZone(zone string) string {
	if len(zone) < 2 {
		return zone
	}
	return zone[:len(zone)-1]
}

// GetEBSVolumeID returns the EBS volume ID backing the given PV.
func GetEBSVolumeID(pv *corev1.PersistentVolume) (string, error) {
	if pv.Spec.AWSElasticBlockStore != nil {
		return EBSVolumeID(pv.Spec.AWSElasticBlockStore.VolumeID), nil
	}
	if pv.Spec.CSI != nil && pv.Spec.CSI.Driver == EBSCSIDriverName {
		return pv.Spec.CSI.VolumeHandle, nil
	}
	return "", fmt.Errorf("pv %s is not backed by an AWS EBS volume", pv.Name)
}

// SetEBSVolumeID points the given PV at another EBS volume. In-tree volume IDs keep
// their aws://<zone>/ prefix, with the zone replaced by the given one when not empty.
func SetEBSVolumeID(pv *corev1.PersistentVolume, volumeID, zone string) error {
	if pv.Spec.AWSElasticBlockStore != nil {
		current := pv.Spec.AWSElasticBlockStore.VolumeID
		if !strings.HasPrefix(current, "aws://") {
			pv.Spec.AWSElasticBlockStore.VolumeID = volumeID
			return nil
		}
		items := strings.Split(strings.TrimPrefix(current, "aws://"), "/")
		if zone == "" && len(items) > 1 {
			zone = items[0]
		}
		pv.Spec.AWSElasticBlockStore.VolumeID = fmt.Sprintf("aws://%s/%s", zone, volumeID)
		return nil
	}
	if pv.Spec.CSI != nil && pv.Spec.CSI.Driver == EBSCSIDriverName {
		pv.Spec.CSI.VolumeHandle = volumeID
		return nil
	}
	return fmt.Errorf("pv %s is not backed by an AWS EBS volume", pv.Name)
}
