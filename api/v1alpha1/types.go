// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// DefaultRegion is the AWS region used when none is configured.
	DefaultRegion = "eu-north-1"
	// DefaultDeviceName is the device name the encrypted volume is attached under.
	DefaultDeviceName = "/dev/sdf"
	// DefaultPersistentVolumeName is the name of the PV that is rebound.
	DefaultPersistentVolumeName = "mymanual-pv"
	// DefaultPersistentVolumeClaimName is the name of the PVC that is rebound.
	DefaultPersistentVolumeClaimName = "www-nginx-0"
	// DefaultNamespace is the namespace of the PVC and the StatefulSet.
	DefaultNamespace = "default"
	// DefaultStatefulSetName is the name of the StatefulSet scaled up after the rebind.
	DefaultStatefulSetName = "nginx"
	// DefaultReplicas is the replica count the StatefulSet is scaled to.
	DefaultReplicas int32 = 1
	// DefaultManifestDir is the directory the PV and PVC manifests are written to.
	DefaultManifestDir = "."

	// DefaultPollInterval is the interval between two snapshot or volume state checks.
	DefaultPollInterval = 10 * time.Second
	// DefaultSnapshotTimeout bounds the wait for a snapshot to complete.
	DefaultSnapshotTimeout = 2 * time.Hour
	// DefaultVolumeTimeout bounds the wait for a volume to become available.
	DefaultVolumeTimeout = 30 * time.Minute
	// DefaultDeletionTimeout bounds the wait for the PV and PVC to disappear.
	DefaultDeletionTimeout = 2 * time.Minute
	// DefaultScaleTimeout bounds the wait for the StatefulSet to report ready replicas.
	DefaultScaleTimeout = 5 * time.Minute
)

// Configuration is the configuration of a volume replacement run.
type Configuration struct {
	// Kubeconfig is the path to the kubeconfig of the target cluster.
	// +optional
	Kubeconfig string `json:"kubeconfig,omitempty"`
	// Target identifies the cluster objects bound to the replaced volume.
	Target TargetSpec `json:"target"`
	// AWS holds the cloud provider settings.
	AWS AWSSpec `json:"aws"`
	// Polling holds the intervals and timeouts of all waits.
	Polling PollingSpec `json:"polling"`
	// DryRun stops every node after the encryption check.
	DryRun bool `json:"dryRun"`
	// ManifestDir is the directory existing_pv.yaml and existing_pvc.yaml are written to.
	ManifestDir string `json:"manifestDir"`
	// OutputFile is the JSON report the volume records are appended to.
	// +optional
	OutputFile string `json:"outputFile,omitempty"`
}

// TargetSpec identifies the PV, PVC and StatefulSet of a run.
type TargetSpec struct {
	PersistentVolumeName      string `json:"persistentVolumeName"`
	PersistentVolumeClaimName string `json:"persistentVolumeClaimName"`
	Namespace                 string `json:"namespace"`
	StatefulSetName           string `json:"statefulSetName"`
	Replicas                  int32  `json:"replicas"`
}

// AWSSpec defines the EC2 settings.
type AWSSpec struct {
	// Region is the region of the EC2 client and the source region of snapshot copies.
	Region string `json:"region"`
	// AvailabilityZone is the zone new volumes are created in. Empty means the
	// zone of the source volume.
	// +optional
	AvailabilityZone string `json:"availabilityZone,omitempty"`
	// DeviceName is the device the encrypted volume is attached under.
	DeviceName string `json:"deviceName"`
	// KMSKeyID is used to encrypt snapshot copies. Empty means the account default key.
	// +optional
	KMSKeyID string `json:"kmsKeyID,omitempty"`
}

// PollingSpec defines the waits of a run.
type PollingSpec struct {
	Interval        metav1.Duration `json:"interval"`
	SnapshotTimeout metav1.Duration `json:"snapshotTimeout"`
	VolumeTimeout   metav1.Duration `json:"volumeTimeout"`
	DeletionTimeout metav1.Duration `json:"deletionTimeout"`
	ScaleTimeout    metav1.Duration `json:"scaleTimeout"`
}

// ReplacementState is the outcome of processing a single node.
type ReplacementState string

const (
	// ReplacementStateSkipped indicates that no instance or volume was found for the node.
	ReplacementStateSkipped ReplacementState = "Skipped"
	// ReplacementStateAlreadyEncrypted indicates that the volume is already encrypted.
	ReplacementStateAlreadyEncrypted ReplacementState = "AlreadyEncrypted"
	// ReplacementStateDryRun indicates that the volume is unencrypted but was left untouched.
	ReplacementStateDryRun ReplacementState = "DryRun"
	// ReplacementStateReplaced indicates that the volume was replaced by an encrypted copy.
	ReplacementStateReplaced ReplacementState = "Replaced"
	// ReplacementStateFailed indicates that the replacement stopped with an error.
	ReplacementStateFailed ReplacementState = "Failed"
)

// VolumeRecord is a report entry for a single node.
type VolumeRecord struct {
	Node       string `json:"node"`
	InternalIP string `json:"internalIP,omitempty"`
	InstanceID string `json:"instanceID,omitempty"`
	VolumeID   string `json:"volumeID,omitempty"`
	Region     string `json:"region"`
	Zone       string `json:"zone,omitempty"`
	Encrypted  bool   `json:"encrypted"`
	// SnapshotID is the snapshot taken of, or found for, the source volume.
	// +optional
	SnapshotID string `json:"snapshotID,omitempty"`
	// EncryptedSnapshotID is the encrypted copy of SnapshotID.
	// +optional
	EncryptedSnapshotID string `json:"encryptedSnapshotID,omitempty"`
	// NewVolumeID is the encrypted volume created from the encrypted snapshot.
	// +optional
	NewVolumeID string           `json:"newVolumeID,omitempty"`
	Attached    bool             `json:"attached"`
	State       ReplacementState `json:"state"`
	// +optional
	Error     string      `json:"error,omitempty"`
	Timestamp metav1.Time `json:"timestamp"`
}
