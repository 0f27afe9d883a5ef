// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package encryption

import (
	"context"
	"fmt"

	"github.com/gardener/volume-encryptor/api/v1alpha1"
	"github.com/gardener/volume-encryptor/internal/component/persistentvolume"
	"github.com/gardener/volume-encryptor/internal/component/statefulset"
	encerrors "github.com/gardener/volume-encryptor/internal/errors"
	awsec2 "github.com/gardener/volume-encryptor/pkg/aws/ec2"
	"github.com/gardener/volume-encryptor/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"
	"k8s.io/utils/pointer"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// ErrListNodes indicates an error in listing the cluster nodes.
	ErrListNodes encerrors.ErrorCode = "ERR_LIST_NODES"
	// ErrFindInstance indicates an error in looking up the instance of a node.
	ErrFindInstance encerrors.ErrorCode = "ERR_FIND_INSTANCE"
	// ErrGetVolume indicates an error in looking up the volume of an instance.
	ErrGetVolume encerrors.ErrorCode = "ERR_GET_VOLUME"
	// ErrCreateSnapshot indicates an error in finding or taking a snapshot of the source volume.
	ErrCreateSnapshot encerrors.ErrorCode = "ERR_CREATE_SNAPSHOT"
	// ErrCopySnapshot indicates an error in creating the encrypted copy of the snapshot.
	ErrCopySnapshot encerrors.ErrorCode = "ERR_COPY_SNAPSHOT"
	// ErrCreateVolume indicates an error in creating the encrypted volume.
	ErrCreateVolume encerrors.ErrorCode = "ERR_CREATE_VOLUME"
	// ErrAttachVolume indicates an error in attaching the encrypted volume.
	ErrAttachVolume encerrors.ErrorCode = "ERR_ATTACH_VOLUME"
)

const (
	operationListNodes      = "ListNodes"
	operationFindInstance   = "FindInstance"
	operationGetVolume      = "GetVolume"
	operationCreateSnapshot = "CreateSnapshot"
	operationCopySnapshot   = "CopySnapshot"
	operationCreateVolume   = "CreateVolume"
	operationAttachVolume   = "AttachVolume"
)

// Replacer replaces the unencrypted volumes of the cluster's instances by encrypted copies and moves the
// configured PV and PVC over to them.
type Replacer struct {
	client   client.Client
	ec2      *awsec2.Client
	rebinder *persistentvolume.Rebinder
	scaler   *statefulset.Scaler
	config   *v1alpha1.Configuration
	clock    clock.PassiveClock
	logger   logr.Logger
}

// New returns a new Replacer. The configuration is expected to be defaulted and validated.
func New(c client.Client, ec2Client *awsec2.Client, config *v1alpha1.Configuration, clock clock.PassiveClock, logger logr.Logger) *Replacer {
	return &Replacer{
		client: c,
		ec2:    ec2Client,
		rebinder: persistentvolume.New(c, persistentvolume.Values{
			PersistentVolumeName:      config.Target.PersistentVolumeName,
			PersistentVolumeClaimName: config.Target.PersistentVolumeClaimName,
			Namespace:                 config.Target.Namespace,
			ManifestDir:               config.ManifestDir,
			PollInterval:              config.Polling.Interval.Duration,
			DeletionTimeout:           config.Polling.DeletionTimeout.Duration,
		}, logger),
		scaler: statefulset.New(c, config.Polling.Interval.Duration, config.Polling.ScaleTimeout.Duration, logger),
		config: config,
		clock:  clock,
		logger: logger,
	}
}

// Run processes all nodes of the cluster in order and returns one record per processed node. The run stops
// at the first failing node; the records collected until then are returned together with the error. Nothing
// is rolled back.
func (r *Replacer) Run(ctx context.Context) ([]v1alpha1.VolumeRecord, error) {
	if !r.config.DryRun {
		if err := r.checkTarget(ctx); err != nil {
			return nil, err
		}
	}

	r.logger.Info("Listing nodes")
	nodes := &corev1.NodeList{}
	if err := r.client.List(ctx, nodes); err != nil {
		return nil, encerrors.WrapError(err, ErrListNodes, operationListNodes, "unable to list nodes")
	}
	r.logger.Info("Listed nodes", "count", len(nodes.Items))

	records := make([]v1alpha1.VolumeRecord, 0, len(nodes.Items))
	for i := range nodes.Items {
		record := r.newRecord(&nodes.Items[i])
		err := r.replace(ctx, &nodes.Items[i], record)
		if err != nil {
			record.State = v1alpha1.ReplacementStateFailed
			record.Error = err.Error()
		}
		records = append(records, *record)
		if err != nil {
			return records, err
		}
	}
	return records, nil
}

// checkTarget makes sure the StatefulSet exists before any volume is touched and warns if the PVC does not
// belong to it.
func (r *Replacer) checkTarget(ctx context.Context) error {
	key := client.ObjectKey{Namespace: r.config.Target.Namespace, Name: r.config.Target.StatefulSetName}
	sts, err := r.scaler.Get(ctx, key)
	if err != nil {
		return err
	}
	if ordinal, ok := statefulset.ClaimOrdinal(sts, r.config.Target.PersistentVolumeClaimName); !ok {
		r.logger.Info("PVC was not created from a claim template of the statefulset", "pvc", r.config.Target.PersistentVolumeClaimName, "statefulSet", key)
	} else if ordinal >= int(r.config.Target.Replicas) {
		r.logger.Info("PVC belongs to a replica that is not started by the target replica count", "pvc", r.config.Target.PersistentVolumeClaimName, "ordinal", ordinal, "replicas", r.config.Target.Replicas)
	}
	return nil
}

func (r *Replacer) newRecord(node *corev1.Node) *v1alpha1.VolumeRecord {
	return &v1alpha1.VolumeRecord{
		Node:      node.Name,
		Region:    r.ec2.Region(),
		State:     v1alpha1.ReplacementStateSkipped,
		Timestamp: metav1.NewTime(r.clock.Now()),
	}
}

func (r *Replacer) replace(ctx context.Context, node *corev1.Node, record *v1alpha1.VolumeRecord) error {
	logger := r.logger.WithValues("node", node.Name)
	logger.Info("Checking node")

	ip, err := utils.GetNodeInternalIP(node)
	if err != nil {
		logger.Info("Skipping node", "reason", err.Error())
		return nil
	}
	record.InternalIP = ip

	instance, err := r.findInstance(ctx, node, ip)
	if err != nil {
		return encerrors.WrapError(err, ErrFindInstance, operationFindInstance, fmt.Sprintf("unable to find instance of node %s", node.Name))
	}
	if instance == nil {
		logger.Info("No instance found for node, skipping", "internalIP", ip)
		return nil
	}
	instanceID := aws.ToString(instance.InstanceId)
	record.InstanceID = instanceID
	logger = logger.WithValues("instanceID", instanceID)
	logger.Info("Found instance", "internalIP", ip)

	volumes, err := r.ec2.ListVolumesForInstance(ctx, instanceID)
	if err != nil {
		return encerrors.WrapError(err, ErrGetVolume, operationGetVolume, fmt.Sprintf("unable to list volumes of instance %s", instanceID))
	}
	if len(volumes) == 0 {
		logger.Info("No volumes found for instance, skipping")
		return nil
	}
	volumeID := aws.ToString(volumes[0].VolumeId)
	record.VolumeID = volumeID
	logger = logger.WithValues("volumeID", volumeID)

	volume, err := r.ec2.GetVolume(ctx, volumeID)
	if err != nil {
		return encerrors.WrapError(err, ErrGetVolume, operationGetVolume, fmt.Sprintf("unable to get volume %s", volumeID))
	}
	record.Encrypted = awsec2.IsVolumeEncrypted(volume)
	record.Zone = aws.ToString(volume.AvailabilityZone)
	logger.Info("Fetched encryption status of volume", "encrypted", record.Encrypted)

	if record.Encrypted {
		record.State = v1alpha1.ReplacementStateAlreadyEncrypted
		return nil
	}
	if r.config.DryRun {
		logger.Info("Dry run, leaving unencrypted volume untouched")
		record.State = v1alpha1.ReplacementStateDryRun
		return nil
	}

	snapshot, err := r.sourceSnapshot(ctx, logger, volumeID)
	if err != nil {
		return err
	}
	record.SnapshotID = aws.ToString(snapshot.SnapshotId)

	encryptedSnapshotID, err := r.encryptedSnapshot(ctx, logger, snapshot)
	if err != nil {
		return err
	}
	record.EncryptedSnapshotID = encryptedSnapshotID

	zone := r.config.AWS.AvailabilityZone
	if zone == "" {
		zone = record.Zone
	}
	newVolumeID, err := r.createVolume(ctx, logger, encryptedSnapshotID, zone, volume)
	if err != nil {
		return err
	}
	record.NewVolumeID = newVolumeID

	if record.Attached, err = r.attachVolume(ctx, logger, newVolumeID, instanceID); err != nil {
		return err
	}

	key := client.ObjectKey{Namespace: r.config.Target.Namespace, Name: r.config.Target.StatefulSetName}
	logger.Info("Scaling down statefulset to release the PVC", "statefulSet", key)
	if err = r.scaler.Scale(ctx, key, 0); err != nil {
		return err
	}

	if _, _, err = r.rebinder.Rebind(ctx, newVolumeID, zone); err != nil {
		return err
	}

	if err = r.scaler.Scale(ctx, key, r.config.Target.Replicas); err != nil {
		return err
	}

	record.State = v1alpha1.ReplacementStateReplaced
	logger.Info("Replaced volume", "newVolumeID", newVolumeID)
	return nil
}

// findInstance looks the instance up by the node's IP and falls back to the node's provider ID.
func (r *Replacer) findInstance(ctx context.Context, node *corev1.Node, ip string) (*types.Instance, error) {
	instance, err := r.ec2.FindInstanceByPrivateIP(ctx, ip)
	if err != nil || instance != nil {
		return instance, err
	}
	instanceID, err := utils.InstanceIDFromProviderID(node.Spec.ProviderID)
	if err != nil {
		return nil, nil
	}
	instance, err = r.ec2.GetInstance(ctx, instanceID)
	if err != nil {
		if awsec2.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return instance, nil
}

// sourceSnapshot returns the newest snapshot of the volume or takes a new one, and waits until it is completed.
func (r *Replacer) sourceSnapshot(ctx context.Context, logger logr.Logger, volumeID string) (*types.Snapshot, error) {
	snapshots, err := r.ec2.ListSnapshotsForVolume(ctx, volumeID)
	if err != nil {
		return nil, encerrors.WrapError(err, ErrCreateSnapshot, operationCreateSnapshot, fmt.Sprintf("unable to list snapshots of volume %s", volumeID))
	}

	var snapshot *types.Snapshot
	if len(snapshots) > 0 {
		snapshot = &snapshots[0]
		logger.Info("Reusing existing snapshot", "snapshotID", aws.ToString(snapshot.SnapshotId), "encrypted", pointer.BoolDeref(snapshot.Encrypted, false))
	} else {
		logger.Info("Creating snapshot")
		snapshotID, err := r.ec2.CreateSnapshot(ctx, volumeID)
		if err != nil {
			return nil, encerrors.WrapError(err, ErrCreateSnapshot, operationCreateSnapshot, fmt.Sprintf("unable to create snapshot of volume %s", volumeID))
		}
		logger.Info("Created snapshot", "snapshotID", snapshotID)
		snapshot = &types.Snapshot{SnapshotId: aws.String(snapshotID), State: types.SnapshotStatePending}
	}

	if snapshot.State == types.SnapshotStateCompleted {
		return snapshot, nil
	}
	snapshotID := aws.ToString(snapshot.SnapshotId)
	logger.Info("Waiting for snapshot to complete", "snapshotID", snapshotID)
	snapshot, err = r.ec2.WaitForSnapshotCompleted(ctx, snapshotID, r.config.Polling.Interval.Duration, r.config.Polling.SnapshotTimeout.Duration)
	if err != nil {
		return nil, encerrors.WrapError(err, ErrCreateSnapshot, operationCreateSnapshot, fmt.Sprintf("snapshot %s did not complete", snapshotID))
	}
	return snapshot, nil
}

// encryptedSnapshot returns the ID of an encrypted snapshot with the content of the given completed snapshot.
func (r *Replacer) encryptedSnapshot(ctx context.Context, logger logr.Logger, snapshot *types.Snapshot) (string, error) {
	snapshotID := aws.ToString(snapshot.SnapshotId)
	if pointer.BoolDeref(snapshot.Encrypted, false) {
		return snapshotID, nil
	}

	logger.Info("Copying snapshot with encryption", "snapshotID", snapshotID)
	encryptedSnapshotID, err := r.ec2.CopySnapshotEncrypted(ctx, snapshotID, r.config.AWS.KMSKeyID)
	if err != nil {
		return "", encerrors.WrapError(err, ErrCopySnapshot, operationCopySnapshot, fmt.Sprintf("unable to copy snapshot %s", snapshotID))
	}
	logger.Info("Waiting for encrypted snapshot to complete", "encryptedSnapshotID", encryptedSnapshotID)
	if _, err = r.ec2.WaitForSnapshotCompleted(ctx, encryptedSnapshotID, r.config.Polling.Interval.Duration, r.config.Polling.SnapshotTimeout.Duration); err != nil {
		return "", encerrors.WrapError(err, ErrCopySnapshot, operationCopySnapshot, fmt.Sprintf("encrypted copy %s of snapshot %s did not complete", encryptedSnapshotID, snapshotID))
	}
	logger.Info("Copied snapshot with encryption", "snapshotID", snapshotID, "encryptedSnapshotID", encryptedSnapshotID)
	return encryptedSnapshotID, nil
}

func (r *Replacer) createVolume(ctx context.Context, logger logr.Logger, snapshotID, zone string, source *types.Volume) (string, error) {
	logger.Info("Creating encrypted volume", "snapshotID", snapshotID, "zone", zone)
	volumeID, err := r.ec2.CreateVolumeFromSnapshot(ctx, snapshotID, zone, source)
	if err != nil {
		return "", encerrors.WrapError(err, ErrCreateVolume, operationCreateVolume, fmt.Sprintf("unable to create volume from snapshot %s", snapshotID))
	}
	logger.Info("Waiting for encrypted volume to become available", "newVolumeID", volumeID)
	if _, err = r.ec2.WaitForVolumeAvailable(ctx, volumeID, r.config.Polling.Interval.Duration, r.config.Polling.VolumeTimeout.Duration); err != nil {
		return "", encerrors.WrapError(err, ErrCreateVolume, operationCreateVolume, fmt.Sprintf("volume %s did not become available", volumeID))
	}
	logger.Info("Created encrypted volume", "newVolumeID", volumeID)
	return volumeID, nil
}

// attachVolume attaches the volume unless the configured device is taken, and reports whether it did.
func (r *Replacer) attachVolume(ctx context.Context, logger logr.Logger, volumeID, instanceID string) (bool, error) {
	device := r.config.AWS.DeviceName
	inUse, err := r.ec2.IsDeviceInUse(ctx, instanceID, device)
	if err != nil {
		return false, encerrors.WrapError(err, ErrAttachVolume, operationAttachVolume, fmt.Sprintf("unable to check device %s of instance %s", device, instanceID))
	}
	if inUse {
		logger.Info("Device is already in use, skipping attachment", "device", device)
		return false, nil
	}
	logger.Info("Attaching encrypted volume", "newVolumeID", volumeID, "device", device)
	if err = r.ec2.AttachVolume(ctx, volumeID, instanceID, device); err != nil {
		return false, encerrors.WrapError(err, ErrAttachVolume, operationAttachVolume, fmt.Sprintf("unable to attach volume %s", volumeID))
	}
	logger.Info("Attached encrypted volume", "newVolumeID", volumeID, "device", device)
	return true, nil
}
