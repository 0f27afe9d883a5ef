// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package ec2

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

//go:generate mockgen -package mock -destination=mock/mocks.go github.com/gardener/volume-encryptor/pkg/aws/ec2 API

// API is the subset of the EC2 API used to replace volumes.
type API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	CreateSnapshot(ctx context.Context, params *ec2.CreateSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
	CopySnapshot(ctx context.Context, params *ec2.CopySnapshotInput, optFns ...func(*ec2.Options)) (*ec2.CopySnapshotOutput, error)
	CreateVolume(ctx context.Context, params *ec2.CreateVolumeInput, optFns ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error)
	AttachVolume(ctx context.Context, params *ec2.AttachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.AttachVolumeOutput, error)
}

var _ API = (*ec2.Client)(nil)

// ErrInstanceNotFound is returned when no instance with the requested ID exists.
var ErrInstanceNotFound = errors.New("no instance found")

// ErrSnapshotFailed is returned when a snapshot ends up in state error.
var ErrSnapshotFailed = errors.New("snapshot creation failed")

// ErrVolumeFailed is returned when a volume ends up in state error.
var ErrVolumeFailed = errors.New("volume creation failed")

const (
	// TagEncryptedFrom is set on snapshots and volumes created from an unencrypted source volume.
	TagEncryptedFrom = "volume-encryptor.gardener.cloud/encrypted-from"

	filterPrivateIPAddress     = "private-ip-address"
	filterAttachmentInstanceID = "attachment.instance-id"
	filterVolumeID             = "volume-id"
	ownerSelf                  = "self"
)
