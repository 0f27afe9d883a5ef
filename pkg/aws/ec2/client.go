// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package ec2

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	gardenerretry "github.com/gardener/gardener/pkg/utils/retry"
	"github.com/go-logr/logr"
	"k8s.io/utils/pointer"
)

// Client wraps the EC2 API calls needed to replace an unencrypted volume.
type Client struct {
	api    API
	region string
	logger logr.Logger
}

// New returns a Client for the given API.
func New(api API, region string, logger logr.Logger) *Client {
	return &Client{
		api:    api,
		region: region,
		logger: logger.WithName("ec2").WithValues("region", region),
	}
}

// NewFromConfig loads the default AWS configuration for the given region and returns a Client.
func NewFromConfig(ctx context.Context, region string, logger logr.Logger) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return New(ec2.NewFromConfig(cfg), region, logger), nil
}

// Region returns the region of the client.
func (c *Client) Region() string {
	return c.region
}

// FindInstanceByPrivateIP returns the instance with the given private IP address, or nil if there is none.
func (c *Client) FindInstanceByPrivateIP(ctx context.Context, ip string) (*types.Instance, error) {
	out, err := c.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{{Name: aws.String(filterPrivateIPAddress), Values: []string{ip}}},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to describe instances with private IP %s: %w", ip, err)
	}
	for _, reservation := range out.Reservations {
		if len(reservation.Instances) > 0 {
			return &reservation.Instances[0], nil
		}
	}
	return nil, nil
}

// GetInstance returns the instance with the given ID.
func (c *Client) GetInstance(ctx context.Context, instanceID string) (*types.Instance, error) {
	out, err := c.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		return nil, fmt.Errorf("unable to describe instance %s: %w", instanceID, err)
	}
	for _, reservation := range out.Reservations {
		if len(reservation.Instances) > 0 {
			return &reservation.Instances[0], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
}

// ListVolumesForInstance returns all volumes attached to the given instance.
func (c *Client) ListVolumesForInstance(ctx context.Context, instanceID string) ([]types.Volume, error) {
	var volumes []types.Volume
	paginator := ec2.NewDescribeVolumesPaginator(c.api, &ec2.DescribeVolumesInput{
		Filters: []types.Filter{{Name: aws.String(filterAttachmentInstanceID), Values: []string{instanceID}}},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to describe volumes of instance %s: %w", instanceID, err)
		}
		volumes = append(volumes, page.Volumes...)
	}
	return volumes, nil
}

// GetVolume returns the volume with the given ID.
func (c *Client) GetVolume(ctx context.Context, volumeID string) (*types.Volume, error) {
	out, err := c.api.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{volumeID}})
	if err != nil {
		return nil, fmt.Errorf("unable to describe volume %s: %w", volumeID, err)
	}
	if len(out.Volumes) == 0 {
		return nil, fmt.Errorf("no volume found with ID %s", volumeID)
	}
	return &out.Volumes[0], nil
}

// IsVolumeEncrypted reports whether the volume is encrypted.
func IsVolumeEncrypted(volume *types.Volume) bool {
	return volume != nil && pointer.BoolDeref(volume.Encrypted, false)
}

// ListSnapshotsForVolume returns the snapshots owned by this account that were taken of the given volume,
// newest first. Snapshots in state error are left out.
func (c *Client) ListSnapshotsForVolume(ctx context.Context, volumeID string) ([]types.Snapshot, error) {
	var snapshots []types.Snapshot
	paginator := ec2.NewDescribeSnapshotsPaginator(c.api, &ec2.DescribeSnapshotsInput{
		Filters:  []types.Filter{{Name: aws.String(filterVolumeID), Values: []string{volumeID}}},
		OwnerIds: []string{ownerSelf},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to describe snapshots of volume %s: %w", volumeID, err)
		}
		for _, snapshot := range page.Snapshots {
			if snapshot.State == types.SnapshotStateError {
				continue
			}
			snapshots = append(snapshots, snapshot)
		}
	}
	sort.SliceStable(snapshots, func(i, j int) bool {
		return aws.ToTime(snapshots[i].StartTime).After(aws.ToTime(snapshots[j].StartTime))
	})
	return snapshots, nil
}

// CreateSnapshot takes a snapshot of the given volume and returns its ID.
func (c *Client) CreateSnapshot(ctx context.Context, volumeID string) (string, error) {
	out, err := c.api.CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(volumeID),
		Description: aws.String(fmt.Sprintf("Snapshot of %s taken before encryption", volumeID)),
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeSnapshot,
			Tags:         []types.Tag{{Key: aws.String(TagEncryptedFrom), Value: aws.String(volumeID)}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("unable to create snapshot of volume %s: %w", volumeID, err)
	}
	return aws.ToString(out.SnapshotId), nil
}

// CopySnapshotEncrypted copies the given snapshot within the client's region with encryption enabled
// and returns the ID of the copy. An empty kmsKeyID uses the account's default EBS key.
func (c *Client) CopySnapshotEncrypted(ctx context.Context, snapshotID, kmsKeyID string) (string, error) {
	input := &ec2.CopySnapshotInput{
		SourceSnapshotId: aws.String(snapshotID),
		SourceRegion:     aws.String(c.region),
		Encrypted:        aws.Bool(true),
		Description:      aws.String(fmt.Sprintf("Encrypted copy of %s", snapshotID)),
	}
	if kmsKeyID != "" {
		input.KmsKeyId = aws.String(kmsKeyID)
	}
	out, err := c.api.CopySnapshot(ctx, input)
	if err != nil {
		return "", fmt.Errorf("unable to copy snapshot %s: %w", snapshotID, err)
	}
	return aws.ToString(out.SnapshotId), nil
}

// WaitForSnapshotCompleted polls the snapshot every interval until it is completed. A snapshot in state
// error fails with ErrSnapshotFailed.
func (c *Client) WaitForSnapshotCompleted(ctx context.Context, snapshotID string, interval, timeout time.Duration) (*types.Snapshot, error) {
	var snapshot types.Snapshot
	err := gardenerretry.UntilTimeout(ctx, interval, timeout, func(ctx context.Context) (bool, error) {
		out, err := c.api.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{SnapshotIds: []string{snapshotID}})
		if err != nil {
			if IsNotFound(err) {
				return gardenerretry.MinorError(err)
			}
			return gardenerretry.SevereError(err)
		}
		if len(out.Snapshots) == 0 {
			return gardenerretry.MinorError(fmt.Errorf("snapshot %s not found yet", snapshotID))
		}
		snapshot = out.Snapshots[0]
		c.logger.Info("Snapshot state", "snapshotID", snapshotID, "state", snapshot.State, "progress", aws.ToString(snapshot.Progress))

		switch snapshot.State {
		case types.SnapshotStateCompleted:
			return gardenerretry.Ok()
		case types.SnapshotStateError:
			return gardenerretry.SevereError(fmt.Errorf("%w: snapshot %s: %s", ErrSnapshotFailed, snapshotID, aws.ToString(snapshot.StateMessage)))
		default:
			return gardenerretry.MinorError(fmt.Errorf("snapshot %s is in state %s", snapshotID, snapshot.State))
		}
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// CreateVolumeFromSnapshot creates a volume from the given snapshot in the given zone and returns its ID.
// The new volume keeps type, IOPS, throughput and tags of the source volume.
func (c *Client) CreateVolumeFromSnapshot(ctx context.Context, snapshotID, zone string, source *types.Volume) (string, error) {
	input := &ec2.CreateVolumeInput{
		SnapshotId:       aws.String(snapshotID),
		AvailabilityZone: aws.String(zone),
	}
	if source != nil {
		input.VolumeType = source.VolumeType
		switch source.VolumeType {
		case types.VolumeTypeIo1, types.VolumeTypeIo2:
			input.Iops = source.Iops
		case types.VolumeTypeGp3:
			input.Iops = source.Iops
			input.Throughput = source.Throughput
		}
		input.TagSpecifications = []types.TagSpecification{{
			ResourceType: types.ResourceTypeVolume,
			Tags:         volumeTags(source),
		}}
	}

	out, err := c.api.CreateVolume(ctx, input)
	if err != nil {
		return "", fmt.Errorf("unable to create volume from snapshot %s in zone %s: %w", snapshotID, zone, err)
	}
	return aws.ToString(out.VolumeId), nil
}

func volumeTags(source *types.Volume) []types.Tag {
	tags := make([]types.Tag, 0, len(source.Tags)+1)
	for _, tag := range source.Tags {
		// aws: prefixed tags are reserved
		if strings.HasPrefix(aws.ToString(tag.Key), "aws:") || aws.ToString(tag.Key) == TagEncryptedFrom {
			continue
		}
		tags = append(tags, tag)
	}
	return append(tags, types.Tag{Key: aws.String(TagEncryptedFrom), Value: source.VolumeId})
}

// WaitForVolumeAvailable polls the volume every interval until it is available.
func (c *Client) WaitForVolumeAvailable(ctx context.Context, volumeID string, interval, timeout time.Duration) (*types.Volume, error) {
	var volume types.Volume
	err := gardenerretry.UntilTimeout(ctx, interval, timeout, func(ctx context.Context) (bool, error) {
		out, err := c.api.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{volumeID}})
		if err != nil {
			if IsNotFound(err) {
				return gardenerretry.MinorError(err)
			}
			return gardenerretry.SevereError(err)
		}
		if len(out.Volumes) == 0 {
			return gardenerretry.MinorError(fmt.Errorf("volume %s not found yet", volumeID))
		}
		volume = out.Volumes[0]
		c.logger.Info("Volume state", "volumeID", volumeID, "state", volume.State)

		switch volume.State {
		case types.VolumeStateAvailable:
			return gardenerretry.Ok()
		case types.VolumeStateError:
			return gardenerretry.SevereError(fmt.Errorf("%w: volume %s", ErrVolumeFailed, volumeID))
		default:
			return gardenerretry.MinorError(fmt.Errorf("volume %s is in state %s", volumeID, volume.State))
		}
	})
	if err != nil {
		return nil, err
	}
	return &volume, nil
}

// IsDeviceInUse reports whether the instance already has a block device mapped under the given name.
func (c *Client) IsDeviceInUse(ctx context.Context, instanceID, deviceName string) (bool, error) {
	instance, err := c.GetInstance(ctx, instanceID)
	if err != nil {
		return false, err
	}
	for _, mapping := range instance.BlockDeviceMappings {
		if aws.ToString(mapping.DeviceName) == deviceName {
			return true, nil
		}
	}
	return false, nil
}

// AttachVolume attaches the volume to the instance under the given device name.
func (c *Client) AttachVolume(ctx context.Context, volumeID, instanceID, deviceName string) error {
	if _, err := c.api.AttachVolume(ctx, &ec2.AttachVolumeInput{
		VolumeId:   aws.String(volumeID),
		InstanceId: aws.String(instanceID),
		Device:     aws.String(deviceName),
	}); err != nil {
		return fmt.Errorf("unable to attach volume %s to instance %s as %s: %w", volumeID, instanceID, deviceName, err)
	}
	return nil
}

// IsNotFound reports whether err is an EC2 *.NotFound API error or ErrInstanceNotFound.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrInstanceNotFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return strings.HasSuffix(apiErr.ErrorCode(), ".NotFound")
	}
	return false
}
