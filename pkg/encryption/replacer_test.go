// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package encryption_test

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/gardener/volume-encryptor/api/v1alpha1"
	"github.com/gardener/volume-encryptor/internal/component/persistentvolume"
	"github.com/gardener/volume-encryptor/internal/component/statefulset"
	encerrors "github.com/gardener/volume-encryptor/internal/errors"
	awsec2 "github.com/gardener/volume-encryptor/pkg/aws/ec2"
	"github.com/gardener/volume-encryptor/pkg/aws/ec2/mock"
	"github.com/gardener/volume-encryptor/pkg/client/kubernetes"
	. "github.com/gardener/volume-encryptor/pkg/encryption"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/go-logr/logr"
	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	testclock "k8s.io/utils/clock/testing"
	"k8s.io/utils/pointer"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

// statefulSetController lets the replicas of a StatefulSet follow its spec right away.
type statefulSetController struct {
	client.Client
	scaledTo []int32
}

func (c *statefulSetController) Update(ctx context.Context, obj client.Object, opts ...client.UpdateOption) error {
	if sts, ok := obj.(*appsv1.StatefulSet); ok {
		replicas := pointer.Int32Deref(sts.Spec.Replicas, 1)
		sts.Status.Replicas, sts.Status.ReadyReplicas = replicas, replicas
		c.scaledTo = append(c.scaledTo, replicas)
	}
	return c.Client.Update(ctx, obj, opts...)
}

var _ = Describe("Replacer", func() {
	const (
		region     = "eu-north-1"
		zone       = "eu-north-1a"
		instanceID = "i-0123"
		volumeID   = "vol-old"
	)

	var (
		ctx    context.Context
		ctrl   *gomock.Controller
		api    *mock.MockAPI
		c      *statefulSetController
		config *v1alpha1.Configuration
		clock  *testclock.FakePassiveClock
		now    time.Time

		node *corev1.Node
		pv   *corev1.PersistentVolume
		pvc  *corev1.PersistentVolumeClaim
		sts  *appsv1.StatefulSet
	)

	BeforeEach(func() {
		ctx = context.Background()
		ctrl = gomock.NewController(GinkgoT())
		api = mock.NewMockAPI(ctrl)
		now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		clock = testclock.NewFakePassiveClock(now)

		dir, err := os.MkdirTemp("", "manifests")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		config = &v1alpha1.Configuration{ManifestDir: dir}
		v1alpha1.SetDefaults(config)
		config.Target.Replicas = 1
		config.Polling = v1alpha1.PollingSpec{
			Interval:        metav1.Duration{Duration: 10 * time.Millisecond},
			SnapshotTimeout: metav1.Duration{Duration: time.Second},
			VolumeTimeout:   metav1.Duration{Duration: time.Second},
			DeletionTimeout: metav1.Duration{Duration: time.Second},
			ScaleTimeout:    metav1.Duration{Duration: time.Second},
		}

		node = &corev1.Node{
			ObjectMeta: metav1.ObjectMeta{Name: "node-a"},
			Spec:       corev1.NodeSpec{ProviderID: "aws:///" + zone + "/" + instanceID},
			Status: corev1.NodeStatus{Addresses: []corev1.NodeAddress{
				{Type: corev1.NodeHostName, Address: "ip-10-0-0-1"},
				{Type: corev1.NodeInternalIP, Address: "10.0.0.1"},
			}},
		}
		pv = &corev1.PersistentVolume{
			ObjectMeta: metav1.ObjectMeta{Name: v1alpha1.DefaultPersistentVolumeName},
			Spec: corev1.PersistentVolumeSpec{
				PersistentVolumeReclaimPolicy: corev1.PersistentVolumeReclaimRetain,
				PersistentVolumeSource: corev1.PersistentVolumeSource{
					AWSElasticBlockStore: &corev1.AWSElasticBlockStoreVolumeSource{VolumeID: "aws://" + zone + "/" + volumeID},
				},
			},
		}
		pvc = &corev1.PersistentVolumeClaim{
			ObjectMeta: metav1.ObjectMeta{Name: v1alpha1.DefaultPersistentVolumeClaimName, Namespace: v1alpha1.DefaultNamespace},
			Spec:       corev1.PersistentVolumeClaimSpec{VolumeName: pv.Name},
		}
		sts = &appsv1.StatefulSet{
			ObjectMeta: metav1.ObjectMeta{Name: v1alpha1.DefaultStatefulSetName, Namespace: v1alpha1.DefaultNamespace},
			Spec: appsv1.StatefulSetSpec{
				Replicas:             pointer.Int32(1),
				VolumeClaimTemplates: []corev1.PersistentVolumeClaim{{ObjectMeta: metav1.ObjectMeta{Name: "www"}}},
			},
			Status: appsv1.StatefulSetStatus{Replicas: 1, ReadyReplicas: 1},
		}
	})

	AfterEach(func() {
		ctrl.Finish()
	})

	newReplacer := func(objects ...client.Object) *Replacer {
		c = &statefulSetController{Client: fake.NewClientBuilder().WithScheme(kubernetes.Scheme).WithObjects(objects...).Build()}
		return New(c, awsec2.New(api, region, logr.Discard()), config, clock, logr.Discard())
	}

	expectInstance := func() *gomock.Call {
		return api.EXPECT().DescribeInstances(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, input *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
				Expect(input.Filters[0].Values).To(ConsistOf("10.0.0.1"))
				return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{
					{Instances: []types.Instance{{InstanceId: aws.String(instanceID)}}},
				}}, nil
			})
	}

	expectVolumes := func(encrypted bool) []*gomock.Call {
		return []*gomock.Call{
			api.EXPECT().DescribeVolumes(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, input *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
					Expect(input.Filters[0].Values).To(ConsistOf(instanceID))
					return &ec2.DescribeVolumesOutput{Volumes: []types.Volume{
						{VolumeId: aws.String(volumeID)},
						{VolumeId: aws.String("vol-other")},
					}}, nil
				}),
			api.EXPECT().DescribeVolumes(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, input *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
					Expect(input.VolumeIds).To(ConsistOf(volumeID))
					return &ec2.DescribeVolumesOutput{Volumes: []types.Volume{{
						VolumeId:         aws.String(volumeID),
						AvailabilityZone: aws.String(zone),
						Encrypted:        aws.Bool(encrypted),
						VolumeType:       types.VolumeTypeGp2,
					}}}, nil
				}),
		}
	}

	snapshotState := func(id string, state types.SnapshotState) *gomock.Call {
		return api.EXPECT().DescribeSnapshots(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, input *ec2.DescribeSnapshotsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
				Expect(input.SnapshotIds).To(ConsistOf(id))
				return &ec2.DescribeSnapshotsOutput{Snapshots: []types.Snapshot{{SnapshotId: aws.String(id), State: state}}}, nil
			})
	}

	It("should skip nodes without an instance", func() {
		gomock.InOrder(
			api.EXPECT().DescribeInstances(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeInstancesOutput{}, nil),
			api.EXPECT().DescribeInstances(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, input *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
					Expect(input.InstanceIds).To(ConsistOf("i-gone"))
					return nil, &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound"}
				}),
		)
		node.Spec.ProviderID = "aws:///" + zone + "/i-gone"

		records, err := newReplacer(node, sts).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].State).To(Equal(v1alpha1.ReplacementStateSkipped))
		Expect(records[0].InternalIP).To(Equal("10.0.0.1"))
		Expect(records[0].InstanceID).To(BeEmpty())
	})

	It("should skip nodes whose provider ID names no instance", func() {
		gomock.InOrder(
			api.EXPECT().DescribeInstances(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeInstancesOutput{}, nil),
			api.EXPECT().DescribeInstances(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, input *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
					Expect(input.InstanceIds).To(ConsistOf("i-terminated"))
					return &ec2.DescribeInstancesOutput{}, nil
				}),
		)
		node.Spec.ProviderID = "aws:///" + zone + "/i-terminated"
		otherNode := node.DeepCopy()
		otherNode.Name = "node-b"
		otherNode.Status.Addresses = nil

		records, err := newReplacer(node, otherNode, sts).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[0].State).To(Equal(v1alpha1.ReplacementStateSkipped))
		Expect(records[0].InstanceID).To(BeEmpty())
		Expect(records[1].State).To(Equal(v1alpha1.ReplacementStateSkipped))
	})

	It("should skip instances without volumes", func() {
		expectInstance()
		api.EXPECT().DescribeVolumes(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeVolumesOutput{}, nil)

		records, err := newReplacer(node, sts).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records[0].State).To(Equal(v1alpha1.ReplacementStateSkipped))
		Expect(records[0].InstanceID).To(Equal(instanceID))
	})

	It("should leave encrypted volumes alone", func() {
		expectInstance()
		expectVolumes(true)

		records, err := newReplacer(node, sts).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(ConsistOf(v1alpha1.VolumeRecord{
			Node:       node.Name,
			InternalIP: "10.0.0.1",
			InstanceID: instanceID,
			VolumeID:   volumeID,
			Region:     region,
			Zone:       zone,
			Encrypted:  true,
			State:      v1alpha1.ReplacementStateAlreadyEncrypted,
			Timestamp:  metav1.NewTime(now),
		}))
	})

	It("should only report unencrypted volumes in dry-run mode", func() {
		config.DryRun = true
		expectInstance()
		expectVolumes(false)

		records, err := newReplacer(node).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records[0].State).To(Equal(v1alpha1.ReplacementStateDryRun))
		Expect(records[0].Encrypted).To(BeFalse())
	})

	It("should fail before touching any volume if the statefulset is missing", func() {
		_, err := newReplacer(node).Run(ctx)
		Expect(encerrors.HasCode(err, statefulset.ErrGetStatefulSet)).To(BeTrue())
	})

	It("should replace an unencrypted volume and rebind the PV", func() {
		calls := []*gomock.Call{expectInstance()}
		calls = append(calls, expectVolumes(false)...)
		calls = append(calls,
			api.EXPECT().DescribeSnapshots(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeSnapshotsOutput{}, nil),
			api.EXPECT().CreateSnapshot(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.CreateSnapshotOutput{SnapshotId: aws.String("snap-source")}, nil),
			snapshotState("snap-source", types.SnapshotStatePending),
			snapshotState("snap-source", types.SnapshotStateCompleted),
			api.EXPECT().CopySnapshot(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, input *ec2.CopySnapshotInput, _ ...func(*ec2.Options)) (*ec2.CopySnapshotOutput, error) {
					Expect(aws.ToString(input.SourceSnapshotId)).To(Equal("snap-source"))
					Expect(aws.ToBool(input.Encrypted)).To(BeTrue())
					return &ec2.CopySnapshotOutput{SnapshotId: aws.String("snap-encrypted")}, nil
				}),
			snapshotState("snap-encrypted", types.SnapshotStateCompleted),
			api.EXPECT().CreateVolume(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, input *ec2.CreateVolumeInput, _ ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error) {
					Expect(aws.ToString(input.SnapshotId)).To(Equal("snap-encrypted"))
					Expect(aws.ToString(input.AvailabilityZone)).To(Equal(zone))
					Expect(input.VolumeType).To(Equal(types.VolumeTypeGp2))
					return &ec2.CreateVolumeOutput{VolumeId: aws.String("vol-new")}, nil
				}),
			api.EXPECT().DescribeVolumes(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeVolumesOutput{Volumes: []types.Volume{
				{VolumeId: aws.String("vol-new"), State: types.VolumeStateAvailable},
			}}, nil),
			api.EXPECT().DescribeInstances(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeInstancesOutput{Reservations: []types.Reservation{
				{Instances: []types.Instance{{
					InstanceId:          aws.String(instanceID),
					BlockDeviceMappings: []types.InstanceBlockDeviceMapping{{DeviceName: aws.String("/dev/xvda")}},
				}}},
			}}, nil),
			api.EXPECT().AttachVolume(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, input *ec2.AttachVolumeInput, _ ...func(*ec2.Options)) (*ec2.AttachVolumeOutput, error) {
					Expect(aws.ToString(input.VolumeId)).To(Equal("vol-new"))
					Expect(aws.ToString(input.Device)).To(Equal(v1alpha1.DefaultDeviceName))
					return &ec2.AttachVolumeOutput{}, nil
				}),
		)
		gomock.InOrder(calls...)

		records, err := newReplacer(node, pv, pvc, sts).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].State).To(Equal(v1alpha1.ReplacementStateReplaced))
		Expect(records[0].SnapshotID).To(Equal("snap-source"))
		Expect(records[0].EncryptedSnapshotID).To(Equal("snap-encrypted"))
		Expect(records[0].NewVolumeID).To(Equal("vol-new"))
		Expect(records[0].Attached).To(BeTrue())

		actualPV := &corev1.PersistentVolume{}
		Expect(c.Get(ctx, client.ObjectKeyFromObject(pv), actualPV)).To(Succeed())
		Expect(actualPV.Spec.AWSElasticBlockStore.VolumeID).To(Equal("aws://" + zone + "/vol-new"))

		actualSts := &appsv1.StatefulSet{}
		Expect(c.Get(ctx, client.ObjectKeyFromObject(sts), actualSts)).To(Succeed())
		Expect(actualSts.Spec.Replicas).To(Equal(pointer.Int32(1)))
		Expect(c.scaledTo).To(Equal([]int32{0, 1}))
	})

	It("should reuse an encrypted snapshot and skip attaching to a used device", func() {
		calls := []*gomock.Call{expectInstance()}
		calls = append(calls, expectVolumes(false)...)
		calls = append(calls,
			api.EXPECT().DescribeSnapshots(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeSnapshotsOutput{Snapshots: []types.Snapshot{
				{SnapshotId: aws.String("snap-encrypted"), State: types.SnapshotStateCompleted, Encrypted: aws.Bool(true)},
			}}, nil),
			api.EXPECT().CreateVolume(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.CreateVolumeOutput{VolumeId: aws.String("vol-new")}, nil),
			api.EXPECT().DescribeVolumes(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeVolumesOutput{Volumes: []types.Volume{
				{VolumeId: aws.String("vol-new"), State: types.VolumeStateAvailable},
			}}, nil),
			api.EXPECT().DescribeInstances(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeInstancesOutput{Reservations: []types.Reservation{
				{Instances: []types.Instance{{
					InstanceId:          aws.String(instanceID),
					BlockDeviceMappings: []types.InstanceBlockDeviceMapping{{DeviceName: aws.String(v1alpha1.DefaultDeviceName)}},
				}}},
			}}, nil),
		)
		gomock.InOrder(calls...)

		records, err := newReplacer(node, pv, pvc, sts).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records[0].State).To(Equal(v1alpha1.ReplacementStateReplaced))
		Expect(records[0].SnapshotID).To(Equal("snap-encrypted"))
		Expect(records[0].EncryptedSnapshotID).To(Equal("snap-encrypted"))
		Expect(records[0].Attached).To(BeFalse())
	})

	It("should not rebind the PV while pods still mount the PVC", func() {
		config.Polling.DeletionTimeout = metav1.Duration{Duration: 50 * time.Millisecond}
		pv.Finalizers = []string{"kubernetes.io/pv-protection"}
		pvc.Finalizers = []string{"kubernetes.io/pvc-protection"}
		pod := &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "nginx-0", Namespace: v1alpha1.DefaultNamespace},
			Spec: corev1.PodSpec{Volumes: []corev1.Volume{{
				Name:         "www",
				VolumeSource: corev1.VolumeSource{PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: pvc.Name}},
			}}},
			Status: corev1.PodStatus{Phase: corev1.PodRunning},
		}

		calls := []*gomock.Call{expectInstance()}
		calls = append(calls, expectVolumes(false)...)
		calls = append(calls,
			api.EXPECT().DescribeSnapshots(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeSnapshotsOutput{Snapshots: []types.Snapshot{
				{SnapshotId: aws.String("snap-encrypted"), State: types.SnapshotStateCompleted, Encrypted: aws.Bool(true)},
			}}, nil),
			api.EXPECT().CreateVolume(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.CreateVolumeOutput{VolumeId: aws.String("vol-new")}, nil),
			api.EXPECT().DescribeVolumes(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeVolumesOutput{Volumes: []types.Volume{
				{VolumeId: aws.String("vol-new"), State: types.VolumeStateAvailable},
			}}, nil),
			api.EXPECT().DescribeInstances(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeInstancesOutput{Reservations: []types.Reservation{
				{Instances: []types.Instance{{InstanceId: aws.String(instanceID)}}},
			}}, nil),
			api.EXPECT().AttachVolume(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.AttachVolumeOutput{}, nil),
		)
		gomock.InOrder(calls...)

		records, err := newReplacer(node, pv, pvc, sts, pod).Run(ctx)
		Expect(encerrors.HasCode(err, persistentvolume.ErrClaimInUse)).To(BeTrue())
		Expect(records[0].State).To(Equal(v1alpha1.ReplacementStateFailed))
		Expect(c.scaledTo).To(Equal([]int32{0}))

		actualPV := &corev1.PersistentVolume{}
		Expect(c.Get(ctx, client.ObjectKeyFromObject(pv), actualPV)).To(Succeed())
		Expect(actualPV.DeletionTimestamp).To(BeNil())
		Expect(actualPV.Spec.AWSElasticBlockStore.VolumeID).To(Equal("aws://" + zone + "/" + volumeID))
	})

	It("should stop with a failed record if the encrypted copy fails", func() {
		calls := []*gomock.Call{expectInstance()}
		calls = append(calls, expectVolumes(false)...)
		calls = append(calls,
			api.EXPECT().DescribeSnapshots(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.DescribeSnapshotsOutput{Snapshots: []types.Snapshot{
				{SnapshotId: aws.String("snap-source"), State: types.SnapshotStateCompleted},
			}}, nil),
			api.EXPECT().CopySnapshot(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ec2.CopySnapshotOutput{SnapshotId: aws.String("snap-encrypted")}, nil),
			snapshotState("snap-encrypted", types.SnapshotStateError),
		)
		gomock.InOrder(calls...)

		otherNode := node.DeepCopy()
		otherNode.Name = "node-b"

		records, err := newReplacer(node, otherNode, pv, pvc, sts).Run(ctx)
		Expect(encerrors.HasCode(err, ErrCopySnapshot)).To(BeTrue())
		Expect(errors.Is(err, awsec2.ErrSnapshotFailed)).To(BeTrue())
		Expect(records).To(HaveLen(1))
		Expect(records[0].State).To(Equal(v1alpha1.ReplacementStateFailed))
		Expect(records[0].Error).NotTo(BeEmpty())

		actualPV := &corev1.PersistentVolume{}
		Expect(c.Get(ctx, client.ObjectKeyFromObject(pv), actualPV)).To(Succeed())
		Expect(actualPV.Spec.AWSElasticBlockStore.VolumeID).To(Equal("aws://" + zone + "/" + volumeID))
	})
})
