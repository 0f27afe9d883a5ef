// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package persistentvolume

import (
	"context"
	"fmt"
	"time"

	"github.com/gardener/volume-encryptor/internal/component"
	encerrors "github.com/gardener/volume-encryptor/internal/errors"
	"github.com/gardener/volume-encryptor/pkg/utils"

	"github.com/gardener/gardener/pkg/controllerutils"
	gardenerretry "github.com/gardener/gardener/pkg/utils/retry"
	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// ErrGetPersistentVolume indicates an error in getting the PV or PVC.
	ErrGetPersistentVolume encerrors.ErrorCode = "ERR_GET_PERSISTENT_VOLUME"
	// ErrExportPersistentVolume indicates an error in writing the PV or PVC manifest.
	ErrExportPersistentVolume encerrors.ErrorCode = "ERR_EXPORT_PERSISTENT_VOLUME"
	// ErrClaimInUse indicates that pods still use the PVC.
	ErrClaimInUse encerrors.ErrorCode = "ERR_CLAIM_IN_USE"
	// ErrRetainPersistentVolume indicates an error in changing the reclaim policy of the PV.
	ErrRetainPersistentVolume encerrors.ErrorCode = "ERR_RETAIN_PERSISTENT_VOLUME"
	// ErrDeletePersistentVolume indicates an error in deleting the PV or PVC.
	ErrDeletePersistentVolume encerrors.ErrorCode = "ERR_DELETE_PERSISTENT_VOLUME"
	// ErrRecreatePersistentVolume indicates an error in creating the rewritten PV or PVC.
	ErrRecreatePersistentVolume encerrors.ErrorCode = "ERR_RECREATE_PERSISTENT_VOLUME"
)

// Values are the inputs of the PV/PVC rebind.
type Values struct {
	PersistentVolumeName      string
	PersistentVolumeClaimName string
	Namespace                 string
	ManifestDir               string
	PollInterval              time.Duration
	DeletionTimeout           time.Duration
}

// Rebinder moves a PV and its PVC over to another EBS volume.
type Rebinder struct {
	client client.Client
	values Values
	logger logr.Logger
}

// New returns a new Rebinder.
func New(c client.Client, values Values, logger logr.Logger) *Rebinder {
	return &Rebinder{
		client: c,
		values: values,
		logger: logger.WithValues("component", component.PersistentVolumeKind, "pv", values.PersistentVolumeName, "pvc", client.ObjectKey{Namespace: values.Namespace, Name: values.PersistentVolumeClaimName}),
	}
}

// Get returns the PV and the PVC.
func (r *Rebinder) Get(ctx context.Context) (*corev1.PersistentVolume, *corev1.PersistentVolumeClaim, error) {
	pv := &corev1.PersistentVolume{}
	if err := r.client.Get(ctx, client.ObjectKey{Name: r.values.PersistentVolumeName}, pv); err != nil {
		return nil, nil, encerrors.WrapError(err, ErrGetPersistentVolume, component.OperationGet,
			fmt.Sprintf("unable to get pv %s", r.values.PersistentVolumeName))
	}
	pvc := &corev1.PersistentVolumeClaim{}
	if err := r.client.Get(ctx, r.claimKey(), pvc); err != nil {
		return nil, nil, encerrors.WrapError(err, ErrGetPersistentVolume, component.OperationGet,
			fmt.Sprintf("unable to get pvc %s", r.claimKey()))
	}
	return pv, pvc, nil
}

// Rebind replaces the PV and the PVC by copies that point at the given EBS volume. An empty zone keeps the
// zone of the current volume ID. Nothing is changed while pods still use the PVC. The PV is switched to reclaim
// policy Retain before it is deleted to keep the old volume; the recreated PV gets the previous policy back.
func (r *Rebinder) Rebind(ctx context.Context, volumeID, zone string) (*corev1.PersistentVolume, *corev1.PersistentVolumeClaim, error) {
	r.logger.Info("Fetching PV and PVC")
	pv, pvc, err := r.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	oldVolumeID, err := utils.GetEBSVolumeID(pv)
	if err != nil {
		return nil, nil, encerrors.WrapError(err, ErrGetPersistentVolume, component.OperationGet, "pv cannot be rebound")
	}
	r.logger.Info("Fetched PV and PVC", "volumeID", oldVolumeID, "reclaimPolicy", pv.Spec.PersistentVolumeReclaimPolicy)

	if err = r.WaitForRelease(ctx); err != nil {
		return nil, nil, err
	}

	if err = r.ExportManifests(pv, pvc); err != nil {
		return nil, nil, err
	}

	if err = r.retain(ctx, pv.DeepCopy()); err != nil {
		return nil, nil, err
	}

	if err = r.Delete(ctx); err != nil {
		return nil, nil, err
	}

	newPV, err := BuildPersistentVolume(pv, pvc, volumeID, zone)
	if err != nil {
		return nil, nil, encerrors.WrapError(err, ErrRecreatePersistentVolume, component.OperationRecreate, "unable to rewrite pv")
	}
	newPVC := BuildPersistentVolumeClaim(pvc, newPV.Name)

	if err = r.ExportManifests(newPV, newPVC); err != nil {
		return nil, nil, err
	}

	r.logger.Info("Creating PV and PVC", "volumeID", volumeID)
	if err = r.client.Create(ctx, newPV); err != nil {
		return nil, nil, encerrors.WrapError(err, ErrRecreatePersistentVolume, component.OperationRecreate,
			fmt.Sprintf("unable to create pv %s", newPV.Name))
	}
	if err = r.client.Create(ctx, newPVC); err != nil {
		return nil, nil, encerrors.WrapError(err, ErrRecreatePersistentVolume, component.OperationRecreate,
			fmt.Sprintf("unable to create pvc %s", client.ObjectKeyFromObject(newPVC)))
	}
	r.logger.Info("Created PV and PVC", "volumeID", volumeID)

	return newPV, newPVC, nil
}

// WaitForRelease waits until no running pod mounts the PVC. The pvc-protection finalizer blocks the deletion of
// the PVC as long as such a pod exists.
func (r *Rebinder) WaitForRelease(ctx context.Context) error {
	r.logger.Info("Waiting for PVC to be released by pods")
	if err := gardenerretry.UntilTimeout(ctx, r.values.PollInterval, r.values.DeletionTimeout, func(ctx context.Context) (bool, error) {
		pods := &corev1.PodList{}
		if err := r.client.List(ctx, pods, client.InNamespace(r.values.Namespace)); err != nil {
			return gardenerretry.SevereError(err)
		}
		var users []string
		for i := range pods.Items {
			if mountsClaim(&pods.Items[i], r.values.PersistentVolumeClaimName) {
				users = append(users, pods.Items[i].Name)
			}
		}
		if len(users) > 0 {
			return gardenerretry.MinorError(fmt.Errorf("pvc %s is still used by pods %v", r.claimKey(), users))
		}
		return gardenerretry.Ok()
	}); err != nil {
		return encerrors.WrapError(err, ErrClaimInUse, component.OperationWaitForRelease,
			fmt.Sprintf("pvc %s was not released in time, scale down its workload first", r.claimKey()))
	}
	r.logger.Info("PVC is not used by any pod")
	return nil
}

func mountsClaim(pod *corev1.Pod, claimName string) bool {
	if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
		return false
	}
	for _, volume := range pod.Spec.Volumes {
		if volume.PersistentVolumeClaim != nil && volume.PersistentVolumeClaim.ClaimName == claimName {
			return true
		}
	}
	return false
}

func (r *Rebinder) retain(ctx context.Context, pv *corev1.PersistentVolume) error {
	if pv.Spec.PersistentVolumeReclaimPolicy == corev1.PersistentVolumeReclaimRetain {
		return nil
	}
	r.logger.Info("Switching reclaim policy of PV to Retain", "reclaimPolicy", pv.Spec.PersistentVolumeReclaimPolicy)
	if err := controllerutils.TryUpdate(ctx, retry.DefaultBackoff, r.client, pv, func() error {
		pv.Spec.PersistentVolumeReclaimPolicy = corev1.PersistentVolumeReclaimRetain
		return nil
	}); err != nil {
		return encerrors.WrapError(err, ErrRetainPersistentVolume, component.OperationRetain,
			fmt.Sprintf("unable to set reclaim policy of pv %s to Retain", pv.Name))
	}
	return nil
}

// Delete deletes the PV and then the PVC and waits until both are gone.
func (r *Rebinder) Delete(ctx context.Context) error {
	pv := &corev1.PersistentVolume{ObjectMeta: metav1.ObjectMeta{Name: r.values.PersistentVolumeName}}
	pvc := &corev1.PersistentVolumeClaim{ObjectMeta: metav1.ObjectMeta{Name: r.values.PersistentVolumeClaimName, Namespace: r.values.Namespace}}

	r.logger.Info("Deleting PV")
	if err := client.IgnoreNotFound(r.client.Delete(ctx, pv)); err != nil {
		return encerrors.WrapError(err, ErrDeletePersistentVolume, component.OperationDelete,
			fmt.Sprintf("unable to delete pv %s", pv.Name))
	}
	r.logger.Info("Deleting PVC")
	if err := client.IgnoreNotFound(r.client.Delete(ctx, pvc)); err != nil {
		return encerrors.WrapError(err, ErrDeletePersistentVolume, component.OperationDelete,
			fmt.Sprintf("unable to delete pvc %s", client.ObjectKeyFromObject(pvc)))
	}

	r.logger.Info("Waiting for PV and PVC to be gone")
	if err := gardenerretry.UntilTimeout(ctx, r.values.PollInterval, r.values.DeletionTimeout, func(ctx context.Context) (bool, error) {
		for _, obj := range []client.Object{pv, pvc} {
			if err := r.client.Get(ctx, client.ObjectKeyFromObject(obj), obj); err != nil {
				if apierrors.IsNotFound(err) {
					continue
				}
				return gardenerretry.SevereError(err)
			}
			return gardenerretry.MinorError(fmt.Errorf("%T %s is still present with finalizers %v", obj, client.ObjectKeyFromObject(obj), obj.GetFinalizers()))
		}
		return gardenerretry.Ok()
	}); err != nil {
		return encerrors.WrapError(err, ErrDeletePersistentVolume, component.OperationDelete, "pv and pvc were not deleted in time")
	}
	r.logger.Info("PV and PVC are gone")
	return nil
}

func (r *Rebinder) claimKey() client.ObjectKey {
	return client.ObjectKey{Namespace: r.values.Namespace, Name: r.values.PersistentVolumeClaimName}
}
