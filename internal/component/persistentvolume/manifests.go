// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package persistentvolume

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gardener/volume-encryptor/internal/component"
	encerrors "github.com/gardener/volume-encryptor/internal/errors"
	"github.com/gardener/volume-encryptor/pkg/utils"

	"github.com/ghodss/yaml"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// PersistentVolumeManifestFile is the file the PV manifest is written to.
	PersistentVolumeManifestFile = "existing_pv.yaml"
	// PersistentVolumeClaimManifestFile is the file the PVC manifest is written to.
	PersistentVolumeClaimManifestFile = "existing_pvc.yaml"

	annotationLastAppliedConfiguration = "kubectl.kubernetes.io/last-applied-configuration"
	annotationBindCompleted            = "pv.kubernetes.io/bind-completed"
	annotationBoundByController        = "pv.kubernetes.io/bound-by-controller"
)

var zoneKeys = sets.NewString(utils.LabelTopologyZone, utils.LabelFailureDomainZone, utils.LabelEBSCSIZone)

// ExportManifests writes the PV and the PVC as YAML into the manifest directory, overwriting earlier exports.
func (r *Rebinder) ExportManifests(pv *corev1.PersistentVolume, pvc *corev1.PersistentVolumeClaim) error {
	pv = pv.DeepCopy()
	pv.TypeMeta = metav1.TypeMeta{APIVersion: corev1.SchemeGroupVersion.String(), Kind: component.PersistentVolumeKind}
	pvc = pvc.DeepCopy()
	pvc.TypeMeta = metav1.TypeMeta{APIVersion: corev1.SchemeGroupVersion.String(), Kind: component.PersistentVolumeClaimKind}

	for file, obj := range map[string]client.Object{
		PersistentVolumeManifestFile:      pv,
		PersistentVolumeClaimManifestFile: pvc,
	} {
		path := filepath.Join(r.values.ManifestDir, file)
		if err := writeManifest(path, obj); err != nil {
			return encerrors.WrapError(err, ErrExportPersistentVolume, component.OperationExport,
				fmt.Sprintf("unable to export %s to %s", obj.GetName(), path))
		}
		r.logger.Info("Exported manifest", "path", path)
	}
	return nil
}

func writeManifest(path string, obj client.Object) error {
	data, err := yaml.Marshal(obj)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}

// BuildPersistentVolume returns a creatable copy of the given PV that points at the given EBS volume and is
// pre-bound to the given PVC.
func BuildPersistentVolume(old *corev1.PersistentVolume, pvc *corev1.PersistentVolumeClaim, volumeID, zone string) (*corev1.PersistentVolume, error) {
	pv := &corev1.PersistentVolume{
		TypeMeta: metav1.TypeMeta{APIVersion: corev1.SchemeGroupVersion.String(), Kind: component.PersistentVolumeKind},
		ObjectMeta: metav1.ObjectMeta{
			Name:        old.Name,
			Labels:      copyMap(old.Labels),
			Annotations: withoutKeys(old.Annotations, annotationLastAppliedConfiguration, annotationBoundByController),
		},
		Spec: *old.Spec.DeepCopy(),
	}
	if err := utils.SetEBSVolumeID(pv, volumeID, zone); err != nil {
		return nil, err
	}
	setZone(pv, zone)
	pv.Spec.ClaimRef = &corev1.ObjectReference{
		APIVersion: corev1.SchemeGroupVersion.String(),
		Kind:       component.PersistentVolumeClaimKind,
		Namespace:  pvc.Namespace,
		Name:       pvc.Name,
	}
	return pv, nil
}

// setZone moves the zone labels and the zone node affinity of the PV to the given zone.
func setZone(pv *corev1.PersistentVolume, zone string) {
	if zone == "" {
		return
	}
	for _, key := range zoneKeys.List() {
		if _, ok := pv.Labels[key]; ok {
			pv.Labels[key] = zone
		}
	}

	if pv.Spec.NodeAffinity == nil || pv.Spec.NodeAffinity.Required == nil {
		return
	}
	for i := range pv.Spec.NodeAffinity.Required.NodeSelectorTerms {
		term := &pv.Spec.NodeAffinity.Required.NodeSelectorTerms[i]
		for j := range term.MatchExpressions {
			expr := &term.MatchExpressions[j]
			if zoneKeys.Has(expr.Key) && expr.Operator == corev1.NodeSelectorOpIn {
				expr.Values = []string{zone}
			}
		}
	}
}

// BuildPersistentVolumeClaim returns a creatable copy of the given PVC bound to the given PV.
func BuildPersistentVolumeClaim(old *corev1.PersistentVolumeClaim, volumeName string) *corev1.PersistentVolumeClaim {
	pvc := &corev1.PersistentVolumeClaim{
		TypeMeta: metav1.TypeMeta{APIVersion: corev1.SchemeGroupVersion.String(), Kind: component.PersistentVolumeClaimKind},
		ObjectMeta: metav1.ObjectMeta{
			Name:        old.Name,
			Namespace:   old.Namespace,
			Labels:      copyMap(old.Labels),
			Annotations: withoutKeys(old.Annotations, annotationLastAppliedConfiguration, annotationBindCompleted, annotationBoundByController),
		},
		Spec: *old.Spec.DeepCopy(),
	}
	pvc.Spec.VolumeName = volumeName
	return pvc
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func withoutKeys(in map[string]string, keys ...string) map[string]string {
	out := copyMap(in)
	for _, key := range keys {
		delete(out, key)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
