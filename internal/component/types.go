// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package component

const (
	// OperationGet is the get operation on cluster objects.
	OperationGet = "Get"
	// OperationExport is the export of cluster objects to manifest files.
	OperationExport = "Export"
	// OperationWaitForRelease is the wait until no pod uses a PVC anymore.
	OperationWaitForRelease = "WaitForRelease"
	// OperationRetain is the switch of a PV's reclaim policy to Retain.
	OperationRetain = "Retain"
	// OperationDelete is the deletion of cluster objects.
	OperationDelete = "Delete"
	// OperationRecreate is the creation of cluster objects from rewritten manifests.
	OperationRecreate = "Recreate"
	// OperationScale is the scaling of a workload.
	OperationScale = "Scale"
)

const (
	// PersistentVolumeKind is the kind of a PV.
	PersistentVolumeKind = "PersistentVolume"
	// PersistentVolumeClaimKind is the kind of a PVC.
	PersistentVolumeClaimKind = "PersistentVolumeClaim"
	// StatefulSetKind is the kind of a StatefulSet.
	StatefulSetKind = "StatefulSet"
)
