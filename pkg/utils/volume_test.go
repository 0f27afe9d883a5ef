// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package utils_test

import (
	. "github.com/gardener/volume-encryptor/pkg/utils"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var _ = Describe("Volume", func() {
	DescribeTable("#EBSVolumeID",
		func(volumeID, expected string) {
			Expect(EBSVolumeID(volumeID)).To(Equal(expected))
		},
		Entry("plain ID", "vol-0123", "vol-0123"),
		Entry("with zone", "aws://eu-north-1a/vol-0123", "vol-0123"),
		Entry("without zone", "aws:///vol-0123", "vol-0123"),
	)

	It("#RegionFromZone", func() {
		Expect(RegionFromZone("eu-north-1a")).To(Equal("eu-north-1"))
		Expect(RegionFromZone("")).To(BeEmpty())
	})

	Describe("PV volume IDs", func() {
		var pv *corev1.PersistentVolume

		BeforeEach(func() {
			pv = &corev1.PersistentVolume{ObjectMeta: metav1.ObjectMeta{Name: "mymanual-pv"}}
		})

		It("should read and rewrite in-tree volume IDs", func() {
			pv.Spec.AWSElasticBlockStore = &corev1.AWSElasticBlockStoreVolumeSource{VolumeID: "aws://eu-north-1a/vol-old"}

			id, err := GetEBSVolumeID(pv)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("vol-old"))

			Expect(SetEBSVolumeID(pv, "vol-new", "")).To(Succeed())
			Expect(pv.Spec.AWSElasticBlockStore.VolumeID).To(Equal("aws://eu-north-1a/vol-new"))

			Expect(SetEBSVolumeID(pv, "vol-newer", "eu-north-1b")).To(Succeed())
			Expect(pv.Spec.AWSElasticBlockStore.VolumeID).To(Equal("aws://eu-north-1b/vol-newer"))
		})

		It("should rewrite plain in-tree volume IDs", func() {
			pv.Spec.AWSElasticBlockStore = &corev1.AWSElasticBlockStoreVolumeSource{VolumeID: "vol-old"}

			Expect(SetEBSVolumeID(pv, "vol-new", "eu-north-1a")).To(Succeed())
			Expect(pv.Spec.AWSElasticBlockStore.VolumeID).To(Equal("vol-new"))
		})

		It("should read and rewrite EBS CSI volume handles", func() {
			pv.Spec.CSI = &corev1.CSIPersistentVolumeSource{Driver: EBSCSIDriverName, VolumeHandle: "vol-old"}

			id, err := GetEBSVolumeID(pv)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("vol-old"))

			Expect(SetEBSVolumeID(pv, "vol-new", "")).To(Succeed())
			Expect(pv.Spec.CSI.VolumeHandle).To(Equal("vol-new"))
		})

		It("should fail for volumes of other drivers", func() {
			pv.Spec.CSI = &corev1.CSIPersistentVolumeSource{Driver: "pd.csi.storage.gke.io", VolumeHandle: "disk"}

			_, err := GetEBSVolumeID(pv)
			Expect(err).To(HaveOccurred())
			Expect(SetEBSVolumeID(pv, "vol-new", "")).NotTo(Succeed())
		})
	})
})
