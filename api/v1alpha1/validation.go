// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"fmt"
	"strings"

	"github.com/gardener/volume-encryptor/pkg/utils"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Validate validates a defaulted configuration.
func Validate(c *Configuration) field.ErrorList {
	allErrs := field.ErrorList{}

	targetPath := field.NewPath("target")
	for _, name := range []struct {
		field string
		value string
	}{
		{"persistentVolumeName", c.Target.PersistentVolumeName},
		{"persistentVolumeClaimName", c.Target.PersistentVolumeClaimName},
		{"statefulSetName", c.Target.StatefulSetName},
	} {
		for _, msg := range validation.IsDNS1123Subdomain(name.value) {
			allErrs = append(allErrs, field.Invalid(targetPath.Child(name.field), name.value, msg))
		}
	}
	for _, msg := range validation.IsDNS1123Label(c.Target.Namespace) {
		allErrs = append(allErrs, field.Invalid(targetPath.Child("namespace"), c.Target.Namespace, msg))
	}
	if c.Target.Replicas < 0 {
		allErrs = append(allErrs, field.Invalid(targetPath.Child("replicas"), c.Target.Replicas, "must not be negative"))
	}

	awsPath := field.NewPath("aws")
	if c.AWS.Region == "" {
		allErrs = append(allErrs, field.Required(awsPath.Child("region"), "region is required"))
	}
	if c.AWS.AvailabilityZone != "" && utils.RegionFromZone(c.AWS.AvailabilityZone) != c.AWS.Region {
		allErrs = append(allErrs, field.Invalid(awsPath.Child("availabilityZone"), c.AWS.AvailabilityZone, fmt.Sprintf("zone is not in region %s", c.AWS.Region)))
	}
	if !strings.HasPrefix(c.AWS.DeviceName, "/dev/") && !strings.HasPrefix(c.AWS.DeviceName, "xvd") {
		allErrs = append(allErrs, field.Invalid(awsPath.Child("deviceName"), c.AWS.DeviceName, "must be a device path like /dev/sdf or xvdf"))
	}

	pollingPath := field.NewPath("polling")
	for _, timing := range []struct {
		field    string
		duration metav1.Duration
	}{
		{"interval", c.Polling.Interval},
		{"snapshotTimeout", c.Polling.SnapshotTimeout},
		{"volumeTimeout", c.Polling.VolumeTimeout},
		{"deletionTimeout", c.Polling.DeletionTimeout},
		{"scaleTimeout", c.Polling.ScaleTimeout},
	} {
		if timing.duration.Duration <= 0 {
			allErrs = append(allErrs, field.Invalid(pollingPath.Child(timing.field), timing.duration.String(), "must be positive"))
		}
	}

	if c.ManifestDir == "" {
		allErrs = append(allErrs, field.Required(field.NewPath("manifestDir"), "manifest directory is required"))
	}

	return allErrs
}
