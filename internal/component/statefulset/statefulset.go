// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package statefulset

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gardener/volume-encryptor/internal/component"
	encerrors "github.com/gardener/volume-encryptor/internal/errors"

	"github.com/gardener/gardener/pkg/controllerutils"
	gardenerretry "github.com/gardener/gardener/pkg/utils/retry"
	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/util/retry"
	"k8s.io/utils/pointer"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// ErrGetStatefulSet indicates an error in getting the statefulset resource.
	ErrGetStatefulSet encerrors.ErrorCode = "ERR_GET_STATEFULSET"
	// ErrScaleStatefulSet indicates an error in scaling the statefulset resource.
	ErrScaleStatefulSet encerrors.ErrorCode = "ERR_SCALE_STATEFULSET"
)

// Scaler scales a StatefulSet and waits for its replicas.
type Scaler struct {
	client   client.Client
	interval time.Duration
	timeout  time.Duration
	logger   logr.Logger
}

// New returns a new Scaler.
func New(c client.Client, interval, timeout time.Duration, logger logr.Logger) *Scaler {
	return &Scaler{
		client:   c,
		interval: interval,
		timeout:  timeout,
		logger:   logger.WithValues("component", component.StatefulSetKind),
	}
}

// Get returns the StatefulSet with the given key.
func (s *Scaler) Get(ctx context.Context, key client.ObjectKey) (*appsv1.StatefulSet, error) {
	sts := &appsv1.StatefulSet{}
	if err := s.client.Get(ctx, key, sts); err != nil {
		return nil, encerrors.WrapError(err, ErrGetStatefulSet, component.OperationGet,
			fmt.Sprintf("unable to get statefulset %s", key))
	}
	return sts, nil
}

// Scale sets the replicas of the StatefulSet and waits until the StatefulSet reports as many ready replicas.
func (s *Scaler) Scale(ctx context.Context, key client.ObjectKey, replicas int32) error {
	logger := s.logger.WithValues("operation", component.OperationScale, "statefulSet", key)

	sts, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	logger.Info("Scaling statefulset", "from", pointer.Int32Deref(sts.Spec.Replicas, 1), "to", replicas)

	if err = controllerutils.TryUpdate(ctx, retry.DefaultBackoff, s.client, sts, func() error {
		sts.Spec.Replicas = pointer.Int32(replicas)
		return nil
	}); err != nil {
		return encerrors.WrapError(err, ErrScaleStatefulSet, component.OperationScale,
			fmt.Sprintf("unable to update replicas of statefulset %s", key))
	}

	if err = gardenerretry.UntilTimeout(ctx, s.interval, s.timeout, func(ctx context.Context) (bool, error) {
		if err := s.client.Get(ctx, key, sts); err != nil {
			if apierrors.IsNotFound(err) {
				return gardenerretry.SevereError(err)
			}
			return gardenerretry.MinorError(err)
		}
		if sts.Status.Replicas != replicas || sts.Status.ReadyReplicas != replicas {
			return gardenerretry.MinorError(fmt.Errorf("statefulset %s not scaled yet: %d/%d replicas ready", key, sts.Status.ReadyReplicas, replicas))
		}
		return gardenerretry.Ok()
	}); err != nil {
		return encerrors.WrapError(err, ErrScaleStatefulSet, component.OperationScale,
			fmt.Sprintf("statefulset %s did not reach %d ready replicas in time", key, replicas))
	}

	logger.Info("Scaled statefulset", "replicas", replicas)
	return nil
}

// claimName returns the name of the PVC the StatefulSet creates from the given claim template for the given ordinal.
func claimName(claimTemplate, statefulSetName string, ordinal int) string {
	return fmt.Sprintf("%s-%s-%d", claimTemplate, statefulSetName, ordinal)
}

// ClaimOrdinal returns the ordinal of the replica that uses the PVC with the given name, and false if the PVC
// was not created from one of the StatefulSet's claim templates.
func ClaimOrdinal(sts *appsv1.StatefulSet, pvcName string) (int, bool) {
	for _, template := range sts.Spec.VolumeClaimTemplates {
		prefix := fmt.Sprintf("%s-%s-", template.Name, sts.Name)
		if !strings.HasPrefix(pvcName, prefix) {
			continue
		}
		ordinal, err := strconv.Atoi(strings.TrimPrefix(pvcName, prefix))
		if err != nil || ordinal < 0 || claimName(template.Name, sts.Name, ordinal) != pvcName {
			continue
		}
		return ordinal, true
	}
	return 0, false
}
