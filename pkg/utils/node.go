// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// GetNodeInternalIP returns the internal IP of the node. Nodes that do not report an
// address of type InternalIP fall back to their first address.
func GetNodeInternalIP(node *corev1.Node) (string, error) {
	for _, address := range node.Status.Addresses {
		if address.Type == corev1.NodeInternalIP && address.Address != "" {
			return address.Address, nil
		}
	}
	if len(node.Status.Addresses) > 0 && node.Status.Addresses[0].Address != "" {
		return node.Status.Addresses[0].Address, nil
	}
	return "", fmt.Errorf("no addresses found for node %s", node.Name)
}

// InstanceIDFromProviderID returns the EC2 instance ID of a provider ID in the form
// aws:///<zone>/<instance-id>.
func InstanceIDFromProviderID(providerID string) (string, error) {
	if !strings.HasPrefix(providerID, "aws://") {
		return "", fmt.Errorf("provider ID %q is not an AWS provider ID", providerID)
	}
	items := strings.Split(strings.TrimPrefix(providerID, "aws://"), "/")
	instanceID := items[len(items)-1]
	if !strings.HasPrefix(instanceID, "i-") {
		return "", fmt.Errorf("provider ID %q does not end with an instance ID", providerID)
	}
	return instanceID, nil
}
