// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package kubernetes

import (
	"fmt"
	"os"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// EnvKubeconfig is the environment variable holding the path to the kubeconfig.
const EnvKubeconfig = "KUBECONFIG"

// Scheme is the scheme of all objects touched during a volume replacement.
var Scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(corev1.AddToScheme(Scheme))
	utilruntime.Must(appsv1.AddToScheme(Scheme))
}

// GetConfig returns the rest config for the given kubeconfig path. An empty path falls back to
// $KUBECONFIG and then to the in-cluster config.
func GetConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		kubeconfigPath = os.Getenv(EnvKubeconfig)
	}
	if kubeconfigPath == "" {
		config, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("kubeconfig unavailable from either env var, flag or in-cluster config: %w", err)
		}
		return config, nil
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("unable to build config from %s: %w", kubeconfigPath, err)
	}
	return config, nil
}

// NewClient returns a client for the cluster of the given kubeconfig path.
func NewClient(kubeconfigPath string) (client.Client, error) {
	config, err := GetConfig(kubeconfigPath)
	if err != nil {
		return nil, err
	}
	c, err := client.New(config, client.Options{Scheme: Scheme})
	if err != nil {
		return nil, fmt.Errorf("unable to create client: %w", err)
	}
	return c, nil
}
