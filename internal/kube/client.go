// Package kube provides multi-context Kubernetes access driven by the
// local kubeconfig.
package kube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Client reads cluster contexts from a kubeconfig file and lazily
// builds one clientset per context.
type Client struct {
	kubeconfigPath string
	logger         *slog.Logger

	mu         sync.Mutex
	clientsets map[string]kubernetes.Interface
}

// NewClient creates a client for the given kubeconfig path.
func NewClient(kubeconfigPath string, logger *slog.Logger) *Client {
	return &Client{
		kubeconfigPath: kubeconfigPath,
		logger:         logger,
		clientsets:     make(map[string]kubernetes.Interface),
	}
}

// ContextInfo describes one context from the kubeconfig.
type ContextInfo struct {
	Name    string `json:"name"`
	Cluster string `json:"cluster"`
	Current bool   `json:"current"`
}

// Contexts lists the contexts defined in the kubeconfig, marking the
// current one.
func (c *Client) Contexts() ([]ContextInfo, string, error) {
	cfg, err := clientcmd.LoadFromFile(c.kubeconfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("load kubeconfig %s: %w", c.kubeconfigPath, err)
	}

	contexts := make([]ContextInfo, 0, len(cfg.Contexts))
	for name, kctx := range cfg.Contexts {
		contexts = append(contexts, ContextInfo{
			Name:    name,
			Cluster: kctx.Cluster,
			Current: name == cfg.CurrentContext,
		})
	}
	sort.Slice(contexts, func(i, j int) bool { return contexts[i].Name < contexts[j].Name })

	return contexts, cfg.CurrentContext, nil
}

// clientsetFor returns a cached clientset for the named context,
// building one on first use.
func (c *Client) clientsetFor(contextName string) (kubernetes.Interface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cs, ok := c.clientsets[contextName]; ok {
		return cs, nil
	}

	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: c.kubeconfigPath},
		&clientcmd.ConfigOverrides{CurrentContext: contextName},
	).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build config for context %q: %w", contextName, err)
	}

	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("build clientset for context %q: %w", contextName, err)
	}

	c.clientsets[contextName] = cs
	c.logger.Debug("kubernetes clientset created", "context", contextName)
	return cs, nil
}

// Namespaces lists namespace names in the given context.
func (c *Client) Namespaces(ctx context.Context, contextName string) ([]string, error) {
	cs, err := c.clientsetFor(contextName)
	if err != nil {
		return nil, err
	}

	list, err := cs.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list namespaces in %q: %w", contextName, err)
	}

	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}

// PodInfo is a condensed view of a pod for conversational output.
type PodInfo struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Ready    string `json:"ready"`
	Restarts int32  `json:"restarts"`
	Age      string `json:"age"`
	Node     string `json:"node"`
}

// ListPods lists pods in a namespace with status, readiness, restart
// counts, and age.
func (c *Client) ListPods(ctx context.Context, contextName, namespace string) ([]PodInfo, error) {
	cs, err := c.clientsetFor(contextName)
	if err != nil {
		return nil, err
	}

	list, err := cs.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods in %s/%s: %w", contextName, namespace, err)
	}

	now := time.Now()
	pods := make([]PodInfo, 0, len(list.Items))
	for _, pod := range list.Items {
		pods = append(pods, summarizePod(pod, now))
	}
	return pods, nil
}

// summarizePod condenses a pod into the fields an on-call engineer
// checks first.
func summarizePod(pod corev1.Pod, now time.Time) PodInfo {
	var (
		ready    int
		restarts int32
	)
	status := string(pod.Status.Phase)

	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Ready {
			ready++
		}
		restarts += cs.RestartCount
		// A waiting reason like CrashLoopBackOff is more useful than
		// the generic phase.
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			status = cs.State.Waiting.Reason
		}
	}

	if pod.DeletionTimestamp != nil {
		status = "Terminating"
	}

	return PodInfo{
		Name:     pod.Name,
		Status:   status,
		Ready:    fmt.Sprintf("%d/%d", ready, len(pod.Spec.Containers)),
		Restarts: restarts,
		Age:      formatAge(now.Sub(pod.CreationTimestamp.Time)),
		Node:     pod.Spec.NodeName,
	}
}

// formatAge renders a duration kubectl-style: 45s, 12m, 5h, 3d.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// LogOptions control a pod log fetch.
type LogOptions struct {
	Container    string
	TailLines    int64
	SinceSeconds int64
	Previous     bool
}

// PodLogs fetches logs for one pod. Previous selects the prior
// container instance, which is what you want for crashed pods.
func (c *Client) PodLogs(ctx context.Context, contextName, namespace, podName string, opts LogOptions) (string, error) {
	cs, err := c.clientsetFor(contextName)
	if err != nil {
		return "", err
	}

	logOpts := &corev1.PodLogOptions{
		Container: opts.Container,
		Previous:  opts.Previous,
	}
	if opts.TailLines > 0 {
		logOpts.TailLines = &opts.TailLines
	}
	if opts.SinceSeconds > 0 {
		logOpts.SinceSeconds = &opts.SinceSeconds
	}

	stream, err := cs.CoreV1().Pods(namespace).GetLogs(podName, logOpts).Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("get logs for %s/%s/%s: %w", contextName, namespace, podName, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("read logs for %s/%s/%s: %w", contextName, namespace, podName, err)
	}
	return string(data), nil
}
