package kube

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m"},
		{45 * time.Minute, "45m"},
		{3 * time.Hour, "3h"},
		{26 * time.Hour, "1d"},
		{10 * 24 * time.Hour, "10d"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.d); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestSummarizePod(t *testing.T) {
	now := time.Now()
	pod := corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:              "api-5d9f",
			CreationTimestamp: metav1.NewTime(now.Add(-2 * time.Hour)),
		},
		Spec: corev1.PodSpec{
			NodeName:   "node-1",
			Containers: []corev1.Container{{Name: "api"}, {Name: "sidecar"}},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{Ready: true, RestartCount: 2},
				{Ready: false, RestartCount: 5},
			},
		},
	}

	info := summarizePod(pod, now)
	if info.Status != "Running" {
		t.Errorf("Status = %q, want Running", info.Status)
	}
	if info.Ready != "1/2" {
		t.Errorf("Ready = %q, want 1/2", info.Ready)
	}
	if info.Restarts != 7 {
		t.Errorf("Restarts = %d, want 7", info.Restarts)
	}
	if info.Age != "2h" {
		t.Errorf("Age = %q, want 2h", info.Age)
	}
	if info.Node != "node-1" {
		t.Errorf("Node = %q, want node-1", info.Node)
	}
}

func TestSummarizePodWaitingReason(t *testing.T) {
	pod := corev1.Pod{
		Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "app"}}},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{
					Ready:        false,
					RestartCount: 12,
					State: corev1.ContainerState{
						Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"},
					},
				},
			},
		},
	}

	info := summarizePod(pod, time.Now())
	if info.Status != "CrashLoopBackOff" {
		t.Errorf("Status = %q, want CrashLoopBackOff", info.Status)
	}
}

func TestSummarizePodTerminating(t *testing.T) {
	ts := metav1.Now()
	pod := corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{DeletionTimestamp: &ts},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
	if info := summarizePod(pod, time.Now()); info.Status != "Terminating" {
		t.Errorf("Status = %q, want Terminating", info.Status)
	}
}

func TestContexts(t *testing.T) {
	kubeconfig := `
apiVersion: v1
kind: Config
current-context: staging
clusters:
- name: prod-cluster
  cluster: {server: "https://prod.example.com"}
- name: stg-cluster
  cluster: {server: "https://stg.example.com"}
contexts:
- name: production
  context: {cluster: prod-cluster, user: admin}
- name: staging
  context: {cluster: stg-cluster, user: admin}
users:
- name: admin
  user: {}
`
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(kubeconfig), 0o600); err != nil {
		t.Fatal(err)
	}

	c := NewClient(path, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	contexts, current, err := c.Contexts()
	if err != nil {
		t.Fatal(err)
	}
	if current != "staging" {
		t.Errorf("current = %q, want staging", current)
	}
	if len(contexts) != 2 {
		t.Fatalf("got %d contexts, want 2", len(contexts))
	}
	// Sorted by name: production first.
	if contexts[0].Name != "production" || contexts[0].Current {
		t.Errorf("contexts[0] = %+v", contexts[0])
	}
	if contexts[1].Name != "staging" || !contexts[1].Current {
		t.Errorf("contexts[1] = %+v", contexts[1])
	}
	if contexts[0].Cluster != "prod-cluster" {
		t.Errorf("cluster = %q, want prod-cluster", contexts[0].Cluster)
	}
}

func TestClampTailLines(t *testing.T) {
	if got := clampTailLines(100); got != 100 {
		t.Errorf("clampTailLines(100) = %d", got)
	}
	if got := clampTailLines(50000); got != maxTailLines {
		t.Errorf("clampTailLines(50000) = %d, want %d", got, maxTailLines)
	}
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one line\n", 1},
		{"a\nb\nc\n", 3},
		{"no trailing newline", 1},
	}
	for _, tt := range tests {
		if got := countLines(tt.in); got != tt.want {
			t.Errorf("countLines(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
