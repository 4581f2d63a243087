package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// KubernetesConfig holds settings for the Kubernetes-backed runner.
type KubernetesConfig struct {
	Namespace   string
	Image       string
	Command     []string
	CPULimit    string
	MemoryLimit string
}

// KubernetesRunner implements Runner by creating a Kubernetes Job per run.
// The artifact's host directory is exposed via a hostPath volume, so worker
// nodes must share the artifact filesystem.
type KubernetesRunner struct {
	clientset kubernetes.Interface
	config    KubernetesConfig
}

// NewKubernetesRunner creates a Kubernetes-based runner. In-cluster
// configuration is tried first, then the local kubeconfig.
func NewKubernetesRunner(cfg KubernetesConfig) (*KubernetesRunner, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(os.Getenv("HOME"), ".kube", "config")
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.CPULimit == "" {
		cfg.CPULimit = "500m"
	}
	if cfg.MemoryLimit == "" {
		cfg.MemoryLimit = "256Mi"
	}

	return &KubernetesRunner{clientset: clientset, config: cfg}, nil
}

// Run creates a Job, waits for its pod to finish or the context to expire,
// and collects the pod log. The Job is deleted on every exit path.
func (k *KubernetesRunner) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	jobName := fmt.Sprintf("runbox-%s", strings.ToLower(spec.JobID))
	containerPath := path.Join(artifactMount, filepath.Base(spec.ArtifactPath))
	hostDir := filepath.Dir(spec.ArtifactPath)

	backoffLimit := int32(0) // the pipeline owns retry policy, not Kubernetes
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: k.config.Namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "runbox"},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"job-name":                     jobName,
						"app.kubernetes.io/managed-by": "runbox",
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    "sandbox",
							Image:   k.config.Image,
							Command: append(append([]string{}, k.config.Command...), containerPath),
							Resources: corev1.ResourceRequirements{
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse(k.config.CPULimit),
									corev1.ResourceMemory: resource.MustParse(k.config.MemoryLimit),
								},
							},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "artifact", MountPath: artifactMount, ReadOnly: true},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "artifact",
							VolumeSource: corev1.VolumeSource{
								HostPath: &corev1.HostPathVolumeSource{Path: hostDir},
							},
						},
					},
				},
			},
		},
	}

	if _, err := k.clientset.BatchV1().Jobs(k.config.Namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return nil, &InfraError{Op: "create job", Err: err}
	}
	defer k.deleteJob(jobName)

	podName, err := k.waitForPod(ctx, jobName)
	if err != nil {
		return nil, &InfraError{Op: "wait for pod", Err: err}
	}

	exitCode, err := k.waitForCompletion(ctx, podName)
	if err != nil {
		return nil, err
	}

	output, err := k.podLog(podName)
	if err != nil {
		return nil, &InfraError{Op: "collect output", Err: err}
	}

	return &RunResult{ExitCode: exitCode, Output: output}, nil
}

func (k *KubernetesRunner) deleteJob(jobName string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	propagation := metav1.DeletePropagationForeground
	k.clientset.BatchV1().Jobs(k.config.Namespace).Delete(ctx, jobName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
}

func (k *KubernetesRunner) waitForPod(ctx context.Context, jobName string) (string, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			pods, err := k.clientset.CoreV1().Pods(k.config.Namespace).List(ctx, metav1.ListOptions{
				LabelSelector: fmt.Sprintf("job-name=%s", jobName),
			})
			if err != nil {
				return "", err
			}
			if len(pods.Items) > 0 {
				return pods.Items[0].Name, nil
			}
		}
	}
}

func (k *KubernetesRunner) waitForCompletion(ctx context.Context, podName string) (int, error) {
	watcher, err := k.clientset.CoreV1().Pods(k.config.Namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("metadata.name=%s", podName),
	})
	if err != nil {
		return -1, &InfraError{Op: "watch pod", Err: err}
	}
	defer watcher.Stop()

	for event := range watcher.ResultChan() {
		if event.Type == watch.Error {
			return -1, &InfraError{Op: "watch pod", Err: fmt.Errorf("watch error")}
		}

		pod, ok := event.Object.(*corev1.Pod)
		if !ok {
			continue
		}

		switch pod.Status.Phase {
		case corev1.PodSucceeded:
			return 0, nil
		case corev1.PodFailed:
			exitCode := -1
			if len(pod.Status.ContainerStatuses) > 0 {
				if term := pod.Status.ContainerStatuses[0].State.Terminated; term != nil {
					exitCode = int(term.ExitCode)
				}
			}
			return exitCode, nil
		}
	}

	if ctx.Err() != nil {
		return -1, fmt.Errorf("execution aborted: %w", ctx.Err())
	}
	return -1, &InfraError{Op: "watch pod", Err: fmt.Errorf("watch channel closed")}
}

func (k *KubernetesRunner) podLog(podName string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	req := k.clientset.CoreV1().Pods(k.config.Namespace).GetLogs(podName, &corev1.PodLogOptions{
		Container: "sandbox",
	})
	rc, err := req.Stream(ctx)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	return string(data), err
}
