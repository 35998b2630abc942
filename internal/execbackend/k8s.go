package execbackend

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// K8sConfig is the k8s-backend slice of the execution configuration.
type K8sConfig struct {
	Namespace      string
	Image          string
	ServiceAccount string
	Kubeconfig     string
}

// K8sBackend runs one Job per session, grounded on the teacher's
// internal/orchestrator.K8sSpawner: submit a Job whose single container
// runs the agent command, stream its pod logs back as they arrive, and
// delete the Job once it finishes (TTLSecondsAfterFinished is a backstop,
// not the primary cleanup path, since callers want the result now). Pod
// logs do not separate the two streams, so the text Run returns as stderr
// is the whole log, stdout lines included.
type K8sBackend struct {
	client    kubernetes.Interface
	namespace string
	cfg       K8sConfig
}

func NewK8sBackend(cfg K8sConfig) (*K8sBackend, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("execbackend: k8s backend requires an image")
	}

	restCfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := cfg.Kubeconfig
		if kubeconfig == "" {
			if home := homedir.HomeDir(); home != "" {
				kubeconfig = filepath.Join(home, ".kube", "config")
			} else {
				kubeconfig = os.Getenv("KUBECONFIG")
			}
		}
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("execbackend: load kubeconfig: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("execbackend: build k8s client: %w", err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "default"
		if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
			namespace = strings.TrimSpace(string(data))
		}
	}

	return &K8sBackend{client: clientset, namespace: namespace, cfg: cfg}, nil
}

var k8sNameSanitizerRegex = regexp.MustCompile("[^a-z0-9]+")

func sanitizeK8sName(name string) string {
	name = strings.ToLower(name)
	name = k8sNameSanitizerRegex.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}

func boolPtr(b bool) *bool { return &b }

func (b *K8sBackend) Run(ctx context.Context, spec Spec, onLine func(string), stop func() bool) (string, error) {
	jobName := fmt.Sprintf("pipeline-agent-%s-%d", sanitizeK8sName(filepath.Base(spec.Dir)), time.Now().UnixNano())

	image := spec.Image
	if image == "" {
		image = b.cfg.Image
	}

	var envVars []corev1.EnvVar
	for _, kv := range spec.Env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envVars = append(envVars, corev1.EnvVar{Name: parts[0], Value: parts[1]})
	}

	ttl := int32(3600)
	backoff := int32(0)
	cmdLine := append([]string{spec.Command}, spec.Args...)

	podSpec := corev1.PodSpec{
		RestartPolicy:      corev1.RestartPolicyNever,
		EnableServiceLinks: boolPtr(false),
		Containers: []corev1.Container{
			{
				Name:       "agent",
				Image:      image,
				Command:    cmdLine[:1],
				Args:       cmdLine[1:],
				Env:        envVars,
				WorkingDir: "/workspace",
			},
		},
	}
	if b.cfg.ServiceAccount != "" {
		podSpec.ServiceAccountName = b.cfg.ServiceAccount
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: jobName},
		Spec: batchv1.JobSpec{
			TTLSecondsAfterFinished: &ttl,
			BackoffLimit:            &backoff,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "pipeline-agent"}},
				Spec:       podSpec,
			},
		},
	}

	jobs := b.client.BatchV1().Jobs(b.namespace)
	if _, err := jobs.Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("execbackend: create job: %w", err)
	}
	defer func() {
		delPolicy := metav1.DeletePropagationBackground
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = jobs.Delete(cleanupCtx, jobName, metav1.DeleteOptions{PropagationPolicy: &delPolicy})
	}()

	podName, err := b.waitForPod(ctx, jobName, stop)
	if err != nil {
		return "", err
	}

	var stderrTail strings.Builder
	if err := b.streamLogs(ctx, podName, onLine, &stderrTail); err != nil {
		stderrTail.WriteString(err.Error())
	}

	return stderrTail.String(), b.waitForCompletion(ctx, jobName, stop)
}

func (b *K8sBackend) waitForPod(ctx context.Context, jobName string, stop func() bool) (string, error) {
	ticker := time.NewTicker(subprocessPollInterval)
	defer ticker.Stop()
	for {
		pods, err := b.client.CoreV1().Pods(b.namespace).List(ctx, metav1.ListOptions{
			LabelSelector: "job-name=" + jobName,
		})
		if err == nil && len(pods.Items) > 0 {
			phase := pods.Items[0].Status.Phase
			if phase == corev1.PodRunning || phase == corev1.PodSucceeded || phase == corev1.PodFailed {
				return pods.Items[0].Name, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			if stop() {
				return "", fmt.Errorf("execbackend: stopped waiting for pod")
			}
		}
	}
}

func (b *K8sBackend) streamLogs(ctx context.Context, podName string, onLine func(string), stderrTail *strings.Builder) error {
	req := b.client.CoreV1().Pods(b.namespace).GetLogs(podName, &corev1.PodLogOptions{Follow: true})
	stream, err := req.Stream(ctx)
	if err != nil {
		return fmt.Errorf("execbackend: stream pod logs: %w", err)
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		onLine(line)
		if stderrTail.Len() > 0 {
			stderrTail.WriteByte('\n')
		}
		stderrTail.WriteString(line)
	}
	return nil
}

func (b *K8sBackend) waitForCompletion(ctx context.Context, jobName string, stop func() bool) error {
	ticker := time.NewTicker(subprocessPollInterval)
	defer ticker.Stop()
	for {
		j, err := b.client.BatchV1().Jobs(b.namespace).Get(ctx, jobName, metav1.GetOptions{})
		if err == nil {
			if j.Status.Succeeded > 0 {
				return nil
			}
			if j.Status.Failed > 0 {
				return fmt.Errorf("execbackend: job %s failed", jobName)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if stop() {
				return fmt.Errorf("execbackend: stopped waiting for job completion")
			}
		}
	}
}
