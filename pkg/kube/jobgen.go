// Package kube dispatches grid runs as Kubernetes Jobs.
package kube

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	meta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"

	"github.com/PhantomInTheWire/gridsplit/pkg/logger"
)

const (
	// AppLabel is set on every Job and Pod created here.
	AppLabel = "gridsplit"
	// RunIDLabel carries the ledger job id.
	RunIDLabel = "gridsplit/run-id"
	// LedgerMountPath is where LedgerClaim is mounted in the run pod.
	LedgerMountPath = "/var/lib/gridsplit"

	maxNameLen = 63
)

var invalidName = regexp.MustCompile(`[^a-z0-9-]`)

func int32Ptr(i int32) *int32 { return &i }

// JobName derives a valid Job name from a run id. The timestamp keeps
// repeated dispatches of the same run distinct.
func JobName(runID string, at time.Time) string {
	sanitized := invalidName.ReplaceAllString(strings.ToLower(runID), "-")
	sanitized = strings.Trim(sanitized, "-")

	name := fmt.Sprintf("gridsplit-%s-%d", sanitized, at.Unix())
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return strings.TrimRight(name, "-")
}

// RunSpec describes the pod that executes one grid run.
type RunSpec struct {
	RunID     string
	Profile   string
	Namespace string
	Image     string
	// ConfigMap and Secret, when set, are injected as environment so the
	// pod sees the same GRIDSPLIT_* settings as the submitter.
	ConfigMap string
	Secret    string
	// LedgerClaim names a PersistentVolumeClaim holding the SQLite ledger.
	LedgerClaim  string
	Env          map[string]string
	BackoffLimit int32
}

// Validate checks the fields a Job cannot be built without.
func (s RunSpec) Validate() error {
	switch {
	case s.RunID == "":
		return errors.New("run id is required")
	case s.Image == "":
		return errors.New("image is required")
	case s.Namespace == "":
		return errors.New("namespace is required")
	}
	return nil
}

// NewRunJob builds a Job that runs `gridsplit run` for spec.RunID.
func NewRunJob(name string, spec RunSpec) *batchv1.Job {
	labels := map[string]string{"app": AppLabel, RunIDLabel: spec.RunID}

	args := []string{"run", "--job", spec.RunID}
	if spec.Profile != "" {
		args = append(args, "--profile", spec.Profile)
	}

	container := corev1.Container{
		Name:    "gridsplit",
		Image:   spec.Image,
		Command: []string{"gridsplit"},
		Args:    args,
		Env:     envVars(spec.Env),
	}
	if spec.ConfigMap != "" {
		container.EnvFrom = append(container.EnvFrom, corev1.EnvFromSource{
			ConfigMapRef: &corev1.ConfigMapEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: spec.ConfigMap}},
		})
	}
	if spec.Secret != "" {
		container.EnvFrom = append(container.EnvFrom, corev1.EnvFromSource{
			SecretRef: &corev1.SecretEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: spec.Secret}},
		})
	}

	pod := corev1.PodSpec{RestartPolicy: corev1.RestartPolicyOnFailure}
	if spec.LedgerClaim != "" {
		container.VolumeMounts = []corev1.VolumeMount{{Name: "ledger", MountPath: LedgerMountPath}}
		container.Env = append(container.Env, corev1.EnvVar{
			Name:  "GRIDSPLIT_LEDGER_PATH",
			Value: LedgerMountPath + "/ledger.db",
		})
		pod.Volumes = []corev1.Volume{{
			Name: "ledger",
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: spec.LedgerClaim},
			},
		}}
	}
	pod.Containers = []corev1.Container{container}

	backoff := spec.BackoffLimit
	if backoff <= 0 {
		backoff = 1
	}

	return &batchv1.Job{
		ObjectMeta: meta.ObjectMeta{
			Name:      name,
			Namespace: spec.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: int32Ptr(backoff),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: meta.ObjectMeta{Labels: labels},
				Spec:       pod,
			},
		},
	}
}

func envVars(env map[string]string) []corev1.EnvVar {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, corev1.EnvVar{Name: k, Value: env[k]})
	}
	return vars
}

// NewClient builds a clientset. An empty kubeconfig tries the in-cluster
// config first and then the user's home kubeconfig.
func NewClient(kubeconfig string) (kubernetes.Interface, error) {
	var (
		cfg *rest.Config
		err error
	)
	if kubeconfig == "" {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			kubeconfig = clientcmd.RecommendedHomeFile
		}
	}
	if cfg == nil {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, errors.Wrap(err, "loading kubeconfig")
		}
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "building clientset")
	}
	return clientset, nil
}

// Dispatcher creates run Jobs.
type Dispatcher struct {
	client kubernetes.Interface
	log    *zap.SugaredLogger
	now    func() time.Time
}

// NewDispatcher returns a Dispatcher using client.
func NewDispatcher(client kubernetes.Interface, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = logger.ComponentLogger("kube")
	}
	return &Dispatcher{client: client, log: log, now: time.Now}
}

// Dispatch creates the Job for spec, retrying on conflicts.
func (d *Dispatcher) Dispatch(ctx context.Context, spec RunSpec) (*batchv1.Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	job := NewRunJob(JobName(spec.RunID, d.now()), spec)

	var created *batchv1.Job
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var err error
		created, err = d.client.BatchV1().Jobs(spec.Namespace).Create(ctx, job, meta.CreateOptions{})
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create job %s", job.Name)
	}
	d.log.Infow("Run dispatched",
		logger.FieldJobID, spec.RunID,
		"k8s_job", created.Name,
		"namespace", spec.Namespace)
	return created, nil
}
