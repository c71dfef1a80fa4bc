// Package kubestore keeps the lease as a coordination.k8s.io/v1 Lease. The
// lease fields ride in annotations and the api server's resourceVersion
// check makes the conditional write atomic.
package kubestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/backend/leasedoc"
	"github.com/khenidak/crossdc/pkg/config"
	"github.com/khenidak/crossdc/pkg/types"
)

const (
	annotationPrefix = "crossdc.khenidak.io/"

	annotationKey          = annotationPrefix + "key"
	annotationSubKey       = annotationPrefix + "sub-key"
	annotationUntil        = annotationPrefix + "until"
	annotationLastModified = annotationPrefix + "last-modified"
	annotationUpdateIP     = annotationPrefix + "update-ip"
	annotationUpdateUser   = annotationPrefix + "update-user"
	annotationCreatedAt    = annotationPrefix + "created-at"
	annotationNote         = annotationPrefix + "note"

	managedByLabel = "app.kubernetes.io/managed-by"
	managedByValue = "crossdc"
)

type store struct {
	client    kubernetes.Interface
	namespace string

	now func() time.Time
}

var _ types.LeaseStore = (*store)(nil)

func NewStore(ctx context.Context, c *config.Config) (types.LeaseStore, error) {
	// empty path falls back to in-cluster config
	restConfig, err := clientcmd.BuildConfigFromFlags("", c.Kube.KubeConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build kube client config: %w", err)
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kube client: %w", err)
	}

	klogv2.Infof("kube lease store ready on namespace:%v", c.Kube.Namespace)
	return NewStoreWithClient(client, c.Kube.Namespace), nil
}

func NewStoreWithClient(client kubernetes.Interface, namespace string) types.LeaseStore {
	return &store{
		client:    client,
		namespace: namespace,
		now:       time.Now,
	}
}

// object names are dns-1123 subdomains, the original pair is kept in annotations
func leaseName(key string, subKey string) string {
	name := strings.ToLower(key + "-" + subKey)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(lease *coordinationv1.Lease, annotation string) (time.Time, error) {
	raw, ok := lease.Annotations[annotation]
	if !ok {
		return time.Time{}, fmt.Errorf("lease %s/%s is missing annotation %s", lease.Namespace, lease.Name, annotation)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("lease %s/%s annotation %s: %w", lease.Namespace, lease.Name, annotation, err)
	}
	return time.Unix(0, n).UTC(), nil
}

func setLeaseFields(lease *coordinationv1.Lease, record *types.LeaseRecord, until time.Time, lastModified time.Time) {
	if lease.Annotations == nil {
		lease.Annotations = map[string]string{}
	}
	lease.Annotations[annotationUntil] = formatTime(until)
	lease.Annotations[annotationLastModified] = formatTime(lastModified)
	lease.Annotations[annotationUpdateIP] = record.UpdateIP
	lease.Annotations[annotationUpdateUser] = record.UpdateUser

	holder := record.Value
	renew := metav1.NewMicroTime(lastModified)
	durationSeconds := int32(0)
	if until.After(lastModified) {
		durationSeconds = int32(until.Sub(lastModified) / time.Second)
	}
	lease.Spec.HolderIdentity = &holder
	lease.Spec.RenewTime = &renew
	lease.Spec.LeaseDurationSeconds = &durationSeconds
}

func toRecord(lease *coordinationv1.Lease) (*types.LeaseRecord, error) {
	until, err := parseTime(lease, annotationUntil)
	if err != nil {
		return nil, err
	}
	lastModified, err := parseTime(lease, annotationLastModified)
	if err != nil {
		return nil, err
	}

	value := ""
	if lease.Spec.HolderIdentity != nil {
		value = *lease.Spec.HolderIdentity
	}
	return &types.LeaseRecord{
		Key:          lease.Annotations[annotationKey],
		SubKey:       lease.Annotations[annotationSubKey],
		Value:        value,
		UpdateIP:     lease.Annotations[annotationUpdateIP],
		UpdateUser:   lease.Annotations[annotationUpdateUser],
		Until:        until,
		LastModified: lastModified,
	}, nil
}

func (s *store) Get(ctx context.Context, key string, subKey string) (*types.LeaseRecord, error) {
	lease, err := s.get(ctx, key, subKey)
	if err != nil {
		return nil, err
	}
	return toRecord(lease)
}

func (s *store) get(ctx context.Context, key string, subKey string) (*coordinationv1.Lease, error) {
	lease, err := s.client.CoordinationV1().Leases(s.namespace).Get(ctx, leaseName(key, subKey), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", key, subKey, types.ErrLeaseNotFound)
		}
		return nil, err
	}
	return lease, nil
}

func (s *store) Insert(ctx context.Context, record *types.LeaseRecord, createdAt time.Time, note string) error {
	lease := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{
			Name:      leaseName(record.Key, record.SubKey),
			Namespace: s.namespace,
			Labels: map[string]string{
				managedByLabel: managedByValue,
			},
			Annotations: map[string]string{
				annotationKey:       record.Key,
				annotationSubKey:    record.SubKey,
				annotationCreatedAt: formatTime(createdAt),
				annotationNote:      note,
			},
		},
	}
	setLeaseFields(lease, record, record.Until, leasedoc.NextLastModified(s.now(), time.Time{}))
	acquire := metav1.NewMicroTime(createdAt)
	lease.Spec.AcquireTime = &acquire

	_, err := s.client.CoordinationV1().Leases(s.namespace).Create(ctx, lease, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrLeaseExists)
		}
		return err
	}
	return nil
}

func (s *store) UpdateIdempotent(ctx context.Context, record *types.LeaseRecord, until time.Time, expectedLastModified time.Time) error {
	conditionFailed := fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrConditionFailed)

	lease, err := s.get(ctx, record.Key, record.SubKey)
	if err != nil {
		if errors.Is(err, types.ErrLeaseNotFound) {
			return conditionFailed
		}
		return err
	}
	current, err := parseTime(lease, annotationLastModified)
	if err != nil {
		return err
	}
	if !current.Equal(expectedLastModified) {
		return conditionFailed
	}

	// the fetched resourceVersion goes back with the update
	setLeaseFields(lease, record, until, leasedoc.NextLastModified(s.now(), current))
	_, err = s.client.CoordinationV1().Leases(s.namespace).Update(ctx, lease, metav1.UpdateOptions{})
	if err != nil {
		if apierrors.IsConflict(err) || apierrors.IsNotFound(err) {
			klogv2.V(4).Infof("kube: lease %s/%s changed between read and write", s.namespace, lease.Name)
			return conditionFailed
		}
		return err
	}
	return nil
}

func (s *store) Close() error {
	return nil
}
