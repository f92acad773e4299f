// Package k8s implements leader.Store using the Kubernetes
// coordination/v1 Lease API. The leader's address and session travel as
// annotations on the Lease object, so retrieval works from any pod with
// read access to the namespace.
package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/stewardlabs/steward/id"
	"github.com/stewardlabs/steward/leader"
)

// Compile-time check that Store implements leader.Store.
var _ leader.Store = (*Store)(nil)

const (
	defaultLeaseName        = "steward-leader"
	defaultAnnotationPrefix = "steward.stewardlabs.dev/"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLeaseName sets the Lease object name used for leader election.
// Default: "steward-leader".
func WithLeaseName(name string) Option {
	return func(s *Store) { s.leaseName = name }
}

// WithAnnotationPrefix sets the prefix for leadership annotations on the
// Lease. Default: "steward.stewardlabs.dev/".
func WithAnnotationPrefix(prefix string) Option {
	return func(s *Store) { s.annotationPrefix = prefix }
}

// Store implements leader.Store on top of Kubernetes Lease objects.
type Store struct {
	client           kubernetes.Interface
	namespace        string
	leaseName        string
	annotationPrefix string
	logger           *slog.Logger
}

// New creates a Kubernetes lease store. The clientset and namespace are
// required; use functional options to customise the lease name,
// annotation prefix, or logger.
func New(client kubernetes.Interface, namespace string, opts ...Option) *Store {
	s := &Store{
		client:           client,
		namespace:        namespace,
		leaseName:        defaultLeaseName,
		annotationPrefix: defaultAnnotationPrefix,
		logger:           slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AcquireLeadership attempts to take the Lease for lease.NodeID.
func (s *Store) AcquireLeadership(ctx context.Context, lease *leader.Leadership, ttl time.Duration) (bool, error) {
	holder := lease.NodeID.String()
	now := metav1.NewMicroTime(time.Now().UTC())
	ttlSec := int32(ttl.Seconds())

	obj, err := s.client.CoordinationV1().Leases(s.namespace).Get(ctx, s.leaseName, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		// No lease exists — create one with us as holder.
		newLease := &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{
				Name:        s.leaseName,
				Namespace:   s.namespace,
				Annotations: s.leaseAnnotations(lease),
			},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       &holder,
				LeaseDurationSeconds: &ttlSec,
				AcquireTime:          &now,
				RenewTime:            &now,
			},
		}
		_, createErr := s.client.CoordinationV1().Leases(s.namespace).Create(ctx, newLease, metav1.CreateOptions{})
		if createErr != nil {
			if errors.IsAlreadyExists(createErr) {
				return false, nil // race: someone else created it first
			}
			return false, fmt.Errorf("steward/k8s: create lease: %w", createErr)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("steward/k8s: get lease: %w", err)
	}

	if s.isHeldByOther(obj, holder) {
		return false, nil
	}

	// Acquire or re-acquire.
	obj.Spec.HolderIdentity = &holder
	obj.Spec.LeaseDurationSeconds = &ttlSec
	obj.Spec.AcquireTime = &now
	obj.Spec.RenewTime = &now
	if obj.Annotations == nil {
		obj.Annotations = make(map[string]string)
	}
	for k, v := range s.leaseAnnotations(lease) {
		obj.Annotations[k] = v
	}

	_, err = s.client.CoordinationV1().Leases(s.namespace).Update(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		return false, fmt.Errorf("steward/k8s: update lease (acquire): %w", err)
	}
	return true, nil
}

// RenewLeadership extends the holder's Lease.
func (s *Store) RenewLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	holder := nodeID.String()
	now := metav1.NewMicroTime(time.Now().UTC())
	ttlSec := int32(ttl.Seconds())

	obj, err := s.client.CoordinationV1().Leases(s.namespace).Get(ctx, s.leaseName, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil // no lease exists
		}
		return false, fmt.Errorf("steward/k8s: renew get lease: %w", err)
	}

	// Only the current holder may renew, and an expired hold is lost.
	if obj.Spec.HolderIdentity == nil || *obj.Spec.HolderIdentity != holder || s.isExpired(obj) {
		return false, nil
	}

	obj.Spec.LeaseDurationSeconds = &ttlSec
	obj.Spec.RenewTime = &now

	_, err = s.client.CoordinationV1().Leases(s.namespace).Update(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		return false, fmt.Errorf("steward/k8s: renew update lease: %w", err)
	}
	return true, nil
}

// ResignLeadership clears the holder if the given node owns the Lease.
func (s *Store) ResignLeadership(ctx context.Context, nodeID id.NodeID) error {
	holder := nodeID.String()

	obj, err := s.client.CoordinationV1().Leases(s.namespace).Get(ctx, s.leaseName, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("steward/k8s: resign get lease: %w", err)
	}
	if obj.Spec.HolderIdentity == nil || *obj.Spec.HolderIdentity != holder {
		return nil
	}

	empty := ""
	obj.Spec.HolderIdentity = &empty
	for _, k := range []string{"address", "session", "acquired-at"} {
		delete(obj.Annotations, s.annotationPrefix+k)
	}

	_, err = s.client.CoordinationV1().Leases(s.namespace).Update(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("steward/k8s: resign update lease: %w", err)
	}
	return nil
}

// Leader returns the current leadership record from the Lease, or nil if
// there is no unexpired holder.
func (s *Store) Leader(ctx context.Context) (*leader.Leadership, error) {
	obj, err := s.client.CoordinationV1().Leases(s.namespace).Get(ctx, s.leaseName, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward/k8s: get leader lease: %w", err)
	}

	if obj.Spec.HolderIdentity == nil || *obj.Spec.HolderIdentity == "" || s.isExpired(obj) {
		return nil, nil
	}

	nodeID, err := id.ParseNodeID(*obj.Spec.HolderIdentity)
	if err != nil {
		return nil, fmt.Errorf("steward/k8s: parse holder identity: %w", err)
	}

	lease := &leader.Leadership{
		NodeID:  nodeID,
		Address: obj.Annotations[s.annotationPrefix+"address"],
	}
	if raw := obj.Annotations[s.annotationPrefix+"session"]; raw != "" {
		if lease.Session, err = id.ParseSessionID(raw); err != nil {
			return nil, fmt.Errorf("steward/k8s: parse leader session: %w", err)
		}
	}
	if raw := obj.Annotations[s.annotationPrefix+"acquired-at"]; raw != "" {
		if t, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			lease.AcquiredAt = t
		}
	}
	if obj.Spec.RenewTime != nil && obj.Spec.LeaseDurationSeconds != nil {
		lease.ExpiresAt = obj.Spec.RenewTime.Time.
			Add(time.Duration(*obj.Spec.LeaseDurationSeconds) * time.Second)
	}
	return lease, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Store) leaseAnnotations(lease *leader.Leadership) map[string]string {
	return map[string]string{
		s.annotationPrefix + "address":     lease.Address,
		s.annotationPrefix + "session":     lease.Session.String(),
		s.annotationPrefix + "acquired-at": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// isHeldByOther returns true if the lease is held by a different node and
// has not expired.
func (s *Store) isHeldByOther(obj *coordinationv1.Lease, holder string) bool {
	if obj.Spec.HolderIdentity == nil || *obj.Spec.HolderIdentity == "" {
		return false // no holder
	}
	if *obj.Spec.HolderIdentity == holder {
		return false // we hold it
	}
	return !s.isExpired(obj)
}

// isExpired returns true if the lease's renew time + duration is in the past.
func (s *Store) isExpired(obj *coordinationv1.Lease) bool {
	if obj.Spec.RenewTime == nil || obj.Spec.LeaseDurationSeconds == nil {
		return true
	}
	renewTime := obj.Spec.RenewTime.Time
	dur := time.Duration(*obj.Spec.LeaseDurationSeconds) * time.Second
	return time.Now().UTC().After(renewTime.Add(dur))
}
