package teardowntest

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"

	"github.com/streamline-controllers/teardown/pkg/teardown"
)

// ObjectOption mutates an object built by NewObject.
type ObjectOption func(obj *unstructured.Unstructured)

// NewObject builds an object of type typ.
//
// Example:
//
//	parent := teardowntest.NewObject(guestbookType, "default", "gb",
//	    teardowntest.WithFinalizers("other-op", "my-op"),
//	    teardowntest.Deleting(),
//	)
func NewObject(typ teardown.K8sType, namespace, name string, opts ...ObjectOption) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(typ.GroupVersionKind())
	obj.SetNamespace(namespace)
	obj.SetName(name)
	for _, opt := range opts {
		opt(obj)
	}
	return obj
}

// WithFinalizers sets metadata.finalizers.
func WithFinalizers(finalizers ...string) ObjectOption {
	return func(obj *unstructured.Unstructured) {
		obj.SetFinalizers(finalizers)
	}
}

// Deleting sets the deletion timestamp.
func Deleting() ObjectOption {
	return func(obj *unstructured.Unstructured) {
		ts := metav1.NewTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		obj.SetDeletionTimestamp(&ts)
	}
}

// WithGeneration sets metadata.generation.
func WithGeneration(generation int64) ObjectOption {
	return func(obj *unstructured.Unstructured) {
		obj.SetGeneration(generation)
	}
}

// WithResourceVersion sets metadata.resourceVersion.
func WithResourceVersion(rv string) ObjectOption {
	return func(obj *unstructured.Unstructured) {
		obj.SetResourceVersion(rv)
	}
}

// WithStatus sets the status. Integer values must be int64.
func WithStatus(status map[string]interface{}) ObjectOption {
	return func(obj *unstructured.Unstructured) {
		obj.Object["status"] = status
	}
}

// OwnedBy adds an owner reference to parent.
func OwnedBy(parent *unstructured.Unstructured) ObjectOption {
	return func(obj *unstructured.Unstructured) {
		refs := obj.GetOwnerReferences()
		refs = append(refs, metav1.OwnerReference{
			APIVersion: parent.GetAPIVersion(),
			Kind:       parent.GetKind(),
			Name:       parent.GetName(),
			UID:        parent.GetUID(),
		})
		obj.SetOwnerReferences(refs)
	}
}

// ID returns the namespace/name identity of obj.
func ID(obj *unstructured.Unstructured) types.NamespacedName {
	return teardown.ObjectID(obj)
}
