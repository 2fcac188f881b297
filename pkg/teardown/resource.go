package teardown

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
)

// K8sType is the full descriptor of a resource collection. The Kind identifies
// objects in memory, the Plural addresses the collection on the API server.
type K8sType struct {
	// Group is the API group. Empty for the core group.
	Group string `json:"group,omitempty"`

	// Version is the API version within the group (e.g. "v1").
	Version string `json:"version"`

	// Kind is the object kind (e.g. "ConfigMap").
	Kind string `json:"kind"`

	// Plural is the lowercase plural resource name (e.g. "configmaps").
	Plural string `json:"plural"`

	// Namespaced is true for namespace-scoped resources.
	Namespaced bool `json:"namespaced"`
}

// GroupVersionKind returns the kind identity of the type.
func (t *K8sType) GroupVersionKind() schema.GroupVersionKind {
	return schema.GroupVersionKind{Group: t.Group, Version: t.Version, Kind: t.Kind}
}

// GroupVersionResource returns the collection identity of the type.
func (t *K8sType) GroupVersionResource() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: t.Group, Version: t.Version, Resource: t.Plural}
}

// APIVersion returns the group/version string used in object manifests.
func (t *K8sType) APIVersion() string {
	return t.GroupVersionKind().GroupVersion().String()
}

func (t *K8sType) String() string {
	return fmt.Sprintf("%s/%s", t.APIVersion(), t.Kind)
}

// SyncRequest is the snapshot of one parent and its known children for a
// single finalize pass. It is passed by value to the Handler and handed back
// to the runner once the handler returns.
type SyncRequest struct {
	// Parent is the resource being finalized.
	Parent *unstructured.Unstructured `json:"parent"`

	// Children are the resources owned by Parent as last observed.
	Children []*unstructured.Unstructured `json:"children"`
}

// DeepCopy returns a copy of the request that shares no memory with r.
func (r SyncRequest) DeepCopy() SyncRequest {
	out := SyncRequest{}
	if r.Parent != nil {
		out.Parent = r.Parent.DeepCopy()
	}
	if r.Children != nil {
		out.Children = make([]*unstructured.Unstructured, len(r.Children))
		for i, child := range r.Children {
			out.Children[i] = child.DeepCopy()
		}
	}
	return out
}

// FinalizeResponse is the handler's verdict for one finalize pass.
type FinalizeResponse struct {
	// Status is the desired parent status. Nil leaves the status untouched.
	Status map[string]interface{} `json:"status,omitempty"`

	// Finalized reports that all external cleanup is complete and the
	// finalizer may be removed.
	Finalized bool `json:"finalized"`
}

// ObjectID returns the namespace/name identity of obj.
func ObjectID(obj *unstructured.Unstructured) types.NamespacedName {
	return types.NamespacedName{Namespace: obj.GetNamespace(), Name: obj.GetName()}
}

// IsDeleting returns true if the deletion timestamp of obj is set.
func IsDeleting(obj *unstructured.Unstructured) bool {
	return obj.GetDeletionTimestamp() != nil
}

// statusOf returns a copy of the status map of obj, or nil if it has none.
func statusOf(obj *unstructured.Unstructured) map[string]interface{} {
	val, found, err := unstructured.NestedFieldNoCopy(obj.Object, "status")
	if err != nil || !found {
		return nil
	}
	status, ok := val.(map[string]interface{})
	if !ok {
		return nil
	}
	return normalizeStatus(status)
}

// typeOf returns the kind identity recorded on obj.
func typeOf(obj runtime.Object) schema.GroupVersionKind {
	return obj.GetObjectKind().GroupVersionKind()
}
