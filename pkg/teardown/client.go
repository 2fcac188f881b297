package teardown

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Client is the subset of API operations the finalize path needs.
// Implementations must be safe for concurrent use by many passes.
type Client interface {
	// DeleteResource deletes the object id of type typ.
	DeleteResource(ctx context.Context, typ *K8sType, id types.NamespacedName) error

	// PatchResource applies patch to the object id of type typ.
	PatchResource(ctx context.Context, typ *K8sType, id types.NamespacedName, patch Patch) error
}

// Patch is a raw patch against a single object.
type Patch struct {
	// Type is the patch encoding.
	Type types.PatchType

	// Data is the encoded patch body.
	Data []byte

	// SubResource targets a subresource such as "status". Empty for the main resource.
	SubResource string
}

type jsonPatchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// RemoveFinalizerPatch builds a JSON patch that removes the finalizer name
// from obj. The patch tests the entry before removing it, so it fails instead
// of removing another finalizer if the list changed since obj was read.
// It returns false if obj does not carry the finalizer.
func RemoveFinalizerPatch(obj *unstructured.Unstructured, name string) (Patch, bool, error) {
	index, ok := FinalizerIndex(obj.GetFinalizers(), name)
	if !ok {
		return Patch{}, false, nil
	}
	path := fmt.Sprintf("/metadata/finalizers/%d", index)
	data, err := json.Marshal([]jsonPatchOp{
		{Op: "test", Path: path, Value: name},
		{Op: "remove", Path: path},
	})
	if err != nil {
		return Patch{}, false, err
	}
	return Patch{Type: types.JSONPatchType, Data: data}, true, nil
}

// StatusPatch builds a merge patch that replaces the status oldStatus with
// newStatus. Keys of oldStatus missing from newStatus are set to null, so the
// stored status ends up equal to newStatus. The resource version makes the API
// server reject the patch with a conflict if the object changed since it was
// read.
func StatusPatch(resourceVersion string, oldStatus, newStatus map[string]interface{}) (Patch, error) {
	original, err := json.Marshal(map[string]interface{}{"status": oldStatus})
	if err != nil {
		return Patch{}, err
	}
	modified, err := json.Marshal(map[string]interface{}{"status": newStatus})
	if err != nil {
		return Patch{}, err
	}
	diff, err := jsonpatch.CreateMergePatch(original, modified)
	if err != nil {
		return Patch{}, fmt.Errorf("failed to diff status: %w", err)
	}

	body := map[string]interface{}{}
	if err := json.Unmarshal(diff, &body); err != nil {
		return Patch{}, err
	}
	body["metadata"] = map[string]interface{}{
		"resourceVersion": resourceVersion,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Patch{}, err
	}
	return Patch{Type: types.MergePatchType, Data: data, SubResource: "status"}, nil
}

// controllerClient implements Client on top of a controller-runtime client.
type controllerClient struct {
	client client.Client
}

// NewClient returns a Client backed by a controller-runtime client. Objects are
// addressed by kind, so the client's RESTMapper must know every registered type.
func NewClient(c client.Client) Client {
	return &controllerClient{client: c}
}

func (c *controllerClient) object(typ *K8sType, id types.NamespacedName) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(typ.GroupVersionKind())
	obj.SetNamespace(id.Namespace)
	obj.SetName(id.Name)
	return obj
}

func (c *controllerClient) DeleteResource(ctx context.Context, typ *K8sType, id types.NamespacedName) error {
	err := c.client.Delete(ctx, c.object(typ, id), client.PropagationPolicy(metav1.DeletePropagationBackground))
	return NewUpdateError("delete", typ, id, err)
}

func (c *controllerClient) PatchResource(ctx context.Context, typ *K8sType, id types.NamespacedName, patch Patch) error {
	obj := c.object(typ, id)
	raw := client.RawPatch(patch.Type, patch.Data)
	var err error
	if patch.SubResource != "" {
		err = c.client.SubResource(patch.SubResource).Patch(ctx, obj, raw)
	} else {
		err = c.client.Patch(ctx, obj, raw)
	}
	return NewUpdateError("patch", typ, id, err)
}

// dynamicClient implements Client on top of a client-go dynamic client.
type dynamicClient struct {
	client dynamic.Interface
}

// NewDynamicClient returns a Client backed by a client-go dynamic client.
// Objects are addressed by the Plural of their K8sType.
func NewDynamicClient(c dynamic.Interface) Client {
	return &dynamicClient{client: c}
}

func (c *dynamicClient) resource(typ *K8sType, namespace string) dynamic.ResourceInterface {
	res := c.client.Resource(typ.GroupVersionResource())
	if typ.Namespaced {
		return res.Namespace(namespace)
	}
	return res
}

func (c *dynamicClient) DeleteResource(ctx context.Context, typ *K8sType, id types.NamespacedName) error {
	policy := metav1.DeletePropagationBackground
	err := c.resource(typ, id.Namespace).Delete(ctx, id.Name, metav1.DeleteOptions{PropagationPolicy: &policy})
	return NewUpdateError("delete", typ, id, err)
}

func (c *dynamicClient) PatchResource(ctx context.Context, typ *K8sType, id types.NamespacedName, patch Patch) error {
	var subresources []string
	if patch.SubResource != "" {
		subresources = append(subresources, patch.SubResource)
	}
	_, err := c.resource(typ, id.Namespace).Patch(ctx, id.Name, patch.Type, patch.Data, metav1.PatchOptions{}, subresources...)
	return NewUpdateError("patch", typ, id, err)
}
