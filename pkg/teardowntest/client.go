package teardowntest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	jsonpatch "github.com/evanphx/json-patch"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	utiljson "k8s.io/apimachinery/pkg/util/json"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/streamline-controllers/teardown/pkg/teardown"
)

// Call records a single operation issued against a FakeClient.
type Call struct {
	// Op is "delete" or "patch".
	Op string

	// Kind is the kind of the target.
	Kind string

	// ID identifies the target.
	ID types.NamespacedName

	// Patch is the patch sent, zero for deletes.
	Patch teardown.Patch
}

// FakeClient is an in-memory teardown.Client for testing.
// Patches are applied to the stored objects, so tests can assert on the
// resulting state as well as on the calls.
type FakeClient struct {
	mu      sync.Mutex
	objects map[objectKey]*unstructured.Unstructured
	version int64

	// Error injection
	deleteError       error
	deleteErrors      map[types.NamespacedName]error
	patchError        error
	statusPatchError  error
	conflictOnPatches int

	// Tracking
	calls []Call
}

type objectKey struct {
	gvk       schema.GroupVersionKind
	namespace string
	name      string
}

// NewFakeClient creates a new FakeClient holding copies of objs.
func NewFakeClient(objs ...*unstructured.Unstructured) *FakeClient {
	fc := &FakeClient{
		objects:      make(map[objectKey]*unstructured.Unstructured),
		deleteErrors: make(map[types.NamespacedName]error),
		version:      1000,
	}
	for _, obj := range objs {
		fc.Add(obj)
	}
	return fc
}

// Add stores a copy of obj. Objects without a resource version get one.
func (c *FakeClient) Add(obj *unstructured.Unstructured) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := obj.DeepCopy()
	if stored.GetResourceVersion() == "" {
		stored.SetResourceVersion(c.nextVersion())
	}
	c.objects[keyOf(obj.GroupVersionKind(), teardown.ObjectID(obj))] = stored
}

// Get returns a copy of the stored object.
func (c *FakeClient) Get(typ *teardown.K8sType, id types.NamespacedName) (*unstructured.Unstructured, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[keyOf(typ.GroupVersionKind(), id)]
	if !ok {
		return nil, false
	}
	return obj.DeepCopy(), true
}

// DeleteResource implements teardown.Client.
func (c *FakeClient) DeleteResource(ctx context.Context, typ *teardown.K8sType, id types.NamespacedName) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{Op: "delete", Kind: typ.Kind, ID: id})

	if err, ok := c.deleteErrors[id]; ok {
		return teardown.NewUpdateError("delete", typ, id, err)
	}
	if c.deleteError != nil {
		return teardown.NewUpdateError("delete", typ, id, c.deleteError)
	}

	key := keyOf(typ.GroupVersionKind(), id)
	if _, exists := c.objects[key]; !exists {
		return teardown.NewUpdateError("delete", typ, id, notFound(typ, id))
	}
	delete(c.objects, key)
	return nil
}

// PatchResource implements teardown.Client. JSON patches and merge patches
// are supported. A merge patch carrying metadata.resourceVersion fails with a
// conflict if the stored object has a different version.
func (c *FakeClient) PatchResource(ctx context.Context, typ *teardown.K8sType, id types.NamespacedName, patch teardown.Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{Op: "patch", Kind: typ.Kind, ID: id, Patch: patch})

	if patch.SubResource == "status" && c.statusPatchError != nil {
		return teardown.NewUpdateError("patch", typ, id, c.statusPatchError)
	}
	if c.patchError != nil {
		return teardown.NewUpdateError("patch", typ, id, c.patchError)
	}
	if c.conflictOnPatches > 0 {
		c.conflictOnPatches--
		return teardown.NewUpdateError("patch", typ, id, conflict(typ, id, "injected conflict"))
	}

	key := keyOf(typ.GroupVersionKind(), id)
	stored, exists := c.objects[key]
	if !exists {
		return teardown.NewUpdateError("patch", typ, id, notFound(typ, id))
	}

	patched, err := c.apply(typ, stored, patch)
	if err != nil {
		return teardown.NewUpdateError("patch", typ, id, err)
	}
	patched.SetResourceVersion(c.nextVersion())
	c.objects[key] = patched
	return nil
}

func (c *FakeClient) apply(typ *teardown.K8sType, stored *unstructured.Unstructured, patch teardown.Patch) (*unstructured.Unstructured, error) {
	id := teardown.ObjectID(stored)
	original, err := json.Marshal(stored.Object)
	if err != nil {
		return nil, err
	}

	var result []byte
	switch patch.Type {
	case types.JSONPatchType:
		decoded, err := jsonpatch.DecodePatch(patch.Data)
		if err != nil {
			return nil, apierrors.NewBadRequest(err.Error())
		}
		result, err = decoded.Apply(original)
		if err != nil {
			return nil, apierrors.NewInvalid(typ.GroupVersionKind().GroupKind(), id.Name, field.ErrorList{
				field.Invalid(field.NewPath("metadata"), nil, err.Error()),
			})
		}
	case types.MergePatchType:
		if rv := patchResourceVersion(patch.Data); rv != "" && rv != stored.GetResourceVersion() {
			return nil, conflict(typ, id, fmt.Sprintf("resource version %s is stale, current is %s", rv, stored.GetResourceVersion()))
		}
		result, err = jsonpatch.MergePatch(original, patch.Data)
		if err != nil {
			return nil, apierrors.NewBadRequest(err.Error())
		}
	default:
		return nil, apierrors.NewBadRequest(fmt.Sprintf("unsupported patch type %s", patch.Type))
	}

	content := map[string]interface{}{}
	if err := utiljson.Unmarshal(result, &content); err != nil {
		return nil, err
	}
	patched := &unstructured.Unstructured{Object: content}

	// The status subresource only changes status; the main resource never does.
	switch patch.SubResource {
	case "status":
		out := stored.DeepCopy()
		if status, ok := content["status"]; ok {
			out.Object["status"] = status
		} else {
			delete(out.Object, "status")
		}
		return out, nil
	case "":
		if status, ok := stored.Object["status"]; ok {
			patched.Object["status"] = runtime.DeepCopyJSONValue(status)
		} else {
			delete(patched.Object, "status")
		}
		return patched, nil
	default:
		return nil, apierrors.NewNotFound(schema.GroupResource{Group: typ.Group, Resource: typ.Plural + "/" + patch.SubResource}, id.Name)
	}
}

func patchResourceVersion(data []byte) string {
	var body struct {
		Metadata struct {
			ResourceVersion string `json:"resourceVersion"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Metadata.ResourceVersion
}

func (c *FakeClient) nextVersion() string {
	c.version++
	return strconv.FormatInt(c.version, 10)
}

func keyOf(gvk schema.GroupVersionKind, id types.NamespacedName) objectKey {
	return objectKey{gvk: gvk, namespace: id.Namespace, name: id.Name}
}

func notFound(typ *teardown.K8sType, id types.NamespacedName) error {
	return apierrors.NewNotFound(schema.GroupResource{Group: typ.Group, Resource: typ.Plural}, id.Name)
}

func conflict(typ *teardown.K8sType, id types.NamespacedName, msg string) error {
	return apierrors.NewConflict(schema.GroupResource{Group: typ.Group, Resource: typ.Plural}, id.Name, fmt.Errorf("%s", msg))
}

// Error injection methods

// WithDeleteError configures an error to return on every delete.
func (c *FakeClient) WithDeleteError(err error) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteError = err
	return c
}

// WithDeleteErrorFor configures an error to return when deleting id.
func (c *FakeClient) WithDeleteErrorFor(id types.NamespacedName, err error) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteErrors[id] = err
	return c
}

// WithPatchError configures an error to return on every patch.
func (c *FakeClient) WithPatchError(err error) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patchError = err
	return c
}

// WithStatusPatchError configures an error to return on status patches.
func (c *FakeClient) WithStatusPatchError(err error) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusPatchError = err
	return c
}

// WithConflicts makes the next n patches fail with a conflict.
func (c *FakeClient) WithConflicts(n int) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conflictOnPatches = n
	return c
}

// ClearErrors removes all configured errors.
func (c *FakeClient) ClearErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteError = nil
	c.deleteErrors = make(map[types.NamespacedName]error)
	c.patchError = nil
	c.statusPatchError = nil
	c.conflictOnPatches = 0
}

// Tracking methods

// Calls returns all operations in the order they were issued.
func (c *FakeClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := make([]Call, len(c.calls))
	copy(calls, c.calls)
	return calls
}

// DeleteCalls returns the ids passed to DeleteResource, in order.
func (c *FakeClient) DeleteCalls() []types.NamespacedName {
	var ids []types.NamespacedName
	for _, call := range c.Calls() {
		if call.Op == "delete" {
			ids = append(ids, call.ID)
		}
	}
	return ids
}

// PatchCalls returns the patches passed to PatchResource, in order.
// subResource filters by subresource; "*" returns every patch.
func (c *FakeClient) PatchCalls(subResource string) []Call {
	var patches []Call
	for _, call := range c.Calls() {
		if call.Op != "patch" {
			continue
		}
		if subResource == "*" || call.Patch.SubResource == subResource {
			patches = append(patches, call)
		}
	}
	return patches
}

// ClearCalls resets all call tracking.
func (c *FakeClient) ClearCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// Verify interface compliance
var _ teardown.Client = &FakeClient{}
