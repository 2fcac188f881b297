package teardown

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// FinalizerIndex returns the position of name in finalizers.
// The operator's finalizer appears at most once, so the first match is the only one.
func FinalizerIndex(finalizers []string, name string) (int, bool) {
	for i, f := range finalizers {
		if f == name {
			return i, true
		}
	}
	return -1, false
}

// HasFinalizer returns true if obj carries the finalizer name.
func HasFinalizer(obj *unstructured.Unstructured, name string) bool {
	_, ok := FinalizerIndex(obj.GetFinalizers(), name)
	return ok
}

// DeleteChildren deletes every child that is not already being deleted.
//
// Children with a deletion timestamp are skipped, which makes repeated passes
// over the same child set idempotent. The first failed delete aborts the
// iteration; a later pass rescans the remaining children. A child that is
// already gone counts as deleted.
//
// Each child kind must be registered in config. An unregistered kind aborts
// with an UpdateError of kind KindConfigMissing.
func DeleteChildren(ctx context.Context, c Client, config *RuntimeConfig, children []*unstructured.Unstructured, log logr.Logger) error {
	for _, child := range children {
		gvk := typeOf(child)
		id := ObjectID(child)

		if IsDeleting(child) {
			log.V(1).Info("will not delete child because its deletion timestamp is already set", "type", gvk.String(), "child", id.String())
			continue
		}

		typ, ok := config.TypeFor(gvk)
		if !ok {
			return NewUpdateError("delete", nil, id, &MissingTypeError{GVK: gvk, ID: id})
		}

		if err := c.DeleteResource(ctx, typ, id); err != nil {
			if IsNotFound(err) {
				log.V(1).Info("child is already gone", "type", typ.String(), "child", id.String())
				continue
			}
			return err
		}
		log.Info("deleted child", "type", typ.String(), "child", id.String())
	}
	return nil
}

// RemoveFinalizer removes the operator's finalizer from parent. It is a no-op
// if parent does not carry the finalizer.
func RemoveFinalizer(ctx context.Context, c Client, config *RuntimeConfig, parent *unstructured.Unstructured) error {
	patch, ok, err := RemoveFinalizerPatch(parent, config.operatorName)
	if err != nil {
		return fmt.Errorf("failed to build finalizer patch: %w", err)
	}
	if !ok {
		return nil
	}
	return c.PatchResource(ctx, &config.parentType, ObjectID(parent), patch)
}
