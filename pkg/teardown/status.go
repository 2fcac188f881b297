package teardown

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/types"
)

// ObservedGenerationField is the status field set to the parent generation the
// status was computed from.
const ObservedGenerationField = "observedGeneration"

// StatusUpdate carries everything needed to patch a parent status under
// optimistic concurrency. All values come from the snapshot the handler saw.
type StatusUpdate struct {
	// ParentID identifies the parent.
	ParentID types.NamespacedName

	// ResourceVersion is the parent resource version of the snapshot.
	ResourceVersion string

	// Generation is the parent generation of the snapshot.
	Generation int64

	// OldStatus is the status of the snapshot.
	OldStatus map[string]interface{}

	// NewStatus is the status returned by the handler. Nil means no change.
	NewStatus map[string]interface{}
}

// DesiredStatus returns NewStatus with the observed generation recorded, or
// nil if there is no new status.
func (u StatusUpdate) DesiredStatus() map[string]interface{} {
	if u.NewStatus == nil {
		return nil
	}
	status := normalizeStatus(u.NewStatus)
	status[ObservedGenerationField] = u.Generation
	return status
}

// UpdateStatusIfDifferent patches the parent status if the desired status
// differs from the old one. It returns true if a patch was sent.
//
// The patch carries the snapshot's resource version, so a parent that was
// modified since the snapshot yields a KindConflict error.
func UpdateStatusIfDifferent(ctx context.Context, c Client, config *RuntimeConfig, update StatusUpdate) (bool, error) {
	desired := update.DesiredStatus()
	if desired == nil {
		return false, nil
	}
	if equality.Semantic.DeepEqual(normalizeStatus(update.OldStatus), desired) {
		return false, nil
	}

	patch, err := StatusPatch(update.ResourceVersion, update.OldStatus, desired)
	if err != nil {
		return false, fmt.Errorf("failed to build status patch: %w", err)
	}
	if err := c.PatchResource(ctx, &config.parentType, update.ParentID, patch); err != nil {
		return false, err
	}
	return true, nil
}

// normalizeStatus deep-copies status, folding integer widths so that a status
// read from the API server (int64) compares equal to one built by a handler (int).
func normalizeStatus(status map[string]interface{}) map[string]interface{} {
	if status == nil {
		return nil
	}
	out := make(map[string]interface{}, len(status))
	for k, v := range status {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case map[string]interface{}:
		return normalizeStatus(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
