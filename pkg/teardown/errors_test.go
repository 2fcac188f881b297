package teardown

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
)

var testGR = schema.GroupResource{Group: "webapp.example.com", Resource: "guestbooks"}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindTransport, "transport"},
		{KindConflict, "conflict"},
		{KindNotFound, "not-found"},
		{KindConfigMissing, "config-missing"},
		{KindHandler, "handler"},
		{ErrorKind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("ErrorKind.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"conflict", apierrors.NewConflict(testGR, "gb", errors.New("stale")), KindConflict},
		{"not found", apierrors.NewNotFound(testGR, "gb"), KindNotFound},
		{"forbidden", apierrors.NewForbidden(testGR, "gb", errors.New("rbac")), KindTransport},
		{"plain", errors.New("connection refused"), KindTransport},
		{"missing type", &MissingTypeError{GVK: schema.GroupVersionKind{Version: "v1", Kind: "Secret"}}, KindConfigMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyAPIError(tt.err); got != tt.want {
				t.Errorf("ClassifyAPIError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewUpdateError(t *testing.T) {
	typ := &K8sType{Group: "webapp.example.com", Version: "v1", Kind: "Guestbook", Plural: "guestbooks", Namespaced: true}
	id := types.NamespacedName{Namespace: "default", Name: "gb"}

	if err := NewUpdateError("patch", typ, id, nil); err != nil {
		t.Errorf("NewUpdateError(nil) = %v, want nil", err)
	}

	cause := apierrors.NewConflict(testGR, "gb", errors.New("stale"))
	err := NewUpdateError("patch", typ, id, cause)

	var ue *UpdateError
	if !errors.As(err, &ue) {
		t.Fatalf("NewUpdateError() = %T, want *UpdateError", err)
	}
	if ue.Kind != KindConflict {
		t.Errorf("Kind = %s, want %s", ue.Kind, KindConflict)
	}
	if ue.Op != "patch" || ue.Type != "webapp.example.com/v1/Guestbook" || ue.ID != id {
		t.Errorf("UpdateError = %+v", ue)
	}
	if !errors.Is(err, cause) {
		t.Error("UpdateError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "default/gb") || !strings.Contains(err.Error(), "conflict") {
		t.Errorf("Error() = %q", err.Error())
	}

	if again := NewUpdateError("delete", nil, id, err); again != err {
		t.Error("an existing UpdateError should be passed through")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"update error", &UpdateError{Kind: KindNotFound}, KindNotFound},
		{"wrapped update error", fmt.Errorf("failed: %w", &UpdateError{Kind: KindConflict}), KindConflict},
		{"handler panic", fmt.Errorf("%w: boom", ErrHandlerPanic), KindHandler},
		{"pool stopped", ErrPoolStopped, KindHandler},
		{"raw conflict", apierrors.NewConflict(testGR, "gb", errors.New("stale")), KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsConflictIsNotFound(t *testing.T) {
	if IsConflict(nil) || IsNotFound(nil) {
		t.Error("nil should be neither conflict nor not found")
	}
	if !IsConflict(&UpdateError{Kind: KindConflict}) {
		t.Error("IsConflict() = false for a conflict")
	}
	if !IsNotFound(apierrors.NewNotFound(testGR, "gb")) {
		t.Error("IsNotFound() = false for a not found error")
	}
	if IsNotFound(errors.New("boom")) {
		t.Error("IsNotFound() = true for a plain error")
	}
}

func TestMissingTypeError(t *testing.T) {
	err := error(&MissingTypeError{
		GVK: schema.GroupVersionKind{Version: "v1", Kind: "Secret"},
		ID:  types.NamespacedName{Namespace: "default", Name: "creds"},
	})
	if !errors.Is(err, ErrMissingChildType) {
		t.Error("MissingTypeError should match ErrMissingChildType")
	}
	if !strings.Contains(err.Error(), "default/creds") {
		t.Errorf("Error() = %q", err.Error())
	}
}
