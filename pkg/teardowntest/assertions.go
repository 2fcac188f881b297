package teardowntest

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"

	"github.com/streamline-controllers/teardown/pkg/teardown"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Error("Expected error, got nil")
	}
}

// AssertErrorContains fails if err is nil or doesn't contain the expected string.
func AssertErrorContains(t *testing.T, err error, contains string) {
	t.Helper()
	if err == nil {
		t.Errorf("Expected error containing %q, got nil", contains)
		return
	}
	if !strings.Contains(err.Error(), contains) {
		t.Errorf("Expected error containing %q, got: %v", contains, err)
	}
}

// AssertErrorIs fails if err does not match target with errors.Is.
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("Expected error matching %v, got: %v", target, err)
	}
}

// AssertErrorKind fails if err is nil or is not of the expected kind.
func AssertErrorKind(t *testing.T, err error, kind teardown.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Errorf("Expected %s error, got nil", kind)
		return
	}
	if got := teardown.KindOf(err); got != kind {
		t.Errorf("Expected %s error, got %s: %v", kind, got, err)
	}
}

// AssertDeleteCalls fails if the ids deleted through c differ from want, in order.
func AssertDeleteCalls(t *testing.T, c *FakeClient, want ...types.NamespacedName) {
	t.Helper()
	if diff := cmp.Diff(want, c.DeleteCalls()); diff != "" {
		t.Errorf("Unexpected delete calls (-want +got):\n%s", diff)
	}
}

// AssertPatchCount fails if the number of patches on subResource differs
// from want. Use "" for the main resource and "*" for every patch.
func AssertPatchCount(t *testing.T, c *FakeClient, subResource string, want int) {
	t.Helper()
	if got := len(c.PatchCalls(subResource)); got != want {
		t.Errorf("Expected %d patches on %q, got %d", want, subResource, got)
	}
}

// AssertFinalizers fails if the stored object does not carry exactly want.
func AssertFinalizers(t *testing.T, c *FakeClient, typ *teardown.K8sType, id types.NamespacedName, want ...string) {
	t.Helper()
	obj, ok := c.Get(typ, id)
	if !ok {
		t.Errorf("Object %s %s not found", typ, id)
		return
	}
	got := obj.GetFinalizers()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unexpected finalizers on %s (-want +got):\n%s", id, diff)
	}
}

// AssertStatus fails if the stored object's status differs from want.
func AssertStatus(t *testing.T, c *FakeClient, typ *teardown.K8sType, id types.NamespacedName, want map[string]interface{}) {
	t.Helper()
	obj, ok := c.Get(typ, id)
	if !ok {
		t.Errorf("Object %s %s not found", typ, id)
		return
	}
	got, _ := obj.Object["status"].(map[string]interface{})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unexpected status on %s (-want +got):\n%s", id, diff)
	}
}

// AssertCompletion fails if msg is not the completion for id carrying indexKey.
func AssertCompletion(t *testing.T, msg teardown.ResourceMessage, id types.NamespacedName, indexKey string) {
	t.Helper()
	if msg.EventType != teardown.EventUpdateOperationComplete {
		t.Errorf("Expected event type %q, got %q", teardown.EventUpdateOperationComplete, msg.EventType)
	}
	if msg.ResourceID != id {
		t.Errorf("Expected completion for %s, got %s", id, msg.ResourceID)
	}
	if msg.IndexKey != indexKey {
		t.Errorf("Expected index key %q, got %q", indexKey, msg.IndexKey)
	}
}

// AssertEventRecorded fails if no event of eventType and reason was recorded.
// Events read before the match are consumed.
func AssertEventRecorded(t *testing.T, recorder *record.FakeRecorder, eventType, reason string) {
	t.Helper()
	prefix := eventType + " " + reason
	for {
		select {
		case event := <-recorder.Events:
			if strings.HasPrefix(event, prefix) {
				return
			}
		default:
			t.Errorf("Expected event %q, not recorded", prefix)
			return
		}
	}
}

// AssertNormalEvent fails if a Normal event with the reason was not recorded.
func AssertNormalEvent(t *testing.T, recorder *record.FakeRecorder, reason string) {
	t.Helper()
	AssertEventRecorded(t, recorder, corev1.EventTypeNormal, reason)
}

// AssertWarningEvent fails if a Warning event with the reason was not recorded.
func AssertWarningEvent(t *testing.T, recorder *record.FakeRecorder, reason string) {
	t.Helper()
	AssertEventRecorded(t, recorder, corev1.EventTypeWarning, reason)
}

// AssertNoEvents fails if any events were recorded.
func AssertNoEvents(t *testing.T, recorder *record.FakeRecorder) {
	t.Helper()
	select {
	case event := <-recorder.Events:
		t.Errorf("Expected no events, got %q", event)
	default:
	}
}
