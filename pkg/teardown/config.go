package teardown

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/yaml"
)

// RuntimeConfig is the process-wide, read-only configuration shared by every
// finalize pass. Build it once with NewRuntimeConfig and pass the pointer
// around; it has no mutating methods.
type RuntimeConfig struct {
	operatorName string
	parentType   K8sType
	childTypes   map[schema.GroupVersionKind]K8sType
}

// NewRuntimeConfig validates and builds a RuntimeConfig. Every child kind the
// operator may own must be listed; a pass never learns about new kinds.
//
// Example:
//
//	config, err := teardown.NewRuntimeConfig(
//	    "guestbook.example.com/finalizer",
//	    teardown.K8sType{Group: "webapp.example.com", Version: "v1", Kind: "Guestbook", Plural: "guestbooks", Namespaced: true},
//	    teardown.K8sType{Version: "v1", Kind: "ConfigMap", Plural: "configmaps", Namespaced: true},
//	)
func NewRuntimeConfig(operatorName string, parent K8sType, children ...K8sType) (*RuntimeConfig, error) {
	var errs error

	for _, msg := range validation.IsQualifiedName(operatorName) {
		errs = multierr.Append(errs, fmt.Errorf("operator name %q: %s", operatorName, msg))
	}
	errs = multierr.Append(errs, validateType("parent", parent))

	childTypes := make(map[schema.GroupVersionKind]K8sType, len(children))
	for i, child := range children {
		if err := validateType(fmt.Sprintf("children[%d]", i), child); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		gvk := child.GroupVersionKind()
		if _, exists := childTypes[gvk]; exists {
			errs = multierr.Append(errs, fmt.Errorf("children[%d]: duplicate child kind %s", i, gvk))
			continue
		}
		childTypes[gvk] = child
	}

	if errs != nil {
		return nil, fmt.Errorf("invalid runtime config: %w", errs)
	}

	return &RuntimeConfig{
		operatorName: operatorName,
		parentType:   parent,
		childTypes:   childTypes,
	}, nil
}

// OperatorName returns the operator identity, used verbatim as the finalizer.
func (c *RuntimeConfig) OperatorName() string {
	return c.operatorName
}

// ParentType returns a copy of the descriptor of the resources being finalized.
func (c *RuntimeConfig) ParentType() K8sType {
	return c.parentType
}

func validateType(field string, t K8sType) error {
	var errs error
	if t.Version == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s: version is required", field))
	}
	if t.Kind == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s: kind is required", field))
	}
	if t.Plural == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s: plural is required", field))
	} else if t.Plural != strings.ToLower(t.Plural) {
		errs = multierr.Append(errs, fmt.Errorf("%s: plural %q must be lowercase", field, t.Plural))
	}
	return errs
}

// TypeFor returns the registered descriptor for a child kind.
func (c *RuntimeConfig) TypeFor(gvk schema.GroupVersionKind) (*K8sType, bool) {
	t, ok := c.childTypes[gvk]
	if !ok {
		return nil, false
	}
	return &t, true
}

// ChildKinds returns the registered child kinds.
func (c *RuntimeConfig) ChildKinds() []schema.GroupVersionKind {
	kinds := make([]schema.GroupVersionKind, 0, len(c.childTypes))
	for gvk := range c.childTypes {
		kinds = append(kinds, gvk)
	}
	return kinds
}

// ValidateChildKinds checks that every kind the operator declares as a child
// is resolvable. Call it at startup with the kinds the controller watches.
func (c *RuntimeConfig) ValidateChildKinds(declared ...schema.GroupVersionKind) error {
	var errs error
	for _, gvk := range declared {
		if _, ok := c.childTypes[gvk]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrMissingChildType, gvk))
		}
	}
	return errs
}

// ConfigFile is the on-disk form of a RuntimeConfig.
type ConfigFile struct {
	OperatorName string    `json:"operatorName"`
	Parent       K8sType   `json:"parent"`
	Children     []K8sType `json:"children,omitempty"`
}

// ParseConfig builds a RuntimeConfig from YAML or JSON.
//
// Example:
//
//	operatorName: guestbook.example.com/finalizer
//	parent:
//	  group: webapp.example.com
//	  version: v1
//	  kind: Guestbook
//	  plural: guestbooks
//	  namespaced: true
//	children:
//	- version: v1
//	  kind: ConfigMap
//	  plural: configmaps
//	  namespaced: true
func ParseConfig(data []byte) (*RuntimeConfig, error) {
	var file ConfigFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config: %w", err)
	}
	return NewRuntimeConfig(file.OperatorName, file.Parent, file.Children...)
}

// LoadConfigFile reads and parses the runtime config at path.
func LoadConfigFile(path string) (*RuntimeConfig, error) {
	if path == "" {
		return nil, errors.New("runtime config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime config: %w", err)
	}
	return ParseConfig(data)
}
