// Package pagetype holds the page type and group configuration.
//
// A Registry is built once at startup and never mutated afterwards; every
// component that needs type lookups receives the same *Registry.
package pagetype

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pagetree/internal/sanitize"
)

const (
	DefaultTypeName = "default"
	HomeTypeName    = "home"
)

var ErrUnknownGroup = errors.New("unknown page group")

// Settings are the behavioral properties shared by groups and types.
type Settings struct {
	Template     string         `yaml:"template"`
	Sanitizer    string         `yaml:"sanitizer"`
	Areas        []string       `yaml:"areas"`
	MaxAreaBytes int            `yaml:"maxAreaBytes"`
	Extra        map[string]any `yaml:"extra"`
}

type GroupDef struct {
	Name     string `yaml:"name"`
	Settings `yaml:",inline"`
}

type TypeDef struct {
	Name     string `yaml:"name"`
	Label    string `yaml:"label"`
	Group    string `yaml:"group"`
	Settings `yaml:",inline"`
}

// File is the on-disk shape of a registry definition.
type File struct {
	Default string     `yaml:"default"`
	Groups  []GroupDef `yaml:"groups"`
	Types   []TypeDef  `yaml:"types"`
}

// Type is a fully resolved page type: group settings with type overrides applied.
type Type struct {
	Name         string
	Label        string
	Group        string
	Template     string
	Areas        []string
	MaxAreaBytes int
	Extra        map[string]any

	sanitizerName string
	sanitizer     sanitize.Sanitizer
}

func (t Type) HasSanitizer() bool {
	return t.sanitizer != nil
}

func (t Type) SanitizerName() string {
	return t.sanitizerName
}

// Sanitize runs the type's sanitizer over areas. Types without a sanitizer
// return areas unchanged.
func (t Type) Sanitize(areas map[string]string) (map[string]string, error) {
	if t.sanitizer == nil {
		return areas, nil
	}
	return t.sanitizer.Sanitize(areas)
}

type Registry struct {
	types       map[string]Type
	order       []string
	defaultType string
}

func New(file File) (*Registry, error) {
	groups := make(map[string]Settings, len(file.Groups))
	for _, group := range file.Groups {
		name := strings.TrimSpace(group.Name)
		if name == "" {
			return nil, errors.New("page group name is required")
		}
		if _, exists := groups[name]; exists {
			return nil, fmt.Errorf("duplicate page group %q", name)
		}
		groups[name] = group.Settings
	}

	reg := &Registry{types: make(map[string]Type, len(file.Types)+1)}
	for _, def := range file.Types {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, errors.New("page type name is required")
		}
		if _, exists := reg.types[name]; exists {
			return nil, fmt.Errorf("duplicate page type %q", name)
		}
		settings := def.Settings
		if def.Group != "" {
			base, ok := groups[def.Group]
			if !ok {
				return nil, fmt.Errorf("page type %q: %w %q", name, ErrUnknownGroup, def.Group)
			}
			settings = merge(base, def.Settings)
		}
		resolved, err := build(name, def.Label, def.Group, settings)
		if err != nil {
			return nil, err
		}
		reg.types[name] = resolved
		reg.order = append(reg.order, name)
	}

	reg.defaultType = strings.TrimSpace(file.Default)
	if reg.defaultType == "" {
		reg.defaultType = DefaultTypeName
	}
	if _, ok := reg.types[reg.defaultType]; !ok {
		fallback, err := build(reg.defaultType, "Page", "", Settings{})
		if err != nil {
			return nil, err
		}
		reg.types[reg.defaultType] = fallback
		reg.order = append(reg.order, reg.defaultType)
	}
	return reg, nil
}

// Parse builds a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse page types: %w", err)
	}
	return New(file)
}

func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page types: %w", err)
	}
	return Parse(data)
}

// Builtin is the registry used when no types file is configured.
func Builtin() *Registry {
	reg, err := New(File{
		Default: DefaultTypeName,
		Groups: []GroupDef{
			{Name: "content", Settings: Settings{Sanitizer: sanitize.ModeHTML, Areas: []string{"body", "aside"}, MaxAreaBytes: 256 << 10}},
		},
		Types: []TypeDef{
			{Name: HomeTypeName, Label: "Home", Group: "content", Settings: Settings{Template: "pages/home"}},
			{Name: DefaultTypeName, Label: "Page", Group: "content"},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("builtin page types: %v", err))
	}
	return reg
}

func (r *Registry) Lookup(name string) (Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Resolve returns the named type, or the default type when name is not registered.
func (r *Registry) Resolve(name string) Type {
	if t, ok := r.types[name]; ok {
		return t
	}
	return r.types[r.defaultType]
}

func (r *Registry) Default() Type {
	return r.types[r.defaultType]
}

// Names lists types in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func merge(base, override Settings) Settings {
	out := base
	if override.Template != "" {
		out.Template = override.Template
	}
	if override.Sanitizer != "" {
		out.Sanitizer = override.Sanitizer
	}
	if len(override.Areas) > 0 {
		out.Areas = override.Areas
	}
	if override.MaxAreaBytes > 0 {
		out.MaxAreaBytes = override.MaxAreaBytes
	}
	if len(base.Extra) > 0 || len(override.Extra) > 0 {
		out.Extra = make(map[string]any, len(base.Extra)+len(override.Extra))
		for k, v := range base.Extra {
			out.Extra[k] = v
		}
		for k, v := range override.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func build(name, label, group string, settings Settings) (Type, error) {
	s, err := sanitize.New(settings.Sanitizer, settings.Areas, settings.MaxAreaBytes)
	if err != nil {
		return Type{}, fmt.Errorf("page type %q: %w", name, err)
	}
	if label == "" {
		label = name
	}
	areas := make([]string, len(settings.Areas))
	copy(areas, settings.Areas)
	return Type{
		Name:          name,
		Label:         label,
		Group:         group,
		Template:      settings.Template,
		Areas:         areas,
		MaxAreaBytes:  settings.MaxAreaBytes,
		Extra:         settings.Extra,
		sanitizerName: settings.Sanitizer,
		sanitizer:     s,
	}, nil
}
