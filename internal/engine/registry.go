package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile describes how to spawn a concrete engine binary.
type Profile struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`

	// ResumeFlag is appended with the conversation ID when resuming.
	ResumeFlag string `yaml:"resumeFlag"`

	// ModelFlag is appended with the model name when a model is requested.
	ModelFlag string `yaml:"modelFlag"`

	// PermissionModeFlag is appended with the permission mode when set.
	PermissionModeFlag string `yaml:"permissionModeFlag"`
}

// profilesFile is the on-disk YAML registry layout.
type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// DefaultProfile is the built-in claude engine profile, used when no
// profiles file is configured.
func DefaultProfile() Profile {
	return Profile{
		Name:    "claude",
		Command: "claude",
		Args: []string{
			"-p", "--output-format=stream-json", "--input-format=stream-json",
			"--permission-prompt-tool=stdio", "--verbose",
		},
		ResumeFlag:         "--resume",
		ModelFlag:          "--model",
		PermissionModeFlag: "--permission-mode",
	}
}

// Registry holds named engine profiles.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry builds a registry holding only the built-in default profile.
func NewRegistry() *Registry {
	def := DefaultProfile()
	return &Registry{profiles: map[string]Profile{def.Name: def}}
}

// LoadRegistry reads a YAML profiles file and merges it over the built-in
// defaults. Profiles with the same name replace the default.
func LoadRegistry(path string) (*Registry, error) {
	r := NewRegistry()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine profiles: %w", err)
	}

	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse engine profiles: %w", err)
	}

	for _, p := range file.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("engine profile missing name")
		}
		if p.Command == "" {
			return nil, fmt.Errorf("engine profile %q missing command", p.Name)
		}
		r.profiles[p.Name] = p
	}

	return r, nil
}

// Get returns the named profile.
func (r *Registry) Get(name string) (Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown engine profile %q", name)
	}
	return p, nil
}

// Names returns the registered profile names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}
