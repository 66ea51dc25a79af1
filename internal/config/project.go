package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrInvalidProject  = errors.New("invalid project configuration")
)

// ProjectConfig is a named Poseidon credential bundle.
type ProjectConfig struct {
	Name       string `mapstructure:"name" json:"name"`
	AccessKey  string `mapstructure:"access_key" json:"-"`
	SecretKey  string `mapstructure:"secret_key" json:"-"`
	APIGateway string `mapstructure:"api_gateway" json:"api_gateway"`
	OrgID      string `mapstructure:"org_id" json:"org_id"`
}

// Validate rejects incomplete bundles and keys that are not hyphenated
// (xxxx-xxxx-...), which the gateway refuses to sign for.
func (p ProjectConfig) Validate() error {
	required := []struct {
		name, value string
	}{
		{"name", p.Name},
		{"access_key", p.AccessKey},
		{"secret_key", p.SecretKey},
		{"api_gateway", p.APIGateway},
		{"org_id", p.OrgID},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: missing required configuration: %s", ErrInvalidProject, f.name)
		}
	}

	if err := validateKey("access_key", p.AccessKey); err != nil {
		return err
	}
	if err := validateKey("secret_key", p.SecretKey); err != nil {
		return err
	}

	u, err := url.Parse(p.APIGateway)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api_gateway must be an absolute http(s) URL: %q", ErrInvalidProject, p.APIGateway)
	}

	return nil
}

func validateKey(field, key string) error {
	parts := strings.Split(key, "-")
	if len(parts) < 2 {
		return fmt.Errorf("%w: invalid %s format, key should contain hyphens (e.g. 'xxxx-xxxx-xxxx-xxxx')", ErrInvalidProject, field)
	}
	for _, part := range parts {
		if part == "" {
			return fmt.Errorf("%w: invalid %s format, key has an empty hyphen-separated part", ErrInvalidProject, field)
		}
	}
	return nil
}

// Store is the read-only set of configured projects.
type Store struct {
	projects []ProjectConfig
	byName   map[string]int
}

// NewStore indexes projects by name, preserving configuration order.
func NewStore(projects []ProjectConfig) (*Store, error) {
	s := &Store{
		projects: make([]ProjectConfig, len(projects)),
		byName:   make(map[string]int, len(projects)),
	}
	copy(s.projects, projects)

	for i, p := range s.projects {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: project #%d has no name", ErrInvalidProject, i+1)
		}
		if _, ok := s.byName[p.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate project %s", ErrInvalidProject, p.Name)
		}
		s.byName[p.Name] = i
	}
	return s, nil
}

// Names lists project names in configuration order.
func (s *Store) Names() []string {
	names := make([]string, len(s.projects))
	for i, p := range s.projects {
		names[i] = p.Name
	}
	return names
}

// Project returns the named, validated project. Names match exactly first,
// then case-insensitively.
func (s *Store) Project(name string) (ProjectConfig, error) {
	i, ok := s.byName[name]
	if !ok {
		for j, p := range s.projects {
			if strings.EqualFold(p.Name, name) {
				i, ok = j, true
				break
			}
		}
	}
	if !ok {
		return ProjectConfig{}, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}

	p := s.projects[i]
	if err := p.Validate(); err != nil {
		return ProjectConfig{}, fmt.Errorf("project %s: %w", p.Name, err)
	}
	return p, nil
}
