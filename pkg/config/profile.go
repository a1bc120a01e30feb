package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/custody/pkg/cache"
	"github.com/Mindburn-Labs/custody/pkg/catalog"
)

// DefaultShareDays applies when a share request omits its expiry.
const DefaultShareDays = 30

// Profile is a deployment profile: the site-specific policy that does not
// belong in environment variables.
type Profile struct {
	Name             string                  `yaml:"name"`
	Admission        catalog.AdmissionPolicy `yaml:"admission"`
	CacheTTL         time.Duration           `yaml:"cache_ttl"`
	DefaultShareDays int                     `yaml:"default_share_days"`
}

// DefaultProfile is used when no profile file is configured.
func DefaultProfile() *Profile {
	return &Profile{
		Name:             "default",
		Admission:        catalog.DefaultAdmissionPolicy,
		CacheTTL:         cache.DefaultTTL,
		DefaultShareDays: DefaultShareDays,
	}
}

// LoadProfile reads a YAML profile from path and overlays it on DefaultProfile.
// An empty path returns the defaults. Unknown keys are rejected.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}

	if p.CacheTTL < 0 {
		return nil, fmt.Errorf("profile %q: cache_ttl must not be negative", path)
	}
	if p.DefaultShareDays < 0 {
		return nil, fmt.Errorf("profile %q: default_share_days must not be negative", path)
	}
	if _, err := catalog.NewAdmission(p.Admission); err != nil {
		return nil, fmt.Errorf("profile %q: %w", path, err)
	}
	return p, nil
}
