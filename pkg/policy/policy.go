package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/haasonsaas/dpc/pkg/admin"
	"gopkg.in/yaml.v3"
)

// PasswordPolicy is the local password policy file. Unset fields are left
// untouched on the device.
type PasswordPolicy struct {
	Quality       *admin.PasswordQuality `yaml:"password_quality"`
	MinimumLength *int                   `yaml:"password_minimum_length"`
}

// Mediator is satisfied by *mediator.Mediator.
type Mediator interface {
	SetPasswordQuality(ctx context.Context, q admin.PasswordQuality) (admin.Outcome, error)
	SetPasswordMinimumLength(ctx context.Context, length int) (admin.Outcome, error)
}

func Load(path string) (*PasswordPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pol PasswordPolicy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	return &pol, nil
}

func (p *PasswordPolicy) Validate() error {
	if p.MinimumLength != nil && *p.MinimumLength < 0 {
		return fmt.Errorf("%w: password_minimum_length %d", admin.ErrInvalidParameter, *p.MinimumLength)
	}
	if p.Quality != nil && !p.Quality.Valid() {
		return fmt.Errorf("%w: password_quality %s", admin.ErrInvalidParameter, *p.Quality)
	}
	return nil
}

func (p *PasswordPolicy) Empty() bool {
	return p.Quality == nil && p.MinimumLength == nil
}

// Apply pushes each set field through the mediator, quality first. Every
// attempt's outcome is returned; an error means the policy itself is invalid.
func (p *PasswordPolicy) Apply(ctx context.Context, m Mediator) ([]admin.Outcome, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var outcomes []admin.Outcome
	if p.Quality != nil {
		out, err := m.SetPasswordQuality(ctx, *p.Quality)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}
	if p.MinimumLength != nil {
		out, err := m.SetPasswordMinimumLength(ctx, *p.MinimumLength)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
