package dispatch

import (
	"fmt"
	"sort"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/server/models"
	"github.com/jeremy-quicklearner/clautod/internal/wildcard"
)

const (
	paramUsername          = "username"
	paramPrivilegeLevel    = "privilege_level"
	paramPassword          = "password"
	paramNewPrivilegeLevel = "new_privilege_level"
	paramNewPassword       = "new_password"

	// anyValue spells a wildcard explicitly.
	anyValue = "*"
)

var (
	filterParams   = []string{paramUsername, paramPrivilegeLevel, paramPassword}
	updateParams   = []string{paramNewPrivilegeLevel, paramNewPassword}
	loginParams    = []string{paramUsername, paramPassword}
	addParams      = []string{paramUsername, paramPrivilegeLevel, paramPassword}
	passwordParams = []string{paramPassword, paramNewPassword}
)

type params map[string]string

// only rejects any key outside the allowed sets.
func (p params) only(allowed ...[]string) error {
	ok := map[string]struct{}{}
	for _, set := range allowed {
		for _, k := range set {
			ok[k] = struct{}{}
		}
	}
	var unknown []string
	for k := range p {
		if _, found := ok[k]; !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown parameters %v", common.ErrValidation, unknown)
	}
	return nil
}

func (p params) required(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing parameter %q", common.ErrValidation, key)
	}
	return v, nil
}

func (p params) str(key string) wildcard.Value[string] {
	v, ok := p[key]
	if !ok || v == anyValue {
		return wildcard.Any[string]()
	}
	return wildcard.Of(v)
}

func (p params) level(key string) (wildcard.Value[models.Level], error) {
	v, ok := p[key]
	if !ok || v == anyValue {
		return wildcard.Any[models.Level](), nil
	}
	l, err := models.ParseLevel(v)
	if err != nil {
		return wildcard.Value[models.Level]{}, fmt.Errorf("%s: %w", key, err)
	}
	return wildcard.Of(l), nil
}

// filter reads username, privilege_level and password.
func (p params) filter() (models.UserFilter, error) {
	level, err := p.level(paramPrivilegeLevel)
	if err != nil {
		return models.UserFilter{}, err
	}
	return models.UserFilter{
		Username:       p.str(paramUsername),
		PrivilegeLevel: level,
		Password:       p.str(paramPassword),
	}, nil
}

// updates reads the new_ prefixed fields.
func (p params) updates() (models.UserFilter, error) {
	level, err := p.level(paramNewPrivilegeLevel)
	if err != nil {
		return models.UserFilter{}, err
	}
	return models.UserFilter{
		PrivilegeLevel: level,
		Password:       p.str(paramNewPassword),
	}, nil
}
