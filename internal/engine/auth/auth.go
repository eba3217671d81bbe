package auth

import (
	"fmt"
	"strings"
)

// Wildcard grants every permission.
const Wildcard = "*"

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Permission names an operation on a module, e.g. "staff:add".
func Permission(module, op string) string {
	return module + ":" + op
}

// Service checks granted permission strings. A grant of "module:*" covers every
// operation of that module.
type Service struct {
	Enforce bool
}

func (s Service) Allows(granted []string, perm string) bool {
	if !s.Enforce {
		return true
	}
	module, _, _ := strings.Cut(perm, ":")
	for _, g := range granted {
		g = strings.TrimSpace(g)
		if g == Wildcard || g == perm || g == module+":"+Wildcard {
			return true
		}
	}
	return false
}

// Require returns a ForbiddenError when perm is not granted.
func (s Service) Require(granted []string, perm string) error {
	if s.Allows(granted, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}
