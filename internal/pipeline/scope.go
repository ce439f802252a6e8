package pipeline

import (
	"fmt"
	"strings"

	"github.com/hakim/threatiac/internal/models"
)

// ResourceScope limits a scan to certain resource types.
// An empty ResourceScope (no rules) allows every resource.
type ResourceScope struct {
	// Include is a list of type patterns a resource must match.
	// A trailing wildcard ("aws_*") matches any type with that prefix.
	// An exact entry ("aws_instance") matches only that type.
	Include []string

	// Exclude removes matching types, applied after Include.
	Exclude []string
}

// Validate rejects patterns with a wildcard anywhere but the end.
func (s ResourceScope) Validate() error {
	for _, p := range append(append([]string{}, s.Include...), s.Exclude...) {
		if p == "" {
			return fmt.Errorf("scope: empty type pattern")
		}
		if i := strings.Index(p, "*"); i >= 0 && i != len(p)-1 {
			return fmt.Errorf("scope: pattern %q may only end with a wildcard", p)
		}
	}
	return nil
}

// Allows reports whether res is in scope.
func (s ResourceScope) Allows(res models.ResourceDescriptor) bool {
	if len(s.Include) > 0 && !anyMatch(res.Type, s.Include) {
		return false
	}
	return !anyMatch(res.Type, s.Exclude)
}

func anyMatch(typ string, patterns []string) bool {
	for _, p := range patterns {
		if typeMatches(typ, p) {
			return true
		}
	}
	return false
}

// typeMatches returns true when typ satisfies the scope pattern.
//
//   - "aws_*" matches "aws_instance" and "aws_s3_bucket" but not "aws".
//   - "*" matches everything.
//   - Comparison is case-insensitive.
func typeMatches(typ, pattern string) bool {
	typ = strings.ToLower(typ)
	pattern = strings.ToLower(pattern)

	prefix, wildcard := strings.CutSuffix(pattern, "*")
	if !wildcard {
		return typ == pattern
	}
	if prefix == "" {
		return true
	}
	return len(typ) > len(prefix) && strings.HasPrefix(typ, prefix)
}
