package tenant

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rustok/internal/constants"
	"rustok/pkg/errors"
)

// reservedSlugs can never resolve to a tenant; they are claimed by the
// platform's own routing.
var reservedSlugs = map[string]bool{
	"www":    true,
	"admin":  true,
	"api":    true,
	"static": true,
	"assets": true,
	"health": true,
}

// Sanitize normalizes and validates a lookup before it can touch the
// cache or the source of truth. Untrusted input (host headers, URL
// slugs) goes through here; a rejected value never becomes a cache key.
func Sanitize(key LookupKey) (LookupKey, error) {
	value := strings.TrimSpace(strings.ToLower(key.Value))
	if value == "" {
		return LookupKey{}, errors.ErrValidation.WithMessage("lookup value is empty")
	}
	if len(value) > constants.MaxLookupValueLength {
		return LookupKey{}, errors.ErrValidation.
			WithMessage(fmt.Sprintf("lookup value exceeds %d characters", constants.MaxLookupValueLength))
	}

	switch key.Kind {
	case KindUUID:
		id, err := uuid.Parse(value)
		if err != nil {
			return LookupKey{}, errors.ErrValidation.WithMessage("lookup value is not a valid UUID")
		}
		return LookupKey{Kind: KindUUID, Value: id.String()}, nil

	case KindSlug:
		if !validSlug(value) {
			return LookupKey{}, errors.ErrValidation.
				WithMessage("slug may contain only lowercase letters, digits and single hyphens")
		}
		if reservedSlugs[value] {
			return LookupKey{}, errors.ErrValidation.
				WithMessage(fmt.Sprintf("slug %q is reserved", value))
		}
		return LookupKey{Kind: KindSlug, Value: value}, nil

	case KindHost:
		// Host headers may carry a port; it is not part of the key.
		if i := strings.LastIndex(value, ":"); i > 0 {
			value = value[:i]
		}
		if !validHost(value) {
			return LookupKey{}, errors.ErrValidation.WithMessage("host is not a valid DNS name")
		}
		return LookupKey{Kind: KindHost, Value: value}, nil

	default:
		return LookupKey{}, errors.ErrValidation.
			WithMessage(fmt.Sprintf("unknown lookup kind: %q", key.Kind))
	}
}

func validSlug(s string) bool {
	if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") || strings.Contains(s, "--") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

func validHost(s string) bool {
	labels := strings.Split(s, ".")
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= '0' && r <= '9':
			case r == '-':
			default:
				return false
			}
		}
	}
	return true
}
