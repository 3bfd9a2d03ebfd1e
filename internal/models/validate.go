package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Limits applied to caller-supplied property bags.
const (
	MaxPropertyKeys  = 100
	MaxPropertyBytes = 65536
)

// ReservedPrefix marks metadata keys owned by the system.
const ReservedPrefix = "lw."

var metadataKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

// validate caches struct metadata; validator.Validate is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// validateStruct runs tag validation and converts the first failure into a *ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return Invalid("", err.Error())
	}

	fe := verrs[0]

	switch fe.Tag() {
	case "required":
		return ErrFieldRequired(fe.Field())
	case "max":
		n, _ := strconv.Atoi(fe.Param()) //nolint:errcheck // validator params are static tag values.
		return ErrFieldTooLong(fe.Field(), n)
	case "min":
		return Invalid(fe.Field(), "must be at least "+fe.Param())
	case "oneof":
		return Invalid(fe.Field(), "must be one of: "+fe.Param())
	default:
		return Invalid(fe.Field(), "failed "+fe.Tag()+" check")
	}
}

// ValidateProperties checks a caller-supplied metadata or property bag.
func ValidateProperties(field string, props map[string]any) error {
	if props == nil {
		return nil
	}

	if len(props) > MaxPropertyKeys {
		return Invalid(field, fmt.Sprintf("exceeds maximum of %d keys", MaxPropertyKeys))
	}

	for k := range props {
		if strings.HasPrefix(k, ReservedPrefix) {
			return Invalid(field, fmt.Sprintf("key %q uses reserved prefix %q", k, ReservedPrefix))
		}

		if !metadataKeyPattern.MatchString(k) {
			return Invalid(field, fmt.Sprintf("key %q must match %s", k, metadataKeyPattern.String()))
		}
	}

	data, err := json.Marshal(props)
	if err != nil {
		return Invalid(field, "must be JSON-encodable")
	}

	if len(data) > MaxPropertyBytes {
		return ErrFieldTooLong(field, MaxPropertyBytes)
	}

	return nil
}

// NormalizeTags trims, drops empties, and deduplicates tags preserving first occurrence.
func NormalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}

	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))

	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}

		seen[t] = true
		out = append(out, t)
	}

	return out
}

// ValidateFilename checks an uploaded file name against an extension allow-list.
// An empty allow-list accepts any extension.
func ValidateFilename(name string, allowed []string) error {
	if strings.TrimSpace(name) == "" {
		return ErrFieldRequired("filename")
	}

	if len(name) > 255 {
		return ErrFieldTooLong("filename", 255)
	}

	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return Invalid("filename", "must not contain path separators")
	}

	if len(allowed) == 0 {
		return nil
	}

	lower := strings.ToLower(name)
	for _, ext := range allowed {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return nil
		}
	}

	return Invalid("filename", "extension not allowed")
}
