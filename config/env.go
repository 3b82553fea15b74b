package config

import (
	"os"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:([^}]*))?\}`)

const zeroPrivateKey = "0000000000000000000000000000000000000000000000000000000000000000"

// substituteEnv resolves every `${VAR}`/`${VAR:default}` placeholder in
// raw against the process environment before the caller hands the
// result to json.Unmarshal (spec.md §6). `${PRIVATE_KEY}` gets the
// special rewrite spec.md §6 describes: a leading `0x` is added if
// missing, and a default of 64 zero hex characters is used if the
// variable is absent and no inline default was given.
func substituteEnv(raw []byte) ([]byte, []string) {
	var warnings []string

	out := placeholderPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := placeholderPattern.FindSubmatch(match)
		name := string(groups[1])
		hasDefault := len(groups[2]) > 0
		defaultVal := string(groups[3])

		value, warning := resolvePlaceholder(name, hasDefault, defaultVal)
		if warning != "" {
			warnings = append(warnings, warning)
		}

		return []byte(value)
	})

	return out, warnings
}

func resolvePlaceholder(name string, hasDefault bool, defaultVal string) (string, string) {
	value, ok := os.LookupEnv(name)

	var warning string

	switch {
	case ok:
		// use the environment value as-is
	case name == "PRIVATE_KEY" && !hasDefault:
		value = zeroPrivateKey
		warning = "config: PRIVATE_KEY not set, using default all-zero key"
	case hasDefault:
		value = defaultVal
	default:
		value = ""
		warning = "config: environment variable " + name + " not set, substituting empty string"
	}

	if name == "PRIVATE_KEY" && !strings.HasPrefix(value, "0x") && !strings.HasPrefix(value, "0X") {
		value = "0x" + value
	}

	return value, warning
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
