package commandline

import (
	"encoding/json"
	"flag"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Settings holds named hyperparameters. Each one must be created with a default value (see Set),
// which also defines the type to which a new value is parsed by Parse.
//
// Supported types are int, int64, uint64, float64, bool, string and slices of int, float64 and string.
type Settings struct {
	params map[string]any
}

// NewSettings returns an empty Settings.
func NewSettings() *Settings {
	return &Settings{params: make(map[string]any)}
}

// Set the value of the hyperparameter key. It returns the Settings, so calls can be cascaded.
func (s *Settings) Set(key string, value any) *Settings {
	s.params[key] = value
	return s
}

// Get returns the value of the hyperparameter key, and whether it was found.
func (s *Settings) Get(key string) (value any, found bool) {
	value, found = s.params[key]
	return
}

// Keys returns the hyperparameter names, sorted.
func (s *Settings) Keys() []string {
	return slices.Sorted(maps.Keys(s.params))
}

// GetOr returns the value of the hyperparameter key converted to T, or defaultValue if it is not
// set or has a different type.
func GetOr[T any](s *Settings, key string, defaultValue T) T {
	value, found := s.params[key]
	if !found {
		return defaultValue
	}
	typed, ok := value.(T)
	if !ok {
		return defaultValue
	}
	return typed
}

// Parse settings, typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "param1=value1;param2=value2;...".
//
// All the parameters "param1", "param2", etc. must be already set with default values.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000. Slices are given as comma separated values, e.g.: "hidden=16,16".
//
// It returns an error in case a parameter is unknown or the parsing failed, in which case the
// settings parsed so far are kept.
func (s *Settings) Parse(settings string) error {
	for _, setting := range strings.Split(settings, ";") {
		if setting == "" {
			continue
		}
		key, valueStr, ok := strings.Cut(setting, "=")
		if !ok || key == "" {
			return errors.Errorf("can't parse settings %q: each setting requires the format \"<param>=<value>\", got %q",
				settings, setting)
		}
		value, found := s.params[key]
		if !found {
			return errors.Errorf("can't set parameter %q because it is not known, known parameters are %q",
				key, s.Keys())
		}
		newValue, err := parseAs(value, valueStr)
		if err != nil {
			return errors.Wrapf(err, "failed to parse value %q for parameter %q (default value is %#v)", valueStr, key, value)
		}
		s.params[key] = newValue
	}
	return nil
}

// parseAs parses valueStr into a value of the same type as defaultValue.
func parseAs(defaultValue any, valueStr string) (any, error) {
	switch defaultValue.(type) {
	case int:
		return unmarshalAs[int](strings.ReplaceAll(valueStr, "_", ""))
	case int64:
		return unmarshalAs[int64](strings.ReplaceAll(valueStr, "_", ""))
	case uint64:
		return unmarshalAs[uint64](strings.ReplaceAll(valueStr, "_", ""))
	case float64:
		return unmarshalAs[float64](valueStr)
	case bool:
		return unmarshalAs[bool](valueStr)
	case string:
		return valueStr, nil
	case []int:
		return unmarshalAs[[]int]("[" + strings.ReplaceAll(valueStr, "_", "") + "]")
	case []float64:
		return unmarshalAs[[]float64]("[" + valueStr + "]")
	case []string:
		if valueStr == "" {
			return []string{}, nil
		}
		return strings.Split(valueStr, ","), nil
	default:
		return nil, errors.Errorf("don't know how to parse type %T", defaultValue)
	}
}

func unmarshalAs[T any](valueStr string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(valueStr), &v)
	return v, err
}

// CreateFlag creates a string flag with the given flagName (if empty it will be named
// "set") and with a description of the current defined parameters.
//
// The flag should be created before the call to `flag.Parse()`.
//
// Example usage:
//
//	func main() {
//		settings := createDefaultSettings()
//		settingsFlag := settings.CreateFlag("")
//		flag.Parse()
//		err := settings.Parse(*settingsFlag)
//		if err != nil { panic(err) }
//		fmt.Println(settings)
//		...
//	}
func (s *Settings) CreateFlag(flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	parts := []string{
		`Set hyperparameters. ` +
			`It should be a list of elements "param=value" separated by ";". ` +
			`Current available parameters that can be set:`,
	}
	for _, key := range s.Keys() {
		parts = append(parts, fmt.Sprintf("%q: default value is %v", key, s.params[key]))
	}
	return flag.String(flagName, "", strings.Join(parts, "\n"))
}

// String implements fmt.Stringer, pretty-printing the hyperparameters.
func (s *Settings) String() string {
	parts := []string{"Hyperparameters:"}
	for _, key := range s.Keys() {
		value := s.params[key]
		parts = append(parts, fmt.Sprintf("%q: (%T) %v", key, value, value))
	}
	return strings.Join(parts, "\n\t")
}
