package conf

/*
   Package conf wraps viper for the EHR Connect app. Local environments read a
   checked-in env file when one is present; deployed environments read only the
   process environment.

   Assumptions:
   1. The configuration file is a env file
   2. The configuration file, once it is made available to the application,
   will stay immutable during the uptime of the application (exception is test)
*/

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// An instance of the viper struct containing the conf information. Only made
// accessible through public functions GetEnv, SetEnv, etc.
var envVars viper.Viper

const (
	configgood    uint8 = 0
	configbad     uint8 = 1
	noconfigfound uint8 = 2
)

var state uint8 = configgood

func setup(dir string) *viper.Viper {
	var v = viper.New()
	v.SetConfigName("local")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	// Viper is lazy, do the read and parse of the config file
	var err = v.ReadInConfig()
	if err != nil {
		state = configbad
	}

	return v
}

func init() {
	// Possible config file locations: local dev and deployed respectively.
	var locationSlice = [2]string{
		"/go/src/github.com/carenexus/ehrc-app/shared_files/local",
		"/etc/ehrc",
	}

	if success, loc := findEnv(locationSlice[:]); success {
		envVars = *setup(loc)
	} else {
		state = noconfigfound
	}
}

// findEnv checks each candidate location for a local.env file. If none is
// found the package falls back to the process environment.
func findEnv(location []string) (bool, string) {
	if _, err := os.Stat(location[0] + "/local.env"); err == nil {
		return true, location[0]
	}

	if len(location) == 1 {
		return false, ""
	}

	return findEnv(location[1:])
}

// GetEnv retrieves the value stored in conf. If it does not exist,
// "" empty string is returned.
func GetEnv(key string) string {
	if state == configgood {
		var value = envVars.GetString(key)
		var b bool

		// Even if the config file loaded, a key missing from conf may still
		// exist in the environment. Copy it over to avoid repeat OS calls.
		if value == "" {
			value, b = os.LookupEnv(key)
			if b {
				test := &testing.T{}
				var _ = SetEnv(test, key, value)
			}
		}

		return value
	}

	return os.Getenv(key)
}

// LookupEnv augments os.LookupEnv to look in the viper struct first.
func LookupEnv(key string) (string, bool) {
	if state == configgood {
		if value := envVars.Get(key); value != nil && value != "" {
			return value.(string), true
		}
		if v, exist := os.LookupEnv(key); exist {
			test := &testing.T{}
			var _ = SetEnv(test, key, v)
			return v, exist
		}

		return "", false
	}

	return os.LookupEnv(key)
}

// SetEnv adds key values into conf. This function should only be used either
// in this package itself or in testing. The protect parameter is of type
// *testing.T to ensure developers knowingly use it in the appropriate scope.
func SetEnv(protect *testing.T, key string, value string) error {
	var err error

	if state == configgood {
		envVars.Set(key, value)
	} else {
		err = os.Setenv(key, value)
	}

	return err
}

// UnsetEnv "unsets" a variable. Like SetEnv, this should only be used either
// in this package itself or in testing.
func UnsetEnv(protect *testing.T, key string) error {
	var err error

	if state == configgood {
		envVars.Set(key, "")
	}

	err = os.Unsetenv(key)

	return err
}

// Checkout populates the struct pointed to by x from the environment. Fields
// opt in with a `conf:"SOME_ENV_VAR"` tag and may carry a `conf_default` tag
// applied when the variable is unset or empty. Decoding is weakly typed, so
// numeric and boolean fields accept their string forms.
func Checkout(x interface{}) error {
	value := reflect.ValueOf(x)
	if value.Kind() != reflect.Ptr || value.IsNil() || value.Elem().Kind() != reflect.Struct {
		return errors.New("invalid type: destination must be a struct pointer")
	}

	fields := make(map[string]interface{})
	t := value.Elem().Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key, ok := field.Tag.Lookup("conf")
		if !ok {
			continue
		}

		v, found := LookupEnv(key)
		if !found || strings.TrimSpace(v) == "" {
			d, ok := field.Tag.Lookup("conf_default")
			if !ok {
				continue
			}
			v = d
		}
		fields[field.Name] = v
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           x,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(fields); err != nil {
		return errors.Wrap(err, "could not decode configuration")
	}

	return nil
}
