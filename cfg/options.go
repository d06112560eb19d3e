package cfg

import (
	"fmt"
	"strconv"
	"strings"
)

// Recognized bootstrap option names. Everything is string-valued; unset
// options fall back to documented defaults.
var recognizedOptions = map[string]bool{
	"name":                      true,
	"base-port":                 true,
	"bind-address":              true,
	"use-sockets":               true,
	"skip-tcp":                  true,
	"socketsdir":                true,
	"password-retries":          true,
	"force":                     true,
	"force-password-validation": true,
	"ssl_mode":                  true,
	"ssl_ca":                    true,
	"ssl_capath":                true,
	"ssl_crl":                   true,
	"ssl_crlpath":               true,
	"ssl_cipher":                true,
	"tls_version":               true,
	"ssl_cert":                  true,
	"ssl_key":                   true,
	"user":                      true,
}

// Recognized reports whether name is a known bootstrap option.
func Recognized(name string) bool {
	return recognizedOptions[name]
}

// Password-retries bounds. Values outside the range are a configuration
// error raised before any network call.
const (
	DefaultPasswordRetries = 5
	minPasswordRetries     = 1
	maxPasswordRetries     = 10000
)

// BootstrapOptions is one bootstrap run's user-supplied options plus the
// repeatable account-host list.
type BootstrapOptions struct {
	Values       map[string]string
	AccountHosts []string
}

// NewBootstrapOptions builds options on top of the configured defaults.
func NewBootstrapOptions() BootstrapOptions {
	values := map[string]string{}
	for k, v := range Config.Defaults {
		values[k] = v
	}
	return BootstrapOptions{Values: values}
}

// Set records a user-supplied option value.
func (o BootstrapOptions) Set(name, value string) error {
	if !Recognized(name) {
		return fmt.Errorf("unrecognized bootstrap option '%s'", name)
	}
	o.Values[name] = value
	return nil
}

// IsSet reports whether the option was supplied (possibly empty).
func (o BootstrapOptions) IsSet(name string) bool {
	_, ok := o.Values[name]
	return ok
}

// Get returns the option's value, or "" when unset.
func (o BootstrapOptions) Get(name string) string {
	return o.Values[name]
}

// Bool interprets an option as a flag: set and not "0"/"" means on.
func (o BootstrapOptions) Bool(name string) bool {
	v, ok := o.Values[name]
	return ok && v != "" && v != "0"
}

// PasswordRetries validates and returns the password-retries option.
func (o BootstrapOptions) PasswordRetries() (int, error) {
	v, ok := o.Values["password-retries"]
	if !ok {
		return DefaultPasswordRetries, nil
	}
	return ParsePasswordRetries(v)
}

// ParsePasswordRetries validates a password-retries value. The error
// names the offending value.
func ParsePasswordRetries(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < minPasswordRetries || n > maxPasswordRetries {
		return 0, fmt.Errorf("invalid password-retries value '%s'; please pick a value from %d to %d",
			value, minPasswordRetries, maxPasswordRetries)
	}
	return n, nil
}

// ValidateSSLMode checks an ssl_mode value. Matching is case-insensitive;
// the original spelling is preserved for rendering.
func ValidateSSLMode(value string) error {
	switch strings.ToUpper(value) {
	case "", "DISABLED", "PREFERRED", "REQUIRED", "VERIFY_CA", "VERIFY_IDENTITY":
		return nil
	default:
		return fmt.Errorf("invalid value for ssl_mode option: '%s'", value)
	}
}

// ValidateEarly runs every validation that must happen before any network
// call: malformed values fail the run without touching the cluster.
func (o BootstrapOptions) ValidateEarly() error {
	if _, err := o.PasswordRetries(); err != nil {
		return err
	}
	if err := ValidateSSLMode(o.Get("ssl_mode")); err != nil {
		return err
	}
	return nil
}
