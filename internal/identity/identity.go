// Package identity picks the name this device advertises on the bus.
package identity

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultName is advertised when the host name cannot be resolved.
const DefaultName = "cec-dpms"

// Resolve returns the short host name reported by hostname, or DefaultName
// if the lookup fails or is empty. A host name that is not valid UTF-8
// panics: the kernel handed us bytes we cannot advertise faithfully.
func Resolve(hostname func() (string, error)) string {
	name, err := hostname()
	if err != nil {
		return DefaultName
	}
	if !utf8.ValidString(name) {
		panic(fmt.Sprintf("identity: host name %q is not valid UTF-8", name))
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultName
	}
	return name
}

// Choose returns configured if set, otherwise the resolved host name.
func Choose(configured string, hostname func() (string, error)) string {
	if configured != "" {
		return configured
	}
	return Resolve(hostname)
}
