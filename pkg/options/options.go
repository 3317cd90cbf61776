package options

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
)

// IOptions defines the behavior every option group must implement so the
// command layer can validate and register it uniformly.
type IOptions interface {
	// Validate checks the option values supplied on the command line or in
	// the configuration file. It returns all problems found, not just the
	// first one.
	Validate() []error

	// AddFlags registers the group's flags on the given FlagSet.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a host:port listen address.
func ValidateAddress(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%q is not a valid listen address: %w", addr, err)
	}
	return nil
}
