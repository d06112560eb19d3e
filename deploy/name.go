package deploy

import (
	"fmt"
	"strings"
)

const maxRouterNameLength = 255

// reservedRouterName is the identity used for system-wide deployments
// and cannot be claimed by a directory deployment.
const reservedRouterName = "system"

// ValidateRouterName rejects names that cannot be stored in the
// metadata or round-tripped through the configuration file. An empty
// name is allowed and means "unnamed".
func ValidateRouterName(name string) error {
	if name == reservedRouterName {
		return fmt.Errorf("router name '%s' is reserved", name)
	}
	if strings.ContainsAny(name, "\n\r") {
		return fmt.Errorf("router name '%s' contains invalid characters", name)
	}
	if len(name) > maxRouterNameLength {
		return fmt.Errorf("router name '%s' too long (max %d)", name, maxRouterNameLength)
	}
	return nil
}
