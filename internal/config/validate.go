package config

import (
	"fmt"
	"net"
	"strings"
)

// invalidPathChars mirrors SPEC_FULL.md §3: a Location path must not
// contain any of these characters.
const invalidPathChars = `<>"'|*?`

func validate(cfg *Config) error {
	if len(cfg.VirtualHosts) == 0 {
		return fmt.Errorf("configuration defines no server blocks")
	}
	for i, vh := range cfg.VirtualHosts {
		if err := validateVirtualHost(vh); err != nil {
			return fmt.Errorf("server block %d: %w", i+1, err)
		}
	}
	return nil
}

func validateVirtualHost(vh *VirtualHost) error {
	if vh.Port == 0 {
		return fmt.Errorf("missing 'listen' directive")
	}
	if vh.Port < 1 || vh.Port > 65535 {
		return fmt.Errorf("port %d out of range", vh.Port)
	}
	if vh.BindAddress != "0.0.0.0" {
		if ip := net.ParseIP(vh.BindAddress); ip == nil {
			return fmt.Errorf("invalid bind address %q", vh.BindAddress)
		}
	}
	if vh.ClientMaxBodySize <= 0 {
		return fmt.Errorf("client_max_body_size must be positive")
	}
	if len(vh.Locations) == 0 {
		return fmt.Errorf("server block must define at least one location")
	}
	for _, loc := range vh.Locations {
		if err := validateLocation(loc); err != nil {
			return fmt.Errorf("location %q: %w", loc.Path, err)
		}
	}
	return nil
}

func validateLocation(loc *Location) error {
	if !strings.HasPrefix(loc.Path, "/") {
		return fmt.Errorf("path must start with '/'")
	}
	if strings.ContainsAny(loc.Path, invalidPathChars) {
		return fmt.Errorf("path contains a disallowed character")
	}
	if loc.Root == "" {
		return fmt.Errorf("missing 'root' directive")
	}
	if len(loc.AllowedMethods) == 0 {
		return fmt.Errorf("must allow at least one method")
	}
	if loc.Redirect != "" {
		ok := strings.HasPrefix(loc.Redirect, "/") ||
			strings.HasPrefix(loc.Redirect, "http://") ||
			strings.HasPrefix(loc.Redirect, "https://")
		if !ok {
			return fmt.Errorf("redirect target must start with '/', 'http://', or 'https://'")
		}
	}
	return nil
}
