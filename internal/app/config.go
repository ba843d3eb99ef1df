package app

import "fmt"

// Config holds everything an App instance needs to run.
type Config struct {
	// Layouts lists the layouts to activate, e.g. "power/default,unit".
	Layouts string
	// ConfDir holds one "<type>.hcl" file per layout.
	ConfDir string
	// InventoryPath points at the HCL node inventory file.
	InventoryPath string
	LogFormat     string
	LogLevel      string
}

// Validate checks that the required settings are present.
func (c *Config) Validate() error {
	if c.Layouts == "" {
		return fmt.Errorf("app: no layouts configured")
	}
	if c.ConfDir == "" {
		return fmt.Errorf("app: no configuration directory configured")
	}
	if c.InventoryPath == "" {
		return fmt.Errorf("app: no inventory file configured")
	}
	return nil
}
