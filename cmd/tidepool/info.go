package main

import (
	"encoding/json"
	"fmt"
)

// Run executes the info command.
func (c *InfoCmd) Run(deps *Dependencies) error {
	info := deps.Engine.Info()

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(deps.Stdout, "name:     %s\n", info.Name)
	fmt.Fprintf(deps.Stdout, "version:  %s\n", info.Version)
	fmt.Fprintf(deps.Stdout, "checksum: %s\n", info.Checksum)
	return nil
}
