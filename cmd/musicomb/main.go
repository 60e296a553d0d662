// Package main provides the musicomb CLI.
//
// Usage:
//
//	musicomb [flags] <command> [args]
//
// Commands:
//
//	arrange  - Arrange fragments into a song
//	inspect  - Show tempo, length and channels of fragment files
//	runs     - List and show recorded runs
//	schema   - Print the JSON schema of request files
//	config   - Configuration management
//
// Configuration:
//
//	The CLI stores configuration in ~/.musicomb/
//	Use 'musicomb config' commands to manage contexts.
package main

import (
	"fmt"
	"os"

	"github.com/alitavanaali/MusiComb/cmd/musicomb/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
