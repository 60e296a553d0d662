package commands

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/spf13/cobra"

	"github.com/alitavanaali/MusiComb/pkg/cli"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of request files",
	Long: `Print the JSON schema of the files accepted by 'musicomb arrange -f'.

Example:
  musicomb schema > request.schema.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := jsonschema.For[cli.ArrangeRequest](nil)
		if err != nil {
			return fmt.Errorf("failed to build schema: %w", err)
		}
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}
