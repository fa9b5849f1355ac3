package cli

import (
	"github.com/spf13/cobra"
)

func newTemplatesCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the approved query templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := client().Templates(cmd.Context())
			if err != nil {
				return err
			}
			printTemplates(resp["templates"])
			return nil
		},
	}
}
