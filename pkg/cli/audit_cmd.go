package cli

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newAuditCmd(client func() *Client) *cobra.Command {
	var user string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent execution records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := client().Audit(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			records, ok := resp["records"].([]interface{})
			if !ok || len(records) == 0 {
				fmt.Println("no records")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Time", "User", "Template", "Outcome", "Rows", "Reason"})
			for _, r := range records {
				rec, ok := r.(map[string]interface{})
				if !ok {
					continue
				}
				table.Append([]string{
					fmt.Sprint(rec["timestamp"]),
					fmt.Sprint(rec["userId"]),
					fmt.Sprint(rec["templateId"]),
					fmt.Sprint(rec["outcome"]),
					fmt.Sprint(rec["rowCount"]),
					fmt.Sprint(rec["rejectionReason"]),
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "filter-user", "", "filter by user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to show")
	return cmd
}
