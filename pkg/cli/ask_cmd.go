package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newAskCmd(client func() *Client, user, session *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask an analytics question in plain English",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			sessionID := *session
			if sessionID == "" {
				sessionID = *user
			}

			resp, err := client().Ask(cmd.Context(), question, *user, sessionID)
			if err != nil {
				return err
			}

			switch resp["status"] {
			case "answered":
				fmt.Println(resp["text"])
				printRows(resp["rows"])
				if citation, ok := resp["citation"].(string); ok && citation != "" {
					fmt.Println(citation)
				}
			case "clarification_needed":
				if fields, ok := resp["missingFields"].([]interface{}); ok {
					fmt.Printf("I need a bit more detail: %v\n", fields)
				} else {
					fmt.Printf("Did you mean one of: %v\n", resp["options"])
				}
			case "no_match":
				fmt.Println("I can't answer that. Available query types:")
				printTemplates(resp["availableTemplates"])
			case "rate_limited":
				fmt.Printf("Rate limited — retry in %vms\n", resp["retryAfterMs"])
			default:
				fmt.Println(resp["userMessage"])
			}
			return nil
		},
	}
}

// printRows renders the answer rows as a table.
func printRows(v interface{}) {
	rows, ok := v.([]interface{})
	if !ok || len(rows) == 0 {
		return
	}
	first, ok := rows[0].(map[string]interface{})
	if !ok {
		return
	}

	headers := make([]string, 0, len(first))
	for col := range first {
		headers = append(headers, col)
	}
	sort.Strings(headers)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	for _, r := range rows {
		row, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		cells := make([]string, len(headers))
		for i, col := range headers {
			cells[i] = fmt.Sprint(row[col])
		}
		table.Append(cells)
	}
	table.Render()
}

func printTemplates(v interface{}) {
	templates, ok := v.([]interface{})
	if !ok {
		return
	}
	for _, t := range templates {
		if m, ok := t.(map[string]interface{}); ok {
			fmt.Printf("  %-28v %v\n", m["id"], m["description"])
		}
	}
}
