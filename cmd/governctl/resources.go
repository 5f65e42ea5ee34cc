package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type resourceSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	Active      bool     `json:"active"`
}

type resourcePage struct {
	Items         []resourceSummary `json:"items"`
	NextPageToken string            `json:"nextPageToken"`
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Manage governed prompts and contexts",
}

var (
	listTag        string
	listActiveOnly bool
	listPageSize   int
	listPageToken  string
)

var resourcesListCmd = &cobra.Command{
	Use:   "list <prompt|context>",
	Short: "List governed resources of a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skill, err := listSkillFor(args[0])
		if err != nil {
			return err
		}
		client := newClient()

		params := map[string]any{}
		if listTag != "" {
			params["tag"] = listTag
		}
		if listActiveOnly {
			params["activeOnly"] = true
		}
		if listPageSize > 0 {
			params["pageSize"] = listPageSize
		}
		if listPageToken != "" {
			params["pageToken"] = listPageToken
		}

		var page resourcePage
		if err := client.callSkill(skill, params, &page); err != nil {
			return err
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(page)
		}

		headers := []string{"ID", "Name", "Tags", "Domain", "Active"}
		rows := make([][]string, 0, len(page.Items))
		for _, item := range page.Items {
			rows = append(rows, []string{
				item.ID,
				item.Name,
				truncate(strings.Join(item.Tags, ","), 40),
				item.Domain,
				fmt.Sprintf("%t", item.Active),
			})
		}
		printTable(headers, rows)
		if page.NextPageToken != "" {
			fmt.Printf("Next page token: %s\n", page.NextPageToken)
		}
		return nil
	},
}

var (
	createDescription string
	createTags        []string
	createDomain      string
)

var resourcesCreateCmd = &cobra.Command{
	Use:   "create <prompt|context> <name>",
	Short: "Create a governed resource (no content until a version is proposed)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, name := args[0], args[1]
		client := newClient()

		result, err := client.callRaw("create_resource", map[string]any{
			"kind":        kind,
			"name":        name,
			"description": createDescription,
			"tags":        createTags,
			"domain":      createDomain,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var validateSourceAgent string

var resourcesValidateCmd = &cobra.Command{
	Use:   "validate <name>",
	Short: "Report approval and integrity status for a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		params := map[string]any{"name": args[0]}
		if validateSourceAgent != "" {
			params["sourceAgent"] = validateSourceAgent
		}
		result, err := client.callRaw("validate_context", params)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func listSkillFor(kind string) (string, error) {
	switch kind {
	case "prompt", "prompts":
		return "list_prompts", nil
	case "context", "contexts":
		return "list_contexts", nil
	default:
		return "", fmt.Errorf("unknown resource kind %q (expected prompt or context)", kind)
	}
}

func init() {
	resourcesListCmd.Flags().StringVar(&listTag, "tag", "", "Filter by tag")
	resourcesListCmd.Flags().BoolVar(&listActiveOnly, "active", false, "Only resources with an approved current version")
	resourcesListCmd.Flags().IntVar(&listPageSize, "page-size", 0, "Page size")
	resourcesListCmd.Flags().StringVar(&listPageToken, "page-token", "", "Page token from a previous call")

	resourcesCreateCmd.Flags().StringVar(&createDescription, "description", "", "Resource description")
	resourcesCreateCmd.Flags().StringSliceVar(&createTags, "tags", nil, "Comma-separated tags")
	resourcesCreateCmd.Flags().StringVar(&createDomain, "domain", "", "Business domain for domain-based policy")

	resourcesValidateCmd.Flags().StringVar(&validateSourceAgent, "source-agent", "", "Agent to attribute the check to")

	resourcesCmd.AddCommand(resourcesListCmd)
	resourcesCmd.AddCommand(resourcesCreateCmd)
	resourcesCmd.AddCommand(resourcesValidateCmd)
}
