package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type versionView struct {
	ID              string `json:"id"`
	ResourceID      string `json:"resource_id"`
	Version         int    `json:"version"`
	Status          string `json:"status"`
	ContentHash     string `json:"content_hash"`
	ParentVersionID string `json:"parent_version_id,omitempty"`
	CommitMessage   string `json:"commit_message,omitempty"`
	CreatedBy       string `json:"created_by"`
	CreatedAt       string `json:"created_at"`
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Manage resource versions through the approval lifecycle",
}

var (
	versionResourceID string
	versionKind       string
	versionName       string
)

var versionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List versions of a resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var page struct {
			Items         []versionView `json:"items"`
			NextPageToken string        `json:"nextPageToken"`
		}
		if err := client.callSkill("list_versions", resourceRef(), &page); err != nil {
			return err
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(page)
		}

		headers := []string{"ID", "Version", "Status", "Content Hash", "Created By", "Created At"}
		rows := make([][]string, 0, len(page.Items))
		for _, v := range page.Items {
			rows = append(rows, []string{
				v.ID,
				fmt.Sprintf("%d", v.Version),
				v.Status,
				truncate(v.ContentHash, 19),
				v.CreatedBy,
				v.CreatedAt,
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
	proposeContent     string
	proposeContentFile string
	proposeSystem      string
	proposeModelHint   string
	proposeMessage     string
	proposeApprove     bool
)

var versionsProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a new version of a resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		content := proposeContent
		if proposeContentFile != "" {
			data, err := os.ReadFile(proposeContentFile)
			if err != nil {
				return fmt.Errorf("reading content file: %w", err)
			}
			content = string(data)
		}
		if content == "" {
			return fmt.Errorf("one of --content or --content-file is required")
		}

		params := resourceRef()
		params["content"] = content
		if proposeSystem != "" {
			params["systemPrompt"] = proposeSystem
		}
		if proposeModelHint != "" {
			params["modelHint"] = proposeModelHint
		}
		if proposeMessage != "" {
			params["commitMessage"] = proposeMessage
		}
		if proposeApprove {
			params["autoApprove"] = true
		}

		client := newClient()
		var version versionView
		if err := client.callSkill("propose_version", params, &version); err != nil {
			return err
		}
		return printJSON(version)
	},
}

var versionsApproveCmd = versionActionCommand("approve", "approve_version",
	"Approve a proposed version and make it current")
var versionsRejectCmd = versionActionCommand("reject", "reject_version",
	"Reject a proposed version")
var versionsArchiveCmd = versionActionCommand("archive", "archive_version",
	"Archive an approved version")
var versionsVerifyCmd = versionActionCommand("verify", "verify_integrity",
	"Recompute and check a version's content hash")

func versionActionCommand(use, skill, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <versionId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.callRaw(skill, map[string]any{"versionId": args[0]})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

// resourceRef builds the resource selector shared by version commands:
// either an explicit id, or a kind plus name pair.
func resourceRef() map[string]any {
	params := map[string]any{}
	if versionResourceID != "" {
		params["resourceId"] = versionResourceID
	}
	if versionKind != "" {
		params["kind"] = versionKind
	}
	if versionName != "" {
		params["name"] = versionName
	}
	return params
}

func init() {
	for _, cmd := range []*cobra.Command{versionsListCmd, versionsProposeCmd} {
		cmd.Flags().StringVar(&versionResourceID, "resource-id", "", "Resource ID")
		cmd.Flags().StringVar(&versionKind, "kind", "", "Resource kind (prompt or context), used with --name")
		cmd.Flags().StringVar(&versionName, "name", "", "Resource name, used with --kind")
	}

	versionsProposeCmd.Flags().StringVar(&proposeContent, "content", "", "Version content")
	versionsProposeCmd.Flags().StringVar(&proposeContentFile, "content-file", "", "Read version content from a file")
	versionsProposeCmd.Flags().StringVar(&proposeSystem, "system-prompt", "", "System prompt (prompts only)")
	versionsProposeCmd.Flags().StringVar(&proposeModelHint, "model-hint", "", "Model hint (prompts only)")
	versionsProposeCmd.Flags().StringVar(&proposeMessage, "message", "", "Commit message")
	versionsProposeCmd.Flags().BoolVar(&proposeApprove, "auto-approve", false, "Approve immediately after proposing")

	versionsCmd.AddCommand(versionsListCmd)
	versionsCmd.AddCommand(versionsProposeCmd)
	versionsCmd.AddCommand(versionsApproveCmd)
	versionsCmd.AddCommand(versionsRejectCmd)
	versionsCmd.AddCommand(versionsArchiveCmd)
	versionsCmd.AddCommand(versionsVerifyCmd)
}
