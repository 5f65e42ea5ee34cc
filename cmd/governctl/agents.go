package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentplane/govern/pkg/agents"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage agent registrations and access grants",
}

var (
	registerFile string
	registerOrg  string
)

var agentsRegisterCmd = &cobra.Command{
	Use:   "register -f <manifest.yaml>",
	Short: "Register or update an agent from a manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		if registerFile == "" {
			return fmt.Errorf("--file is required")
		}
		data, err := os.ReadFile(registerFile)
		if err != nil {
			return fmt.Errorf("reading manifest: %w", err)
		}

		var manifest agents.Manifest
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return fmt.Errorf("parsing manifest: %w", err)
		}

		params := map[string]any{
			"agent_id":   manifest.AgentID,
			"version":    manifest.Version,
			"owner_team": manifest.OwnerTeam,
			"url":        manifest.URL,
		}
		if manifest.Name != "" {
			params["name"] = manifest.Name
		}
		if manifest.Description != "" {
			params["description"] = manifest.Description
		}
		if manifest.Domain != "" {
			params["domain"] = manifest.Domain
		}
		if len(manifest.ToolsUsed) > 0 {
			params["tools_used"] = manifest.ToolsUsed
		}
		if len(manifest.AllowedDataScopes) > 0 {
			params["allowed_data_scopes"] = manifest.AllowedDataScopes
		}
		if manifest.PIIHandling {
			params["pii_handling"] = true
		}
		if manifest.RegulatoryScope != "" {
			params["regulatory_scope"] = manifest.RegulatoryScope
		}
		if registerOrg != "" {
			params["org"] = registerOrg
		}

		client := newClient()
		result, err := client.callRaw("register", params)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var agentsApproveCmd = agentActionCommand("approve", "approve_agent",
	"Approve a registered agent for content delivery")
var agentsRejectCmd = agentActionCommand("reject", "reject_agent",
	"Reject a registered agent")

func agentActionCommand(use, skill, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <agentId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.callRaw(skill, map[string]any{"agentId": args[0]})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

var validateEndpoint string

var agentsValidateCmd = &cobra.Command{
	Use:   "validate <agentId>",
	Short: "Check whether an agent is registered and approved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{"agentId": args[0]}
		if validateEndpoint != "" {
			params["endpointUrl"] = validateEndpoint
		}
		client := newClient()
		result, err := client.callRaw("validate_agent", params)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var (
	pollURL       string
	pollTimeoutMs int
)

var agentsPollCmd = &cobra.Command{
	Use:   "poll [agentId]",
	Short: "Poll a remote agent's MCP endpoint for its tool listing",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{}
		if len(args) > 0 {
			params["agentId"] = args[0]
		}
		if pollURL != "" {
			params["mcpUrl"] = pollURL
		}
		if pollTimeoutMs > 0 {
			params["timeoutMs"] = pollTimeoutMs
		}
		client := newClient()
		result, err := client.callRaw("mcp_poll_agent", params)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var grantKind string

var agentsGrantCmd = accessActionCommand("grant", "grant_access",
	"Grant an agent access to a resource")
var agentsRevokeCmd = accessActionCommand("revoke", "revoke_access",
	"Revoke an agent's access to a resource")

func accessActionCommand(use, skill, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <agentId> <resourceName>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{"agentId": args[0], "name": args[1]}
			if grantKind != "" {
				params["kind"] = grantKind
			}
			client := newClient()
			result, err := client.callRaw(skill, params)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func init() {
	agentsRegisterCmd.Flags().StringVarP(&registerFile, "file", "f", "", "Path to the agent manifest YAML")
	agentsRegisterCmd.Flags().StringVar(&registerOrg, "org", "", "Org to register the agent under (overrides --org root flag)")

	agentsValidateCmd.Flags().StringVar(&validateEndpoint, "endpoint", "", "Also verify the agent's registered endpoint URL matches")

	agentsPollCmd.Flags().StringVar(&pollURL, "url", "", "MCP endpoint URL (overrides the agent's registered URL)")
	agentsPollCmd.Flags().IntVar(&pollTimeoutMs, "timeout-ms", 0, "Poll timeout in milliseconds")

	for _, cmd := range []*cobra.Command{agentsGrantCmd, agentsRevokeCmd} {
		cmd.Flags().StringVar(&grantKind, "kind", "", "Resource kind (prompt or context)")
	}

	agentsCmd.AddCommand(agentsRegisterCmd)
	agentsCmd.AddCommand(agentsApproveCmd)
	agentsCmd.AddCommand(agentsRejectCmd)
	agentsCmd.AddCommand(agentsValidateCmd)
	agentsCmd.AddCommand(agentsPollCmd)
	agentsCmd.AddCommand(agentsGrantCmd)
	agentsCmd.AddCommand(agentsRevokeCmd)
}
