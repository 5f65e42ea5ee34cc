package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	orgName   string
	principal string
)

var rootCmd = &cobra.Command{
	Use:   "governctl",
	Short: "CLI for the govern gateway",
	Long: `governctl manages governed prompts and contexts, agent registrations,
access grants, and the audit ledger through the gateway's skill surface.

Every command invokes a named skill over the gateway's RPC endpoint, so
anything governctl does is recorded in the ledger like any agent call.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Govern server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&orgName, "org", "", "Org for multi-org operations (default: from GOVERN_ORG env)")
	rootCmd.PersistentFlags().StringVar(&principal, "as", "", "Principal to act as (default: from GOVERN_PRINCIPAL env)")

	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(contentCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(healthCmd)
}

// resolvedOrg returns the effective org.
// Priority: --org flag > GOVERN_ORG env var > server default.
func resolvedOrg() string {
	if orgName != "" {
		return orgName
	}
	return os.Getenv("GOVERN_ORG")
}

// resolvedPrincipal returns the effective principal.
// Priority: --as flag > GOVERN_PRINCIPAL env var > anonymous.
func resolvedPrincipal() string {
	if principal != "" {
		return principal
	}
	return os.Getenv("GOVERN_PRINCIPAL")
}
