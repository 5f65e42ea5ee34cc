package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentplane/govern/pkg/gateway"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List the skills the gateway exposes",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var card gateway.CapabilityCard
		if err := client.getJSON("/.well-known/agent.json", &card); err != nil {
			return err
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(card)
		}

		fmt.Printf("%s %s (auth: %s)\n\n", card.Name, card.Version, card.Auth.Scheme)
		headers := []string{"Skill", "Description"}
		rows := make([][]string, 0, len(card.Skills))
		for _, skill := range card.Skills {
			rows = append(rows, []string{skill.Name, truncate(skill.Description, 80)})
		}
		printTable(headers, rows)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var status map[string]string
		if err := client.getJSON("/healthz", &status); err != nil {
			return fmt.Errorf("server unhealthy: %w", err)
		}

		fmt.Printf("Server %s is %s\n", serverURL, status["status"])
		return nil
	},
}
