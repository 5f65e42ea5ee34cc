package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Fetch governed content through the policy gate",
	Long: `Fetch approved prompt and context content the same way an agent would.
Deliveries run through the policy gate and are recorded in the ledger.`,
}

var (
	contentSourceAgent string
	contentIntent      string
	contentFormat      string
	promptVars         []string
)

var contentGetPromptCmd = &cobra.Command{
	Use:   "get-prompt <name>",
	Short: "Fetch the approved version of a prompt, with variables interpolated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		variables := make(map[string]string, len(promptVars))
		for _, pair := range promptVars {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("invalid --var %q (expected key=value)", pair)
			}
			variables[key] = value
		}

		params := map[string]any{"name": args[0]}
		if len(variables) > 0 {
			params["variables"] = variables
		}
		if contentSourceAgent != "" {
			params["sourceAgent"] = contentSourceAgent
		}
		if contentIntent != "" {
			params["intent"] = contentIntent
		}

		client := newClient()
		result, err := client.callRaw("get_prompt", params)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var contentGetContextCmd = &cobra.Command{
	Use:   "get-context <name>",
	Short: "Fetch the approved version of a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{"name": args[0]}
		if contentSourceAgent != "" {
			params["sourceAgent"] = contentSourceAgent
		}
		if contentIntent != "" {
			params["intent"] = contentIntent
		}
		if contentFormat != "" {
			params["format"] = contentFormat
		}

		client := newClient()
		result, err := client.callRaw("get_context", params)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var contentComposeCmd = &cobra.Command{
	Use:   "compose <name> [name...]",
	Short: "Merge several approved contexts into one document",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{"names": args}
		if contentSourceAgent != "" {
			params["sourceAgent"] = contentSourceAgent
		}
		if contentIntent != "" {
			params["intent"] = contentIntent
		}

		client := newClient()
		result, err := client.callRaw("compose_contexts", params)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{contentGetPromptCmd, contentGetContextCmd, contentComposeCmd} {
		cmd.Flags().StringVar(&contentSourceAgent, "source-agent", "", "Agent to deliver as (default: the acting principal)")
		cmd.Flags().StringVar(&contentIntent, "intent", "", "Declared purpose, recorded in the ledger")
	}
	contentGetPromptCmd.Flags().StringArrayVar(&promptVars, "var", nil, "Template variable as key=value (repeatable)")
	contentGetContextCmd.Flags().StringVar(&contentFormat, "format", "", "Rendering format: json, yaml, or text")

	contentCmd.AddCommand(contentGetPromptCmd)
	contentCmd.AddCommand(contentGetContextCmd)
	contentCmd.AddCommand(contentComposeCmd)
}
