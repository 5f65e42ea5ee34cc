package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

const ledgerAPIBase = "/api/ledger"

type eventView struct {
	ID           uint64 `json:"id"`
	AgentID      string `json:"agent_id,omitempty"`
	OrgID        string `json:"org_id,omitempty"`
	TraceID      string `json:"trace_id,omitempty"`
	ActionType   string `json:"action_type"`
	ResourceName string `json:"resource_name,omitempty"`
	VersionID    string `json:"version_id,omitempty"`
	Intent       string `json:"intent,omitempty"`
	Reason       string `json:"reason,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type eventPage struct {
	Events        []eventView `json:"events"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Read the append-only audit ledger",
}

var ledgerLimit int

var ledgerLineageCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Show recent content deliveries and prompt usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchEvents(ledgerAPIBase + "/lineage" + limitQuery())
	},
}

var ledgerBlockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "Show recent policy denials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchEvents(ledgerAPIBase + "/blocked" + limitQuery())
	},
}

var (
	filterAgent string
	filterTrace string
	filterFrom  string
	filterTo    string
)

var ledgerIntersectionsCmd = &cobra.Command{
	Use:   "intersections",
	Short: "Show which prompt and context versions were used together",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if filterAgent != "" {
			q.Set("agentId", filterAgent)
		}
		if filterTrace != "" {
			q.Set("traceId", filterTrace)
		}
		if filterFrom != "" {
			q.Set("from", filterFrom)
		}
		if filterTo != "" {
			q.Set("to", filterTo)
		}
		if ledgerLimit > 0 {
			q.Set("limit", strconv.Itoa(ledgerLimit))
		}
		path := ledgerAPIBase + "/intersections"
		if encoded := q.Encode(); encoded != "" {
			path += "?" + encoded
		}
		return fetchEvents(path)
	},
}

var (
	eventsType      string
	eventsPageSize  int
	eventsPageToken string
)

var ledgerEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Page through the full event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if eventsType != "" {
			q.Set("actionType", eventsType)
		}
		if eventsPageSize > 0 {
			q.Set("pageSize", strconv.Itoa(eventsPageSize))
		}
		if eventsPageToken != "" {
			q.Set("pageToken", eventsPageToken)
		}
		path := ledgerAPIBase + "/events"
		if encoded := q.Encode(); encoded != "" {
			path += "?" + encoded
		}
		return fetchEvents(path)
	},
}

func limitQuery() string {
	if ledgerLimit > 0 {
		return "?limit=" + strconv.Itoa(ledgerLimit)
	}
	return ""
}

func fetchEvents(path string) error {
	client := newClient()
	var page eventPage
	if err := client.getJSON(path, &page); err != nil {
		return err
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(page)
	}

	headers := []string{"ID", "Action", "Agent", "Resource", "Version ID", "Reason", "At"}
	rows := make([][]string, 0, len(page.Events))
	for _, e := range page.Events {
		rows = append(rows, []string{
			strconv.FormatUint(e.ID, 10),
			e.ActionType,
			e.AgentID,
			e.ResourceName,
			truncate(e.VersionID, 12),
			truncate(e.Reason, 40),
			e.CreatedAt,
		})
	}
	printTable(headers, rows)
	if page.NextPageToken != "" {
		fmt.Printf("Next page token: %s\n", page.NextPageToken)
	}
	return nil
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Write compliance events into the ledger",
}

var (
	auditResourceRef string
	auditSourceAgent string
)

var auditLogCmd = &cobra.Command{
	Use:   "log <eventType>",
	Short: "Record a compliance event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{"eventType": args[0]}
		if auditResourceRef != "" {
			params["resourceRef"] = auditResourceRef
		}
		if auditSourceAgent != "" {
			params["sourceAgent"] = auditSourceAgent
		}
		client := newClient()
		result, err := client.callRaw("audit_log", params)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var incidentSeverity string

var auditIncidentCmd = &cobra.Command{
	Use:   "incident <description>",
	Short: "Report a governance incident",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{
			"severity":    incidentSeverity,
			"description": args[0],
		}
		if auditResourceRef != "" {
			params["resourceRef"] = auditResourceRef
		}
		if auditSourceAgent != "" {
			params["sourceAgent"] = auditSourceAgent
		}
		client := newClient()
		result, err := client.callRaw("report_incident", params)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{ledgerLineageCmd, ledgerBlockedCmd, ledgerIntersectionsCmd} {
		cmd.Flags().IntVar(&ledgerLimit, "limit", 0, "Maximum events to return")
	}

	ledgerIntersectionsCmd.Flags().StringVar(&filterAgent, "agent", "", "Filter by agent ID")
	ledgerIntersectionsCmd.Flags().StringVar(&filterTrace, "trace", "", "Filter by trace ID")
	ledgerIntersectionsCmd.Flags().StringVar(&filterFrom, "from", "", "Start of time window (RFC3339)")
	ledgerIntersectionsCmd.Flags().StringVar(&filterTo, "to", "", "End of time window (RFC3339)")

	ledgerEventsCmd.Flags().StringVar(&eventsType, "type", "", "Filter by action type")
	ledgerEventsCmd.Flags().IntVar(&eventsPageSize, "page-size", 0, "Page size")
	ledgerEventsCmd.Flags().StringVar(&eventsPageToken, "page-token", "", "Page token from a previous call")

	ledgerCmd.AddCommand(ledgerLineageCmd)
	ledgerCmd.AddCommand(ledgerBlockedCmd)
	ledgerCmd.AddCommand(ledgerIntersectionsCmd)
	ledgerCmd.AddCommand(ledgerEventsCmd)

	for _, cmd := range []*cobra.Command{auditLogCmd, auditIncidentCmd} {
		cmd.Flags().StringVar(&auditResourceRef, "resource", "", "Resource the event concerns")
		cmd.Flags().StringVar(&auditSourceAgent, "source-agent", "", "Agent the event concerns")
	}
	auditIncidentCmd.Flags().StringVar(&incidentSeverity, "severity", "medium", "Incident severity")

	auditCmd.AddCommand(auditLogCmd)
	auditCmd.AddCommand(auditIncidentCmd)
}
