package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/audit"
)

var auditLogCmd = &cobra.Command{
	Use:   "audit-log <workspace>",
	Short: "Display the audit trail for a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditLog,
}

var auditLogJSON bool

func init() {
	auditLogCmd.Flags().BoolVar(&auditLogJSON, "json-lines", false, "Output events as JSON lines")
	rootCmd.AddCommand(auditLogCmd)
}

func runAuditLog(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var events []audit.Event
	if l, ok := app.Default.AuditLog(); ok {
		events, err = l.Events(ws.ID)
		if err != nil {
			return fmt.Errorf("failed to read audit log: %w", err)
		}
	} else if mem, ok := app.Default.Audit.(*audit.Memory); ok {
		events = mem.Events(ws.ID)
	} else {
		return fmt.Errorf("audit log is not readable")
	}

	if len(events) == 0 {
		logInfo("No events found for workspace %s", ws.Ref())
		return nil
	}

	out := cmd.OutOrStdout()
	for _, e := range events {
		if auditLogJSON {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		subject := e.Ref
		if e.Step != "" {
			subject += " @" + e.Step
		}
		if e.Details != "" {
			fmt.Fprintf(out, "[%s] %-8s %s (%s)\n", ts, e.Type, subject, e.Details)
		} else {
			fmt.Fprintf(out, "[%s] %-8s %s\n", ts, e.Type, subject)
		}
	}

	return nil
}
