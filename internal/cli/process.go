package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewProcessCmd создаёт группу команд для управления процессами.
func NewProcessCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Manage processes",
	}

	cmd.AddCommand(
		newProcessListCmd(clientFn, outputFn),
		newProcessStartCmd(clientFn, outputFn),
		newProcessShowCmd(clientFn, outputFn),
		newProcessProgressCmd(clientFn, outputFn),
		newProcessChildrenCmd(clientFn, outputFn),
		newProcessSignalsCmd(clientFn, outputFn),
		newProcessApproveCmd(clientFn, outputFn),
		newProcessEventCmd(clientFn, outputFn),
	)

	return cmd
}

func newProcessListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var processType string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			procs, err := client.ListProcesses(ListProcessesOpts{
				ProcessType: processType,
				Status:      status,
				Limit:       limit,
			})
			if err != nil {
				return err
			}

			out.Processes(procs)
			return nil
		},
	}

	cmd.Flags().StringVar(&processType, "type", "", "Filter by process type")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (running, completed, rejected, needs_changes, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newProcessStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var routeFile string
	var documentFile string
	var contextVars []string
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "start PROCESS_TYPE",
		Short: "Start a new process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := StartProcessRequest{
				ProcessType:    args[0],
				IdempotencyKey: idempotencyKey,
			}

			if routeFile != "" {
				data, err := os.ReadFile(routeFile)
				if err != nil {
					return fmt.Errorf("failed to read route file: %w", err)
				}
				if !json.Valid(data) {
					return fmt.Errorf("route file is not valid JSON")
				}
				req.Route = data
			}

			if documentFile != "" {
				data, err := os.ReadFile(documentFile)
				if err != nil {
					return fmt.Errorf("failed to read document file: %w", err)
				}
				if err := json.Unmarshal(data, &req.Document); err != nil {
					return fmt.Errorf("document file is not a valid JSON object")
				}
			}

			if len(contextVars) > 0 {
				req.Context = make(map[string]any)
				for _, kv := range contextVars {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid context format %q, expected KEY=VALUE", kv)
					}
					req.Context[parts[0]] = parts[1]
				}
			}

			proc, err := client.StartProcess(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Process started: %s", proc.ID))
			out.ProcessDetail(proc)
			return nil
		},
	}

	cmd.Flags().StringVar(&routeFile, "route-file", "", "Path to route JSON file (optional if process type is registered)")
	cmd.Flags().StringVar(&documentFile, "document-file", "", "Path to document JSON file")
	cmd.Flags().StringSliceVar(&contextVars, "context", nil, "Context values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key for the start")

	return cmd
}

func newProcessShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show process details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			proc, err := client.GetProcess(args[0])
			if err != nil {
				return err
			}

			out.ProcessDetail(proc)
			return nil
		},
	}
}

func newProcessProgressCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "progress ID",
		Short: "Show process progress snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			snap, err := client.GetProgress(args[0])
			if err != nil {
				return err
			}

			out.Snapshot(snap)
			return nil
		},
	}
}

func newProcessChildrenCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "children ID",
		Short: "List child processes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			procs, err := client.ListChildren(args[0])
			if err != nil {
				return err
			}

			out.Processes(procs)
			return nil
		},
	}
}

func newProcessSignalsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "signals ID",
		Short: "Show signal journal of a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			signals, err := client.ListSignals(args[0])
			if err != nil {
				return err
			}

			out.Signals(signals)
			return nil
		},
	}
}

func newProcessApproveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var node string
	var actor string
	var decision string
	var comment string

	cmd := &cobra.Command{
		Use:   "approve ID",
		Short: "Submit an approval vote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			err := client.SubmitApproval(args[0], SubmitApprovalRequest{
				NodeID:   node,
				Actor:    actor,
				Decision: decision,
				Comment:  comment,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Vote submitted: %s %s by %s", args[0], decision, actor))
			return nil
		},
	}

	cmd.Flags().StringVar(&node, "node", "", "Approval node ID (required)")
	cmd.Flags().StringVar(&actor, "actor", "", "Voting actor (required)")
	cmd.Flags().StringVar(&decision, "decision", "", "Decision: approved, rejected or needs_changes (required)")
	cmd.Flags().StringVar(&comment, "comment", "", "Comment (required for negative decisions)")
	cmd.MarkFlagRequired("node")
	cmd.MarkFlagRequired("actor")
	cmd.MarkFlagRequired("decision")

	return cmd
}

func newProcessEventCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var eventID string
	var dataFile string
	var dataVars []string

	cmd := &cobra.Command{
		Use:   "event ID EVENT_NAME",
		Short: "Submit an external event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := SubmitEventRequest{
				EventName: args[1],
				EventID:   eventID,
			}

			if dataFile != "" {
				data, err := os.ReadFile(dataFile)
				if err != nil {
					return fmt.Errorf("failed to read data file: %w", err)
				}
				if err := json.Unmarshal(data, &req.Data); err != nil {
					return fmt.Errorf("data file is not a valid JSON object")
				}
			}

			if len(dataVars) > 0 {
				if req.Data == nil {
					req.Data = make(map[string]any)
				}
				for _, kv := range dataVars {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid data format %q, expected KEY=VALUE", kv)
					}
					req.Data[parts[0]] = parts[1]
				}
			}

			if err := client.SubmitEvent(args[0], req); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Event submitted: %s %s", args[0], args[1]))
			return nil
		},
	}

	cmd.Flags().StringVar(&eventID, "event-id", "", "Deduplication key for the event")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "Path to event data JSON file")
	cmd.Flags().StringSliceVar(&dataVars, "data", nil, "Event data as KEY=VALUE (repeatable)")

	return cmd
}
