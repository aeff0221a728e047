package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewBackendCmd создаёт группу команд для реестра backend'ов.
func NewBackendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backend",
		Aliases: []string{"backends"},
		Short:   "Inspect and test backends",
	}

	cmd.AddCommand(
		newBackendListCmd(clientFn, outputFn),
		newBackendRefreshCmd(clientFn, outputFn),
		newBackendTestCmd(clientFn, outputFn),
	)

	return cmd
}

var backendHeaders = []string{"ID", "KIND", "AVAILABILITY", "ENDPOINT"}

func backendRows(backends []Backend) [][]string {
	rows := make([][]string, len(backends))
	for i, b := range backends {
		rows[i] = []string{b.ID, b.Kind, b.Availability, b.Endpoint}
	}
	return rows
}

func newBackendListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			backends, err := clientFn().ListBackends()
			if err != nil {
				return err
			}

			outputFn().Print(backendHeaders, backendRows(backends), backends)
			return nil
		},
	}
}

func newBackendRefreshCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the registry now",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			report, backends, err := clientFn().RefreshBackends()
			if err != nil {
				return err
			}

			if report != nil {
				out.Info("Refreshed %d backends: %d available, %d unavailable, %d unknown",
					report.Total, report.Available, report.Unavailable, report.Unknown)
				if report.CatalogError != "" {
					out.Warn("catalog: " + report.CatalogError)
				}
			}
			out.Print(backendHeaders, backendRows(backends), backends)
			return nil
		},
	}
}

func newBackendTestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var backendID string
	var agentID string
	var params []string

	cmd := &cobra.Command{
		Use:   "test PROMPT",
		Short: "Send a single prompt to a backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			parameters, err := parseParams(params)
			if err != nil {
				return err
			}

			resp, err := clientFn().TestBackend(TestCallRequest{
				BackendID:  backendID,
				AgentID:    agentID,
				Prompt:     args[0],
				Parameters: parameters,
			})
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(resp)
				return nil
			}
			out.Info("%s (%s), %d attempt(s), %d ms",
				resp.BackendID, resp.BackendKind, resp.Attempts, resp.DurationMs)
			out.Text(resp.Text)
			return nil
		},
	}

	cmd.Flags().StringVar(&backendID, "backend", "", "Backend ID or server URL (local if empty)")
	cmd.Flags().StringVar(&agentID, "agent", "", "Remote agent ID, takes precedence over --backend")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Parameter as KEY=VALUE, JSON values allowed (repeatable)")

	return cmd
}

// parseParams разбирает KEY=VALUE. Значение читается как JSON,
// иначе остаётся строкой: temperature=0.2 → 0.2, model=llama3 → "llama3".
func parseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter format %q, expected KEY=VALUE", kv)
		}

		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			params[key] = parsed
		} else {
			params[key] = value
		}
	}
	return params, nil
}
