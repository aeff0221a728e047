package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для выполнения workflow.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Execute workflows",
	}

	cmd.AddCommand(newWorkflowRunCmd(clientFn, outputFn))

	return cmd
}

func newWorkflowRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var async bool

	cmd := &cobra.Command{
		Use:   "run -f FILE",
		Short: "Run a workflow from a JSON file (- for stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflow, err := readWorkflow(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			if async {
				run, err := client.EnqueueWorkflow(workflow)
				if err != nil {
					return err
				}
				out.Info("Workflow queued: %s", run.ID)
				out.Print(
					[]string{"ID", "STATUS", "CREATED"},
					[][]string{{run.ID, run.Status, run.CreatedAt}},
					run,
				)
				return nil
			}

			result, err := client.RunWorkflow(workflow)
			if err != nil {
				return err
			}
			printResult(out, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Workflow JSON file (- for stdin)")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the workflow instead of waiting for the result")
	cmd.MarkFlagRequired("file")

	return cmd
}

// readWorkflow читает JSON workflow из файла или stdin.
func readWorkflow(file string, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("workflow %s is not valid JSON", file)
	}
	return json.RawMessage(data), nil
}

// printResult выводит шаги run и итоговый вывод.
func printResult(out *Output, result *WorkflowResult) {
	if out.JSONMode() {
		out.JSON(result)
		return
	}

	headers := []string{"STEP", "BACKEND", "STATUS", "ATTEMPTS", "DURATION_MS", "ERROR"}
	rows := make([][]string, len(result.Steps))
	for i, s := range result.Steps {
		errMsg := ""
		if s.Error != nil {
			errMsg = s.Error.Kind + ": " + s.Error.Message
		}
		rows[i] = []string{
			s.StepName,
			s.BackendUsed,
			s.Status,
			strconv.Itoa(s.Attempts),
			strconv.FormatInt(s.DurationMs, 10),
			errMsg,
		}
	}
	out.Table(headers, rows)

	out.Info("Run %s: %s", result.RunID, result.Status)
	if result.Error != nil {
		out.Warn(result.Error.Message)
	}
	out.Text(result.FinalOutput)
}
