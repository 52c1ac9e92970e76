package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
)

// sessionRunner runs and resumes advisory sessions.
type sessionRunner interface {
	Start(ctx context.Context, rawInput string, answers map[string]any) (*advisor.Record, error)
	Resume(ctx context.Context, rec *advisor.Record, additional string) (*advisor.Record, error)
}

func newAdviseCmd() *cobra.Command {
	var (
		answers       []string
		output        string
		noInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "advise [use case]",
		Short: "Recommend a framework for a use case",
		Long: `Run the advisory pipeline for a use case described in plain language.

When the pipeline needs clarification the question is printed and the answer
read from stdin; an empty answer ends the session with the current result.
Without arguments the use case itself is read from stdin.

Examples:
  # Ask interactively
  advisor advise "Route incoming IT tickets to the right team"

  # Provide guided answers and print YAML
  advisor advise --answers team_size=4 --answers no_code_importance=5 --output yaml "Summarize sales calls"

  # Read the use case from a file
  advisor advise --no-interactive < usecase.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			parsed, err := parseAnswers(answers)
			if err != nil {
				return err
			}

			in := bufio.NewReader(cmd.InOrStdin())
			input := strings.TrimSpace(strings.Join(args, " "))
			if input == "" {
				data, err := io.ReadAll(in)
				if err != nil {
					return fmt.Errorf("reading use case from stdin: %w", err)
				}
				input = strings.TrimSpace(string(data))
				noInteractive = true
			}
			if input == "" {
				return fmt.Errorf("no use case given")
			}

			a, err := newApp(cmd.Context(), appParts{pipeline: true})
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			if a.cfg.Knowledge.SeedOnStart {
				if _, err := a.seed(cmd.Context(), a.corpus, false, nil); err != nil {
					return fmt.Errorf("seeding reference corpus: %w", err)
				}
			}

			var prompt io.Writer = cmd.ErrOrStderr()
			if noInteractive {
				in = nil
			}
			rec, err := adviseLoop(cmd.Context(), a.orch, input, parsed, in, prompt)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rec, format)
		},
	}

	cmd.Flags().StringArrayVar(&answers, "answers", nil, "guided answer as key=value (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	cmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "do not prompt for clarification")
	return cmd
}

// adviseLoop starts a session and answers clarification questions from in
// until the session ends, in is exhausted or an empty answer is given. A nil
// in disables prompting.
func adviseLoop(ctx context.Context, runner sessionRunner, input string, answers map[string]any, in *bufio.Reader, prompt io.Writer) (*advisor.Record, error) {
	rec, err := runner.Start(ctx, input, answers)
	if err != nil {
		return nil, err
	}

	for rec.Suspended() && in != nil {
		fmt.Fprintf(prompt, "%s\n> ", rec.Decision.Question)
		line, readErr := in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer == "" {
			break
		}

		rec, err = runner.Resume(ctx, rec, answer)
		if err != nil {
			return nil, err
		}
		if readErr != nil {
			break
		}
	}
	return rec, nil
}

// parseAnswers turns key=value pairs into typed answers. Values that parse
// as integers, floats or booleans keep that type.
func parseAnswers(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid answer %q: expected key=value", pair)
		}
		value = strings.TrimSpace(value)

		if n, err := strconv.Atoi(value); err == nil {
			out[key] = n
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
		} else {
			out[key] = value
		}
	}
	return out, nil
}
