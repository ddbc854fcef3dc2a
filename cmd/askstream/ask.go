package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devsecrin/askstream/pkg/ask"
	"github.com/devsecrin/askstream/pkg/chat"
	"github.com/devsecrin/askstream/pkg/config"
	"github.com/devsecrin/askstream/pkg/types"
)

var (
	askAgent    string
	askSearch   string
	askLimit    int
	askNoStream bool
	askJSON     bool
	askRetries  int
	askContext  bool
	askMatch    []string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyAskFlags(cmd, cfg); err != nil {
			return err
		}

		log := newLogger()
		client := ask.NewClient(cfg.ClientConfig(log))
		req := ask.NewStreamRequest(strings.Join(args, " "), cfg.Defaults.Agent, cfg.RequestOptions()...)
		if err := req.Validate(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if askNoStream {
			answer, err := client.Ask(cmd.Context(), req)
			if err != nil {
				return err
			}
			if askJSON {
				return writeJSON(out, answer)
			}
			fmt.Fprintln(out, answer.Text)
			printSources(out, answer.Context)
			return nil
		}

		conv := chat.New(client,
			chat.WithAgent(req.AgentType),
			chat.WithRequestOptions(cfg.RequestOptions()...),
			chat.WithLogger(log),
			chat.OnUpdate(newPrinter(out, !askJSON).update),
		)
		msg, err := conv.Send(cmd.Context(), req.Question)
		if askJSON {
			if jerr := writeJSON(out, msg); jerr != nil {
				return jerr
			}
			return err
		}
		finishMessage(out, msg)
		return err
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	addQuestionFlags(askCmd)
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "Request the whole answer in one response")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the final answer as JSON")
}

// addQuestionFlags registers the flags shared by ask and chat.
func addQuestionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&askAgent, "agent", "a", "", "Agent: pathfinder, chronicle, diagnostician, blueprint, sentinel")
	cmd.Flags().StringVar(&askSearch, "search", "", "Search type: vector or hybrid")
	cmd.Flags().IntVar(&askLimit, "limit", 0, fmt.Sprintf("Context items to retrieve (0-%d)", ask.MaxContextLimit))
	cmd.Flags().IntVar(&askRetries, "retries", 0, "Retry connection failures this many times")
	cmd.Flags().BoolVar(&askContext, "sources", true, "Print the retrieved sources after the answer")
	cmd.Flags().StringSliceVar(&askMatch, "sources-match", nil, "Only print sources whose name matches these globs (pkg/auth/**)")
}

// applyAskFlags overrides config defaults with the flags the user set.
func applyAskFlags(cmd *cobra.Command, cfg *config.Config) error {
	if askAgent != "" {
		agent, err := types.ParseAgentType(askAgent)
		if err != nil {
			return err
		}
		cfg.Defaults.Agent = agent
	}
	if askSearch != "" {
		st, err := types.ParseSearchType(askSearch)
		if err != nil {
			return err
		}
		cfg.Defaults.SearchType = st
	}
	if cmd.Flags().Changed("limit") {
		cfg.Defaults.ContextLimit = askLimit
	}
	if cmd.Flags().Changed("retries") {
		cfg.Backend.Retry.MaxRetries = askRetries
	}
	if _, err := types.FilterContext(nil, askMatch...); err != nil {
		return err
	}
	return cfg.Validate()
}

// printer writes answer text as it streams in.
type printer struct {
	out     io.Writer
	enabled bool
	printed int
}

func newPrinter(out io.Writer, enabled bool) *printer {
	return &printer{out: out, enabled: enabled}
}

func (p *printer) update(m chat.Message) {
	if !p.enabled || len(m.Content) <= p.printed {
		return
	}
	io.WriteString(p.out, m.Content[p.printed:])
	p.printed = len(m.Content)
}

func finishMessage(out io.Writer, m chat.Message) {
	fmt.Fprintln(out)
	switch {
	case m.Stopped:
		fmt.Fprintln(out, "[stopped]")
	case m.Error != "":
		fmt.Fprintf(out, "[error: %s]\n", m.Error)
	default:
		printSources(out, m.Context)
	}
}

func printSources(out io.Writer, items []types.ContextItem) {
	items, _ = types.FilterContext(items, askMatch...)
	if !askContext || len(items) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSources:")
	for _, item := range items {
		if item.Score != nil {
			fmt.Fprintf(out, "  - %s %s (%.2f)\n", item.Type, item.Name, *item.Score)
		} else {
			fmt.Fprintf(out, "  - %s %s\n", item.Type, item.Name)
		}
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

