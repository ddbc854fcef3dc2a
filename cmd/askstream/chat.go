package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devsecrin/askstream/pkg/ask"
	"github.com/devsecrin/askstream/pkg/chat"
	"github.com/devsecrin/askstream/pkg/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session with the ask backend",
	Long: `Reads questions from stdin and streams each answer as it arrives.
Ctrl+C stops the answer in flight and exits.

Commands:
  /agent <name>   switch agent
  /agents         list agents
  /clear          forget the conversation
  /quit           exit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyAskFlags(cmd, cfg); err != nil {
			return err
		}

		log := newLogger()
		out := cmd.OutOrStdout()
		p := newPrinter(out, true)
		conv := chat.New(ask.NewClient(cfg.ClientConfig(log)),
			chat.WithAgent(cfg.Defaults.Agent),
			chat.WithRequestOptions(cfg.RequestOptions()...),
			chat.WithLogger(log),
			chat.OnUpdate(func(m chat.Message) { p.update(m) }),
		)

		ctx := cmd.Context()
		lines := readLines(cmd.InOrStdin())
		for {
			fmt.Fprintf(out, "%s> ", conv.Agent())
			var line string
			select {
			case <-ctx.Done():
				fmt.Fprintln(out)
				return nil
			case l, ok := <-lines:
				if !ok {
					fmt.Fprintln(out)
					return nil
				}
				line = strings.TrimSpace(l)
			}
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := runChatCommand(out, conv, line); quit {
					return nil
				}
				continue
			}

			p = newPrinter(out, true)
			msg, err := conv.Send(ctx, line)
			finishMessage(out, msg)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				log.Debug("chat: question failed", "err", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	addQuestionFlags(chatCmd)
}

// readLines delivers lines from r until it is exhausted. Reading happens on
// its own goroutine so a cancelled context is not stuck behind a blocked read.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// runChatCommand handles a slash command and reports whether to exit.
func runChatCommand(out io.Writer, conv *chat.Conversation, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "/quit", "/exit":
		return true
	case "/clear":
		conv.Clear()
		fmt.Fprintln(out, "conversation cleared")
	case "/agents":
		printAgents(out)
	case "/agent":
		agent, err := types.ParseAgentType(arg)
		if err != nil {
			fmt.Fprintln(out, err)
			return false
		}
		conv.SetAgent(agent)
		info, _ := types.LookupAgent(agent)
		fmt.Fprintf(out, "now asking %s (%s)\n", info.Label, info.Description)
	default:
		fmt.Fprintf(out, "unknown command %s\n", name)
	}
	return false
}
