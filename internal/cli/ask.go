package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/haruo/kaigi/internal/app"
	"github.com/haruo/kaigi/pkg/conversation"
	"github.com/haruo/kaigi/pkg/orchestrator"
)

var askCmd = &cobra.Command{
	Use:   "ask \"question\"",
	Short: "Ask the team one question",
	Long: `Run one conversation for the question, print the transcript and the
final answer. Exits nonzero when the conversation ends without an
answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()

	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer application.Close()

	result := application.Execute(cmd.Context(), args[0])
	printResult(cmd.OutOrStdout(), result)

	if !result.Success {
		return fmt.Errorf("conversation ended without an answer (%s)", result.Reason)
	}
	return nil
}

// transcriptPalette rotates over agents in order of first appearance.
var transcriptPalette = []*color.Color{
	color.New(color.FgCyan),
	color.New(color.FgGreen),
	color.New(color.FgMagenta),
	color.New(color.FgYellow),
	color.New(color.FgBlue),
}

// printResult renders the conversation transcript and the outcome.
func printResult(w io.Writer, result orchestrator.Result) {
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)
	senders := map[string]*color.Color{}

	for _, msg := range result.Conversation {
		switch msg.Role {
		case conversation.RoleUser:
			bold.Fprint(w, "user: ")
			fmt.Fprintf(w, "%s\n", msg.Content)
		case conversation.RoleAssistant:
			c := senderColor(senders, msg.Sender)
			c.Fprintf(w, "%s:", msg.Sender)
			if msg.Content != "" {
				fmt.Fprintf(w, " %s", msg.Content)
			}
			fmt.Fprintln(w)
			for _, call := range msg.ToolCalls {
				dim.Fprintf(w, "  → %s\n", call.Name)
			}
		case conversation.RoleTool:
			dim.Fprintf(w, "  ← %s: %s\n", msg.ToolName, msg.Content)
		case conversation.RoleSystem:
			dim.Fprintf(w, "[%s]\n", msg.Content)
		}
	}

	fmt.Fprintln(w)
	if result.Success {
		bold.Fprint(w, "Answer: ")
		fmt.Fprintln(w, result.Answer)
	} else {
		color.New(color.FgRed, color.Bold).Fprint(w, "Failed: ")
		fmt.Fprintln(w, result.Err)
	}
	dim.Fprintf(w, "%d rounds, %s\n", result.Rounds, result.Reason)
}

func senderColor(assigned map[string]*color.Color, sender string) *color.Color {
	if c, ok := assigned[sender]; ok {
		return c
	}
	c := transcriptPalette[len(assigned)%len(transcriptPalette)]
	assigned[sender] = c
	return c
}
