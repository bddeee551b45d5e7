// Package democmder implements `finvisor demo`, the eight-step walkthrough in
// the terminal.
package democmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/finvisor/finvisor/pkg/wizard"
)

const demoLongDesc string = `Play the finvisor walkthrough in the terminal.

The demo follows one student's case from the first chat with Finnie
through document upload, strategy, research, the appeal letter, portal
submission and the advisor call, ending at the dashboard. Every step
plays on the same timings as the web wizard.

On a terminal the demo is interactive: press enter to move on once a
step has finished. When output is piped, or with --plain, every step
plays straight through as text.

Examples:
  finvisor demo
  finvisor demo --plain --instant | less
  finvisor demo --document fafsa`

const demoShortDesc string = "Play the walkthrough in the terminal"

type demoCommander struct {
	plain    bool
	instant  bool
	document string
}

func NewDemoCmd() *cobra.Command {
	cmder := &demoCommander{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: demoShortDesc,
		Long:  demoLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Print every step as text instead of the interactive view")
	cmd.Flags().BoolVar(&cmder.instant, "instant", false, "Skip the script delays")
	cmd.Flags().StringVar(&cmder.document, "document", wizard.DocW2, "Document parsed in the upload step")

	return cmd
}

func (c *demoCommander) run(ctx context.Context, in io.Reader, out io.Writer) error {
	scripts, err := wizard.Load()
	if err != nil {
		return err
	}

	var sleeper wizard.Sleeper = wizard.TimerSleeper{}
	if c.instant {
		sleeper = wizard.NoSleep
	}
	player := wizard.NewPlayer(scripts, sleeper)
	player.Document = c.document

	if c.plain || !isTerminal(out) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return playPlain(ctx, out, player)
	}

	lipgloss.SetHasDarkBackground(termenv.HasDarkBackground())
	p := tea.NewProgram(newModel(ctx, player),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// playPlain plays every step in order and prints settled events only.
func playPlain(ctx context.Context, out io.Writer, player *wizard.Player) error {
	scripts := player.Scripts()
	ctrl := wizard.NewController()
	start := time.Now()

	for {
		step := ctrl.Current()
		fmt.Fprintf(out, "\n%s\n", titleStyle.Render(fmt.Sprintf("== %d/%d %s ==", step+1, wizard.NumSteps, scripts.Label(step))))

		var letter []string
		err := player.PlayCurrent(ctx, ctrl, func(ev wizard.Event) error {
			if pending(ev) || ev.Kind == wizard.KindTyping {
				return nil
			}
			if step == wizard.Appeal && ev.Kind == wizard.KindLine {
				s, _ := ev.Payload.(string)
				letter = append(letter, s)
				return nil
			}
			for _, line := range describe(ev) {
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(letter) > 0 {
			fmt.Fprint(out, renderLetter(letter, 80, false))
		}

		if ctrl.Finished() {
			break
		}
		if _, err := ctrl.Next(); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "\n%s\n", doneStyle.Render(
		fmt.Sprintf("Walkthrough complete in %s.", time.Since(start).Round(time.Second))))
	return nil
}
