package run

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.firedancer.io/litesvm/pkg/runtime"
	"go.firedancer.io/litesvm/pkg/scenario"
	"k8s.io/klog/v2"
)

var (
	Cmd = cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario against a fresh runtime",
		Args:  cobra.ExactArgs(1),
		RunE:  run,

		SilenceUsage: true,
	}

	jsonOutput   bool
	showLogs     bool
	sigVerify    bool
	showProgress bool
)

func init() {
	Cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON (implied when stdout is not a terminal)")
	Cmd.Flags().BoolVar(&showLogs, "logs", false, "Print program logs of each transaction")
	Cmd.Flags().BoolVar(&sigVerify, "sig-verify", true, "Verify transaction signatures")
	Cmd.Flags().BoolVar(&showProgress, "progress", false, "Show a progress bar on stderr")
}

type stepOutput struct {
	Index        int      `json:"index"`
	Op           string   `json:"op"`
	Status       string   `json:"status"`
	Signature    string   `json:"signature,omitempty"`
	Fee          uint64   `json:"fee"`
	ComputeUnits uint64   `json:"compute_units"`
	Error        string   `json:"error,omitempty"`
	Unexpected   bool     `json:"unexpected,omitempty"`
	Logs         []string `json:"logs,omitempty"`
}

type accountOutput struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	Exists     bool   `json:"exists"`
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner,omitempty"`
	DataLen    int    `json:"data_len"`
	Executable bool   `json:"executable,omitempty"`
}

type output struct {
	Steps      []stepOutput    `json:"steps"`
	Accounts   []accountOutput `json:"accounts"`
	StateHash  string          `json:"state_hash"`
	Unexpected int             `json:"unexpected"`
}

func run(c *cobra.Command, args []string) error {
	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	var opts []runtime.Option
	if c.Flags().Changed("sig-verify") {
		opts = append(opts, runtime.WithSigVerify(sigVerify))
	}
	runner, err := scenario.NewRunner(sc, opts...)
	if err != nil {
		return err
	}

	var progress *mpb.Progress
	if showProgress {
		progress = mpb.NewWithContext(c.Context(), mpb.WithOutput(c.ErrOrStderr()))
		bar := progress.AddBar(int64(len(sc.Steps)),
			mpb.PrependDecorators(decor.Name("steps ")),
			mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
		)
		runner.OnStep(func(scenario.StepResult) { bar.Increment() })
	}

	klog.Infof("running %d steps from %s", len(sc.Steps), args[0])
	report, err := runner.Run(c.Context())
	if progress != nil {
		progress.Wait()
	}
	if err != nil {
		return err
	}

	out := newOutput(report)
	w := c.OutOrStdout()
	if jsonOutput || !isTerminal(w) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(out)
	} else {
		err = printText(w, out)
	}
	if err != nil {
		return err
	}

	if out.Unexpected > 0 {
		return fmt.Errorf("%d steps did not match their expected outcome", out.Unexpected)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func newOutput(report *scenario.Report) *output {
	out := &output{
		StateHash:  fmt.Sprintf("%x", report.StateHash),
		Unexpected: report.Unexpected(),
	}
	for _, step := range report.Steps {
		s := stepOutput{
			Index:        step.Index,
			Op:           string(step.Op),
			Status:       step.Status(),
			Fee:          step.Fee,
			ComputeUnits: step.ComputeUnits,
			Unexpected:   step.Unexpected,
		}
		if !step.Signature.IsZero() {
			s.Signature = step.Signature.String()
		}
		if step.Err != nil {
			s.Error = step.Err.Error()
		}
		if showLogs {
			s.Logs = step.Logs
		}
		out.Steps = append(out.Steps, s)
	}
	for _, acct := range report.Accounts {
		a := accountOutput{
			Name:       acct.Name,
			Address:    acct.Address.String(),
			Exists:     acct.Exists,
			Lamports:   acct.Lamports,
			DataLen:    acct.DataLen,
			Executable: acct.Executable,
		}
		if acct.Exists {
			a.Owner = acct.Owner.String()
		}
		out.Accounts = append(out.Accounts, a)
	}
	return out
}

func printText(w io.Writer, out *output) error {
	for _, s := range out.Steps {
		mark := " "
		if s.Unexpected {
			mark = "!"
		}
		sig := s.Signature
		if sig == "" {
			sig = "-"
		}
		if _, err := fmt.Fprintf(w, "%s%3d %-16s %-26s fee=%-6d cu=%-6d %s\n",
			mark, s.Index, s.Op, s.Status, s.Fee, s.ComputeUnits, sig); err != nil {
			return err
		}
		for _, line := range s.Logs {
			if _, err := fmt.Fprintf(w, "      %s\n", line); err != nil {
				return err
			}
		}
	}

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	for _, a := range out.Accounts {
		if !a.Exists {
			if _, err := fmt.Fprintf(w, "%-12s %s (none)\n", a.Name, a.Address); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%-12s %s lamports=%d owner=%s data=%d\n",
			a.Name, a.Address, a.Lamports, a.Owner, a.DataLen); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\nstate hash %s\n", out.StateHash)
	return err
}
