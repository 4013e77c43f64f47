package rent

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.firedancer.io/litesvm/pkg/rent"
)

var (
	Cmd = cobra.Command{
		Use:   "rent <space>",
		Short: "Print the rent-exempt minimum balance for an account size",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	lamportsPerByteYear uint64
	exemptionThreshold  float64
)

func init() {
	defaults := rent.DefaultRent()
	Cmd.Flags().Uint64Var(&lamportsPerByteYear, "lamports-per-byte-year", defaults.LamportsPerByteYear, "Rent rate")
	Cmd.Flags().Float64Var(&exemptionThreshold, "exemption-threshold", defaults.ExemptionThreshold, "Years of rent an exempt account must hold")
}

func run(c *cobra.Command, args []string) error {
	space, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid space %q: %w", args[0], err)
	}

	r := rent.DefaultRent()
	r.LamportsPerByteYear = lamportsPerByteYear
	r.ExemptionThreshold = exemptionThreshold

	_, err = fmt.Fprintln(c.OutOrStdout(), r.MinimumBalance(space))
	return err
}
