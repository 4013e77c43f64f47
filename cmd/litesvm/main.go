package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.firedancer.io/litesvm/cmd/litesvm/rent"
	"go.firedancer.io/litesvm/cmd/litesvm/run"
	"k8s.io/klog/v2"
)

var cmd = cobra.Command{
	Use:   "litesvm",
	Short: "In-process Solana ledger runtime",
}

func init() {
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(
		&rent.Cmd,
		&run.Cmd,
	)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	cobra.CheckErr(cmd.ExecuteContext(ctx))
}
