package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PhantomInTheWire/gridsplit/apps/gridsplit/commands"
	"github.com/PhantomInTheWire/gridsplit/pkg/logger"
)

var (
	configFlag string
	jsonFlag   bool
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "gridsplit",
	Short: "Cut an image into a 2x2 grid of framed tiles",
	Long: `gridsplit cuts a main image into four quadrants and stacks each one
between a header and a footer strip, producing the four tiles of a
grid illusion.

Examples:
  gridsplit local --out ./out main.png h-tl.png h-tr.png h-bl.png h-br.png f-tl.png f-tr.png f-bl.png f-br.png
  gridsplit split --out ./quarters photo.jpg
  gridsplit submit --dispatch main.png header-*.png footer-*.png
  gridsplit run --job 0b5c7a52-0d8e-4c21-9f5e-6f1d2b3a4c5d
  gridsplit status`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return commands.Setup(configFlag, jsonFlag, debugFlag)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to gridsplit.toml")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json-log", false, "Emit JSON logs")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.LocalCmd)
	rootCmd.AddCommand(commands.SplitCmd)
	rootCmd.AddCommand(commands.StitchCmd)
	rootCmd.AddCommand(commands.SubmitCmd)
	rootCmd.AddCommand(commands.DispatchCmd)
	rootCmd.AddCommand(commands.StatusCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
