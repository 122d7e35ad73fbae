package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		klog.Flush()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "synthgen",
		Short: "Generate synthetic multi-turn identity conversations",
		Long: `synthgen renders a persona prompt for every task, asks an OpenAI-compatible
chat completion service for a structured conversation, validates it and
appends accepted conversations to a JSONL file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	opts.bindFlags(cmd)

	// klog 的 -v 等参数挂到 cobra 上
	goflags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(goflags)
	cmd.PersistentFlags().AddGoFlagSet(goflags)

	cmd.AddCommand(newConfigCommand(), newRunsCommand())
	return cmd
}
