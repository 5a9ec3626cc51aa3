// Command webchannel-log analyzes protocol logs written by webchannel-demo.
//
// Usage:
//
//	webchannel-log view <file> [--transport ID] [--type TYPE] [--object ID] [--layer L] ...
//	webchannel-log filter <file> -o <out> [filter flags]
//	webchannel-log export <file> [--format jsonl|csv] [-o <out>]
//	webchannel-log stats <file>
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mash-protocol/webchannel-go/cmd/webchannel-log/commands"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "webchannel-log",
		Short:         "Analyze WebChannel protocol logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(viewCmd(), filterCmd(), exportCmd(), statsCmd())
	return root
}

func addFilterFlags(cmd *cobra.Command, f *commands.FilterFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.Transport, "transport", "", "filter by transport ID")
	flags.StringVar(&f.Object, "object", "", "filter by target object id")
	flags.StringVar(&f.MessageType, "type", "", "filter by message type (e.g. invoke_method)")
	flags.StringVar(&f.TimeStart, "time-start", "", "events at or after this time (RFC3339)")
	flags.StringVar(&f.TimeEnd, "time-end", "", "events before this time (RFC3339)")
	flags.StringVar(&f.Layer, "layer", "", "filter by layer: transport, wire, channel")
	flags.StringVar(&f.Direction, "direction", "", "filter by direction: in, out")
	flags.StringVar(&f.Category, "category", "", "filter by category: message, state, error")
}

func viewCmd() *cobra.Command {
	var flags commands.FilterFlags
	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Display log events in human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.Build()
			if err != nil {
				return err
			}
			return commands.RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &flags)
	return cmd
}

func filterCmd() *cobra.Command {
	var (
		flags  commands.FilterFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "filter <file>",
		Short: "Write matching events to a new log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.Build()
			if err != nil {
				return err
			}
			return commands.RunFilter(args[0], output, filter, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &flags)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func exportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export events as JSONL or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunExport(args[0], format, output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "output format: jsonl, csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Print statistics about a log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunStats(args[0], cmd.OutOrStdout())
		},
	}
}
