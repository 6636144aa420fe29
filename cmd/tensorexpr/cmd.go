// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/born-ml/tensorexpr/backend/webgpu"
	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	"github.com/born-ml/tensorexpr/internal/selector"
	"github.com/born-ml/tensorexpr/tensor"
)

const version = "v0.1.0"

// session holds what the persistent flags set up for one command.
type session struct {
	logLevel string
	device   string

	teardown []func() error
}

func (s *session) setup(cmd *cobra.Command, _ []string) error {
	if s.logLevel != "off" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(s.logLevel)); err != nil {
			return errors.Wrapf(err, "log level %q", s.logLevel)
		}
		tensor.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		s.onClose(func() error { tensor.SetLogger(nil); return nil })
	}

	switch s.device {
	case "none":
		return nil
	case "emulator":
		emu := gpu.NewEmulator()
		prev := gpu.Register(emu)
		s.onClose(func() error {
			gpu.Register(prev)
			return emu.Close()
		})
	case "webgpu":
		closeDevice, err := webgpu.Register()
		if err != nil {
			return err
		}
		s.onClose(closeDevice)
	default:
		return errors.Errorf("unknown device %q, want none, emulator or webgpu", s.device)
	}

	restore := tensor.UpdateFeatures(func(f *tensor.Features) { f.GPU = true })
	s.onClose(func() error { restore(); return nil })
	return nil
}

func (s *session) onClose(fn func() error) {
	s.teardown = append(s.teardown, fn)
}

// close runs the teardown in reverse order.
func (s *session) close() error {
	var err error
	for i := len(s.teardown) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.teardown[i]())
	}
	s.teardown = nil
	return err
}

// run executes the command line in args. Devices and loggers installed by
// the persistent flags are removed even when the command fails.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	s := &session{}
	rootCmd := newCLI(s)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return multierr.Append(rootCmd.ExecuteContext(ctx), s.close())
}

func newCLI(s *session) *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "tensorexpr",
		Short:         "Inspect the tensor expression engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: s.setup,
	}

	rootCmd.PersistentFlags().StringVar(&s.logLevel, "log-level", "off", "Engine log level: debug, info, warn, error or off")
	rootCmd.PersistentFlags().StringVar(&s.device, "device", "none", "Compute device: none, emulator or webgpu")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newSelectCmd(),
		newBenchCmd(),
	)
	return rootCmd
}

// renderTable writes rows in the borderless layout shared by every command.
func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
}

func joinImpls(impls []selector.Impl) string {
	names := make([]string, len(impls))
	for i, impl := range impls {
		names[i] = impl.String()
	}
	return strings.Join(names, ",")
}
