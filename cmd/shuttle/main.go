// Package main provides the shuttle CLI: probe the GPU and run the
// element-wise smoke dispatch end to end.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfluke/shuttle/compute"
	"github.com/openfluke/shuttle/detector"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "shuttle",
		Short: "Shuttle - WebGPU compute dispatch for 4D tensor operations",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("shuttle v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "probe",
		Short: "Print the adapter/device capability report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			js, err := detector.DetectJSON()
			if err != nil {
				return err
			}
			fmt.Println(js)
			return nil
		},
	})

	smokeCmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run a 16-element float32 add dispatch and verify the result",
		RunE:  runSmoke,
	}
	smokeCmd.Flags().String("adapter", "", "Substring filter for adapter selection")
	smokeCmd.Flags().Duration("timeout", 2*time.Second, "Wait timeout per dispatch")
	rootCmd.AddCommand(smokeCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSmoke(cmd *cobra.Command, args []string) error {
	filter, _ := cmd.Flags().GetString("adapter")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	sess, err := compute.NewSession(compute.SessionOptions{
		AppName:       "shuttle-smoke",
		EngineName:    "shuttle",
		AdapterFilter: filter,
		WaitTimeout:   timeout,
	})
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer sess.Close()

	shape := compute.NewShape(2, 2, 2, 2)
	n := int(shape.Elems())
	a := make([]float32, n)
	b := make([]float32, n)
	for i := range a {
		a[i] = 1.0
		b[i] = 2.0
	}

	start := time.Now()
	handle, err := sess.DispatchFloat32(compute.OpAdd, shape, a, b)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	defer handle.Release()

	if err := handle.Wait(); err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	out, err := handle.ReadFloat32()
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	for i, v := range out {
		if v != 3.0 {
			return fmt.Errorf("element %d: expected 3.0, got %v", i, v)
		}
	}
	log.Info().
		Int("elements", n).
		Str("shape", shape.String()).
		Dur("elapsed", time.Since(start)).
		Msg("smoke dispatch verified: 1.0 + 2.0 = 3.0 across all elements")
	return nil
}
