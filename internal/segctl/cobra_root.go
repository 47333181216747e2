package segctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"segmentd/pkg/types"
)

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// BuildRootCmd constructs the segctl command tree.
func BuildRootCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	root := &cobra.Command{
		Use:           "segctl",
		Short:         "Operate and smoke-test a running segmentd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", envStr("SEGMENTD_ADDR", "http://127.0.0.1:8080"), "segmentd base URL (defaults SEGMENTD_ADDR)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP client timeout")

	client := func() *Client { return NewClient(addr, timeout) }

	statusCmd := &cobra.Command{Use: "status", Short: "Print scheduler and queue status", RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client().Status(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, st)
	}}

	modelsCmd := &cobra.Command{Use: "models", Short: "List registered models", RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := client().Models(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, ms)
	}}

	metricsCmd := &cobra.Command{Use: "metrics", Short: "Print the JSON metrics snapshot", RunE: func(cmd *cobra.Command, args []string) error {
		mt, err := client().Metrics(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, mt)
	}}

	var (
		model     string
		threshold float64
		timeoutMs int
		inputPath string
	)
	segmentCmd := &cobra.Command{
		Use:     "segment",
		Short:   "Run one segmentation request",
		Example: "  segctl segment --model hrnet --input tensor.json\n  cat tensor.json | segctl segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readTensor(inputPath)
			if err != nil {
				return err
			}
			req := types.SegmentRequest{
				Model:     model,
				Input:     input,
				Threshold: threshold,
				TimeoutMs: timeoutMs,
			}
			resp, err := client().Segment(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	segmentCmd.Flags().StringVar(&model, "model", "", "Model name (empty uses server default)")
	segmentCmd.Flags().Float64Var(&threshold, "threshold", 0, "Mask threshold (0 uses server default)")
	segmentCmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "Per-request timeout in milliseconds")
	segmentCmd.Flags().StringVar(&inputPath, "input", "-", "Input tensor JSON file, - for stdin")

	smokeCmd := &cobra.Command{
		Use:   "smoke",
		Short: "Send a zero tensor through each model as a health probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			ms, err := c.Models(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range ms.Models {
				if len(m.InputShape) == 0 {
					continue
				}
				elems := 1
				for _, d := range m.InputShape {
					elems *= d
				}
				req := types.SegmentRequest{
					Model: m.Name,
					Input: types.Tensor{Shape: m.InputShape, Data: make([]float32, elems)},
				}
				start := time.Now()
				if _, err := c.Segment(cmd.Context(), req); err != nil {
					return fmt.Errorf("model %s: %w", m.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s ok (%s)\n", m.Name, time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})

	root.AddCommand(statusCmd, modelsCmd, metricsCmd, segmentCmd, smokeCmd, completionCmd)
	return root
}

// Execute runs the command tree with signal-aware context.
func Execute() int {
	root := BuildRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func readTensor(path string) (types.Tensor, error) {
	var t types.Tensor
	var data []byte
	var err error
	if path == "-" || path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tensor: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
