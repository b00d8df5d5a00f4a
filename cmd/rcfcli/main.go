// Command rcfcli drives the random cut forest core from the command line
// against CSV or pcap input.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hed1ad/rcforest/pkg/detectors/rcfdetector"
	"github.com/hed1ad/rcforest/pkg/io/csv"
	"github.com/hed1ad/rcforest/pkg/io/pcap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rcfcli",
		Short: "Stream CSV or pcap input through a random cut forest",
	}
	root.AddCommand(newScoreCmd())
	return root
}

func newScoreCmd() *cobra.Command {
	var (
		input         string
		format        string
		iface         string
		snaplen       int
		header        bool
		trees         int
		sampleSize    int
		shingleSize   int
		seed          int64
		contamination float64
		forecast      bool
		errorHorizon  int
		forecastLead  int
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Fit on the first rows of input, then stream-score the rest",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readAll(input, format, iface, snaplen, header)
			if err != nil {
				return err
			}
			if len(data) < 2 {
				return fmt.Errorf("rcfcli: need at least 2 rows, got %d", len(data))
			}

			split := len(data) / 2
			if split < 1 {
				split = 1
			}

			opts := []rcfdetector.Option{
				rcfdetector.WithTrees(trees),
				rcfdetector.WithSampleSize(sampleSize),
				rcfdetector.WithShingleSize(shingleSize),
				rcfdetector.WithSeed(seed),
				rcfdetector.WithContamination(contamination),
			}
			if forecast {
				opts = append(opts, rcfdetector.WithForecasting(errorHorizon, forecastLead))
			}
			det := rcfdetector.New(opts...)

			if err := det.Fit(data[:split]); err != nil {
				return err
			}

			scores, err := det.Predict(data[split:])
			if err != nil {
				return err
			}

			threshold := det.Threshold()
			anomalies := 0
			for i, score := range scores {
				flag := ""
				if score >= threshold {
					anomalies++
					flag = " [ANOMALY]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "row %4d: grade=%.4f%s\n", split+i, score, flag)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d/%d flagged (threshold %.2f)\n", anomalies, len(scores), threshold)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "path to a CSV file, or a pcap file when --format=pcap")
	cmd.Flags().StringVar(&format, "format", "csv", "input format: csv or pcap")
	cmd.Flags().StringVar(&iface, "iface", "", "live capture interface; when set, input/format are ignored")
	cmd.Flags().IntVar(&snaplen, "snaplen", 65535, "live capture snapshot length")
	cmd.Flags().BoolVar(&header, "header", true, "CSV input has a header row")
	cmd.Flags().IntVar(&trees, "trees", 50, "number of trees")
	cmd.Flags().IntVar(&sampleSize, "sample-size", 256, "reservoir sample size per tree")
	cmd.Flags().IntVar(&shingleSize, "shingle-size", 1, "number of frames shingled together")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().Float64Var(&contamination, "contamination", 0.1, "expected anomaly proportion, used to pick a threshold")
	cmd.Flags().BoolVar(&forecast, "forecast", false, "enable the error handler / conditional-forecast suppression path")
	cmd.Flags().IntVar(&errorHorizon, "error-horizon", 64, "past actuals retained per lead time when forecasting is enabled")
	cmd.Flags().IntVar(&forecastLead, "forecast-lead", 4, "forecast horizon when forecasting is enabled")

	return cmd
}

func readAll(input, format, iface string, snaplen int, header bool) ([][]float64, error) {
	if iface != "" {
		r, err := pcap.NewLiveReader(iface, int32(snaplen), true, 0)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.Read()
	}
	if input == "" {
		return nil, fmt.Errorf("rcfcli: --input or --iface is required")
	}

	switch format {
	case "pcap":
		r, err := pcap.NewFileReader(input)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.Read()
	case "csv":
		r, err := csv.NewReader(input, csv.WithHeader(header))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.Read()
	default:
		return nil, fmt.Errorf("rcfcli: unknown format %q", format)
	}
}
