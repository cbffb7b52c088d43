// sml_analyze decodes captured SML data offline: a raw serial capture, a frame
// downloaded from the reader's /sml endpoint, or a hex string.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/NotCoffee418/sml_smart_meter/pkg/interpreter"
	"github.com/NotCoffee418/sml_smart_meter/pkg/smlframe"
	"github.com/NotCoffee418/sml_smart_meter/pkg/smltlv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "sml_analyze [hex]",
		Short: "Decode SML meter transmissions",
		Long:  "sml_analyze prints every element of an SML transmission and the meter reading extracted from it.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadInput(args)
			if err != nil {
				return err
			}
			_, err = analyze(data, verifyCRC, cmd.OutOrStdout())
			return err
		},
	}

	inputFile string
	verifyCRC bool
)

func init() {
	rootCmd.Flags().StringVarP(&inputFile, "file", "f", "", "binary capture or frame to decode")
	rootCmd.Flags().BoolVar(&verifyCRC, "verify-crc", false, "drop transmissions whose trailer checksum does not match")
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logrus.Fatal(err)
	}
}

func loadInput(args []string) ([]byte, error) {
	switch {
	case inputFile != "" && len(args) > 0:
		return nil, fmt.Errorf("pass either a hex string or --file, not both")
	case inputFile != "":
		return os.ReadFile(inputFile)
	case len(args) == 1:
		return parseHex(args[0])
	}
	return nil, fmt.Errorf("nothing to decode, pass a hex string or --file")
}

// parseHex accepts hex with any whitespace, colons or dashes between bytes.
func parseHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':', '-':
			return -1
		}
		return r
	}, s)
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return data, nil
}

// analyze decodes every frame in data and returns how many were found. Data
// without a start sequence is decoded as a single bare frame.
func analyze(data []byte, verifyCRC bool, out io.Writer) (int, error) {
	trace := func(e smltlv.Element) {
		fmt.Fprintln(out, e.String())
	}

	if !smlframe.HasStartSequence(data) {
		fmt.Fprintf(out, "bare frame, %d bytes\n", len(data))
		printFrame(data, trace, out)
		return 1, nil
	}

	extractor, err := smlframe.NewExtractor(smlframe.Options{
		Capacity:       smlframe.MaxCapacity,
		VerifyChecksum: verifyCRC,
	})
	if err != nil {
		return 0, err
	}

	frames := 0
	for _, b := range data {
		switch extractor.Feed(b) {
		case smlframe.EventFrameReady:
			frames++
			frame := extractor.Frame()
			fmt.Fprintf(out, "frame %d, %d bytes\n", frames, len(frame))
			printFrame(frame, trace, out)
		case smlframe.EventChecksumMismatch:
			fmt.Fprintln(out, "transmission dropped: checksum mismatch")
		}
	}
	if frames == 0 {
		return 0, fmt.Errorf("no complete transmission found")
	}
	return frames, nil
}

func printFrame(frame []byte, trace smltlv.Visitor, out io.Writer) {
	reading, err := interpreter.Interpret(frame, trace)
	if err != nil {
		fmt.Fprintf(out, "decoding stopped: %v\n", err)
	}
	status := "incomplete"
	if reading.Complete() {
		status = "complete"
	}
	fmt.Fprintf(out, "reading (%s): %s\n\n", status, reading)
}
