// Command linalg-detect prints a JSON report of the WebGPU adapter linalg
// would run on, including limits and workgroup recommendations.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/openfluke/linalg/calculator"
	"github.com/openfluke/linalg/detector"
	"github.com/rs/zerolog"
)

func main() {
	bind := flag.Bool("bind", false, "acquire the device the way calculator.New does instead of probing the default adapter")
	adapter := flag.String("adapter", "", "adapter or vendor name to prefer with -bind")
	verbose := flag.Bool("v", false, "log adapter enumeration to stderr")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*verbose {
		log = log.Level(zerolog.WarnLevel)
	}

	if !*bind {
		out, err := detector.DetectJSON()
		if err != nil {
			log.Error().Err(err).Msg("detect failed")
			os.Exit(1)
		}
		fmt.Println(out)
		return
	}

	rep, err := bound(*adapter, log)
	if err != nil {
		log.Error().Err(err).Msg("bind device")
		os.Exit(1)
	}
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("encode report")
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func bound(adapter string, log zerolog.Logger) (*detector.Report, error) {
	opts := []calculator.Option{calculator.WithLogger(log)}
	if adapter != "" {
		opts = append(opts, calculator.WithAdapter(adapter))
	}
	c, err := calculator.New(opts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Report(), nil
}
