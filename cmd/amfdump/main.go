// amfdump decodes a raw AMF payload or a .sol container file and prints it
// as JSON, YAML or CBOR diagnostic notation.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/mtrqq/amf/pkg/amf"
	"github.com/mtrqq/amf/pkg/sol"
	"github.com/mtrqq/amf/pkg/value"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatCBOR = "cbor"
)

var errUnknownFormat = errors.New("unknown output format")

type options struct {
	format   string
	version  uint16
	sol      bool
	lenient  bool
	maxDepth int
	logLevel string
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Error().Err(err).Msg("amfdump failed")
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("amfdump", pflag.ContinueOnError)
	flagSet.StringVar(&opts.format, "format", formatJSON, "output format: json, yaml or cbor")
	flagSet.Uint16Var(&opts.version, "version", uint16(amf.AMF3), "codec version of a raw payload: 0 or 3")
	flagSet.BoolVar(&opts.sol, "sol", false, "treat the input as a .sol container file")
	flagSet.BoolVar(&opts.lenient, "lenient", false, "decode unknown markers as undefined")
	flagSet.IntVar(&opts.maxDepth, "max-depth", 0, "maximum nesting depth, 0 keeps the codec default")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: amfdump [flags] [path]\n\nReads stdin when path is empty or \"-\".\n\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if err := setupLogging(opts.logLevel); err != nil {
		return err
	}

	path := flagSet.Arg(0)
	data, err := readInput(path, stdin)
	if err != nil {
		return err
	}

	decoded, err := decode(data, opts)
	if err != nil {
		return err
	}

	out, err := render(value.Plain(decoded), opts.format)
	if err != nil {
		return err
	}

	_, err = stdout.Write(out)
	return err
}

func setupLogging(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return data, nil
}

func decode(data []byte, opts options) (any, error) {
	codec := amf.New(amf.Config{
		Lenient:  opts.lenient,
		MaxDepth: opts.maxDepth,
	})

	if !opts.sol {
		version := amf.Version(opts.version)
		log.Debug().Stringer("version", version).Int("size", len(data)).Msg("decoding raw payload")
		return codec.Deserialize(data, version)
	}

	file, err := sol.Parse(data, codec.Registry())
	if err != nil {
		return nil, err
	}
	if file.Document == nil {
		return nil, sol.ErrNoDocument
	}

	log.Debug().
		Str("filename", file.Document.Filename).
		Stringer("version", file.Document.Version).
		Int("entries", file.Document.Body.Len()).
		Msg("decoded sol document")

	return map[string]any{
		"filename": file.Document.Filename,
		"version":  int(file.Document.Version),
		"path":     file.Path,
		"body":     file.Document.Body,
	}, nil
}

func render(v any, format string) ([]byte, error) {
	switch format {
	case formatJSON:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("unable to render json: %w", err)
		}
		return append(out, '\n'), nil
	case formatYAML:
		out, err := yaml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("unable to render yaml: %w", err)
		}
		return out, nil
	case formatCBOR:
		encoded, err := cbor.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("unable to render cbor: %w", err)
		}
		notation, err := cbor.Diagnose(encoded)
		if err != nil {
			return nil, fmt.Errorf("unable to render cbor: %w", err)
		}
		return []byte(notation + "\n"), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}
