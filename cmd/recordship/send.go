package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/recordreader"
	"github.com/bft-labs/recordship/internal/sink"
)

// errDeclined reports that every peer was penalized.
var errDeclined = errors.New("send declined: all destination nodes are penalized")

func newSendCommand(c *cli) *cobra.Command {
	var (
		input       string
		inputFormat string
		schemaName  string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one record file as a single transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, _, err := c.load(cmd)
			if err != nil {
				return err
			}
			sc, err := cfg.SinkConfig()
			if err != nil {
				return err
			}

			format := strings.ToLower(inputFormat)
			if format == "" {
				f, ok := recordreader.FormatFromPath(input)
				if !ok {
					return fmt.Errorf("cannot infer input format of %q; set --input-format", input)
				}
				format = f
			}

			var r io.Reader = os.Stdin
			name := "stdin"
			if input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
				name = filepath.Base(input)
			}
			if schemaName == "" {
				schemaName = strings.TrimSuffix(name, filepath.Ext(name))
			}

			rs, err := recordreader.Open(format, r, schemaName)
			if err != nil {
				return err
			}

			ctx, cancel := c.signalContext()
			defer cancel()

			session, err := sink.Activate(ctx, sc, sink.WithLogger(c.adapter()))
			if err != nil {
				return err
			}
			defer session.Close()

			attrs := domain.Attributes{
				domain.AttrFilename: name,
				domain.AttrUUID:     uuid.NewString(),
			}
			res, err := session.Send(ctx, rs, attrs, cfg.SendZeroResults)
			if err != nil {
				return err
			}
			if res == nil {
				return errDeclined
			}

			c.log.Info().
				Int("records", res.RecordCount).
				Interface("attributes", attrs).
				Msg("record set sent")
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "-", "record file to send (- for stdin)")
	cmd.Flags().StringVar(&inputFormat, "input-format", "", "input format (csv, jsonl); inferred from the file extension when empty")
	cmd.Flags().StringVar(&schemaName, "schema-name", "", "schema name attached to the records (defaults to the file name)")
	return cmd
}
