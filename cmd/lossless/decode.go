package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"losslessMarket/internal/config"
	"losslessMarket/internal/contracts"
	"losslessMarket/internal/model"
	"losslessMarket/internal/storage"
)

const decodeBatchSize = 500

func decodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Re-decode a raw logs JSONL file into typed market events",
		Args:  cobra.NoArgs,
		RunE:  runDecode,
	}
	cmd.Flags().String("in", "", "input raw logs JSONL")
	cmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	return cmd
}

type decodeStats struct {
	total, decoded, skipped, failed int
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadDecode(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	switch {
	case cfg.In == "":
		return fmt.Errorf("input path is required")
	case cfg.Out == "":
		return fmt.Errorf("output path is required")
	case cfg.Errors == "":
		return fmt.Errorf("errors path is required")
	}

	decoder, err := contracts.NewEventDecoder()
	if err != nil {
		return err
	}
	out := storage.NewJsonlStorage(cfg.Out)
	failures := storage.NewJsonlStorage(cfg.Errors)
	for _, s := range []*storage.JsonlStorage{out, failures} {
		if err := s.Reset(); err != nil {
			return err
		}
	}

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
	)

	ctx := cmd.Context()
	var stats decodeStats
	var batch []model.TypedEvent
	var failed []interface{}
	flush := func() error {
		if err := out.PutEventBatch(ctx, batch); err != nil {
			return err
		}
		if err := failures.Append(failed...); err != nil {
			return err
		}
		batch, failed = batch[:0], failed[:0]
		return nil
	}

	err = storage.ScanLines(cfg.In, func(lineNo int, line []byte) error {
		stats.total++
		event, failure, ok := decodeLine(decoder, lineNo, line)
		switch {
		case failure != nil:
			stats.failed++
			failed = append(failed, *failure)
		case !ok:
			stats.skipped++
		default:
			stats.decoded++
			batch = append(batch, event)
		}
		if len(batch)+len(failed) >= decodeBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", stats.total),
		zap.Int("decoded", stats.decoded),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
	)
	return nil
}

// decodeLine returns ok=false with a nil failure for logs that are not
// market or factory events.
func decodeLine(decoder *contracts.EventDecoder, lineNo int, line []byte) (model.TypedEvent, *model.DecodeError, bool) {
	var record model.LogRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return model.TypedEvent{}, &model.DecodeError{Line: lineNo, Error: err.Error()}, false
	}
	fail := func(err error) (model.TypedEvent, *model.DecodeError, bool) {
		failure := record.DecodeFailure(err)
		failure.Line = lineNo
		return model.TypedEvent{}, &failure, false
	}
	if record.Topic0() == "" {
		return fail(fmt.Errorf("missing topic0"))
	}
	if !decoder.CanDecode(record.Topic0()) {
		return model.TypedEvent{}, nil, false
	}
	event, err := decoder.Decode(record)
	if err != nil {
		return fail(err)
	}
	return *event, nil, true
}
