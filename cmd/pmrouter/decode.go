package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pmrouter/internal/config"
	"pmrouter/internal/eventlog"
	"pmrouter/internal/model"
	"pmrouter/internal/storage"
)

const decodeFlushSize = 500

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Out == "" || cfg.Errors == "" {
		return fmt.Errorf("out and errors paths are required")
	}

	var emitter common.Address
	if cfg.Emitter != "" {
		if emitter, err = config.ParseAddress(cfg.Emitter); err != nil {
			return err
		}
	}
	codec, err := eventlog.NewCodec(emitter)
	if err != nil {
		return err
	}

	out := storage.NewJsonlStorage(cfg.Out)
	errOut := storage.NewJsonlStorage(cfg.Errors)
	for _, s := range []*storage.JsonlStorage{out, errOut} {
		if err := s.Truncate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.String("emitter", cfg.Emitter),
	)

	d := &logDecoder{codec: codec, out: out, errOut: errOut}
	if cfg.Emitter != "" {
		d.emitter = emitter.Hex()
	}
	err = storage.ScanJSONL(ctx, cfg.In, d.handle)
	if flushErr := d.flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", d.total),
		zap.Int("decoded", d.decoded),
		zap.Int("skipped", d.skipped),
		zap.Int("failed", d.failed),
	)
	return nil
}

// logDecoder turns log records back into engine events, buffering writes.
type logDecoder struct {
	codec   *eventlog.Codec
	emitter string
	out     *storage.JsonlStorage
	errOut  *storage.JsonlStorage

	events []model.Event
	errs   []model.DecodeError

	total, decoded, skipped, failed int
}

func (d *logDecoder) handle(line int, record model.LogRecord, decodeErr error) error {
	d.total++
	switch {
	case decodeErr != nil:
		d.fail(model.DecodeError{Error: fmt.Sprintf("line %d: %v", line, decodeErr)})
	case len(record.Topics) == 0:
		d.fail(decodeErrorFromRecord(record, fmt.Errorf("missing topic0")))
	case d.emitter != "" && !strings.EqualFold(record.Address, d.emitter):
		d.skipped++
	case !d.codec.CanDecode(record.Topics[0]):
		d.skipped++
	default:
		event, err := d.codec.Decode(record)
		if err != nil {
			d.fail(decodeErrorFromRecord(record, err))
			break
		}
		d.events = append(d.events, event)
		d.decoded++
	}

	if len(d.events)+len(d.errs) < decodeFlushSize {
		return nil
	}
	return d.flush()
}

func (d *logDecoder) fail(e model.DecodeError) {
	d.failed++
	d.errs = append(d.errs, e)
}

func (d *logDecoder) flush() error {
	if err := d.out.PutEvents(context.Background(), d.events); err != nil {
		return err
	}
	if err := d.errOut.PutDecodeErrors(d.errs); err != nil {
		return err
	}
	d.events, d.errs = d.events[:0], d.errs[:0]
	return nil
}

func decodeErrorFromRecord(record model.LogRecord, err error) model.DecodeError {
	topic0 := ""
	if len(record.Topics) > 0 {
		topic0 = record.Topics[0]
	}
	return model.DecodeError{
		Seq:         record.Seq,
		Address:     record.Address,
		Topic0:      topic0,
		EventID:     record.EventID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		Error:       err.Error(),
	}
}
