package commands

import (
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/mash-protocol/webchannel-go/pkg/log"
)

// RunFilter copies the events of path matching filter into output and
// reports the number written to w.
func RunFilter(path, output string, filter log.Filter, w io.Writer) (err error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer func() { err = multierr.Append(err, logger.Close()) }()

	count := 0
	if err := reader.Each(func(event log.Event) error {
		logger.Log(event)
		count++
		return nil
	}); err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}
