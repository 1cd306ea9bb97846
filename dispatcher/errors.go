package dispatcher

import (
	"errors"
	"fmt"

	"github.com/coderxlab/featurestream/kafka"
	"github.com/coderxlab/featurestream/logger"
)

// PartitionHaltedError is reported when a partition worker stops admitting
// records. Offsets past Offset are neither delivered nor committed by this
// member; the next owner redelivers them.
type PartitionHaltedError struct {
	Partition kafka.TopicPartition
	Offset    int64
	Err       error
}

func (e *PartitionHaltedError) Error() string {
	return fmt.Sprintf("partition %s halted at offset %d: %v", e.Partition, e.Offset, e.Err)
}

func (e *PartitionHaltedError) Unwrap() error {
	return e.Err
}

func AsPartitionHalted(err error) (*PartitionHaltedError, bool) {
	var e *PartitionHaltedError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// emitError emits an error to the provided channel without blocking
func emitError(errCh chan<- error, l logger.Logger, err error) {
	select {
	case errCh <- err:
	default:
		l.Error("Error channel full, dropping error", "error", err)
	}
}
