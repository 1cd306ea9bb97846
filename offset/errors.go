package offset

import (
	"errors"
	"fmt"

	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/kafka"
)

// ContractViolationError reports an offset advanced out of order. The
// partition worker that sees it must stop.
type ContractViolationError struct {
	Partition kafka.TopicPartition
	Offset    int64
	Current   int64
	Op        string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf(
		"offset contract violation on %s: %s(%d) behind current %d",
		e.Partition, e.Op, e.Offset, e.Current,
	)
}

func (e *ContractViolationError) Kind() errorhandler.Kind {
	return errorhandler.KindContractViolation
}

func AsContractViolation(err error) (*ContractViolationError, bool) {
	var cv *ContractViolationError
	if errors.As(err, &cv) {
		return cv, true
	}
	return nil, false
}
