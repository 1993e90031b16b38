package ddbbatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrPreconditionFailed reports that an existence or value guard did
	// not hold. It is never retried.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrTransactionCanceled reports an aborted transaction. Nothing was applied.
	ErrTransactionCanceled = errors.New("transaction canceled")
	// ErrRetriesExhausted is returned when a finite backoff runs out.
	ErrRetriesExhausted = errors.New("retries exhausted")

	ErrNotBatchable          = errors.New("only put and delete items can be batch written")
	ErrTooManyItems          = errors.New("too many transaction items")
	ErrConflictingReadParams = errors.New("conflicting read parameters for one table")
	ErrInvalidItem           = errors.New("invalid batch item")
)

var throttleCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"ThrottlingException":                    true,
}

// IsThrottle reports whether err is a transient capacity error that is
// worth retrying after a backoff delay.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}
	var pte *types.ProvisionedThroughputExceededException
	if errors.As(err, &pte) {
		return true
	}
	var rle *types.RequestLimitExceeded
	if errors.As(err, &rle) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return throttleCodes[apiErr.ErrorCode()]
	}
	return false
}

// IsConditionFailed reports whether err is a conditional check failure,
// either on a single item or inside a canceled transaction.
func IsConditionFailed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPreconditionFailed) {
		return true
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

// Classify maps a single-item write error onto ErrPreconditionFailed when
// the condition did not hold and wraps everything else verbatim.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConditionFailed(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrPreconditionFailed, err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

// TransactionError carries the per-item cancellation reasons of an aborted
// transaction.
type TransactionError struct {
	Reasons []string
	Err     error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction canceled [%s]: %v", strings.Join(e.Reasons, ", "), e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

func (e *TransactionError) Is(target error) bool {
	switch target {
	case ErrTransactionCanceled:
		return true
	case ErrPreconditionFailed:
		for _, r := range e.Reasons {
			if r == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func transactionError(err error) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return err
	}
	reasons := make([]string, len(tce.CancellationReasons))
	for i, r := range tce.CancellationReasons {
		reasons[i] = aws.ToString(r.Code)
		if reasons[i] == "" {
			reasons[i] = "None"
		}
	}
	return &TransactionError{Reasons: reasons, Err: err}
}
