package ddbmw

import (
	"context"
	"errors"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbbatch"
)

var (
	isThrottle        = ddbbatch.IsThrottle
	isConditionFailed = ddbbatch.IsConditionFailed
)

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// expected reports errors that say nothing about the health of the
// service: throttles, failed conditions and canceled contexts.
func expected(err error) bool {
	return err == nil || isThrottle(err) || isConditionFailed(err) || isCanceled(err)
}
