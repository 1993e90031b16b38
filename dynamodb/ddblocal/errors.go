package ddblocal

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// validationError mirrors the untyped ValidationException DynamoDB returns.
func validationError(format string, args ...any) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: fmt.Sprintf(format, args...),
		Fault:   smithy.FaultClient,
	}
}

func resourceNotFound(name string) error {
	return &types.ResourceNotFoundException{Message: aws.String("requested resource not found: table: " + name)}
}

func conditionFailed(old map[string]types.AttributeValue, rv types.ReturnValuesOnConditionCheckFailure) error {
	err := &types.ConditionalCheckFailedException{Message: aws.String("the conditional request failed")}
	if rv == types.ReturnValuesOnConditionCheckFailureAllOld {
		err.Item = old
	}
	return err
}

// IsValidation reports whether err is a ValidationException.
func IsValidation(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException"
}
