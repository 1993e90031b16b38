// Package ddbexpr turns semantic field references and patch objects into
// DynamoDB placeholder expressions.
//
// All compilation goes through a [Compiler] bound to one [Params] value. The
// compiler allocates name and value aliases from counters that continue past
// whatever the params already hold, so any number of passes (projection,
// update, condition, filter) can be layered onto one request without
// collisions. Call [Cleanup] last to drop aliases no expression references.
package ddbexpr

import (
	"maps"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Params is the accumulating request record shared by every compiler stage
// and converted to a concrete wire input at the end.
type Params struct {
	TableName *string
	IndexName *string
	Key       map[string]types.AttributeValue

	KeyConditionExpression *string
	ConditionExpression    *string
	UpdateExpression       *string
	ProjectionExpression   *string
	FilterExpression       *string

	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue

	Select            types.Select
	ConsistentRead    *bool
	ScanIndexForward  *bool
	ExclusiveStartKey map[string]types.AttributeValue
	Limit             *int32
}

// IsQuery reports whether the params describe a query rather than a scan.
func (p *Params) IsQuery() bool {
	return p.KeyConditionExpression != nil && *p.KeyConditionExpression != ""
}

// HasUpdate reports whether an update compilation produced any action.
// When false the caller must skip the wire call.
func (p *Params) HasUpdate() bool {
	return p.UpdateExpression != nil && *p.UpdateExpression != ""
}

// Clone returns a copy of p whose maps can be mutated independently.
// Attribute values themselves are shared; they are treated as immutable.
func Clone(p *Params) *Params {
	if p == nil {
		return &Params{}
	}
	c := *p
	c.Key = maps.Clone(p.Key)
	c.ExpressionAttributeNames = maps.Clone(p.ExpressionAttributeNames)
	c.ExpressionAttributeValues = maps.Clone(p.ExpressionAttributeValues)
	c.ExclusiveStartKey = maps.Clone(p.ExclusiveStartKey)
	return &c
}

// Combine overlays b onto a clone of a. Scalar fields set in b win; name and
// value maps are merged.
func Combine(a, b *Params) *Params {
	c := Clone(a)
	if b == nil {
		return c
	}
	setStr := func(dst **string, src *string) {
		if src != nil {
			*dst = src
		}
	}
	setStr(&c.TableName, b.TableName)
	setStr(&c.IndexName, b.IndexName)
	setStr(&c.KeyConditionExpression, b.KeyConditionExpression)
	setStr(&c.ConditionExpression, b.ConditionExpression)
	setStr(&c.UpdateExpression, b.UpdateExpression)
	setStr(&c.ProjectionExpression, b.ProjectionExpression)
	setStr(&c.FilterExpression, b.FilterExpression)
	if b.Key != nil {
		c.Key = maps.Clone(b.Key)
	}
	if b.Select != "" {
		c.Select = b.Select
	}
	if b.ConsistentRead != nil {
		c.ConsistentRead = b.ConsistentRead
	}
	if b.ScanIndexForward != nil {
		c.ScanIndexForward = b.ScanIndexForward
	}
	if b.ExclusiveStartKey != nil {
		c.ExclusiveStartKey = maps.Clone(b.ExclusiveStartKey)
	}
	if b.Limit != nil {
		c.Limit = b.Limit
	}
	if len(b.ExpressionAttributeNames) > 0 {
		if c.ExpressionAttributeNames == nil {
			c.ExpressionAttributeNames = make(map[string]string, len(b.ExpressionAttributeNames))
		}
		maps.Copy(c.ExpressionAttributeNames, b.ExpressionAttributeNames)
	}
	if len(b.ExpressionAttributeValues) > 0 {
		if c.ExpressionAttributeValues == nil {
			c.ExpressionAttributeValues = make(map[string]types.AttributeValue, len(b.ExpressionAttributeValues))
		}
		maps.Copy(c.ExpressionAttributeValues, b.ExpressionAttributeValues)
	}
	return c
}

// CountingParams derives the count-only variant of a listing request:
// Select=COUNT, no projection, dead aliases removed.
func CountingParams(p *Params) *Params {
	c := Clone(p)
	c.Select = types.SelectCount
	c.ProjectionExpression = nil
	c.Limit = nil
	return Cleanup(c)
}

func (p *Params) ScanInput() *dynamodb.ScanInput {
	return &dynamodb.ScanInput{
		TableName:                 p.TableName,
		IndexName:                 p.IndexName,
		ProjectionExpression:      p.ProjectionExpression,
		FilterExpression:          p.FilterExpression,
		ExpressionAttributeNames:  p.ExpressionAttributeNames,
		ExpressionAttributeValues: p.ExpressionAttributeValues,
		Select:                    p.Select,
		ConsistentRead:            p.ConsistentRead,
		ExclusiveStartKey:         p.ExclusiveStartKey,
		Limit:                     p.Limit,
	}
}

func (p *Params) QueryInput() *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:                 p.TableName,
		IndexName:                 p.IndexName,
		KeyConditionExpression:    p.KeyConditionExpression,
		ProjectionExpression:      p.ProjectionExpression,
		FilterExpression:          p.FilterExpression,
		ExpressionAttributeNames:  p.ExpressionAttributeNames,
		ExpressionAttributeValues: p.ExpressionAttributeValues,
		Select:                    p.Select,
		ConsistentRead:            p.ConsistentRead,
		ScanIndexForward:          p.ScanIndexForward,
		ExclusiveStartKey:         p.ExclusiveStartKey,
		Limit:                     p.Limit,
	}
}

func (p *Params) GetItemInput() *dynamodb.GetItemInput {
	return &dynamodb.GetItemInput{
		TableName:                p.TableName,
		Key:                      p.Key,
		ProjectionExpression:     p.ProjectionExpression,
		ExpressionAttributeNames: p.ExpressionAttributeNames,
		ConsistentRead:           p.ConsistentRead,
	}
}

func (p *Params) PutItemInput(item map[string]types.AttributeValue) *dynamodb.PutItemInput {
	return &dynamodb.PutItemInput{
		TableName:                 p.TableName,
		Item:                      item,
		ConditionExpression:       p.ConditionExpression,
		ExpressionAttributeNames:  p.ExpressionAttributeNames,
		ExpressionAttributeValues: p.ExpressionAttributeValues,
	}
}

func (p *Params) UpdateItemInput() *dynamodb.UpdateItemInput {
	return &dynamodb.UpdateItemInput{
		TableName:                 p.TableName,
		Key:                       p.Key,
		UpdateExpression:          p.UpdateExpression,
		ConditionExpression:       p.ConditionExpression,
		ExpressionAttributeNames:  p.ExpressionAttributeNames,
		ExpressionAttributeValues: p.ExpressionAttributeValues,
	}
}

func (p *Params) DeleteItemInput() *dynamodb.DeleteItemInput {
	return &dynamodb.DeleteItemInput{
		TableName:                 p.TableName,
		Key:                       p.Key,
		ConditionExpression:       p.ConditionExpression,
		ExpressionAttributeNames:  p.ExpressionAttributeNames,
		ExpressionAttributeValues: p.ExpressionAttributeValues,
	}
}

func ptr[T any](v T) *T {
	return &v
}
