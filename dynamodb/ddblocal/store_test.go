package ddblocal

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/acksell/dynamodb-toolkit/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var singleTableDesign = table.TableDefinition{
	Name: "single",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
		SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindS},
	},
	TimeToLiveKey: "ttl",
	GSIs: []table.GSIDefinition{{
		Name: "byStatus",
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: table.KeyDef{Name: "status", Kind: table.KeyKindS},
			SortKey:      table.KeyDef{Name: "rank", Kind: table.KeyKindN},
		},
	}},
}

var numericTable = table.TableDefinition{
	Name: "numeric",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "id", Kind: table.KeyKindN},
	},
}

func newTestStore(t *testing.T, defs ...table.TableDefinition) *Store {
	t.Helper()
	store, err := New(Options{InMemory: true}, defs...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sv(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func nv(v int) types.AttributeValue   { return &types.AttributeValueMemberN{Value: strconv.Itoa(v)} }

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": sv(pk), "sk": sv(sk)}
}

func put(t *testing.T, store *Store, item map[string]types.AttributeValue) {
	t.Helper()
	_, err := store.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(singleTableDesign.Name),
		Item:      item,
	})
	require.NoError(t, err)
}

func TestStore_ItemLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("put then get with projection", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		put(t, store, map[string]types.AttributeValue{"pk": sv("u#1"), "sk": sv("profile"), "name": sv("Ann"), "age": nv(3)})

		got, err := store.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:                aws.String("single"),
			Key:                      key("u#1", "profile"),
			ProjectionExpression:     aws.String("#n"),
			ExpressionAttributeNames: map[string]string{"#n": "name"},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]types.AttributeValue{"name": sv("Ann")}, got.Item)
	})

	t.Run("missing item is nil", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		got, err := store.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String("single"), Key: key("nope", "nope")})
		require.NoError(t, err)
		assert.Nil(t, got.Item)
	})

	t.Run("conditional put fails on existing item", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		put(t, store, map[string]types.AttributeValue{"pk": sv("u#1"), "sk": sv("a"), "v": nv(1)})

		_, err := store.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                           aws.String("single"),
			Item:                                map[string]types.AttributeValue{"pk": sv("u#1"), "sk": sv("a"), "v": nv(2)},
			ConditionExpression:                 aws.String("attribute_not_exists(pk)"),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		})
		var ccf *types.ConditionalCheckFailedException
		require.ErrorAs(t, err, &ccf)
		assert.Equal(t, nv(1), ccf.Item["v"])
	})

	t.Run("put returns old values", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		put(t, store, map[string]types.AttributeValue{"pk": sv("u#1"), "sk": sv("a"), "v": nv(1)})
		out, err := store.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:    aws.String("single"),
			Item:         map[string]types.AttributeValue{"pk": sv("u#1"), "sk": sv("a"), "v": nv(2)},
			ReturnValues: types.ReturnValueAllOld,
		})
		require.NoError(t, err)
		assert.Equal(t, nv(1), out.Attributes["v"])
	})

	t.Run("delete with condition", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		put(t, store, map[string]types.AttributeValue{"pk": sv("u#1"), "sk": sv("a"), "v": nv(1)})

		_, err := store.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 aws.String("single"),
			Key:                       key("u#1", "a"),
			ConditionExpression:       aws.String("v = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":v": nv(2)},
		})
		var ccf *types.ConditionalCheckFailedException
		require.ErrorAs(t, err, &ccf)

		out, err := store.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:    aws.String("single"),
			Key:          key("u#1", "a"),
			ReturnValues: types.ReturnValueAllOld,
		})
		require.NoError(t, err)
		assert.Equal(t, nv(1), out.Attributes["v"])

		got, err := store.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String("single"), Key: key("u#1", "a")})
		require.NoError(t, err)
		assert.Nil(t, got.Item)
	})

	t.Run("key must match the schema", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		_, err := store.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("single"),
			Key:       map[string]types.AttributeValue{"pk": sv("u#1")},
		})
		assert.True(t, IsValidation(err))
	})

	t.Run("unknown table", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		_, err := store.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String("nope"), Key: key("a", "b")})
		var rnf *types.ResourceNotFoundException
		assert.ErrorAs(t, err, &rnf)
	})

	t.Run("unused placeholders are rejected", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		_, err := store.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String("single"),
			Item:                      key("u#1", "a"),
			ConditionExpression:       aws.String("attribute_not_exists(pk)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":unused": nv(1)},
		})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestStore_UpdateItem(t *testing.T) {
	ctx := context.Background()

	t.Run("SET creates new item (upsert)", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		out, err := store.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String("single"),
			Key:                       key("u#1", "profile"),
			UpdateExpression:          aws.String("SET #name = :name"),
			ExpressionAttributeNames:  map[string]string{"#name": "name"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":name": sv("John")},
			ReturnValues:              types.ReturnValueAllNew,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]types.AttributeValue{"pk": sv("u#1"), "sk": sv("profile"), "name": sv("John")}, out.Attributes)
	})

	t.Run("UPDATED_OLD returns touched attributes", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		put(t, store, map[string]types.AttributeValue{"pk": sv("u#1"), "sk": sv("a"), "n": nv(1), "keep": sv("x")})
		out, err := store.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String("single"),
			Key:                       key("u#1", "a"),
			UpdateExpression:          aws.String("SET n = n + :one"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":one": nv(1)},
			ReturnValues:              types.ReturnValueUpdatedOld,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]types.AttributeValue{"n": nv(1)}, out.Attributes)
	})

	t.Run("key attributes cannot be updated", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		_, err := store.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String("single"),
			Key:                       key("u#1", "a"),
			UpdateExpression:          aws.String("SET sk = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":v": sv("b")},
		})
		assert.True(t, IsValidation(err))
	})

	t.Run("condition on missing item", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		_, err := store.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String("single"),
			Key:                       key("u#1", "a"),
			UpdateExpression:          aws.String("SET v = :v"),
			ConditionExpression:       aws.String("attribute_exists(pk)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":v": sv("b")},
		})
		var ccf *types.ConditionalCheckFailedException
		assert.ErrorAs(t, err, &ccf)
	})
}

func seed(t *testing.T, store *Store, n int) {
	t.Helper()
	for i := range n {
		item := key("p", fmt.Sprintf("s%03d", i))
		item["n"] = nv(i)
		if i%2 == 0 {
			item["status"] = sv("even")
			item["rank"] = nv(n - i)
		}
		put(t, store, item)
	}
}

func TestStore_Scan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, singleTableDesign)
	seed(t, store, 10)

	t.Run("limit applies before the filter", func(t *testing.T) {
		out, err := store.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String("single"),
			Limit:                     aws.Int32(4),
			FilterExpression:          aws.String("n >= :min"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":min": nv(2)},
		})
		require.NoError(t, err)
		assert.EqualValues(t, 4, out.ScannedCount)
		assert.EqualValues(t, 2, out.Count)
		assert.Len(t, out.Items, 2)
		assert.Equal(t, key("p", "s003"), out.LastEvaluatedKey)
	})

	t.Run("pages cover the table exactly once", func(t *testing.T) {
		var got []string
		var esk map[string]types.AttributeValue
		for {
			out, err := store.Scan(ctx, &dynamodb.ScanInput{
				TableName:         aws.String("single"),
				Limit:             aws.Int32(3),
				ExclusiveStartKey: esk,
			})
			require.NoError(t, err)
			for _, item := range out.Items {
				got = append(got, item["sk"].(*types.AttributeValueMemberS).Value)
			}
			if out.LastEvaluatedKey == nil {
				break
			}
			esk = out.LastEvaluatedKey
		}
		require.Len(t, got, 10)
		assert.Equal(t, "s000", got[0])
		assert.Equal(t, "s009", got[9])
	})

	t.Run("select count returns no items", func(t *testing.T) {
		out, err := store.Scan(ctx, &dynamodb.ScanInput{
			TableName: aws.String("single"),
			Select:    types.SelectCount,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 10, out.Count)
		assert.Nil(t, out.Items)
	})

	t.Run("sparse index holds only items with index keys", func(t *testing.T) {
		out, err := store.Scan(ctx, &dynamodb.ScanInput{
			TableName: aws.String("single"),
			IndexName: aws.String("byStatus"),
		})
		require.NoError(t, err)
		assert.EqualValues(t, 5, out.Count)
	})
}

func TestStore_Query(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, singleTableDesign)
	seed(t, store, 10)
	put(t, store, key("other", "s001"))

	t.Run("sort key condition", func(t *testing.T) {
		out, err := store.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String("single"),
			KeyConditionExpression: aws.String("pk = :pk AND sk BETWEEN :lo AND :hi"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": sv("p"), ":lo": sv("s002"), ":hi": sv("s004"),
			},
		})
		require.NoError(t, err)
		assert.EqualValues(t, 3, out.Count)
	})

	t.Run("reverse pages resume after the start key", func(t *testing.T) {
		in := &dynamodb.QueryInput{
			TableName:                 aws.String("single"),
			KeyConditionExpression:    aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": sv("p")},
			ScanIndexForward:          aws.Bool(false),
			Limit:                     aws.Int32(4),
		}
		first, err := store.Query(ctx, in)
		require.NoError(t, err)
		require.Len(t, first.Items, 4)
		assert.Equal(t, sv("s009"), first.Items[0]["sk"])

		in.ExclusiveStartKey = first.LastEvaluatedKey
		second, err := store.Query(ctx, in)
		require.NoError(t, err)
		require.NotEmpty(t, second.Items)
		assert.Equal(t, sv("s005"), second.Items[0]["sk"])
	})

	t.Run("index query orders by index sort key", func(t *testing.T) {
		out, err := store.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("single"),
			IndexName:                 aws.String("byStatus"),
			KeyConditionExpression:    aws.String("#s = :s"),
			ExpressionAttributeNames:  map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":s": sv("even")},
			Limit:                     aws.Int32(2),
		})
		require.NoError(t, err)
		require.Len(t, out.Items, 2)
		// rank = 10 - n, so the highest n sorts first.
		assert.Equal(t, nv(8), out.Items[0]["n"])
		assert.Contains(t, out.LastEvaluatedKey, "status")
		assert.Contains(t, out.LastEvaluatedKey, "rank")
		assert.Contains(t, out.LastEvaluatedKey, "pk")
		assert.Contains(t, out.LastEvaluatedKey, "sk")
	})

	t.Run("partition key equality is required", func(t *testing.T) {
		_, err := store.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("single"),
			KeyConditionExpression:    aws.String("sk = :sk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":sk": sv("s001")},
		})
		assert.True(t, IsValidation(err))
	})

	t.Run("index is updated when an item moves", func(t *testing.T) {
		_, err := store.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                aws.String("single"),
			Key:                      key("p", "s000"),
			UpdateExpression:         aws.String("REMOVE #s"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
		})
		require.NoError(t, err)
		out, err := store.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("single"),
			IndexName:                 aws.String("byStatus"),
			KeyConditionExpression:    aws.String("#s = :s"),
			ExpressionAttributeNames:  map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":s": sv("even")},
			Select:                    types.SelectCount,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 4, out.Count)
	})
}

func TestStore_NumericKeysOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, numericTable)
	for _, id := range []int{10, -5, 2, 0, 100} {
		_, err := store.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("numeric"),
			Item:      map[string]types.AttributeValue{"id": nv(id)},
		})
		require.NoError(t, err)
	}
	out, err := store.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String("numeric")})
	require.NoError(t, err)
	var ids []types.AttributeValue
	for _, item := range out.Items {
		ids = append(ids, item["id"])
	}
	assert.Equal(t, []types.AttributeValue{nv(-5), nv(0), nv(2), nv(10), nv(100)}, ids)
}

func TestStore_TimeToLive(t *testing.T) {
	store := newTestStore(t, singleTableDesign)
	expired := key("u#1", "old")
	expired["ttl"] = nv(int(time.Now().Add(-time.Hour).Unix()))
	put(t, store, expired)
	live := key("u#1", "new")
	live["ttl"] = nv(int(time.Now().Add(time.Hour).Unix()))
	put(t, store, live)

	out, err := store.Scan(context.Background(), &dynamodb.ScanInput{TableName: aws.String("single")})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, sv("new"), out.Items[0]["sk"])
}
