package ddbpage

import (
	"context"
	"fmt"
	"slices"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type wireCall struct {
	op     string
	count  bool
	limit  int32
	cursor string
}

// fakeTable serves scans and queries over an ordered item list the way
// DynamoDB does: Limit caps evaluated items before the filter, Count is
// the number of matches, and a cursor is returned whenever the page
// stopped early, including when Limit was hit on the last item.
type fakeTable struct {
	ddbiface.Client

	items    []Item
	match    func(Item) bool
	pageSize int // items evaluated per call when no Limit is given
	calls    []wireCall
}

func newFakeTable(n int) *fakeTable {
	f := &fakeTable{pageSize: 7}
	for i := range n {
		f.items = append(f.items, Item{
			"pk": &types.AttributeValueMemberS{Value: fmt.Sprintf("id-%03d", i)},
			"n":  &types.AttributeValueMemberN{Value: fmt.Sprint(i)},
		})
	}
	return f
}

func id(it Item) string {
	return it["pk"].(*types.AttributeValueMemberS).Value
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

func (f *fakeTable) matching(forward bool) []Item {
	var out []Item
	for _, it := range f.ordered(forward) {
		if f.match == nil || f.match(it) {
			out = append(out, it)
		}
	}
	return out
}

func (f *fakeTable) ordered(forward bool) []Item {
	items := slices.Clone(f.items)
	if !forward {
		slices.Reverse(items)
	}
	return items
}

func (f *fakeTable) run(op string, sel types.Select, limit *int32, start map[string]types.AttributeValue, forward bool) (items []Item, count int, last map[string]types.AttributeValue) {
	call := wireCall{op: op, count: sel == types.SelectCount, limit: aws.ToInt32(limit)}
	ordered := f.ordered(forward)
	from := 0
	if start != nil {
		call.cursor = start["pk"].(*types.AttributeValueMemberS).Value
		from = slices.IndexFunc(ordered, func(it Item) bool { return id(it) == call.cursor }) + 1
	}
	f.calls = append(f.calls, call)

	budget := f.pageSize
	if limit != nil {
		budget = int(*limit)
	}
	i := from
	for ; i < len(ordered) && i-from < budget; i++ {
		if f.match == nil || f.match(ordered[i]) {
			count++
			if sel != types.SelectCount {
				items = append(items, ordered[i])
			}
		}
	}
	if i-from == budget && i > from {
		last = map[string]types.AttributeValue{"pk": ordered[i-1]["pk"]}
	}
	return items, count, last
}

func (f *fakeTable) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	items, count, last := f.run("scan", in.Select, in.Limit, in.ExclusiveStartKey, true)
	return &dynamodb.ScanOutput{Items: items, Count: int32(count), LastEvaluatedKey: last}, nil
}

func (f *fakeTable) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	forward := in.ScanIndexForward == nil || *in.ScanIndexForward
	items, count, last := f.run("query", in.Select, in.Limit, in.ExclusiveStartKey, forward)
	return &dynamodb.QueryOutput{Items: items, Count: int32(count), LastEvaluatedKey: last}, nil
}

func (f *fakeTable) countCalls() int {
	n := 0
	for _, c := range f.calls {
		if c.count {
			n++
		}
	}
	return n
}
