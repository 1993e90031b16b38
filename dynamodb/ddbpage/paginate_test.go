package ddbpage

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanParams() *ddbexpr.Params {
	return &ddbexpr.Params{TableName: aws.String("t")}
}

func queryParams(forward bool) *ddbexpr.Params {
	return &ddbexpr.Params{
		TableName:              aws.String("t"),
		KeyConditionExpression: aws.String("#k0 = :v0"),
		ScanIndexForward:       aws.Bool(forward),
	}
}

type paginateFunc func(p *Pager, ctx context.Context, params *ddbexpr.Params, req Request) (*Page, error)

var variants = map[string]paginateFunc{
	"limit":   (*Pager).Paginate,
	"nolimit": (*Pager).PaginateNoLimit,
}

func expectedWindow(all []Item, offset, limit int) []string {
	if offset >= len(all) {
		return []string{}
	}
	return ids(all[offset:min(len(all), offset+limit)])
}

func checkWindows(t *testing.T, run paginateFunc, db *fakeTable, params func() *ddbexpr.Params, forward bool) {
	t.Helper()
	all := db.matching(forward)
	pager := New(db)
	for _, limit := range []int{1, 5, 10, 11, 30, 100} {
		for offset := 0; offset <= len(db.items)+2; offset++ {
			page, err := run(pager, context.Background(), params(), Request{Offset: offset, Limit: limit})
			require.NoError(t, err)
			want := expectedWindow(all, offset, limit)
			require.Equal(t, want, ids(page.Data), "offset=%d limit=%d", offset, limit)
			require.NotNil(t, page.Total)
			require.Equal(t, len(all), *page.Total, "offset=%d limit=%d", offset, limit)
		}
	}
}

func TestPaginate_Windows(t *testing.T) {
	for name, run := range variants {
		for _, n := range []int{0, 1, 9, 10, 11, 25, 57} {
			t.Run(fmt.Sprintf("%s/n=%d", name, n), func(t *testing.T) {
				checkWindows(t, run, newFakeTable(n), scanParams, true)
			})
		}
	}
}

func TestPaginate_FilteredWindows(t *testing.T) {
	for name, run := range variants {
		t.Run(name, func(t *testing.T) {
			db := newFakeTable(64)
			db.match = func(it Item) bool {
				n, _ := strconv.Atoi(it["n"].(*types.AttributeValueMemberN).Value)
				return n%3 == 0
			}
			checkWindows(t, run, db, scanParams, true)
		})
	}
}

func TestPaginate_ReverseQueryTotals(t *testing.T) {
	for name, run := range variants {
		t.Run(name, func(t *testing.T) {
			db := newFakeTable(43)
			checkWindows(t, run, db, func() *ddbexpr.Params { return queryParams(false) }, false)
			for _, c := range db.calls {
				assert.Equal(t, "query", c.op)
			}
		})
	}
}

func TestPaginate_OffsetAtEnd(t *testing.T) {
	db := newFakeTable(30)
	page, err := New(db).Paginate(context.Background(), scanParams(), Request{Offset: 30, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	require.NotNil(t, page.Total)
	assert.Equal(t, 30, *page.Total)
}

func TestPaginate_Degenerate(t *testing.T) {
	db := newFakeTable(12)
	for _, req := range []Request{{Offset: -1, Limit: 10}, {Offset: 0, Limit: 0}} {
		page, err := New(db).Paginate(context.Background(), scanParams(), req)
		require.NoError(t, err)
		assert.Empty(t, page.Data)
		assert.Equal(t, 12, *page.Total)
	}

	db.calls = nil
	page, err := New(db, WithTotal(false)).Paginate(context.Background(), scanParams(), Request{Offset: -1, Limit: 10})
	require.NoError(t, err)
	assert.Nil(t, page.Total)
	assert.Empty(t, db.calls)
}

func TestPaginate_WithoutTotal(t *testing.T) {
	db := newFakeTable(100)
	page, err := New(db, WithTotal(false)).Paginate(context.Background(), scanParams(), Request{Offset: 5, Limit: 10})
	require.NoError(t, err)
	assert.Nil(t, page.Total)
	assert.Equal(t, expectedWindow(db.items, 5, 10), ids(page.Data))
	assert.Zero(t, db.countCalls())
}

func TestPaginate_SkipPhaseCalls(t *testing.T) {
	db := newFakeTable(100)
	page, err := New(db).Paginate(context.Background(), scanParams(), Request{Offset: 45, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, expectedWindow(db.items, 45, 10), ids(page.Data))

	require.GreaterOrEqual(t, len(db.calls), 3)
	// one count call skips the whole offset, then one item call collects
	assert.Equal(t, wireCall{op: "scan", count: true, limit: 45}, db.calls[0])
	assert.Equal(t, wireCall{op: "scan", limit: 10, cursor: "id-044"}, db.calls[1])
	// the tail is counted from where collection stopped
	assert.Equal(t, wireCall{op: "scan", count: true, cursor: "id-054"}, db.calls[2])
}

func TestPaginate_MaxLimit(t *testing.T) {
	db := newFakeTable(300)
	page, err := New(db, WithMaxLimit(50)).Paginate(context.Background(), scanParams(), Request{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, page.Data, 50)
	assert.Equal(t, 50, page.Limit)
}

func TestTotal(t *testing.T) {
	db := newFakeTable(23)
	p := scanParams()
	ddbexpr.NewCompiler(p).Projection([]string{"pk"})
	total, err := New(db).Total(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 23, total)
	assert.Equal(t, len(db.calls), db.countCalls())
}
