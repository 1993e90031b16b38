package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbpage"
	"go.uber.org/zap"
)

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	c := addCommon(fs)
	l := addListing(fs)
	var (
		offset = fs.Int("offset", 0, "items to skip")
		limit  = fs.Int("limit", ddbpage.DefaultLimit, "items to print")
		fields = fs.String("fields", "", "comma-separated fields to project")
		filter = fs.String("filter", "", "case-insensitive substring matched against --search fields")
		total  = fs.Bool("total", true, "print the total count to stderr")
	)
	fs.Usage = func() {
		fmt.Println(`ddbtk list - Print a page of items as JSON lines

Usage:
  ddbtk list [flags]

Flags:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	params, err := e.params(l)
	if err != nil {
		return err
	}
	page, err := e.adapter.GetAll(ctx, params, ddbpage.Request{Offset: *offset, Limit: *limit}, ddbexpr.SplitFields(*fields), *filter)
	if err != nil {
		return err
	}
	if err := writeItems(stdout, page.Data); err != nil {
		return err
	}
	if *total && page.Total != nil {
		e.log.Info("listed",
			zap.Int("offset", page.Offset),
			zap.Int("items", len(page.Data)),
			zap.Int("total", *page.Total))
	}
	return nil
}

func runCount(args []string) error {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	c := addCommon(fs)
	l := addListing(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	params, err := e.params(l)
	if err != nil {
		return err
	}
	n, err := e.client.Pager().Total(ctx, params)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, n)
	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	c := addCommon(fs)
	var (
		key    = fs.String("key", "", `key as a JSON object, e.g. '{"pk":"a","sk":"1"}'`)
		fields = fs.String("fields", "", "comma-separated fields to project")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, err := parseItem(*key)
	if err != nil {
		return fmt.Errorf("--key: %w", err)
	}

	ctx := context.Background()
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	item, found, err := e.adapter.GetByKey(ctx, k, ddbexpr.SplitFields(*fields))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no item under %s", *key)
	}
	return writeItems(stdout, []Item{item})
}
