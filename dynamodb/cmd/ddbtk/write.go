package main

import (
	"context"
	"flag"
	"fmt"
	"maps"
)

func runPut(args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	c := addCommon(fs)
	var (
		item   = fs.String("item", "", "item as a JSON object")
		create = fs.Bool("create", false, "fail if the item exists")
		force  = fs.Bool("force", true, "write whether or not the item exists")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	it, err := parseItem(*item)
	if err != nil {
		return fmt.Errorf("--item: %w", err)
	}

	ctx := context.Background()
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	if *create {
		return e.adapter.Post(ctx, it)
	}
	return e.adapter.Put(ctx, it, *force)
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	c := addCommon(fs)
	l := addListing(fs)
	var (
		key = fs.String("key", "", "delete only the item under this JSON key")
		all = fs.Bool("all", false, "allow deleting a whole scan when --pk is not set")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	if *key != "" {
		k, err := parseItem(*key)
		if err != nil {
			return fmt.Errorf("--key: %w", err)
		}
		return e.adapter.DeleteByKey(ctx, k)
	}
	if l.pk == "" && !*all {
		return fmt.Errorf("refusing to delete every item of %s without --all", e.def.Name)
	}
	params, err := e.params(l)
	if err != nil {
		return err
	}
	n, err := e.adapter.DeleteAllByParams(ctx, params)
	fmt.Fprintln(stdout, n)
	return err
}

// runCopy copies, or moves, every listed item with --set applied on top.
func runCopy(args []string, move bool) error {
	name := "copy"
	if move {
		name = "move"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	c := addCommon(fs)
	l := addListing(fs)
	set := fs.String("set", "", "attributes to override as a JSON object, usually new key values")
	if err := fs.Parse(args); err != nil {
		return err
	}
	overrides, err := parseItem(*set)
	if err != nil {
		return fmt.Errorf("--set: %w", err)
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
	mapFn := func(it Item) Item {
		out := maps.Clone(it)
		maps.Copy(out, overrides)
		return out
	}
	var n int
	if move {
		n, err = e.adapter.MoveAllByParams(ctx, params, mapFn)
	} else {
		n, err = e.adapter.CloneAllByParams(ctx, params, mapFn)
	}
	fmt.Fprintln(stdout, n)
	return err
}
