// ddbtk runs toolkit operations against a DynamoDB table from the shell.
//
// # Installation
//
//	go install github.com/acksell/dynamodb-toolkit/dynamodb/cmd/ddbtk@latest
//
// # Commands
//
//	ddbtk list     Print a page of items
//	ddbtk count    Count matching items
//	ddbtk get      Print one item by key
//	ddbtk put      Write one item
//	ddbtk delete   Delete one item or every matching item
//	ddbtk copy     Copy matching items with attributes overridden
//	ddbtk move     Move matching items with attributes overridden
//
// Settings come from the nearest ddbtk.yaml; flags override them. Use
// --memory or --db to run against a local store instead of AWS.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	// Remove the subcommand from args so flag parsing works
	os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

	var err error
	switch cmd {
	case "list", "ls":
		err = runList(os.Args[1:])
	case "count":
		err = runCount(os.Args[1:])
	case "get":
		err = runGet(os.Args[1:])
	case "put":
		err = runPut(os.Args[1:])
	case "delete", "rm":
		err = runDelete(os.Args[1:])
	case "copy", "cp":
		err = runCopy(os.Args[1:], false)
	case "move", "mv":
		err = runCopy(os.Args[1:], true)
	case "help", "-h", "--help":
		printUsage()
		return
	case "version", "-v", "--version":
		fmt.Printf("ddbtk version %s\n", version)
		return
	default:
		fmt.Fprintf(os.Stderr, "ddbtk: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "ddbtk %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ddbtk - DynamoDB toolkit

Usage:
  ddbtk <command> [flags]

Commands:
  list    Print a page of items (scan, or query with --pk)
  count   Count matching items
  get     Print one item by key
  put     Write one item
  delete  Delete one item (--key) or every matching item
  copy    Copy matching items with attributes overridden (--set)
  move    Move matching items with attributes overridden (--set)

Examples:
  # Second page of a partition, names only:
  ddbtk list --table users --pk team#1 --offset 10 --limit 10 --fields name

  # Case-insensitive search over shadow fields:
  ddbtk list --table users --search name --filter ali

  # Copy a partition:
  ddbtk copy --table users --pk team#1 --set '{"pk":"team#2"}'

  # Work against a local store on disk:
  ddbtk put --db ./data --table users --item '{"pk":"a","sk":"1"}'

Configuration (optional):
  Create ddbtk.yaml for defaults:

    region: eu-north-1
    table: users
    log: {level: info, format: console}
    local: {enabled: true, path: ./data}
    tables:
      - name: users
        keys:
          partition: {name: pk, kind: S}
          sort: {name: sk, kind: S}

Run 'ddbtk <command> --help' for more information on a command.`)
}
