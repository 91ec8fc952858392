// valgarkiv archives election result snapshots from valgresultat.no.
//
// # Commands
//
//	valgarkiv discover   Walk the API and write the entity definition file
//	valgarkiv monitor    Poll all entities and archive changed results
//	valgarkiv sweep      Run one retention sweep and print the report
//	valgarkiv serve      Serve the archive read-only over HTTP
//
// # Quick Start
//
// Discover the entities of an election year, then start monitoring:
//
//	valgarkiv discover --year 2025 --out entities.yaml
//	valgarkiv monitor
//
// Configuration comes from valgarkiv.yaml (searched upward from the
// working directory) with VALGARKIV_* environment overrides.
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
	case "discover":
		err = runDiscover()
	case "monitor":
		err = runMonitor()
	case "sweep":
		err = runSweep()
	case "serve":
		err = runServe()
	case "help", "-h", "--help":
		printUsage()
		return
	case "version", "-v", "--version":
		fmt.Printf("valgarkiv version %s\n", version)
		return
	default:
		fmt.Fprintf(os.Stderr, "valgarkiv: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "valgarkiv %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`valgarkiv - election result snapshot archive

Usage:
  valgarkiv <command> [flags]

Commands:
  discover   Walk the result API and write the entity definition file
  monitor    Poll all entities and archive changed results
  sweep      Run one retention sweep and print the report
  serve      Serve the archive read-only over HTTP

Configuration (optional):
  Create valgarkiv.yaml in or above the working directory:

    dataDir: ./data                          # database root, one subdir per year
    apiBaseURL: https://valgresultat.no/api  # upstream result API
    years: ["2025"]                          # election years to monitor
    dynamoTable: ""                          # set to use DynamoDB tables "<name>-<year>"
    entitiesFile: entities.yaml              # static registry (omit to discover)
    listenAddr: ":8080"                      # serve address
    logLevel: info                           # debug, info, warn, error

  Environment overrides: VALGARKIV_DATA_DIR, VALGARKIV_API_BASE_URL,
  VALGARKIV_YEARS (comma-separated), VALGARKIV_DYNAMO_TABLE.

Run 'valgarkiv <command> --help' for more information on a command.`)
}
