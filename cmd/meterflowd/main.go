// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// meterflowd is the telemetry ingestion API server.
package main

import (
	"fmt"
	"os"

	"github.com/meterflow/meterflow/cmd/meterflowd/command"
)

func main() {
	err := command.New().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
