// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Billstat - CashCode CCNET bill validator driver
//
// A CLI tool for accepting bills from CashCode validators and for
// monitoring and diagnosing the CCNET serial link.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/billstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
