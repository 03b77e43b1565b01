// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/billstat/pkg/ccnet"
)

var errorsKind string

var errorsCmd = &cobra.Command{
	Use:   "errors [code]",
	Short: "List the device error catalog",
	Long: `Print the catalog of error codes reported by the driver.

With a code argument, only that entry is printed. Rejection reasons use the
device's own rejection sub-code (0x60-0x6C) as their code.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runErrors,
}

func init() {
	rootCmd.AddCommand(errorsCmd)
	errorsCmd.Flags().StringVar(&errorsKind, "kind", "", "Only list entries of this kind (e.g. rejection, device-status)")
}

func runErrors(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		code, err := strconv.ParseInt(args[0], 0, 64)
		if err != nil {
			return fmt.Errorf("invalid code %q: %w", args[0], err)
		}
		if !ccnet.Known(int(code)) {
			return fmt.Errorf("code %d is not in the catalog", code)
		}
		e := ccnet.Lookup(int(code))
		fmt.Printf("%d\t%s\t%s\n", e.Code, e.Kind, e.Message)
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("CODE", "KIND", "MESSAGE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, e := range ccnet.Catalog() {
		if errorsKind != "" && e.Kind.String() != errorsKind {
			continue
		}
		t.Row(strconv.Itoa(e.Code), e.Kind.String(), e.Message)
	}
	fmt.Println(t)
	return nil
}
