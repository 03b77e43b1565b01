// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package currency maps validator bill type codes to denominations.
package currency

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxBillType is the highest bill type a validator can report
const MaxBillType = 23

// Bill is one denomination known to the validator
type Bill struct {
	Code        byte   `yaml:"code"`
	Value       int    `yaml:"value"`
	Description string `yaml:"description"`
}

func (b Bill) String() string {
	return b.Description
}

// Table is a currency definition
type Table interface {
	Bills() []Bill
	InvalidBill() Bill
}

// Lookup returns the bill with the given code, or the table's invalid bill
func Lookup(t Table, code byte) Bill {
	for _, b := range t.Bills() {
		if b.Code == code {
			return b
		}
	}
	return t.InvalidBill()
}

// DefaultInvalidBill stands in for bills the table does not recognize
var DefaultInvalidBill = Bill{Code: 100, Value: 0, Description: "Unrecognized/Invalid bill"}

// Static is a fixed table, usually loaded from YAML
type Static struct {
	Currency string `yaml:"currency"`
	Entries  []Bill `yaml:"bills"`
	Invalid  *Bill  `yaml:"invalid,omitempty"`
}

// Bills returns the recognized bills
func (s *Static) Bills() []Bill {
	return s.Entries
}

// InvalidBill returns the bill reported for unrecognized codes
func (s *Static) InvalidBill() Bill {
	if s.Invalid == nil {
		return DefaultInvalidBill
	}
	return *s.Invalid
}

// Validate checks bill codes are in range and unique
func (s *Static) Validate() error {
	seen := make(map[byte]bool, len(s.Entries))
	for _, b := range s.Entries {
		if b.Code > MaxBillType {
			return fmt.Errorf("bill %q: code %d out of range (max %d)", b.Description, b.Code, MaxBillType)
		}
		if seen[b.Code] {
			return fmt.Errorf("bill %q: duplicate code %d", b.Description, b.Code)
		}
		if b.Value < 0 {
			return fmt.Errorf("bill %q: negative value %d", b.Description, b.Value)
		}
		seen[b.Code] = true
	}
	return nil
}

// Romanian returns the Romanian leu table
func Romanian() *Static {
	return &Static{
		Currency: "RON",
		Entries: []Bill{
			{Code: 0, Value: 1, Description: "1 RON"},
			{Code: 2, Value: 5, Description: "5 RON"},
			{Code: 3, Value: 10, Description: "10 RON"},
			{Code: 5, Value: 50, Description: "50 RON"},
		},
	}
}

// LoadYAML parses a table definition
func LoadYAML(r io.Reader) (*Static, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read currency table: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var table Static
	if err := dec.Decode(&table); err != nil {
		return nil, fmt.Errorf("failed to parse currency table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &table, nil
}

// LoadFile reads a table definition from path
func LoadFile(path string) (*Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open currency table: %w", err)
	}
	defer f.Close()

	table, err := LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}
