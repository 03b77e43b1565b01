// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccnet

import (
	"encoding/hex"
	"strings"
)

// Identity is the decoded IDENTIFICATION response
type Identity struct {
	PartNumber   string
	SerialNumber string
	AssetNumber  string // Hex encoded, the field is binary
}

// ParseIdentification decodes an IDENTIFICATION response payload (status
// byte included). Short payloads are parsed as far as they go and padding
// is trimmed; the result is informational only.
func ParseIdentification(payload []byte) Identity {
	var id Identity
	field := func(offset, size int) []byte {
		if offset >= len(payload) {
			return nil
		}
		end := offset + size
		if end > len(payload) {
			end = len(payload)
		}
		return payload[offset:end]
	}

	id.PartNumber = cleanASCII(field(0, PartNumberSize))
	id.SerialNumber = cleanASCII(field(PartNumberSize, SerialNumberSize))
	id.AssetNumber = hex.EncodeToString(field(PartNumberSize+SerialNumberSize, AssetNumberSize))
	return id
}

// IsZero reports whether nothing was identified
func (id Identity) IsZero() bool {
	return id == Identity{}
}

func cleanASCII(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c >= 0x20 && c < 0x7F {
			sb.WriteByte(c)
		}
	}
	return strings.TrimSpace(sb.String())
}
