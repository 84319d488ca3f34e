// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunReassembleOrdersOutOfOrderFragments(t *testing.T) {
	trace := `[
		{"offset": 4, "data_base64": "aGk="},
		{"offset": 0, "data_base64": "AAAAAg=="}
	]`
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, os.WriteFile(path, []byte(trace), 0o600))

	cmd := newReassembleCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runReassemble(cmd, path))
	require.Contains(t, out.String(), "recovered 1 message(s), read_offset=6")
	require.Contains(t, out.String(), "6869")
}

func TestRunReassembleRejectsMalformedTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	cmd := newReassembleCmd()
	cmd.SetOut(&bytes.Buffer{})

	err := runReassemble(cmd, path)
	require.Error(t, err)
}

func TestRunReassembleMissingFile(t *testing.T) {
	cmd := newReassembleCmd()
	cmd.SetOut(&bytes.Buffer{})
	err := runReassemble(cmd, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
