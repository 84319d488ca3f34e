// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cybort/kwik/internal/quic"
)

// fragment is one entry of a reassemble trace file: a CRYPTO frame's
// stream offset and its raw bytes, base64-encoded the way a captured
// packet log would serialize binary payloads into JSON.
type fragment struct {
	Offset     uint64 `json:"offset"`
	DataBase64 string `json:"data_base64"`
}

func newReassembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reassemble <trace.json>",
		Short: "Replay a CRYPTO-frame trace through the stream reassembler and print the recovered messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReassemble(cmd, args[0])
		},
	}
	return cmd
}

func runReassemble(cmd *cobra.Command, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}

	var fragments []fragment
	if err := json.Unmarshal(raw, &fragments); err != nil {
		return fmt.Errorf("parsing trace %s: %w", path, err)
	}

	cs := quic.NewCryptoStream(quic.DefaultConfig(), quic.IdentityParser)
	for i, f := range fragments {
		data, err := base64.StdEncoding.DecodeString(f.DataBase64)
		if err != nil {
			return fmt.Errorf("fragment %d: decoding data_base64: %w", i, err)
		}
		log.WithFields(logrus.Fields{"offset": f.Offset, "size": len(data)}).Debug("kwik-recover: applying crypto fragment")
		if err := cs.Handle(f.Offset, data); err != nil {
			return fmt.Errorf("fragment %d (offset %d): %w", i, f.Offset, err)
		}
	}

	out := cmd.OutOrStdout()
	messages := cs.Messages()
	fmt.Fprintf(out, "recovered %d message(s), read_offset=%d\n", len(messages), cs.ReadOffset())
	for i, msg := range messages {
		fmt.Fprintf(out, "  [%d] %d bytes: %x\n", i, len(msg), []byte(msg))
	}
	return nil
}
