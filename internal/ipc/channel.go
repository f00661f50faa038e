// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ipc implements the line-oriented protocol a collector speaks to
// its worker subprocess: plain ASCII command lines (next, restart, exit,
// "do <json>") and single-line JSON replies.
package ipc

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"syscall"
)

// Commands a worker ever writes to its collector.
const (
	MsgNext    = "next"
	MsgRestart = "restart"
)

// CmdExit and CmdDoPrefix are the commands a collector ever writes to its
// worker; a "do" command is CmdDoPrefix followed by a JSON-encoded
// attrpath.Path.
const (
	CmdExit     = "exit"
	CmdDoPrefix = "do "
)

// Channel is a line-oriented duplex connection to a peer: a collector
// reading from/writing to its worker's pipes, or a worker reading from
// stdin and writing to stdout.
type Channel struct {
	r *bufio.Reader
	w io.Writer
}

// NewChannel wraps r/w for line-based use. r and w are typically the two
// ends of an os/exec pipe pair, or a worker's own stdin/stdout.
func NewChannel(r io.Reader, w io.Writer) *Channel {
	return &Channel{r: bufio.NewReader(r), w: w}
}

// ReadLine reads one newline-terminated line, with the trailing newline
// stripped. io.EOF is returned verbatim so callers can distinguish a
// clean close (the peer exited) from any other read error.
func (c *Channel) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return "", io.EOF
		}
		if err != io.EOF {
			return "", err
		}
	}
	return strings.TrimRight(line, "\n"), nil
}

// WriteLine writes s followed by a newline.
func (c *Channel) WriteLine(s string) error {
	_, err := io.WriteString(c.w, s+"\n")
	return err
}

// TryWriteLine writes s, reporting ok=false instead of an error when the
// write failed because the peer's read end is gone (a broken pipe). This
// mirrors worker.cc's tryWriteLine: once the parent has died there is no
// one left to report an error to, so the worker should just give up
// quietly rather than crash on a write to a closed pipe.
func (c *Channel) TryWriteLine(s string) (ok bool, err error) {
	werr := c.WriteLine(s)
	if werr == nil {
		return true, nil
	}
	if errors.Is(werr, syscall.EPIPE) {
		return false, nil
	}
	return false, werr
}
