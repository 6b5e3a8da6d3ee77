// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// CredentialsError reports a missing or rejected API token. The caller maps
// it to a dedicated exit code.
type CredentialsError struct {
	Host   string
	Reason string
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s: %s", e.Host, e.Reason)
}

// BadProjectError reports a project that the provider says does not exist.
type BadProjectError struct {
	Project string
}

func (e *BadProjectError) Error() string {
	return fmt.Sprintf("no such project: %s", e.Project)
}

// ErrUnexpectedResponse covers provider responses we cannot interpret.
var ErrUnexpectedResponse = errors.New("unexpected provider response")

// IsTransient reports whether err looks like a network-class failure worth
// retrying against a cached result: DNS, timeouts, connection resets, OS
// I/O, or blocked credentials. Definitive answers such as a missing project
// are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var bad *BadProjectError
	if errors.As(err, &bad) {
		return false
	}
	var cred *CredentialsError
	if errors.As(err, &cred) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		return true
	}
	var pathErr *os.SyscallError
	return errors.As(err, &pathErr)
}
