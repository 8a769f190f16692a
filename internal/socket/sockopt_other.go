// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

//go:build !linux

package socket

// The platform does not expose a TCP keepalive idle option.
func setKeepaliveIdle(fd int) {}
