// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

//go:build linux

package socket

import "golang.org/x/sys/unix"

const keepaliveIdleSecs = 600

func setKeepaliveIdle(fd int) {
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, keepaliveIdleSecs)
}
