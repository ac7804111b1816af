/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/jsimonetti/rtnetlink"
	"golang.org/x/sys/unix"
)

// canRaw selects the raw CAN_RAW protocol on an AF_CAN socket.
const canRaw = 1

// canFrameLen is sizeof(struct can_frame): 4-byte ID, length byte, 3 bytes
// padding, 8 bytes of data.
const canFrameLen = 16

// canIDEFFFlag marks a 29-bit extended CAN identifier, set on every NMEA2000
// frame since PGNs don't fit in an 11-bit standard ID.
const canIDEFFFlag = uint32(1 << 31)

// CAN reads and writes raw NMEA2000 frames over a SocketCAN interface,
// grounded on aldas-go-nmea-client's socketcan.Connection.
type CAN struct {
	ifName string
	fd     int
}

// OpenCAN checks the interface is administratively and operationally up
// before binding a raw CAN_RAW socket to it, then returns a CAN reader.
func OpenCAN(ctx context.Context, ifName string) (*CAN, error) {
	if err := checkLinkUp(ctx, ifName); err != nil {
		return nil, err
	}

	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("device: can interface %s: %w", ifName, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, canRaw)
	if err != nil {
		return nil, fmt.Errorf("device: can socket: %w", err)
	}

	addr := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("device: can bind %s: %w", ifName, err)
	}

	return &CAN{ifName: ifName, fd: fd}, nil
}

// checkLinkUp queries the link's operational state over rtnetlink so a
// misconfigured or unplugged CAN bus fails fast with a clear error instead
// of binding a socket that will never see a frame.
func checkLinkUp(_ context.Context, ifName string) error {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return fmt.Errorf("device: rtnetlink dial: %w", err)
	}
	defer conn.Close()

	links, err := conn.Link.List()
	if err != nil {
		return fmt.Errorf("device: rtnetlink link list: %w", err)
	}

	for _, l := range links {
		if l.Attributes == nil || l.Attributes.Name != ifName {
			continue
		}
		if l.Attributes.OperationalState != rtnetlink.OperStateUp {
			return fmt.Errorf("device: interface %s is not up (state %v)", ifName, l.Attributes.OperationalState)
		}
		return nil
	}
	return fmt.Errorf("device: interface %s not found", ifName)
}

// Read returns one raw CAN frame's 8-byte data payload; the frame's leading
// 4-byte ID and length prefix are stripped by decoding it internally and
// handing the caller only the bytes a fastpacket.Reassembler needs appended
// to a fastpacket.Frame by the caller.
func (c *CAN) Read(b []byte) (int, error) {
	frame := make([]byte, canFrameLen)
	n, err := unix.Read(c.fd, frame)
	if err != nil {
		return 0, err
	}
	if n < canFrameLen {
		return 0, fmt.Errorf("device: short can frame: %d bytes", n)
	}
	length := int(frame[4])
	if length > len(b) {
		length = len(b)
	}
	copy(b, frame[8:8+length])
	return length, nil
}

// ReadID returns the next frame's 29-bit CAN identifier alongside its data,
// which N2K callers need to recover the PGN before handing the frame to a
// fastpacket.Reassembler.
func (c *CAN) ReadID() (id uint32, data []byte, err error) {
	frame := make([]byte, canFrameLen)
	n, readErr := unix.Read(c.fd, frame)
	if readErr != nil {
		return 0, nil, readErr
	}
	if n < canFrameLen {
		return 0, nil, fmt.Errorf("device: short can frame: %d bytes", n)
	}
	rawID := binary.LittleEndian.Uint32(frame[0:4]) &^ (0b111 << 29)
	length := int(frame[4])
	out := make([]byte, length)
	copy(out, frame[8:8+length])
	return rawID, out, nil
}

func (c *CAN) Write(b []byte) (int, error) {
	return 0, fmt.Errorf("device: can write not supported for %s", c.ifName)
}

func (c *CAN) Close() error { return unix.Close(c.fd) }
func (c *CAN) Name() string { return "can:" + c.ifName }
