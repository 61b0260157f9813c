// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"net"
)

// Sender is a thin wrapper around a connected UDP socket. Writes are
// fire-and-forget; UDP loss is acceptable for meter data.
type Sender struct {
	conn *net.UDPConn
}

// NewSender resolves the target address and connects the socket.
func NewSender(target string) (*Sender, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve udp target %q: %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp target %q: %w", target, err)
	}
	return &Sender{conn: conn}, nil
}

func (s *Sender) Send(payload []byte) error {
	_, err := s.conn.Write(payload)
	return err
}

func (s *Sender) Close() error {
	return s.conn.Close()
}
