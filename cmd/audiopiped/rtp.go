package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"syscall"

	"github.com/pion/rtp"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// rtpReceiver listens for inbound RTP audio, routes each packet to the
// sending SSRC's session, and forwards the enhanced audio back out as
// a new RTP packet. Modeled on the project's multicast RTP ingest loop:
// minimum-size validation, pion/rtp unmarshalling, and routing by SSRC.
type rtpReceiver struct {
	conn     *net.UDPConn
	sendAddr *net.UDPAddr
	sessions *sessionTable
	logger   *log.Logger

	sendSeq uint16
}

// newRTPReceiver opens a unicast UDP listener on listenAddr. Use
// newMulticastRTPReceiver instead when listenAddr names a multicast
// group.
func newRTPReceiver(listenAddr, sendAddr string, sessions *sessionTable, logger *log.Logger) (*rtpReceiver, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("rtp: invalid listen address %q: %w", listenAddr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("rtp: failed to listen on %q: %w", listenAddr, err)
	}
	saddr, err := net.ResolveUDPAddr("udp", sendAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtp: invalid send address %q: %w", sendAddr, err)
	}

	return &rtpReceiver{conn: conn, sendAddr: saddr, sessions: sessions, logger: logger}, nil
}

// newMulticastRTPReceiver opens a UDP socket bound to a multicast
// group's port with SO_REUSEPORT/SO_REUSEADDR set, then joins the
// group on ifaceName (or every interface, if ifaceName is ""). This
// mirrors the project's own radiod multicast ingest path: many
// enhancement pipelines can share one group, and the join survives a
// restart racing the previous process's socket teardown.
func newMulticastRTPReceiver(groupAddr, ifaceName, sendAddr string, sessions *sessionTable, logger *log.Logger) (*rtpReceiver, error) {
	addr, err := net.ResolveUDPAddr("udp4", groupAddr)
	if err != nil {
		return nil, fmt.Errorf("rtp: invalid multicast group address %q: %w", groupAddr, err)
	}
	if !addr.IP.IsMulticast() {
		return nil, fmt.Errorf("rtp: %q is not a multicast address", groupAddr)
	}

	var iface *net.Interface
	if ifaceName != "" {
		iface, err = net.InterfaceByName(ifaceName)
		if err != nil {
			return nil, fmt.Errorf("rtp: unknown multicast interface %q: %w", ifaceName, err)
		}
	}

	conn, err := setupMulticastSocket(addr, iface, logger)
	if err != nil {
		return nil, fmt.Errorf("rtp: failed to set up multicast socket on %q: %w", groupAddr, err)
	}

	saddr, err := net.ResolveUDPAddr("udp", sendAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtp: invalid send address %q: %w", sendAddr, err)
	}

	return &rtpReceiver{conn: conn, sendAddr: saddr, sessions: sessions, logger: logger}, nil
}

// setupMulticastSocket binds a UDP4 socket to addr's port with
// SO_REUSEPORT and SO_REUSEADDR set via the raw file descriptor, then
// joins addr's multicast group on iface (every interface, if iface is
// nil).
func setupMulticastSocket(addr *net.UDPAddr, iface *net.Interface, logger *log.Logger) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEPORT: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
					return
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", addr.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	udpConn := conn.(*net.UDPConn)

	if err := udpConn.SetReadBuffer(1024 * 1024); err != nil {
		logger.Printf("rtp: warning: failed to set read buffer size: %v", err)
	}

	p := ipv4.NewPacketConn(udpConn)
	if err := p.JoinGroup(iface, addr); err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("failed to join multicast group on %v: %w", iface, err)
	}

	return udpConn, nil
}

func (r *rtpReceiver) run() {
	buffer := make([]byte, 1500)
	wire := make([]byte, 4000)

	for {
		n, _, err := r.conn.ReadFromUDP(buffer)
		if err != nil {
			r.logger.Printf("rtp: read error: %v", err)
			continue
		}
		if n < 12 {
			continue
		}

		packet := &rtp.Packet{}
		if err := packet.Unmarshal(buffer[:n]); err != nil {
			r.logger.Printf("rtp: failed to parse packet: %v", err)
			continue
		}

		session, err := r.sessions.get(packet.SSRC)
		if err != nil {
			r.logger.Printf("rtp: failed to open session for ssrc %d: %v", packet.SSRC, err)
			continue
		}

		payloadLen, err := session.processPayload(packet.Payload, wire)
		if err != nil {
			r.logger.Printf("rtp: ssrc %d: %v", packet.SSRC, err)
			continue
		}

		r.sendSeq++
		out := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    packet.PayloadType,
				SequenceNumber: r.sendSeq,
				Timestamp:      packet.Timestamp,
				SSRC:           packet.SSRC,
			},
			Payload: wire[:payloadLen],
		}
		marshalled, err := out.Marshal()
		if err != nil {
			r.logger.Printf("rtp: ssrc %d: failed to marshal outbound packet: %v", packet.SSRC, err)
			continue
		}
		if _, err := r.conn.WriteToUDP(marshalled, r.sendAddr); err != nil {
			r.logger.Printf("rtp: ssrc %d: failed to send enhanced audio: %v", packet.SSRC, err)
		}
	}
}
