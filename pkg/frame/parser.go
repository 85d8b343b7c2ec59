package frame

import (
	log "github.com/sirupsen/logrus"
)

// Parser states
const (
	stateWaitSTX = iota
	stateReadLen
	stateReadData
	stateReadCRCLow
	stateReadCRCHigh
	stateWaitETX
)

// AckWriter emits the single-byte acknowledgement after a validated frame.
// The serial link satisfies this; tests substitute a recorder.
type AckWriter interface {
	WriteRaw(b byte) error
}

// Parser is the streaming state machine that reassembles frames from the
// serial byte stream. It is owned by a single goroutine (the RX loop) and
// rebuilt from scratch on every reconnect so no half-frame survives a
// session boundary.
type Parser struct {
	proto   Protocol
	onFrame func(data []byte)
	ack     AckWriter

	state   int
	buf     []byte
	dataLen int
	recvCRC uint16
}

// NewParser returns a parser in the WAIT_STX state. onFrame is invoked
// synchronously with a copy of each validated payload. ack may be nil, in
// which case no acknowledgement is sent.
func NewParser(p Protocol, onFrame func([]byte), ack AckWriter) *Parser {
	return &Parser{
		proto:   p,
		onFrame: onFrame,
		ack:     ack,
		state:   stateWaitSTX,
		buf:     make([]byte, 0, p.MaxLen),
	}
}

// ProcessByte advances the state machine by one byte. Bytes outside a frame
// are discarded; frames with an invalid length, CRC or terminator are
// dropped without emission and the parser resyncs on the next STX.
func (p *Parser) ProcessByte(b byte) {
	switch p.state {
	case stateWaitSTX:
		if b == p.proto.STX {
			p.state = stateReadLen
			p.buf = p.buf[:0]
		}

	case stateReadLen:
		p.dataLen = int(b)
		// length must be greater than 0 and within the protocol limit
		if p.dataLen >= 1 && p.dataLen <= p.proto.MaxLen {
			p.state = stateReadData
		} else {
			p.state = stateWaitSTX
		}

	case stateReadData:
		p.buf = append(p.buf, b)
		if len(p.buf) == p.dataLen {
			p.state = stateReadCRCLow
		}

	case stateReadCRCLow:
		p.recvCRC = uint16(b)
		p.state = stateReadCRCHigh

	case stateReadCRCHigh:
		p.recvCRC |= uint16(b) << 8
		p.state = stateWaitETX

	case stateWaitETX:
		if b == p.proto.ETX {
			if checksumLenData(byte(p.dataLen), p.buf) == p.recvCRC {
				if p.onFrame != nil {
					data := make([]byte, len(p.buf))
					copy(data, p.buf)
					p.onFrame(data)
				}
				p.sendAck()
			} else {
				log.Debugf("[FRAME] CRC mismatch, dropping %d byte frame", p.dataLen)
			}
		}
		// Reset is unconditional: a corrupt frame never leaves the parser
		// in an intermediate state.
		p.state = stateWaitSTX
	}
}

// sendAck writes the ACK byte for a validated frame. Write failures are
// swallowed; a broken port surfaces as a transport error on the next read.
func (p *Parser) sendAck() {
	if p.ack == nil {
		return
	}
	if err := p.ack.WriteRaw(p.proto.ACK); err != nil {
		log.Debugf("[FRAME] ack write failed: %v", err)
	}
}
