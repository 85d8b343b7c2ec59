package frame

import "github.com/sigurn/crc16"

// checksumTable drives every CRC computation in this package.
// CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xFFFF, no input or
// output reflection, no final xor. The panel firmware must use the same
// variant; this table is the single place to swap if it does not.
var checksumTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes the CRC-16 of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, checksumTable)
}

// checksumLenData computes the CRC-16 over LEN || DATA, the region the wire
// protocol protects, without assembling a combined buffer.
func checksumLenData(length byte, data []byte) uint16 {
	crc := crc16.Init(checksumTable)
	crc = crc16.Update(crc, []byte{length}, checksumTable)
	crc = crc16.Update(crc, data, checksumTable)
	return crc16.Complete(crc, checksumTable)
}
