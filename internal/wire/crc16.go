package wire

// CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xFFFF, no
// reflection, no final xor. This is the single canonical integrity
// check for image packets and datagram fragments alike.
const (
	crcPoly uint16 = 0x1021
	crcInit uint16 = 0xFFFF
)

var crcTable = buildCRCTable()

func buildCRCTable() [256]uint16 {
	var table [256]uint16
	for i := range 256 {
		crc := uint16(i) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

// CRC16 computes the CRC-16/CCITT-FALSE checksum of data.
func CRC16(data []byte) uint16 {
	crc := crcInit
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// VerifyCRC16 reports whether data checksums to want.
func VerifyCRC16(data []byte, want uint16) bool {
	return CRC16(data) == want
}
