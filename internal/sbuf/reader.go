package sbuf

import (
	"bytes"
	"encoding/binary"
)

func goByteOrder(o ByteOrder) binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func structSize(v interface{}) int {
	n := binary.Size(v)
	if n < 0 {
		return -1
	}
	return n
}

func binaryRead(b []byte, order binary.ByteOrder, out interface{}) error {
	return binary.Read(bytes.NewReader(b), order, out)
}

// GetU8 reads an unsigned byte at i.
func (s *Sbuf) GetU8(i int) (uint8, error) {
	if i < 0 || i+1 > s.bufsize {
		return 0, ErrRange
	}
	return s.data[i], nil
}

// GetI8 reads a signed byte at i.
func (s *Sbuf) GetI8(i int) (int8, error) {
	u, err := s.GetU8(i)
	return int8(u), err
}

// GetU16 reads an unsigned 16-bit integer at i in the given byte order.
func (s *Sbuf) GetU16(i int, order ByteOrder) (uint16, error) {
	if i < 0 || i+2 > s.bufsize {
		return 0, ErrRange
	}
	return goByteOrder(order).Uint16(s.data[i : i+2]), nil
}

// GetI16 reads a signed 16-bit integer at i in the given byte order.
func (s *Sbuf) GetI16(i int, order ByteOrder) (int16, error) {
	u, err := s.GetU16(i, order)
	return int16(u), err
}

// GetU32 reads an unsigned 32-bit integer at i in the given byte order.
func (s *Sbuf) GetU32(i int, order ByteOrder) (uint32, error) {
	if i < 0 || i+4 > s.bufsize {
		return 0, ErrRange
	}
	return goByteOrder(order).Uint32(s.data[i : i+4]), nil
}

// GetI32 reads a signed 32-bit integer at i in the given byte order.
func (s *Sbuf) GetI32(i int, order ByteOrder) (int32, error) {
	u, err := s.GetU32(i, order)
	return int32(u), err
}

// GetU64 reads an unsigned 64-bit integer at i in the given byte order.
func (s *Sbuf) GetU64(i int, order ByteOrder) (uint64, error) {
	if i < 0 || i+8 > s.bufsize {
		return 0, ErrRange
	}
	return goByteOrder(order).Uint64(s.data[i : i+8]), nil
}

// GetI64 reads a signed 64-bit integer at i in the given byte order.
func (s *Sbuf) GetI64(i int, order ByteOrder) (int64, error) {
	u, err := s.GetU64(i, order)
	return int64(u), err
}
