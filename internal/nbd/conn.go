package nbd

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
)

// connection wraps a net.Conn with buffered big-endian codec helpers.
// All NBD wire integers are network byte order.
type connection struct {
	nc net.Conn
	b  *bufio.ReadWriter

	scratch [8]byte
}

func newConnection(nc net.Conn) *connection {
	return &connection{
		nc: nc,
		b:  bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc)),
	}
}

func (c *connection) ReadFull(p []byte) error {
	_, err := io.ReadFull(c.b, p)
	return err
}

func (c *connection) ReadUint16() (uint16, error) {
	p := c.scratch[:2]
	_, err := io.ReadFull(c.b, p)
	return binary.BigEndian.Uint16(p), err
}

func (c *connection) ReadUint32() (uint32, error) {
	p := c.scratch[:4]
	_, err := io.ReadFull(c.b, p)
	return binary.BigEndian.Uint32(p), err
}

func (c *connection) ReadUint64() (uint64, error) {
	p := c.scratch[:8]
	_, err := io.ReadFull(c.b, p)
	return binary.BigEndian.Uint64(p), err
}

func (c *connection) Write(p []byte) error {
	_, err := c.b.Write(p)
	return err
}

func (c *connection) WriteUint16(v uint16) error {
	p := c.scratch[:2]
	binary.BigEndian.PutUint16(p, v)
	_, err := c.b.Write(p)
	return err
}

func (c *connection) WriteUint32(v uint32) error {
	p := c.scratch[:4]
	binary.BigEndian.PutUint32(p, v)
	_, err := c.b.Write(p)
	return err
}

func (c *connection) WriteUint64(v uint64) error {
	p := c.scratch[:8]
	binary.BigEndian.PutUint64(p, v)
	_, err := c.b.Write(p)
	return err
}

// WriteZeroes emits n zero bytes.
func (c *connection) WriteZeroes(n int) error {
	var zero [128]byte
	for n > 0 {
		chunk := n
		if chunk > len(zero) {
			chunk = len(zero)
		}
		if _, err := c.b.Write(zero[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Discard consumes and drops n bytes from the read side.
func (c *connection) Discard(n int64) error {
	_, err := io.CopyN(io.Discard, c.b, n)
	return err
}

func (c *connection) Flush() error {
	return c.b.Flush()
}

func (c *connection) Close() error {
	return c.nc.Close()
}

func (c *connection) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}
