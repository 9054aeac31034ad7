package nbd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"

	"golang.org/x/net/netutil"

	"github.com/ehrlich-b/vramblk/internal/constants"
	"github.com/ehrlich-b/vramblk/internal/errdefs"
	"github.com/ehrlich-b/vramblk/internal/interfaces"
	"github.com/ehrlich-b/vramblk/internal/logging"
	"github.com/ehrlich-b/vramblk/internal/metrics"
)

// Config holds NBD server configuration.
type Config struct {
	// ListenAddr is the TCP address to listen on.
	ListenAddr string

	// ExportName is the single export this server offers.
	ExportName string

	// MaxConns bounds concurrent client connections; 0 means the default.
	MaxConns int

	// Logger defaults to the process logger when nil.
	Logger *logging.Logger
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = constants.DefaultListenAddr
	}
	if c.ExportName == "" {
		c.ExportName = constants.DefaultExportName
	}
	if c.MaxConns <= 0 {
		c.MaxConns = constants.DefaultMaxConns
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
}

// Serve listens on cfg.ListenAddr and serves backend to NBD clients
// until ctx is cancelled. It returns after the listener is closed and
// all in-flight connections have unwound.
func Serve(ctx context.Context, backend interfaces.Backend, cfg Config, m *metrics.Metrics) error {
	cfg.applyDefaults()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("nbd listen on %s: %w", cfg.ListenAddr, err)
	}
	ln = netutil.LimitListener(ln, cfg.MaxConns)

	cfg.Logger.Info("nbd server listening",
		"addr", cfg.ListenAddr,
		"export", cfg.ExportName,
		"size", backend.Size())

	// Closing the listener is how cancellation reaches the Accept loop.
	// In-flight connections are left alone; they drain as clients
	// disconnect.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	err = serveListener(ln, backend, cfg, m)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// serveListener accepts connections until the listener is closed, then
// waits for every live connection to finish. Split from Serve so tests
// can drive it with their own listener.
func serveListener(ln net.Listener, backend interfaces.Backend, cfg Config, m *metrics.Metrics) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Transient failures (out of fds, aborted connections) keep
			// the listener alive; anything else is terminal.
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				cfg.Logger.Warn("accept failed", "error", err.Error())
				continue
			}
			return fmt.Errorf("nbd accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			h := &connHandler{
				conn:    newConnection(nc),
				backend: backend,
				export:  cfg.ExportName,
				metrics: m,
				log:     cfg.Logger.WithConn(nc.RemoteAddr().String()),
			}
			h.serve()
		}()
	}
}

// connHandler owns one client connection from handshake through
// transmission.
type connHandler struct {
	conn    *connection
	backend interfaces.Backend
	export  string
	metrics *metrics.Metrics
	log     *logging.Logger

	noZeroes bool
}

func (h *connHandler) serve() {
	defer h.conn.Close()

	h.log.Debug("client connected")

	err := h.handshake()
	if err == nil {
		err = h.transmission()
	}

	switch {
	case err == nil:
		h.log.Debug("client disconnected")
	case isClientGone(err):
		h.log.Debug("client connection closed", "reason", err.Error())
	default:
		h.log.Warn("connection failed", "error", err.Error())
	}
}

// isClientGone reports whether err is an ordinary client disconnect
// rather than a protocol or I/O failure worth a warning.
func isClientGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// handshake runs the fixed-newstyle negotiation. On return without
// error the client has bound the export and transmission may begin.
func (h *connHandler) handshake() error {
	if err := h.conn.WriteUint64(nbdMagic); err != nil {
		return err
	}
	if err := h.conn.WriteUint64(optMagic); err != nil {
		return err
	}
	if err := h.conn.WriteUint16(flagFixedNewstyle | flagNoZeroes); err != nil {
		return err
	}
	if err := h.conn.Flush(); err != nil {
		return err
	}

	clientFlags, err := h.conn.ReadUint32()
	if err != nil {
		return err
	}
	if clientFlags&clientFlagFixedNewstyle == 0 {
		return fmt.Errorf("client does not speak fixed newstyle (flags %#x)", clientFlags)
	}
	h.noZeroes = clientFlags&clientFlagNoZeroes != 0

	for {
		magic, err := h.conn.ReadUint64()
		if err != nil {
			return err
		}
		if magic != optMagic {
			return fmt.Errorf("bad option magic %#x", magic)
		}
		opt, err := h.conn.ReadUint32()
		if err != nil {
			return err
		}
		length, err := h.conn.ReadUint32()
		if err != nil {
			return err
		}
		if length > maxOptionLength {
			return fmt.Errorf("option %d data too long (%d bytes)", opt, length)
		}
		data := make([]byte, length)
		if err := h.conn.ReadFull(data); err != nil {
			return err
		}

		switch opt {
		case optExportName:
			return h.handleExportName(string(data))

		case optGo, optInfo:
			done, err := h.handleGo(opt, data)
			if err != nil {
				return err
			}
			if done {
				return nil
			}

		case optList:
			if err := h.handleList(); err != nil {
				return err
			}

		case optAbort:
			h.sendOptionReply(optAbort, repAck, nil)
			h.conn.Flush()
			return fmt.Errorf("client aborted negotiation: %w", io.EOF)

		default:
			h.log.Debug("unsupported option", "opt", opt)
			if err := h.sendOptionReply(opt, repErrUnsupported, nil); err != nil {
				return err
			}
			if err := h.conn.Flush(); err != nil {
				return err
			}
		}
	}
}

// handleExportName answers the legacy NBD_OPT_EXPORT_NAME. There is no
// error path in the protocol here: a bad name just drops the
// connection. The name must match the configured export byte-exact;
// the empty default-export name is not served.
func (h *connHandler) handleExportName(name string) error {
	if name != h.export {
		return errdefs.NewError("handshake", errdefs.ErrCodeProtocol, fmt.Sprintf("unknown export %q", name))
	}
	if err := h.conn.WriteUint64(uint64(h.backend.Size())); err != nil {
		return err
	}
	if err := h.conn.WriteUint16(flagHasFlags | flagSendFlush); err != nil {
		return err
	}
	if !h.noZeroes {
		if err := h.conn.WriteZeroes(124); err != nil {
			return err
		}
	}
	return h.conn.Flush()
}

// handleGo answers NBD_OPT_GO and NBD_OPT_INFO. It returns done=true
// when the option was GO and negotiation is complete.
func (h *connHandler) handleGo(opt uint32, data []byte) (bool, error) {
	if len(data) < 6 {
		return false, fmt.Errorf("short option %d payload (%d bytes)", opt, len(data))
	}
	nameLen := binary.BigEndian.Uint32(data[0:4])
	if int(nameLen) > len(data)-6 {
		return false, fmt.Errorf("option %d name length %d exceeds payload", opt, nameLen)
	}
	name := string(data[4 : 4+nameLen])

	// Information requests follow the name; we always send the export
	// info block, so they need no individual handling.

	if name != h.export {
		h.log.Debug("export not found", "name", name)
		if err := h.sendOptionReply(opt, repErrUnknown, []byte("export unknown")); err != nil {
			return false, err
		}
		return false, h.conn.Flush()
	}

	// NBD_REP_INFO with NBD_INFO_EXPORT: size and transmission flags.
	info := make([]byte, 12)
	binary.BigEndian.PutUint16(info[0:2], infoExport)
	binary.BigEndian.PutUint64(info[2:10], uint64(h.backend.Size()))
	binary.BigEndian.PutUint16(info[10:12], flagHasFlags|flagSendFlush)
	if err := h.sendOptionReply(opt, repInfo, info); err != nil {
		return false, err
	}

	if err := h.sendOptionReply(opt, repAck, nil); err != nil {
		return false, err
	}
	if err := h.conn.Flush(); err != nil {
		return false, err
	}
	return opt == optGo, nil
}

// handleList advertises the single export.
func (h *connHandler) handleList() error {
	name := []byte(h.export)
	payload := make([]byte, 4+len(name))
	binary.BigEndian.PutUint32(payload[0:4], uint32(len(name)))
	copy(payload[4:], name)
	if err := h.sendOptionReply(optList, repServer, payload); err != nil {
		return err
	}
	if err := h.sendOptionReply(optList, repAck, nil); err != nil {
		return err
	}
	return h.conn.Flush()
}

func (h *connHandler) sendOptionReply(opt, replyType uint32, data []byte) error {
	if err := h.conn.WriteUint64(repMagic); err != nil {
		return err
	}
	if err := h.conn.WriteUint32(opt); err != nil {
		return err
	}
	if err := h.conn.WriteUint32(replyType); err != nil {
		return err
	}
	if err := h.conn.WriteUint32(uint32(len(data))); err != nil {
		return err
	}
	if len(data) > 0 {
		return h.conn.Write(data)
	}
	return nil
}

// transmission is the request/reply loop after negotiation. Each
// connection gets its own Seeker over the shared backend.
func (h *connHandler) transmission() error {
	s := NewSeeker(h.backend)
	log := h.log.WithExport(h.export)
	log.Debug("entering transmission phase")

	for {
		magic, err := h.conn.ReadUint32()
		if err != nil {
			return err
		}
		if magic != requestMagic {
			return fmt.Errorf("bad request magic %#x", magic)
		}
		if _, err := h.conn.ReadUint16(); err != nil { // command flags, unused
			return err
		}
		cmd, err := h.conn.ReadUint16()
		if err != nil {
			return err
		}
		cookie, err := h.conn.ReadUint64()
		if err != nil {
			return err
		}
		offset, err := h.conn.ReadUint64()
		if err != nil {
			return err
		}
		length, err := h.conn.ReadUint32()
		if err != nil {
			return err
		}

		switch cmd {
		case cmdRead:
			err = h.doRead(s, cookie, offset, length)
		case cmdWrite:
			err = h.doWrite(s, cookie, offset, length)
		case cmdFlush:
			err = h.doFlush(cookie, offset, length)
		case cmdDisc:
			log.Debug("client requested disconnect")
			return nil
		default:
			// TRIM and anything newer: drain any payload, then ENOTSUP.
			log.Debug("unsupported command", "cmd", cmd)
			h.metrics.RecordError()
			err = h.simpleReply(cookie, errNotSup, nil)
		}
		if err != nil {
			return err
		}
		if err := h.conn.Flush(); err != nil {
			return err
		}
	}
}

func (h *connHandler) doRead(s *Seeker, cookie, offset uint64, length uint32) error {
	if length > maxRequestLength {
		h.metrics.RecordError()
		return h.simpleReply(cookie, errInval, nil)
	}
	if !requestInBounds(offset, length, s.Size()) {
		h.metrics.RecordError()
		return h.simpleReply(cookie, errInval, nil)
	}

	buf := getBuffer(length)
	defer putBuffer(buf)

	if _, err := s.Seek(int64(offset), io.SeekStart); err != nil {
		h.metrics.RecordError()
		return h.simpleReply(cookie, errInval, nil)
	}
	// In-bounds requests never clamp, so a short read is a fault.
	n, err := io.ReadFull(s, buf)
	if err != nil || n != int(length) {
		h.log.Warn("backend read failed", "offset", offset, "length", length, "error", errString(err))
		h.metrics.RecordError()
		return h.simpleReply(cookie, errIO, nil)
	}

	h.metrics.RecordRead(n)
	return h.simpleReply(cookie, errNone, buf)
}

func (h *connHandler) doWrite(s *Seeker, cookie, offset uint64, length uint32) error {
	if length > maxRequestLength {
		// Drain the oversized payload to keep the stream in sync, then
		// reject like an oversized read.
		if err := h.conn.Discard(int64(length)); err != nil {
			return err
		}
		h.metrics.RecordError()
		return h.simpleReply(cookie, errInval, nil)
	}

	buf := getBuffer(length)
	defer putBuffer(buf)

	// The payload must be consumed even when the request is rejected,
	// or the stream desynchronizes.
	if err := h.conn.ReadFull(buf); err != nil {
		return err
	}

	if !requestInBounds(offset, length, s.Size()) {
		h.metrics.RecordError()
		return h.simpleReply(cookie, errNoSpace, nil)
	}

	if _, err := s.Seek(int64(offset), io.SeekStart); err != nil {
		h.metrics.RecordError()
		return h.simpleReply(cookie, errInval, nil)
	}
	n, err := s.Write(buf)
	if err != nil {
		if errors.Is(err, ErrWritePastEnd) {
			h.metrics.RecordError()
			return h.simpleReply(cookie, errNoSpace, nil)
		}
		h.log.Warn("backend write failed", "offset", offset, "length", length, "error", errString(err))
		h.metrics.RecordError()
		return h.simpleReply(cookie, errIO, nil)
	}
	if n != int(length) {
		h.metrics.RecordError()
		return h.simpleReply(cookie, errNoSpace, nil)
	}

	h.metrics.RecordWrite(n)
	return h.simpleReply(cookie, errNone, nil)
}

// doFlush acknowledges a flush. The backends write through, so there is
// nothing to sync; offset and length must be zero per the protocol.
func (h *connHandler) doFlush(cookie, offset uint64, length uint32) error {
	if offset != 0 || length != 0 {
		h.metrics.RecordError()
		return h.simpleReply(cookie, errInval, nil)
	}
	h.metrics.RecordFlush()
	return h.simpleReply(cookie, errNone, nil)
}

func (h *connHandler) simpleReply(cookie uint64, errno uint32, data []byte) error {
	if err := h.conn.WriteUint32(simpleReplyMagic); err != nil {
		return err
	}
	if err := h.conn.WriteUint32(errno); err != nil {
		return err
	}
	if err := h.conn.WriteUint64(cookie); err != nil {
		return err
	}
	if len(data) > 0 {
		return h.conn.Write(data)
	}
	return nil
}

// requestInBounds reports whether [offset, offset+length) lies within
// the device. offset == size is out of bounds even for length 0.
func requestInBounds(offset uint64, length uint32, size int64) bool {
	if offset >= uint64(size) {
		return false
	}
	return uint64(length) <= uint64(size)-offset
}

func errString(err error) string {
	if err == nil {
		return "short I/O"
	}
	return err.Error()
}
