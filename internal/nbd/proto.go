// Package nbd implements a Network Block Device server speaking the
// fixed-newstyle handshake, per
// https://github.com/NetworkBlockDevice/nbd/blob/master/doc/proto.md
package nbd

// Handshake magics
const (
	nbdMagic         uint64 = 0x4e42444d41474943 // "NBDMAGIC"
	optMagic         uint64 = 0x49484156454F5054 // "IHAVEOPT"
	repMagic         uint64 = 0x3e889045565a9
	requestMagic     uint32 = 0x25609513
	simpleReplyMagic uint32 = 0x67446698
)

// Handshake flags (server) and client flags
const (
	flagFixedNewstyle uint16 = 1 << 0
	flagNoZeroes      uint16 = 1 << 1

	clientFlagFixedNewstyle uint32 = 1 << 0
	clientFlagNoZeroes      uint32 = 1 << 1
)

// Transmission flags
const (
	flagHasFlags  uint16 = 1 << 0
	flagSendFlush uint16 = 1 << 2
)

// Options
const (
	optExportName      uint32 = 1
	optAbort           uint32 = 2
	optList            uint32 = 3
	optInfo            uint32 = 6
	optGo              uint32 = 7
	optStructuredReply uint32 = 8
)

// Option reply types
const (
	repAck    uint32 = 1
	repServer uint32 = 2
	repInfo   uint32 = 3

	repErrUnsupported uint32 = 1<<31 | 1
	repErrUnknown     uint32 = 1<<31 | 6
)

// Info types carried in repInfo payloads
const (
	infoExport uint16 = 0
)

// Transmission commands
const (
	cmdRead  uint16 = 0
	cmdWrite uint16 = 1
	cmdDisc  uint16 = 2
	cmdFlush uint16 = 3
	cmdTrim  uint16 = 4
)

// Errno values carried in simple replies
const (
	errNone     uint32 = 0
	errIO       uint32 = 5
	errInval    uint32 = 22
	errNoSpace  uint32 = 28
	errOverflow uint32 = 75
	errNotSup   uint32 = 95
)

// maxRequestLength bounds a single transmission request payload.
// Requests above this are answered with EINVAL per the protocol's
// guidance on oversized requests.
const maxRequestLength = 32 << 20

// maxOptionLength bounds option data during the handshake.
const maxOptionLength = 4096
