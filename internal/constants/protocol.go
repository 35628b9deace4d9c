package constants

import "time"

// Mobile IM Protocol Constants
//
// Values below are fixed by the login cluster and the Android client build
// this module impersonates. Changing any of them breaks interoperability.

// Frame Layout Constants
const (
	// FrameLengthSize is the size of the big-endian length prefix of every frame.
	// The length includes the prefix itself.
	FrameLengthSize = 4

	// FrameMarkerLogin marks frames carrying the full SSO head (wtlogin.*, StatSvc.register, Heartbeat.Alive)
	FrameMarkerLogin = 0x0A

	// FrameMarkerUni marks steady-state frames with the short head
	FrameMarkerUni = 0x0B

	// MaxFrameSize is the largest declared frame length accepted from the server (10 MiB)
	MaxFrameSize = 10 << 20
)

// SSO Head Compression Flags
const (
	// CompressNone means the body is length-prefixed
	CompressNone = 0

	// CompressZlib means the length-prefixed body is zlib-deflated
	CompressZlib = 1

	// CompressRaw means the rest of the buffer is the body, no prefix
	CompressRaw = 8
)

// Oicq Login Packet Constants
const (
	// OicqVersion is the fixed version word of the 0x810 login envelope
	OicqVersion = 8001

	// OicqCmdLogin is the oicq command id of wtlogin.login and wtlogin.exchange_emp
	OicqCmdLogin = 0x810

	// OicqCmdTransEmp is the oicq command id of wtlogin.trans_emp (QR login)
	OicqCmdTransEmp = 0x812

	// OicqHeaderSize is the size of the response envelope before the encrypted body
	OicqHeaderSize = 16
)

// Sequence Constants
const (
	// SeqWrap is the exclusive upper bound of sequence ids; allocation wraps to 1 here.
	SeqWrap = 0x8000

	// SessionNonceSize is the size of the random per-process session nonce
	SessionNonceSize = 4
)

// Service Commands
const (
	CmdLogin        = "wtlogin.login"
	CmdExchangeEmp  = "wtlogin.exchange_emp"
	CmdTransEmp     = "wtlogin.trans_emp"
	CmdRegister     = "StatSvc.register"
	CmdHeartbeat    = "Heartbeat.Alive"
	CmdPushReq      = "ConfigPushSvc.PushReq"
	CmdPushResp     = "ConfigPushSvc.PushResp"
	CmdForceOffline = "MessageSvc.PushForceOffline"
	CmdMSFOffline   = "StatSvc.ReqMSFOffline"
)

// Endpoint Constants
const (
	// DefaultHost is resolved when no explicit endpoints are configured
	DefaultHost = "msfwifi.3g.qq.com"

	// DefaultPort is the login cluster port
	DefaultPort = 8080
)

// Timing Constants
const (
	// DefaultRequestTimeout bounds a single Send round trip
	DefaultRequestTimeout = 5 * time.Second

	// DefaultHeartbeatInterval is the period of Heartbeat.Alive
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultHeartbeatGrace is how recently a frame must have arrived for a failed
	// heartbeat retry to be forgiven
	DefaultHeartbeatGrace = 10 * time.Second

	// DefaultReconnectDelay is the fixed delay before reconnecting
	DefaultReconnectDelay = 5 * time.Second

	// DefaultTokenRefreshBefore triggers wtlogin.exchange_emp this long before the sig bundle expires
	DefaultTokenRefreshBefore = 24 * time.Hour
)
