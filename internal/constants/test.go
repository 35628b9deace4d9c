package constants

import "time"

// Test Constants
//
// IMPORTANT: These constants are for testing only. DO NOT use in production code.

// Integration Test Timeout Constants
const (
	// TestRequestTimeout bounds round trips against the in-process fake server
	TestRequestTimeout = 2 * time.Second

	// TestShortTimeout is used where a request is expected to time out
	TestShortTimeout = 50 * time.Millisecond

	// TestEventWait bounds waiting for an asynchronous event in tests
	TestEventWait = 3 * time.Second
)

// Test Account Constants
const (
	// TestUin is the account number used by fixtures
	TestUin = 10001

	// TestPassword is the plaintext password used by fixtures
	TestPassword = "secret"
)
