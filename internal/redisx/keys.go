package redisx

import "time"

const (
	// Verification codes: verify:email:{address} / verify:tel:{number} -> 6-digit code
	KeyVerifyEmail = "verify:email:%s"
	KeyVerifyTel   = "verify:tel:%s"
	// Wrong guesses against a stored code: verify:attempts:{code key} -> counter
	KeyVerifyAttempts = "verify:attempts:%s"

	// Dedup event processing: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLVerifyCode = 600 * time.Second
	TTLDedup      = 48 * time.Hour
)
