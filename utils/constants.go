// File: utils/constants.go
package utils

import "time"

// SessionCachePrefix is the prefix used for Redis session snapshot keys.
const SessionCachePrefix = "negotiation:session:"

// SessionCacheTTL is how long a session snapshot stays readable after its
// last transition, including terminal ones.
const SessionCacheTTL = 15 * time.Minute

// DialogMemoryPrefix is the prefix used for per-user recent dialogue keys.
const DialogMemoryPrefix = "dialogue:recent:"

// DialogMemoryTTL bounds how long a dialogue key counts as recently heard.
const DialogMemoryTTL = 24 * time.Hour

// DialogMemorySize caps how many recent keys are retained per user.
const DialogMemorySize = 40
