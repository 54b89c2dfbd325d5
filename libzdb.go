// Package libzdb re-exports the pool, dburl and zerr types that make up
// this module's public surface, so callers can depend on a single
// import path for the common case.
package libzdb

import (
	"github.com/karolsteve/libzdb/dburl"
	"github.com/karolsteve/libzdb/pool"
	"github.com/karolsteve/libzdb/zerr"
)

// Re-export dburl types and functions.
type URL = dburl.URL
type Param = dburl.Param

var ParseURL = dburl.Parse

// Re-export pool types and functions.
type ConnectionPool = pool.ConnectionPool
type Connection = pool.Connection
type PreparedStatement = pool.PreparedStatement
type ResultSet = pool.ResultSet
type DateTime = pool.DateTime
type TransactionType = pool.TransactionType
type Option = pool.Option

var NewConnectionPool = pool.New

const (
	TxDefault         = pool.TxDefault
	TxReadUncommitted = pool.TxReadUncommitted
	TxReadCommitted   = pool.TxReadCommitted
	TxRepeatableRead  = pool.TxRepeatableRead
	TxSerializable    = pool.TxSerializable
	TxImmediate       = pool.TxImmediate
	TxExclusive       = pool.TxExclusive
)

var (
	WithInitial                   = pool.WithInitial
	WithMax                       = pool.WithMax
	WithConnectionTimeout         = pool.WithConnectionTimeout
	WithSweepInterval             = pool.WithSweepInterval
	WithReaperEnabled             = pool.WithReaperEnabled
	WithLogger                    = pool.WithLogger
	WithSlowOpThreshold           = pool.WithSlowOpThreshold
	WithCircuitBreaker            = pool.WithCircuitBreaker
	WithDistributedCircuitBreaker = pool.WithDistributedCircuitBreaker
	LoadConfigFile                = pool.LoadConfigFile
	NewConnectionPoolFromConfig   = pool.NewFromConfigFile
)

type PoolFileConfig = pool.FileConfig

// Re-export zerr types and functions.
type Error = zerr.Error
type ErrorKind = zerr.Kind

const (
	SQL    = zerr.SQL
	Assert = zerr.Assert
)

var (
	SetAbortHandler = zerr.SetAbortHandler
	AsError         = zerr.AsError
)

// Version identifies this module for diagnostics and log lines.
const Version = pool.Version
