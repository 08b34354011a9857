package library

// options.go handles options that control how the service is put together.
// Each option is a closure that sets a field of the options struct (as the handler does with its own options).

import (
	"time"

	"github.com/andrewwphillips/library/internal/config"
)

type options struct {
	databaseURL string // empty for the in-memory store
	maxConns    int32
	seed        bool

	secret       []byte
	tokenTTL     time.Duration
	issuer       string
	sharedSecret string
	loginRate    float64
	loginBurst   int

	path                                       string
	noConcurrency                              bool
	initialTimeout, pingFrequency, pongTimeout time.Duration
}

func defaultOptions() options {
	return options{
		secret:       []byte(config.DefaultSecret),
		sharedSecret: "secret",
		path:         "/graphql",
	}
}

// Database uses a PostgreSQL database (instead of keeping everything in memory), with a pool of up to
// maxConns connections (or the pgx default if maxConns is zero)
func Database(url string, maxConns int32) func(*options) {
	return func(opt *options) {
		opt.databaseURL = url
		opt.maxConns = maxConns
	}
}

// SampleData adds some sample authors and books to the store when the service starts
func SampleData(on bool) func(*options) {
	return func(opt *options) {
		opt.seed = on
	}
}

// Secret sets the key used to sign and verify login tokens
func Secret(secret string) func(*options) {
	return func(opt *options) {
		opt.secret = []byte(secret)
	}
}

// TokenTTL sets how long a login token is valid (default 24 hours)
func TokenTTL(ttl time.Duration) func(*options) {
	return func(opt *options) {
		opt.tokenTTL = ttl
	}
}

// Issuer sets the issuer that is added to, and required of, tokens
func Issuer(issuer string) func(*options) {
	return func(opt *options) {
		opt.issuer = issuer
	}
}

// SharedSecret sets the password of users created without one.  If empty such users can't log in.
func SharedSecret(secret string) func(*options) {
	return func(opt *options) {
		opt.sharedSecret = secret
	}
}

// LoginRate limits the number of logins per second (with bursts of up to burst).  Zero means no limit.
func LoginRate(perSecond float64, burst int) func(*options) {
	return func(opt *options) {
		opt.loginRate = perSecond
		opt.loginBurst = burst
	}
}

// Path sets the URL path of the GraphQL endpoint (default "/graphql")
func Path(path string) func(*options) {
	return func(opt *options) {
		opt.path = path
	}
}

// NoConcurrency stops query root fields being resolved in parallel
func NoConcurrency(on bool) func(*options) {
	return func(opt *options) {
		opt.noConcurrency = on
	}
}

// InitialTimeout sets how long to wait after a websocket is opened for the "connection_init" message
func InitialTimeout(timeout time.Duration) func(*options) {
	return func(opt *options) {
		opt.initialTimeout = timeout
	}
}

// PingFrequency says how often to send a "ping" message (graphql-transport-ws protocol) or a "ka" (keep alive)
// message (graphql-ws protocol)
func PingFrequency(freq time.Duration) func(*options) {
	return func(opt *options) {
		opt.pingFrequency = freq
	}
}

// PongTimeout sets how long to wait for a "pong" after sending a "ping" before closing the websocket
func PongTimeout(timeout time.Duration) func(*options) {
	return func(opt *options) {
		opt.pongTimeout = timeout
	}
}

// FromConfig applies all the settings of a loaded configuration
func FromConfig(c *config.Config) func(*options) {
	return func(opt *options) {
		for _, o := range []func(*options){
			Database(c.Database.URL, c.Database.MaxConns),
			SampleData(c.Seed),
			Secret(c.JWT.Secret),
			TokenTTL(c.JWT.TTL),
			Issuer(c.JWT.Issuer),
			SharedSecret(c.Auth.SharedSecret),
			LoginRate(c.Auth.LoginRate, c.Auth.LoginBurst),
			Path(c.Path),
			InitialTimeout(c.WS.InitialTimeout),
			PingFrequency(c.WS.PingFrequency),
			PongTimeout(c.WS.PongTimeout),
		} {
			o(opt)
		}
	}
}
