// Package main starts a NanoFlow server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/micromdm/nanoflow/ca"
	"github.com/micromdm/nanoflow/dispatch"
	dispatchhttp "github.com/micromdm/nanoflow/dispatch/http"
	"github.com/micromdm/nanoflow/event"
	"github.com/micromdm/nanoflow/event/bus"
	"github.com/micromdm/nanoflow/event/pulse"
	httpflow "github.com/micromdm/nanoflow/http"
	"github.com/micromdm/nanoflow/log/logkeys"
	idhttp "github.com/micromdm/nanoflow/subsystem/identity/http"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/stdlogfmt"
	"github.com/redis/go-redis/v9"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "nanoflow"
	apiRealm    = "nanoflow"

	defaultCAName   = "NanoFlow CA"
	maxMessageBytes = 1024 * 1024
)

func main() {
	var (
		flDebug     = flag.Bool("debug", false, "log debug messages")
		flListen    = flag.String("listen", ":9005", "HTTP listen address")
		flVersion   = flag.Bool("version", false, "print version and exit")
		flDumpMsg   = flag.Bool("dump-message", false, "dump message input")
		flAPIKey    = flag.String("api", "", "API key for API endpoints")
		flStorage   = flag.String("storage", "file", "name of storage backend")
		flDSN       = flag.String("storage-dsn", "", "data source name (e.g. connection string or path)")
		flCACert    = flag.String("ca-cert", "", "path to CA certificate (PEM)")
		flCAKey     = flag.String("ca-key", "", "path to CA private key (PEM)")
		flValidity  = flag.Duration("cert-validity", ca.DefaultValidity, "validity of issued client certificates")
		flCacheSize = flag.Int("enrol-cache-size", 0, "capacity of the enrollment cache (0 for default)")
		flRedisAddr = flag.String("redis-addr", "", "Redis address for publishing events to a Pulse stream")
		flStream    = flag.String("event-stream", pulse.DefaultStream, "name of the Pulse event stream")
	)
	envflag.Parse("NANOFLOW_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	// configure storage
	storage, err := parseStorage(*flStorage, *flDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	authority, err := loadAuthority(logger, *flCACert, *flCAKey, *flValidity)
	if err != nil {
		logger.Info(logkeys.Message, "configuring authority", logkeys.Error, err)
		os.Exit(1)
	}

	publisher, err := newPublisher(logger, *flRedisAddr, *flStream)
	if err != nil {
		logger.Info(logkeys.Message, "configuring events", logkeys.Error, err)
		os.Exit(1)
	}

	d := dispatch.New(storage.flow, dispatch.WithLogger(logger.With("service", "dispatch")))

	err = registerFlows(logger, d, storage, authority, publisher, *flCacheSize)
	if err != nil {
		logger.Info(logkeys.Message, "registering flows", logkeys.Error, err)
		os.Exit(1)
	}

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))

	var h http.Handler = dispatchhttp.MessageHandler(d, logger.With("handler", "message"))
	if *flDumpMsg {
		h = httpflow.DumpHandler(h, os.Stdout)
	}
	mux.Handle("/message", httpflow.LimitBodyHandler(h, maxMessageBytes), "POST")

	if *flAPIKey != "" {
		mux.Group(func(mux *flow.Mux) {
			mux.Use(func(h http.Handler) http.Handler {
				return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
			})

			dispatchhttp.HandleAPIv1("/v1", mux, logger, storage.flow)
			idhttp.HandleAPIv1("/v1", mux, logger, storage.identity)
		})
	}

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

// loadAuthority loads the CA from disk if configured.
// Otherwise an ephemeral CA is generated.
func loadAuthority(logger log.Logger, certFile, keyFile string, validity time.Duration) (*ca.Authority, error) {
	opts := []ca.Option{ca.WithValidity(validity)}
	if certFile != "" || keyFile != "" {
		return ca.LoadAuthority(certFile, keyFile, opts...)
	}
	logger.Info(logkeys.Message, "no CA configured: generating ephemeral CA")
	return ca.GenerateAuthority(defaultCAName, opts...)
}

// newPublisher configures the in-process event bus and, if a Redis
// address is given, the Pulse stream publisher.
func newPublisher(logger log.Logger, redisAddr, stream string) (event.Publisher, error) {
	b := bus.New(bus.WithLogger(logger.With("service", "events")))
	b.Subscribe(event.TopicClientEnrollment, func(_ context.Context, e *bus.Event) error {
		logger.Info(
			logkeys.Message, "client enrolled",
			logkeys.Topic, e.Topic,
			logkeys.ClientID, string(e.Payload),
		)
		return nil
	})
	if redisAddr == "" {
		return b, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	p, err := pulse.New(
		rdb,
		pulse.WithStreamName(stream),
		pulse.WithTimeout(5*time.Second),
		pulse.WithLogger(logger.With("service", "pulse")),
	)
	if err != nil {
		return nil, err
	}
	return event.Multi{b, p}, nil
}

// newTraceID generates a new HTTP trace ID for context logging.
// Currently this just makes a random string.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
