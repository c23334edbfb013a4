package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	shconfig "github.com/skillhost/skillhost/config"
	"github.com/skillhost/skillhost/internal/bot"
	botapi "github.com/skillhost/skillhost/internal/bot/api"
	"github.com/skillhost/skillhost/internal/router"
	"github.com/skillhost/skillhost/internal/skillbot"
	"github.com/skillhost/skillhost/internal/telemetry"
	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/cards"
	"github.com/skillhost/skillhost/pkg/dialog"
	"github.com/skillhost/skillhost/pkg/events"
	"github.com/skillhost/skillhost/pkg/recognizer"
	"github.com/skillhost/skillhost/pkg/state"
	"github.com/skillhost/skillhost/pkg/urlvalidation"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[shconfig.ServiceConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("skillhost"),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), cfg.Role, eventRef)

	// --- Conversation state ---
	var store state.Store
	switch cfg.StateBackend {
	case "redis":
		rs, err := state.NewRedisStore(ctx, cfg.StateRedisURL, cfg.StateTTL())
		if err != nil {
			log.Fatalf("connecting redis state store: %v", err)
		}
		store = rs
	case "gorm", "postgres":
		store = state.NewGormStore(
			srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"),
		)
	default:
		ms := state.NewMemoryStore(cfg.StateTTL())
		defer ms.Close()
		store = ms
	}

	// --- Adaptive cards ---
	cardLoader := cards.NewLoader(cfg.CardsDir)
	if err := cardLoader.LoadAll(); err != nil {
		log.Printf("warning: loading cards: %v", err)
	}
	_ = pool.Submit(ctx, func() {
		if err := cardLoader.WatchAndReload(ctx.Done()); err != nil {
			log.Printf("warning: card watcher stopped: %v", err)
		}
	})

	// --- Language understanding ---
	var validateOpts []urlvalidation.Option
	if cfg.AllowPrivateEndpoints {
		validateOpts = append(validateOpts, urlvalidation.AllowPrivateIPs())
	}
	rec := recognizer.NewClient(cfg.RecognizerConfig(), pub, validateOpts...)

	// --- Root dialog ---
	var root dialog.Dialog
	if cfg.Role == "skill" {
		// Serve the flight-booking skill bot directly over the REST API so
		// a router instance can reach it through its HTTP connector.
		root = skillbot.NewActivityRouterDialog(rec, pub)
	} else {
		catalog := router.NewCatalog(cfg.SkillsFile)
		if err := catalog.Load(); err != nil {
			log.Printf("warning: loading skills catalog: %v", err)
		}
		_ = pool.Submit(ctx, func() {
			if err := catalog.WatchAndReload(ctx.Done()); err != nil {
				log.Printf("warning: catalog watcher stopped: %v", err)
			}
		})

		httpConn := router.NewHTTPConnector(validateOpts...)
		httpConn.SetTimeout(cfg.SkillTimeout())
		local := skillbot.NewLocalConnector(store, skillbot.NewActivityRouterDialog(rec, pub))

		conn := &dispatchConnector{local: local, remote: httpConn}
		root = router.NewMainDialog(catalog, conn, cardLoader, pub)
	}

	rootBot := bot.New(store, root, cardLoader, pub)

	// --- Telemetry ---
	repo := telemetry.NewRepository(
		srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"),
	)
	telemetrySub := &telemetry.Subscriber{Repo: repo}

	// --- HTTP API ---
	mux := http.NewServeMux()
	handler := botapi.NewHandler(rootBot, store)
	handler.RegisterRoutes(mux)

	srv.Init(ctx,
		frame.WithRegisterSubscriber(eventRef+".telemetry", eventURL, telemetrySub),
		frame.WithHTTPHandler(h2cHandler(mux)),
	)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}

// h2cHandler adds unencrypted HTTP/2 support so reverse proxies can
// multiplex conversation traffic over one upstream connection.
func h2cHandler(handler http.Handler) http.Handler {
	return h2c.NewHandler(handler, &http2.Server{
		MaxConcurrentStreams: 250,
		MaxReadFrameSize:     1 << 20,
	})
}

// dispatchConnector routes deliveries per skill: catalog entries with a
// "local" endpoint run in-process, everything else goes over HTTP.
type dispatchConnector struct {
	local  *skillbot.LocalConnector
	remote *router.HTTPConnector
}

func (d *dispatchConnector) Send(ctx context.Context, skill router.Skill, a *activity.Activity) (*router.Response, error) {
	if skill.Endpoint == "" || strings.EqualFold(skill.Endpoint, "local") {
		return d.local.Send(ctx, skill, a)
	}
	return d.remote.Send(ctx, skill, a)
}
