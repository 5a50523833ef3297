package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gleanhub/go-claimsync"
	"github.com/gleanhub/go-claimsync/common/api"
	"github.com/gleanhub/go-claimsync/common/aws/config"
	"github.com/gleanhub/go-claimsync/common/aws/ddb"
	"github.com/gleanhub/go-claimsync/common/aws/storage"
	"github.com/gleanhub/go-claimsync/common/connectivity"
	"github.com/gleanhub/go-claimsync/common/db"
	"github.com/gleanhub/go-claimsync/common/loggers"
	"github.com/gleanhub/go-claimsync/common/metrics"
	"github.com/gleanhub/go-claimsync/common/notifs"
	"github.com/gleanhub/go-claimsync/models"
	"github.com/gleanhub/go-claimsync/queue"
	"github.com/gleanhub/go-claimsync/services"
	"github.com/gleanhub/go-claimsync/store"
)

const defaultDbPath = "claimsync.db"

type CreateCmd struct {
	ListingId      string  `arg:"--listing,required" help:"listing to claim from"`
	ListingOwnerId string  `arg:"--owner,required" help:"listing owner id"`
	RequestId      string  `arg:"--request" help:"originating request id"`
	Quantity       float64 `arg:"--quantity,required" help:"quantity to claim"`
	Notes          string  `arg:"--notes" help:"optional notes"`
}

type TransitionCmd struct {
	ClaimId string `arg:"--claim,required" help:"claim id"`
	Status  string `arg:"--status,required" help:"target status"`
	Notes   string `arg:"--notes" help:"optional notes"`
}

type SyncCmd struct{}

type ViewCmd struct {
	Status string `arg:"--status" help:"only show claims with this status"`
}

type AgentCmd struct{}

func main() {
	// The env file is optional; deployed agents get their environment injected.
	if err := godotenv.Load("env/.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("main: error loading env file: %v", err)
	}

	var args struct {
		Create     *CreateCmd     `arg:"subcommand:create" help:"claim a quantity from a listing"`
		Transition *TransitionCmd `arg:"subcommand:transition" help:"move a claim to a new status"`
		Sync       *SyncCmd       `arg:"subcommand:sync" help:"replay queued actions now"`
		View       *ViewCmd       `arg:"subcommand:view" help:"show cached claims and pending work"`
		Agent      *AgentCmd      `arg:"subcommand:agent" help:"run the connectivity-driven sync agent"`
		ViewerId   string         `arg:"--viewer,env:CLAIM_VIEWER_ID" help:"acting viewer id"`
	}
	parser := arg.MustParse(&args)
	if parser.Subcommand() == nil {
		parser.Fail("missing subcommand")
	}
	if len(args.ViewerId) == 0 {
		parser.Fail("a viewer id is required (--viewer or " + claimsync.Env_ViewerId + ")")
	}

	logger := loggers.NewLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricService, err := metrics.NewMetricService(ctx, logger)
	if err != nil {
		logger.Fatalf("main: error creating metric service: %v", err)
	}
	defer metricService.Shutdown(ctx)

	notifier, err := notifs.NewDiscordHandler(logger)
	if err != nil {
		logger.Fatalf("main: error creating discord handler: %v", err)
	}

	kvRepository, err := newKvRepository(ctx, logger)
	if err != nil {
		logger.Fatalf("main: error creating state repository: %v", err)
	}

	claimStore := store.NewClaimCache(logger, metricService, kvRepository)
	actionQueue := queue.NewOfflineActionQueue(logger, metricService, notifier, kvRepository)
	claimApi := api.NewClaimApiClient(logger)
	monitor := connectivity.NewMonitor(logger, connectivity.NewHttpProber(logger))
	coordinator := services.NewClaimCoordinator(ctx, logger, metricService, notifier, args.ViewerId, claimStore, actionQueue, claimApi, monitor)

	switch {
	case args.Create != nil:
		monitor.Check(ctx)
		runCreate(ctx, coordinator, args.Create, logger)
	case args.Transition != nil:
		monitor.Check(ctx)
		runTransition(ctx, coordinator, args.Transition, logger)
	case args.Sync != nil:
		runSync(ctx, coordinator)
	case args.View != nil:
		runView(ctx, coordinator, args.View, logger)
	case args.Agent != nil:
		monitor.OnReconnect(func(syncCtx context.Context) {
			coordinator.Sync(syncCtx)
		})
		logger.Infof("main: agent started for viewer %s", args.ViewerId)
		monitor.Run(ctx)
	}
}

func runCreate(ctx context.Context, coordinator *services.ClaimCoordinator, cmd *CreateCmd, logger models.Logger) {
	params := &models.CreateClaimParams{
		ListingId:       cmd.ListingId,
		ListingOwnerId:  cmd.ListingOwnerId,
		QuantityClaimed: cmd.Quantity,
	}
	if len(cmd.RequestId) > 0 {
		params.RequestId = &cmd.RequestId
	}
	if len(cmd.Notes) > 0 {
		params.Notes = &cmd.Notes
	}
	outcome, err := coordinator.CreateClaim(ctx, params)
	if err != nil {
		logger.Fatalf("create: %v", err)
	}
	if outcome.State == services.OutcomeState_Queued {
		fmt.Printf("claim %s queued for submission on reconnect\n", outcome.Claim.Id)
		return
	}
	fmt.Printf("claim %s submitted\n", outcome.Claim.Id)
}

func runTransition(ctx context.Context, coordinator *services.ClaimCoordinator, cmd *TransitionCmd, logger models.Logger) {
	params := &models.TransitionParams{Status: models.ClaimStatus(cmd.Status)}
	if len(cmd.Notes) > 0 {
		params.Notes = &cmd.Notes
	}
	outcome, err := coordinator.TransitionClaim(ctx, cmd.ClaimId, params)
	if err != nil {
		logger.Fatalf("transition: %v", err)
	}
	switch outcome.State {
	case services.OutcomeState_Queued:
		fmt.Printf("claim %s marked %s locally, queued for replay\n", outcome.Claim.Id, outcome.Claim.Status)
	case services.OutcomeState_Ignored:
		fmt.Printf("claim %s already has a transition in flight\n", cmd.ClaimId)
	default:
		fmt.Printf("claim %s is now %s\n", outcome.Claim.Id, outcome.Claim.Status)
	}
}

func runSync(ctx context.Context, coordinator *services.ClaimCoordinator) {
	report := coordinator.Sync(ctx)
	if report.AlreadyRunning {
		fmt.Println("a sync pass is already running")
		return
	}
	fmt.Printf("synced %d action(s), %d remaining\n", report.Synced, report.Remaining)
	if report.Cause != nil {
		fmt.Printf("stalled on: %v\n", report.Cause)
	}
}

// claimRow is the view subcommand's output shape: the cached claim plus the
// sync badge and the policy-derived controls a UI would render.
type claimRow struct {
	models.Claim
	PendingSync    bool                 `json:"pendingSync,omitempty"`
	AllowedActions []models.ClaimStatus `json:"allowedActions,omitempty"`
}

func runView(ctx context.Context, coordinator *services.ClaimCoordinator, cmd *ViewCmd, logger models.Logger) {
	var view services.ClaimView
	if len(cmd.Status) > 0 {
		view = coordinator.ViewFiltered(ctx, models.ClaimStatus(cmd.Status))
	} else {
		view = coordinator.View(ctx)
	}
	rows := make([]claimRow, len(view.Claims))
	for idx, claim := range view.Claims {
		rows[idx] = claimRow{
			Claim:          claim,
			PendingSync:    view.IsPending(claim.Id),
			AllowedActions: view.AllowedActions(claim),
		}
	}
	encoded, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		logger.Fatalf("view: error encoding claims: %v", err)
	}
	fmt.Println(string(encoded))
}

func newKvRepository(ctx context.Context, logger models.Logger) (models.KeyValueRepository, error) {
	backend, found := os.LookupEnv(claimsync.Env_StoreBackend)
	if !found {
		backend = claimsync.StoreBackend_Sqlite
	}
	switch backend {
	case claimsync.StoreBackend_Sqlite:
		dbPath := os.Getenv(claimsync.Env_DbPath)
		if len(dbPath) == 0 {
			dbPath = defaultDbPath
		}
		return db.NewSqliteStore(ctx, dbPath)
	case claimsync.StoreBackend_Memory:
		return db.NewMemoryStore(), nil
	case claimsync.StoreBackend_Ddb:
		awsCfg, err := config.AwsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return ddb.NewKvStore(ctx, logger, dynamodb.NewFromConfig(awsCfg))
	case claimsync.StoreBackend_S3:
		awsCfg, err := config.AwsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Store(logger, s3.NewFromConfig(awsCfg)), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
