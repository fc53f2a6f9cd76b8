package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/daybook-app/daybook/internal/client/config"
	"github.com/daybook-app/daybook/internal/client/genai"
	"github.com/daybook-app/daybook/internal/client/localdb"
	"github.com/daybook-app/daybook/internal/client/netmon"
	"github.com/daybook-app/daybook/internal/client/remote"
	"github.com/daybook-app/daybook/internal/client/services"
	"github.com/daybook-app/daybook/internal/filex"
	"github.com/daybook-app/daybook/internal/logging"
)

type App struct {
	config  *config.Config
	log     logging.Logger
	db      *localdb.Repositories
	client  remote.Client
	monitor *netmon.Monitor
	auth    services.AuthService
	prompts *services.PromptService
	reader  *bufio.Reader

	// set after login
	owner       string
	syncer      services.SyncService
	attachments services.AttachmentService

	workersOnce sync.Once
	workerCtx   context.Context
	workerStop  context.CancelFunc
}

func NewApp(c *config.Config, log logging.Logger) (*App, error) {
	ctx := context.Background()

	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data dir: %w", err)
	}

	db, err := localdb.InitDatabase(ctx, c.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	apiClient := remote.NewHTTPClient(c.ServerEndpointAddr, log)
	monitor := netmon.New(apiClient, c.OnlineCheckInterval, log)

	var gen genai.Generator
	if c.AnthropicAPIKey != "" {
		gen = genai.NewAnthropicGenerator(c.AnthropicAPIKey)
	}

	return &App{
		config:  c,
		log:     log,
		db:      db,
		client:  apiClient,
		monitor: monitor,
		auth:    services.NewAuthService(apiClient, db.Settings),
		prompts: services.NewPromptService(gen, log),
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) isLoggedIn() bool {
	return a.owner != ""
}

// startSession builds the per-owner services and starts the background
// workers once a session exists.
func (a *App) startSession(ctx context.Context, owner string) {
	a.owner = owner
	a.syncer = services.NewSyncService(a.client, a.db.Entries, a.monitor, owner, a.log)
	a.attachments = services.NewAttachmentService(a.client, a.syncer, a.db.Settings, a.monitor, a.config.AttachmentsDir(), a.log)

	a.workersOnce.Do(func() {
		a.workerCtx, a.workerStop = context.WithCancel(ctx)
		go a.syncer.Run(a.workerCtx)
		go a.attachments.Run(a.workerCtx)
	})
}

func (a *App) endSession() {
	a.owner = ""
	a.syncer = nil
	a.attachments = nil
}

func (a *App) Run(ctx context.Context) {
	defer a.Close()

	go a.monitor.Run(ctx)

	// a persisted session skips the login prompt
	if owner, ok, err := a.auth.Session(ctx); err == nil && ok {
		a.startSession(ctx, owner)
	}

	fmt.Println("Daybook CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
}

func (a *App) Close() {
	if a.workerStop != nil {
		a.workerStop()
	}
	if err := a.client.Close(); err != nil {
		a.log.Warn(context.Background(), "failed to close api client", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn(context.Background(), "failed to close database", "error", err)
	}
}

func (a *App) status() string {
	s := ""
	if a.owner != "" {
		s = a.owner + " "
	}
	if a.monitor.IsOnline() {
		s += "online"
	} else {
		s += "offline"
	}
	return fmt.Sprintf("(%s)", s)
}
