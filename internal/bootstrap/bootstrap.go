package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kirillkom/action-orchestrator/internal/config"
	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/core/ports"
	"github.com/kirillkom/action-orchestrator/internal/core/usecase"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/converter"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/drafting"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/httpjson"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/locking"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/queue/nats"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/repository/memory"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/resilience"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/workspace/mcp"
)

// workspaceTools are the read tools the workspace MCP server exposes to the responder.
var workspaceTools = []string{
	"search_invoices",
	"search_purchase_orders",
	"search_receipts",
	"search_vendors",
	"get_invoice",
	"get_purchase_order",
	"get_receipt",
}

type App struct {
	Config config.Config

	Turns         ports.TurnHandler
	Conversations ports.ConversationService
	Drafts        ports.DraftReviewService

	closeFn func()
}

// Worker is the conversion side: approved-draft events in, converter calls out.
type Worker struct {
	Config config.Config

	Events     ports.DraftEventSubscriber
	Conversion ports.DraftConversionProcessor

	closeFn func()
}

type stores struct {
	conversations ports.ConversationStore
	pending       ports.PendingStore
	memory        ports.MemoryStore
	drafts        ports.DraftStore
	locker        ports.ConversationLocker
	db            *sql.DB
}

func (s *stores) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	if cfg.StoreBackend == "memory" {
		store := memory.NewStore()
		return &stores{
			conversations: store,
			pending:       store,
			memory:        store,
			drafts:        store,
			locker:        locking.NewKeyedMutex(),
		}, nil
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &stores{
		conversations: postgres.NewConversationRepository(db),
		pending:       postgres.NewPendingRepository(db),
		memory:        postgres.NewMemoryRepository(db),
		drafts:        postgres.NewDraftRepository(db),
		locker:        postgres.NewAdvisoryLocker(db),
		db:            db,
	}, nil
}

func newExecutor(cfg config.Config, observer resilience.Observer) *resilience.Executor {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.RetryMaxAttempts
	rc.RetryInitialBackoff = cfg.RetryInitialBackoff
	rc.BreakerEnabled = cfg.BreakerEnabled
	rc.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	for collaborator, attempts := range cfg.RetryAttempts {
		rc = rc.WithMaxAttempts(collaborator, attempts)
	}
	executor := resilience.NewExecutor(rc)
	if observer != nil {
		executor = executor.WithObserver(observer)
	}
	return executor
}

func bearerOptions(executor *resilience.Executor, apiKey string) []httpjson.Option {
	opts := []httpjson.Option{httpjson.WithExecutor(executor)}
	if apiKey != "" {
		opts = append(opts, httpjson.WithHeader("Authorization", "Bearer "+apiKey))
	}
	return opts
}

func plannerTools() []ollama.ToolHint {
	specs := usecase.Tools()
	hints := make([]ollama.ToolHint, 0, len(specs))
	for _, spec := range specs {
		hints = append(hints, ollama.ToolHint{Name: spec.Name, Label: spec.Label, Required: spec.Required})
	}
	return hints
}

// New wires the API side. observer receives retry and breaker transitions.
func New(ctx context.Context, cfg config.Config, observer resilience.Observer) (*App, error) {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	executor := newExecutor(cfg, observer)

	var (
		events   ports.DraftEventPublisher = logEventPublisher{}
		closeBus                           = func() {}
	)
	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubjectPrefix, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: executor,
		})
		if err != nil {
			st.close()
			return nil, fmt.Errorf("init draft event bus: %w", err)
		}
		events = queue
		closeBus = queue.Close
	}

	var workspaceHeaders map[string]string
	if cfg.WorkspaceToken != "" {
		workspaceHeaders = map[string]string{"Authorization": "Bearer " + cfg.WorkspaceToken}
	}
	workspaceClient, err := mcp.Dial(ctx, cfg.WorkspaceMCPURL, workspaceHeaders)
	if err != nil {
		closeBus()
		st.close()
		return nil, fmt.Errorf("connect workspace: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaModel,
		httpjson.WithExecutor(executor),
		httpjson.WithHTTPClient(&http.Client{Timeout: max(cfg.PlannerTimeout, cfg.ResponderTimeout)}),
	)
	drafter := drafting.New(cfg.DraftingURL, bearerOptions(executor, cfg.DraftingAPIKey)...)

	bridge := usecase.NewToolBridge(drafter, st.drafts, events, cfg.ToolTimeout)
	orchestrator := usecase.NewTurnOrchestrator(usecase.OrchestratorDeps{
		Conversations: st.conversations,
		Pending:       st.pending,
		Locker:        st.locker,
		Planner:       ollama.NewPlanner(ollamaClient, plannerTools()),
		Responder:     ollama.NewResponder(ollamaClient, workspaceTools),
		Workspace:     mcp.NewResolver(workspaceClient, executor),
		Bridge:        bridge,
		Plans:         usecase.NewPlanExecutor(bridge, cfg.MaxPlanSteps),
		Picker:        usecase.NewDisambiguationEngine(),
		Ledger:        usecase.NewMemoryLedger(st.memory, cfg.MemoryWindow),
	}, usecase.OrchestratorLimits{
		PlannerTimeout:     cfg.PlannerTimeout,
		ResponderTimeout:   cfg.ResponderTimeout,
		ToolTimeout:        cfg.ToolTimeout,
		MaxResponderRounds: cfg.MaxResponderRounds,
	})

	return &App{
		Config: cfg,

		Turns:         orchestrator,
		Conversations: usecase.NewConversationUseCase(st.conversations, st.locker),
		Drafts:        usecase.NewDraftReviewUseCase(st.drafts, events, xlsx.NewExporter()),

		closeFn: func() {
			_ = workspaceClient.Close()
			closeBus()
			st.close()
		},
	}, nil
}

// NewWorker wires the conversion worker. It requires the event bus.
func NewWorker(ctx context.Context, cfg config.Config, observer resilience.Observer) (*Worker, error) {
	if cfg.NATSURL == "" {
		return nil, fmt.Errorf("NATS_URL is required for the conversion worker")
	}
	if cfg.StoreBackend == "memory" {
		return nil, fmt.Errorf("the conversion worker cannot share the in-process memory store")
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	executor := newExecutor(cfg, observer)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubjectPrefix, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
	})
	if err != nil {
		st.close()
		return nil, fmt.Errorf("init draft event bus: %w", err)
	}

	conv := converter.New(cfg.ConverterURL, bearerOptions(executor, cfg.ConverterAPIKey)...)
	return &Worker{
		Config:     cfg,
		Events:     queue,
		Conversion: usecase.NewDraftConversionUseCase(st.drafts, conv),
		closeFn: func() {
			queue.Close()
			st.close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// logEventPublisher stands in for the event bus when NATS is not configured.
type logEventPublisher struct{}

func (logEventPublisher) PublishDraftEvent(ctx context.Context, event domain.DraftEvent) error {
	slog.InfoContext(ctx, "draft_event",
		"event_type", string(event.Type),
		"draft_id", event.DraftID,
		"tenant_id", event.TenantID,
		"action_type", string(event.ActionType),
	)
	return nil
}
