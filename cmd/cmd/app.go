package cmd

import (
	"context"
	"fmt"
	"time"

	"neoalexandria/internal/annotation"
	"neoalexandria/internal/config"
	"neoalexandria/internal/core"
	"neoalexandria/internal/enrichment"
	"neoalexandria/internal/events"
	"neoalexandria/internal/graph"
	"neoalexandria/internal/ingestion"
	"neoalexandria/internal/logger"
	"neoalexandria/internal/metrics"
	"neoalexandria/internal/recommend"
	"neoalexandria/internal/retrieval"
	"neoalexandria/internal/sparseindex"
	"neoalexandria/internal/store"
	"neoalexandria/internal/textindex"
	"neoalexandria/internal/vectorindex"
)

// app wires every engine together for a single CLI invocation, the way
// the teacher's cmd/cmd/root.go builds a cache store and an LLM client
// inline at the top of each command's Run func, generalized here into
// one shared constructor so every subcommand builds the same stack
// instead of repeating the wiring.
type app struct {
	cfg *config.Config

	store       store.Store
	textIndex   *textindex.Index
	vectorIndex vectorindex.Index
	sparseIndex *sparseindex.Index
	archiver    *enrichment.FileArchiver

	genAI *enrichment.GenAIClient // nil if cfg.AI.APIKey is unset

	bus           *events.Bus
	ingestionEng  *ingestion.Engine
	retrievalEng  *retrieval.Engine
	graphFinder   *graph.Finder
	graphRanker   *graph.Ranker
	composer      *recommend.Composer
	annotationSvc *annotation.Service
}

// buildApp constructs every engine against cfg. Building the in-memory
// text/vector/sparse indexes always starts them empty; reindex()
// repopulates them from the store's completed resources, matching the
// teacher's pattern of treating the on-disk cache as the durable source
// of truth and any in-memory structure as a derived, rebuildable view.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var st store.Store
	var err error
	switch cfg.Database.Driver {
	case "postgres":
		st, err = store.NewPostgresStore(cfg.Database.ConnectionString)
	default:
		st, err = store.NewSQLiteStore(cfg.Database.DataDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st

	a.textIndex = textindex.New(nil)
	a.sparseIndex = sparseindex.New()
	if pgStore, ok := st.(*store.PostgresStore); ok {
		a.vectorIndex = vectorindex.NewPgVectorIndex(pgStore.DB())
	} else {
		a.vectorIndex = vectorindex.NewMemoryIndex()
	}

	a.archiver = enrichment.NewFileArchiver(cfg.Archive.RootDir)

	if cfg.AI.APIKey != "" {
		genAI, err := enrichment.NewGenAIClient(ctx, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.EmbeddingModel, cfg.AI.EmbeddingDims, cfg.AI.Temperature)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize model client: %w", err)
		}
		a.genAI = genAI
	}

	a.bus = events.NewBus()

	metrics.Init()

	a.graphFinder = graph.NewFinder(a.store, a.vectorIndex, cfg.Graph)
	a.graphRanker = graph.NewRanker(a.store, cfg.Graph)
	a.composer = recommend.NewComposer(a.store, a.graphFinder)

	var embedder annotation.Embedder
	if a.genAI != nil {
		embedder = a.genAI
	}
	a.annotationSvc = annotation.NewService(a.store, embedder)

	a.retrievalEng = &retrieval.Engine{
		Store:   a.store,
		Lexical: &retrieval.LexicalRetriever{Index: a.textIndex},
		Sparse:  &retrieval.SparseRetriever{Index: a.sparseIndex, Embedder: enrichment.NewHashingSparseEmbedder()},
		Cfg: retrieval.Config{
			RRFK:                cfg.Retrieval.RRFK,
			RerankTop:           cfg.Retrieval.RerankTop,
			DefaultHybridWeight: cfg.Retrieval.DefaultHybridWeight,
			VectorMinSimHybrid:  cfg.Retrieval.VectorMinSimHybrid,
			QueryTimeout:        durationMS(cfg.Retrieval.QueryTimeoutMS),
		},
		Log: logger.Get(),
	}
	if a.genAI != nil {
		a.retrievalEng.Dense = &retrieval.DenseRetriever{Index: a.vectorIndex, Embedder: a.genAI, MinSimilarity: cfg.Retrieval.VectorMinSimHybrid}
	}

	if err := a.buildIngestionEngine(cfg); err != nil {
		return nil, err
	}

	return a, nil
}

// buildIngestionEngine wires the enrichment pipeline and ingestion
// engine. Requires a model client, since Classify, DenseEmbed, and
// ScholarlyExtract have no degradable-fallback implementation the way
// Summarize and Tag do.
func (a *app) buildIngestionEngine(cfg *config.Config) error {
	if a.genAI == nil {
		return nil
	}
	pipeline := &enrichment.Pipeline{
		Store:       a.store,
		TextIndex:   a.textIndex,
		VectorIndex: a.vectorIndex,
		SparseIndex: a.sparseIndex,
		Archiver:    a.archiver,

		Summarizer:         a.genAI,
		SummarizerFallback: enrichment.NewLeadingSentenceSummarizer(),
		Tagger:             a.genAI,
		TaggerFallback:     enrichment.NewNounPhraseTagger(),
		Classifier:         a.genAI,
		DenseEmbedder:      a.genAI,
		SparseEmbedder:     enrichment.NewHashingSparseEmbedder(),
		CitationExtractor:  enrichment.NewRegexCitationExtractor(),
		ScholarlyExtractor: a.genAI,
		QualityScorer: enrichment.NewLocalQualityScorer(
			cfg.Quality.WeightAccuracy, cfg.Quality.WeightCompleteness,
			cfg.Quality.WeightConsistency, cfg.Quality.WeightTimeliness, cfg.Quality.WeightRelevance,
		),

		ParseTimeout:      durationMS(cfg.Ingestion.ParseTimeoutMS),
		ModelTimeout:      durationMS(cfg.Ingestion.ModelTimeoutMS),
		IndexWriteTimeout: durationMS(cfg.Ingestion.IndexWriteTimeoutMS),

		Log: logger.Get(),
	}

	base, maxBackoff := cfg.Ingestion.Backoff()
	a.ingestionEng = ingestion.NewEngine(ingestion.Config{
		WorkerPoolSize:         cfg.Ingestion.WorkerPoolSize,
		MaxAttempts:            cfg.Ingestion.MaxAttempts,
		BackoffBase:            base,
		MaxBackoff:             maxBackoff,
		FetchTimeout:           durationMS(cfg.Ingestion.FetchTimeoutMS),
		FingerprintLockTimeout: durationMS(cfg.Ingestion.FingerprintLockTimeoutMS),
		QueueCapacity:          cfg.Ingestion.QueueCapacity,
	}, a.store, enrichment.NewHTTPFetcher(durationMS(cfg.Ingestion.FetchTimeoutMS)), pipeline, a.bus, logger.Get())

	return nil
}

func (a *app) close() {
	if a.ingestionEng != nil {
		a.ingestionEng.Stop()
	}
	if err := a.store.Close(); err != nil {
		logger.Error("failed to close store", err)
	}
}

// reindex rebuilds the in-memory text, sparse, and vector indexes from
// every completed resource's archived raw content, the way a process
// restart must recover state the indexes do not persist themselves.
func (a *app) reindex(ctx context.Context) error {
	resources, err := a.store.ListResources(ctx, store.ListOptions{
		Filter: store.ListFilter{IngestionStatus: core.StatusCompleted},
		Limit:  0,
	})
	if err != nil {
		return fmt.Errorf("failed to list resources for reindex: %w", err)
	}
	for _, r := range resources {
		text := ""
		if r.ArchivePath != "" {
			if raw, err := a.archiver.Read(r.ArchivePath); err == nil {
				if parsed, err := enrichment.ParseHTML(raw); err == nil {
					text = parsed.Text
				}
			}
		}
		bundle := r.Title + "\n\n" + r.Description + "\n\n" + text
		a.textIndex.Index(r.ID, bundle)
		if r.SparseEmbedding != nil {
			a.sparseIndex.Add(r.ID, r.SparseEmbedding)
		}
		if r.Embedding != nil {
			if err := a.vectorIndex.Add(ctx, r.ID, r.Embedding); err != nil {
				logger.Warn("failed to reindex vector for resource", "resource_id", r.ID, "error", err)
			}
		}
	}
	logger.Info("reindex complete", "resources", len(resources))
	return nil
}

func durationMS(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
