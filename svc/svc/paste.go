package svc

import (
	"context"
	"crypto/subtle"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"punt/cfg"
	"punt/metrics"
	"punt/pkg/domain"
	"punt/svc/db"
	"punt/svc/util"
)

// Paste owns the paste lifecycle: TTL resolution, creation, gated
// retrieval, burn semantics, deletion, and ownership-scoped mutation. All
// durable state lives in the store; the only in-process state is the
// async view-count queue.
type Paste struct {
	store        *db.SQLite
	cfg          *cfg.Cfg
	viewQueue    chan string
	viewWorkerWg sync.WaitGroup
	shutdownCtx  context.Context
	shutdownFn   context.CancelFunc
	shutdown     atomic.Bool
}

func NewPaste(store *db.SQLite, c *cfg.Cfg) *Paste {
	if store == nil || c == nil {
		panic("paste service: nil dependency (store or cfg)")
	}
	shutdownCtx, shutdownFn := context.WithCancel(context.Background())
	workers := c.ViewWorkers
	if workers <= 0 {
		workers = 20
	}
	p := &Paste{
		store:       store,
		cfg:         c,
		viewQueue:   make(chan string, workers*100),
		shutdownCtx: shutdownCtx,
		shutdownFn:  shutdownFn,
	}
	p.startWorkers(workers)
	return p
}

func (p *Paste) startWorkers(n int) {
	for i := 0; i < n; i++ {
		p.viewWorkerWg.Add(1)
		go p.viewWorker()
	}
}

func (p *Paste) viewWorker() {
	defer p.viewWorkerWg.Done()
	defer func() {
		if r := recover(); r != nil {
			util.Error().Interface("panic", r).Msg("viewWorker panicked")
		}
	}()
	for id := range p.viewQueue {
		ctx, cancel := context.WithTimeout(p.shutdownCtx, 5*time.Second)
		if err := p.store.IncrViews(ctx, id); err != nil {
			if errors.Is(err, context.Canceled) {
				cancel()
				return
			}
			util.Warn().Err(err).Str("id", id).Msg("failed to incr views")
		}
		cancel()
	}
}

func (p *Paste) Shutdown() {
	p.shutdown.Store(true)
	close(p.viewQueue)
	done := make(chan struct{})
	go func() {
		p.viewWorkerWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		util.Warn().Msg("view workers didn't stop in time")
	}
	p.shutdownFn()
	util.Debug().Msg("paste service shutdown complete")
}

// Create validates content, resolves the requested TTL against the
// identity's ceiling, generates the id and keys, and persists one row.
// Out-of-range TTLs are clamped and reported through CreateResult.TTLWarning.
func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.CreateResult, error) {
	if p.shutdown.Load() {
		return nil, errors.New("service shutting down")
	}
	if len(params.Content) == 0 {
		return nil, domain.ErrContentRequired
	}
	if int64(len(params.Content)) > p.cfg.MaxPasteSize {
		return nil, domain.ErrPasteTooLarge
	}
	if params.Language != "" && !domain.ValidLanguage(params.Language) {
		return nil, domain.ErrUnknownLanguage
	}
	ttl, warning, err := domain.ResolveTTL(params.TTL, params.Identity)
	if err != nil {
		return nil, err
	}

	id, err := util.GenPasteID(func(id string) (bool, error) {
		return p.store.PasteExists(ctx, id)
	})
	if err != nil {
		return nil, errors.Wrap(domain.ErrIDGenerationFailed, err.Error())
	}
	deleteKey, err := util.NewDeleteKey()
	if err != nil {
		return nil, errors.Wrap(err, "gen delete key")
	}
	var viewKey string
	if params.Private {
		viewKey, err = util.NewViewKey()
		if err != nil {
			return nil, errors.Wrap(err, "gen view key")
		}
	}

	now := time.Now().Unix()
	paste := &domain.Paste{
		ID:            id,
		Content:       params.Content,
		CreatedAt:     now,
		ExpiresAt:     now + int64(ttl.Seconds()),
		DeleteKey:     deleteKey,
		BurnAfterRead: params.BurnAfterRead,
		IsPrivate:     params.Private,
		ViewKey:       viewKey,
		OwnerID:       params.Identity.OwnerID,
		Language:      params.Language,
		CreatorAddr:   params.Identity.Addr,
	}
	if err := p.store.CreatePaste(ctx, paste); err != nil {
		return nil, errors.Wrap(err, "create paste")
	}
	metrics.PasteCreated.Inc()
	return &domain.CreateResult{
		Paste:      paste,
		DeleteKey:  deleteKey,
		ViewKey:    viewKey,
		TTLWarning: warning,
	}, nil
}

// Get fetches paste metadata without counting a view. Expired rows are
// absent whether or not the sweeper has caught up.
func (p *Paste) Get(ctx context.Context, id string) (*domain.Paste, error) {
	return p.store.GetPaste(ctx, id, time.Now().Unix())
}

// View runs the access state machine and returns content:
//
//	absent or expired            -> ErrPasteNotFound
//	private, key mismatch        -> ErrForbidden
//	burn-after-read, second read -> row deleted, ErrPasteBurned
//	otherwise                    -> views incremented, content returned
//
// For burn pastes the increment is an atomic first-view claim; two
// concurrent first reads cannot both succeed.
func (p *Paste) View(ctx context.Context, id, providedKey string) (*domain.Paste, error) {
	paste, err := p.store.GetPaste(ctx, id, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	if paste.IsPrivate {
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(paste.ViewKey)) != 1 {
			return nil, domain.ErrForbidden
		}
	}
	if paste.BurnAfterRead {
		if paste.Views > 0 {
			return nil, p.burn(ctx, id)
		}
		won, err := p.store.FirstView(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "claim first view")
		}
		if !won {
			return nil, p.burn(ctx, id)
		}
		paste.Views = 1
		metrics.PasteRetrieved.Inc()
		return paste, nil
	}
	select {
	case p.viewQueue <- id:
	default:
		util.Warn().Str("id", id).Msg("view queue full, dropping increment")
	}
	paste.Views++
	metrics.PasteRetrieved.Inc()
	return paste, nil
}

func (p *Paste) burn(ctx context.Context, id string) error {
	if err := p.store.DeletePaste(ctx, id); err != nil {
		util.Warn().Err(err).Str("id", id).Msg("failed to delete burned paste")
	}
	metrics.PasteBurned.Inc()
	return domain.ErrPasteBurned
}

// Delete removes the paste iff the delete key matches. Deleting twice is
// not an error; the second call just reports nothing deleted.
func (p *Paste) Delete(ctx context.Context, id, deleteKey string) (bool, error) {
	if id == "" || deleteKey == "" {
		return false, nil
	}
	deleted, err := p.store.DeletePasteWithKey(ctx, id, deleteKey)
	if err != nil {
		return false, errors.Wrap(err, "delete paste")
	}
	if deleted {
		metrics.PasteDeleted.Inc()
		util.Info().Str("id", id).Msg("paste deleted via delete key")
	}
	return deleted, nil
}

func (p *Paste) DeleteOwned(ctx context.Context, id, ownerID string) (bool, error) {
	deleted, err := p.store.DeleteOwnedPaste(ctx, id, ownerID)
	if err != nil {
		return false, errors.Wrap(err, "delete owned paste")
	}
	if deleted {
		metrics.PasteDeleted.Inc()
	}
	return deleted, nil
}

// ExtendTTL adds to the current expiry unconditionally. Extension past the
// creation-time ceiling is allowed on purpose.
func (p *Paste) ExtendTTL(ctx context.Context, id, ownerID string, extraSeconds int64) (bool, error) {
	if extraSeconds <= 0 {
		return false, domain.ErrInvalidRequest
	}
	return p.store.ExtendPaste(ctx, id, ownerID, extraSeconds)
}

func (p *Paste) ListOwned(ctx context.Context, ownerID string) ([]domain.Paste, error) {
	return p.store.ListOwnedPastes(ctx, ownerID, time.Now().Unix())
}

func (p *Paste) Stats(ctx context.Context, ownerID string) (*domain.OwnerStats, error) {
	return p.store.OwnerStats(ctx, ownerID, time.Now().Unix())
}

// Report records an abuse report against a paste for later triage.
func (p *Paste) Report(ctx context.Context, id, reason, reporterAddr string) error {
	if reason == "" || len(reason) > 500 {
		return domain.ErrInvalidRequest
	}
	if _, err := p.store.GetPaste(ctx, id, time.Now().Unix()); err != nil {
		return err
	}
	return p.store.ReportInsert(ctx, id, reason, reporterAddr, time.Now().Unix())
}
