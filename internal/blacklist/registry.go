package blacklist

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"ipblacklist/internal/database"
	"ipblacklist/internal/domain"
)

// Registration is the outcome of RegisterOrAttribute.
type Registration struct {
	Entry domain.BlacklistEntry
	// Created is true when this call inserted the active row for the address.
	Created bool
}

// Registry owns the lookup-or-create and attribution rules for blacklist entries.
// The active-row unique index is the only serialization point; identical
// in-flight registrations inside one process are coalesced.
type Registry struct {
	db           *gorm.DB
	repos        database.BlacklistRepositories
	repositories func(*gorm.DB) database.BlacklistRepositories
	now          func() time.Time
	publisher    EventPublisher
	syncOverlap  time.Duration
	inflight     singleflight.Group
}

// DefaultSyncOverlap is how far ChangesSince reaches back behind a cursor.
// It bounds how long a registration may take between stamping and commit.
const DefaultSyncOverlap = time.Minute

type Option func(*Registry)

func WithPublisher(p EventPublisher) Option {
	return func(r *Registry) {
		if p != nil {
			r.publisher = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSyncOverlap sets how far ChangesSince reaches back behind a cursor.
func WithSyncOverlap(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.syncOverlap = d
		}
	}
}

func NewRegistry(db *gorm.DB, opts ...Option) *Registry {
	r := &Registry{
		db:          db,
		now:         time.Now,
		publisher:   LogPublisher{},
		syncOverlap: DefaultSyncOverlap,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.repositories = func(conn *gorm.DB) database.BlacklistRepositories {
		return database.NewBlacklistRepositories(conn, r.now)
	}
	r.repos = r.repositories(db)
	return r
}

// RegisterOrAttribute records that clientID reported blackIP. The first report
// creates the entry; later reports from new clients raise its frequency and
// repeated reports from the same client change nothing.
func (r *Registry) RegisterOrAttribute(ctx context.Context, blackIP, requesterIP, clientID string) (Registration, error) {
	client := domain.CanonicalClientID(clientID)
	if client == "" {
		return Registration{}, ErrInvalidClientID
	}

	ip, err := NormalizeIP(blackIP)
	if err != nil {
		return Registration{}, err
	}

	requester := normalizeRequesterIP(requesterIP)

	// Coalesced callers share one write, so it must not end with the first
	// caller's context. Each caller still returns when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := r.inflight.DoChan(ip+"|"+client, func() (interface{}, error) {
		return r.registerWithRetry(shared, ip, requester, client)
	})

	select {
	case <-ctx.Done():
		return Registration{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Registration{}, res.Err
		}
		return res.Val.(Registration), nil
	}
}

func (r *Registry) registerWithRetry(ctx context.Context, ip string, requester *string, client string) (Registration, error) {
	reg, changed, err := r.register(ctx, ip, requester, client)
	if errors.Is(err, database.ErrDuplicateKey) {
		// Another writer inserted the active row or this client's registration
		// first. A second pass finds it and attaches to it.
		log.Debug("Blacklist registration raced, retrying", "ip", ip, "client_id", client)
		reg, changed, err = r.register(ctx, ip, requester, client)
		if errors.Is(err, database.ErrDuplicateKey) {
			return Registration{}, fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	if err != nil {
		return Registration{}, err
	}

	switch {
	case reg.Created:
		log.Info("Blacklist entry registered", "id", reg.Entry.ID, "ip", ip, "client_id", client)
		r.publish(ctx, newEvent(EventRegistered, reg.Entry, client))
	case changed:
		log.Info("Blacklist entry attributed", "id", reg.Entry.ID, "ip", ip, "client_id", client, "frequency", reg.Entry.Frequency())
		r.publish(ctx, newEvent(EventAttributed, reg.Entry, client))
	}

	return reg, nil
}

// register runs one lookup-or-create pass in a transaction. changed reports
// whether a client registration was added.
func (r *Registry) register(ctx context.Context, ip string, requester *string, client string) (Registration, bool, error) {
	var (
		reg     Registration
		changed bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := r.repositories(tx)

		var entry domain.BlacklistEntry
		err := repos.Entries.First(ctx, &entry, database.ByBlackIP(ip), database.WithClientRegistrations)
		switch {
		case errors.Is(err, database.ErrNotFound):
			entry = domain.BlacklistEntry{BlackIP: ip, RequesterIP: requester}
			if err := repos.Entries.Create(ctx, &entry); err != nil {
				return fmt.Errorf("create entry: %w", err)
			}
			reg.Created = true
		case err != nil:
			return fmt.Errorf("load entry: %w", err)
		}

		row, added := entry.AddClient(client, r.now().UTC())
		if added {
			if err := repos.Clients.Create(ctx, &row); err != nil {
				return fmt.Errorf("register client: %w", err)
			}
			entry.RegisteredByClients[len(entry.RegisteredByClients)-1] = row
			changed = true
		}

		reg.Entry = entry
		return nil
	})
	if err != nil {
		return Registration{}, false, err
	}
	return reg, changed, nil
}

func (r *Registry) GetByID(ctx context.Context, id uint64) (domain.BlacklistEntry, error) {
	var entry domain.BlacklistEntry
	if err := r.repos.Entries.First(ctx, &entry, database.ByID(id), database.WithClientRegistrations); err != nil {
		return domain.BlacklistEntry{}, translateNotFound(err)
	}
	return entry, nil
}

// GetByIP looks up the active entry for an address. Input that is not an
// address cannot match an entry and reports ErrNotFound.
func (r *Registry) GetByIP(ctx context.Context, blackIP string) (domain.BlacklistEntry, error) {
	ip, err := NormalizeIP(blackIP)
	if err != nil {
		return domain.BlacklistEntry{}, ErrNotFound
	}

	var entry domain.BlacklistEntry
	if err := r.repos.Entries.First(ctx, &entry, database.ByBlackIP(ip), database.WithClientRegistrations); err != nil {
		return domain.BlacklistEntry{}, translateNotFound(err)
	}
	return entry, nil
}

// ListAll returns every active entry, oldest first. With orderByFrequency the
// most reported entries come first and ties keep the oldest-first order.
func (r *Registry) ListAll(ctx context.Context, orderByFrequency bool) ([]domain.BlacklistEntry, error) {
	var entries []domain.BlacklistEntry
	if err := r.repos.Entries.Find(ctx, &entries, database.OldestFirst, database.WithClientRegistrations); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	if orderByFrequency {
		slices.SortStableFunc(entries, func(a, b domain.BlacklistEntry) int {
			return cmp.Compare(b.Frequency(), a.Frequency())
		})
	}
	return entries, nil
}

// SoftDelete tombstones the active entry with the given id. The address can be
// registered again afterwards as a fresh entry.
func (r *Registry) SoftDelete(ctx context.Context, id uint64) error {
	var entry domain.BlacklistEntry
	if err := r.repos.Entries.First(ctx, &entry, database.ByID(id), database.WithClientRegistrations); err != nil {
		return translateNotFound(err)
	}

	if err := r.repos.Entries.Delete(ctx, &entry); err != nil {
		return fmt.Errorf("delete entry %d: %w", id, err)
	}

	log.Info("Blacklist entry deleted", "id", entry.ID, "ip", entry.BlackIP)
	r.publish(ctx, newEvent(EventDeleted, entry, ""))
	return nil
}

// ChangesSince returns active entries created after since, oldest first, and
// the cursor to pass on the next call. A zero since returns everything.
//
// CreatedUTC is stamped before the row commits, so a slow writer can land
// behind a cursor that was already handed out. The query therefore reaches
// back by the sync overlap and may repeat entries; callers dedup by id. The
// cursor itself never moves backwards.
func (r *Registry) ChangesSince(ctx context.Context, since time.Time) ([]domain.BlacklistEntry, time.Time, error) {
	from := since
	if !since.IsZero() {
		from = since.Add(-r.syncOverlap)
	}

	var entries []domain.BlacklistEntry
	if err := r.repos.Entries.Find(ctx, &entries, database.CreatedAfter(from), database.OldestFirst, database.WithClientRegistrations); err != nil {
		return nil, since, fmt.Errorf("list changes: %w", err)
	}

	cursor := since.UTC()
	for _, entry := range entries {
		if entry.CreatedUTC.After(cursor) {
			cursor = entry.CreatedUTC.UTC()
		}
	}
	return entries, cursor, nil
}

func (r *Registry) publish(ctx context.Context, event Event) {
	if err := r.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Warn("Failed to publish blacklist event", "event", event.Kind, "id", event.ID, "error", err)
	}
}

// NormalizeIP validates an address and returns its canonical text form.
func NormalizeIP(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIP)
	}

	addr, err := netip.ParseAddr(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIP, trimmed)
	}

	normalized := addr.Unmap().String()
	if len(normalized) > domain.MaxIPLength {
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidIP, trimmed, domain.MaxIPLength)
	}
	return normalized, nil
}

// normalizeRequesterIP keeps the caller address when it fits the column and
// drops it otherwise. It never fails a registration.
func normalizeRequesterIP(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if addr, err := netip.ParseAddr(trimmed); err == nil {
		trimmed = addr.Unmap().String()
	}
	if len(trimmed) > domain.MaxIPLength {
		return nil
	}
	return &trimmed
}

func translateNotFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
