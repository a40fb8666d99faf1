package blacklist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"ipblacklist/internal/database"
	"ipblacklist/internal/database/dbtest"
	"ipblacklist/internal/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) kinds() []EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *recordingPublisher) {
	t.Helper()
	clock := &steppingClock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	pub := &recordingPublisher{}
	opts = append([]Option{WithClock(clock.Now), WithPublisher(pub)}, opts...)
	return NewRegistry(dbtest.Open(t), opts...), pub
}

func TestRegisterCreatesEntry(t *testing.T) {
	reg, pub := newTestRegistry(t)
	ctx := context.Background()

	got, err := reg.RegisterOrAttribute(ctx, "10.0.0.1", "192.168.0.5", "Acme")
	require.NoError(t, err)
	require.True(t, got.Created)
	require.NotZero(t, got.Entry.ID)
	require.Equal(t, "10.0.0.1", got.Entry.BlackIP)
	require.Equal(t, 1, got.Entry.Frequency())
	require.Equal(t, []string{"acme"}, got.Entry.ClientIDs())
	require.NotNil(t, got.Entry.RequesterIP)
	require.Equal(t, "192.168.0.5", *got.Entry.RequesterIP)
	require.False(t, got.Entry.CreatedUTC.IsZero())
	require.Equal(t, []EventKind{EventRegistered}, pub.kinds())
}

func TestRegisterSameClientIsIdempotent(t *testing.T) {
	reg, pub := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.RegisterOrAttribute(ctx, "10.0.0.1", "", "acme")
	require.NoError(t, err)

	second, err := reg.RegisterOrAttribute(ctx, "10.0.0.1", "", "ACME")
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Entry.ID, second.Entry.ID)
	require.Equal(t, 1, second.Entry.Frequency())
	require.True(t, first.Entry.CreatedUTC.Equal(second.Entry.CreatedUTC))
	require.Equal(t, []EventKind{EventRegistered}, pub.kinds())
}

func TestRegisterDistinctClientsRaiseFrequency(t *testing.T) {
	reg, pub := newTestRegistry(t)
	ctx := context.Background()

	for _, client := range []string{"acme", "globex", "ACME", "initech"} {
		_, err := reg.RegisterOrAttribute(ctx, "10.0.0.2", "", client)
		require.NoError(t, err)
	}

	entry, err := reg.GetByIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.Equal(t, 3, entry.Frequency())
	require.Equal(t, []string{"acme", "globex", "initech"}, entry.ClientIDs())
	require.Equal(t, []EventKind{EventRegistered, EventAttributed, EventAttributed}, pub.kinds())
}

func TestRegisterRejectsBadInput(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOrAttribute(ctx, "10.0.0.1", "", "  ")
	require.ErrorIs(t, err, ErrInvalidClientID)

	for _, ip := range []string{"", "not-an-ip", "999.1.1.1", "2001:db8:1234:5678:9abc:def0:1234:5678"} {
		_, err := reg.RegisterOrAttribute(ctx, ip, "", "acme")
		require.ErrorIs(t, err, ErrInvalidIP, "ip %q", ip)
	}
}

func TestRegisterDropsOversizedRequesterIP(t *testing.T) {
	reg, _ := newTestRegistry(t)

	got, err := reg.RegisterOrAttribute(context.Background(), "10.0.0.3", strings.Repeat("1", 40), "acme")
	require.NoError(t, err)
	require.Nil(t, got.Entry.RequesterIP)
}

func TestNormalizeIP(t *testing.T) {
	got, err := NormalizeIP(" 10.0.0.1 ")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", got)

	got, err = NormalizeIP("::ffff:10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", got)

	got, err = NormalizeIP("2001:DB8::1")
	require.NoError(t, err)
	require.Equal(t, "2001:db8::1", got)
}

func TestGetByIDAndIP(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.RegisterOrAttribute(ctx, "172.16.5.4", "", "acme")
	require.NoError(t, err)

	byID, err := reg.GetByID(ctx, created.Entry.ID)
	require.NoError(t, err)
	require.Equal(t, "172.16.5.4", byID.BlackIP)
	require.Equal(t, 1, byID.Frequency())

	byIP, err := reg.GetByIP(ctx, "172.16.5.4")
	require.NoError(t, err)
	require.Equal(t, created.Entry.ID, byIP.ID)

	_, err = reg.GetByID(ctx, created.Entry.ID+100)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = reg.GetByIP(ctx, "172.16.5.5")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = reg.GetByIP(ctx, "garbage")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListAllOrdering(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	register := func(ip string, clients ...string) {
		for _, c := range clients {
			_, err := reg.RegisterOrAttribute(ctx, ip, "", c)
			require.NoError(t, err)
		}
	}
	register("1.1.1.1", "a")
	register("2.2.2.2", "a", "b", "c")
	register("3.3.3.3", "a", "b")
	register("4.4.4.4", "c", "d")

	byAge, err := reg.ListAll(ctx, false)
	require.NoError(t, err)
	require.Equal(t, []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4"}, ips(byAge))

	byFreq, err := reg.ListAll(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{"2.2.2.2", "3.3.3.3", "4.4.4.4", "1.1.1.1"}, ips(byFreq))
}

func TestSoftDeleteRoundTrip(t *testing.T) {
	reg, pub := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.RegisterOrAttribute(ctx, "10.9.9.9", "", "acme")
	require.NoError(t, err)

	require.NoError(t, reg.SoftDelete(ctx, first.Entry.ID))
	require.ErrorIs(t, reg.SoftDelete(ctx, first.Entry.ID), ErrNotFound)

	_, err = reg.GetByID(ctx, first.Entry.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = reg.GetByIP(ctx, "10.9.9.9")
	require.ErrorIs(t, err, ErrNotFound)

	listed, err := reg.ListAll(ctx, false)
	require.NoError(t, err)
	require.Empty(t, listed)

	again, err := reg.RegisterOrAttribute(ctx, "10.9.9.9", "", "globex")
	require.NoError(t, err)
	require.True(t, again.Created)
	require.NotEqual(t, first.Entry.ID, again.Entry.ID)
	require.Equal(t, []string{"globex"}, again.Entry.ClientIDs())

	var tombstone domain.BlacklistEntry
	require.NoError(t, database.NewRepository[domain.BlacklistEntry](reg.db).First(ctx, &tombstone, database.ByID(first.Entry.ID)))
	require.True(t, tombstone.Deleted)
	require.NotNil(t, tombstone.DeleteUTC)

	require.Equal(t, []EventKind{EventRegistered, EventDeleted, EventRegistered}, pub.kinds())
}

func TestChangesSince(t *testing.T) {
	reg, _ := newTestRegistry(t, WithSyncOverlap(0))
	ctx := context.Background()

	_, err := reg.RegisterOrAttribute(ctx, "5.5.5.5", "", "acme")
	require.NoError(t, err)

	all, cursor, err := reg.ChangesSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, []string{"5.5.5.5"}, ips(all))
	require.True(t, cursor.Equal(all[0].CreatedUTC))

	none, unchanged, err := reg.ChangesSince(ctx, cursor)
	require.NoError(t, err)
	require.Empty(t, none)
	require.True(t, unchanged.Equal(cursor))

	_, err = reg.RegisterOrAttribute(ctx, "6.6.6.6", "", "acme")
	require.NoError(t, err)

	fresh, next, err := reg.ChangesSince(ctx, cursor)
	require.NoError(t, err)
	require.Equal(t, []string{"6.6.6.6"}, ips(fresh))
	require.True(t, next.After(cursor))
}

func TestChangesSinceReturnsEntriesStampedBehindCursor(t *testing.T) {
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := &manualClock{now: base.Add(2 * time.Second)}
	reg := NewRegistry(dbtest.Open(t), WithClock(clock.Now), WithPublisher(&recordingPublisher{}))
	ctx := context.Background()

	_, err := reg.RegisterOrAttribute(ctx, "198.51.100.2", "", "acme")
	require.NoError(t, err)

	first, cursor, err := reg.ChangesSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, []string{"198.51.100.2"}, ips(first))

	// A writer that stamped its row before the cursor commits afterwards.
	clock.Set(base.Add(time.Second))
	late, err := reg.RegisterOrAttribute(ctx, "198.51.100.1", "", "globex")
	require.NoError(t, err)

	next, nextCursor, err := reg.ChangesSince(ctx, cursor)
	require.NoError(t, err)
	require.Contains(t, ips(next), "198.51.100.1")
	require.True(t, nextCursor.Equal(cursor))

	var ids []uint64
	for _, e := range next {
		ids = append(ids, e.ID)
	}
	require.Contains(t, ids, late.Entry.ID)
}

func TestChangesSinceOverlapIsBounded(t *testing.T) {
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := &manualClock{now: base}
	reg := NewRegistry(dbtest.Open(t), WithClock(clock.Now), WithPublisher(&recordingPublisher{}), WithSyncOverlap(10*time.Second))
	ctx := context.Background()

	_, err := reg.RegisterOrAttribute(ctx, "198.51.100.3", "", "acme")
	require.NoError(t, err)
	clock.Set(base.Add(time.Minute))
	_, err = reg.RegisterOrAttribute(ctx, "198.51.100.4", "", "acme")
	require.NoError(t, err)

	got, _, err := reg.ChangesSince(ctx, base.Add(55*time.Second))
	require.NoError(t, err)
	require.Equal(t, []string{"198.51.100.4"}, ips(got))
}

func TestPublishFailureDoesNotFailRegistration(t *testing.T) {
	reg, pub := newTestRegistry(t)
	pub.err = errors.New("broker down")

	got, err := reg.RegisterOrAttribute(context.Background(), "7.7.7.7", "", "acme")
	require.NoError(t, err)
	require.True(t, got.Created)
}

func TestConcurrentClientsConvergeOnOneEntry(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	const clients = 8
	var g errgroup.Group
	for i := 0; i < clients; i++ {
		client := fmt.Sprintf("client-%d", i)
		g.Go(func() error {
			_, err := reg.RegisterOrAttribute(ctx, "203.0.113.7", "", client)
			return err
		})
	}
	require.NoError(t, g.Wait())

	entries, err := reg.ListAll(ctx, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, clients, entries[0].Frequency())
}

func TestConcurrentSameClientIsCoalesced(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := reg.RegisterOrAttribute(ctx, "203.0.113.8", "", "acme")
			return err
		})
	}
	require.NoError(t, g.Wait())

	entry, err := reg.GetByIP(ctx, "203.0.113.8")
	require.NoError(t, err)
	require.Equal(t, 1, entry.Frequency())
}

func ips(entries []domain.BlacklistEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.BlackIP)
	}
	return out
}
