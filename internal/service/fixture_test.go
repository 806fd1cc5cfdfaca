package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/membership-ledger/internal/clock"
	"github.com/iliyamo/membership-ledger/internal/model"
	"github.com/iliyamo/membership-ledger/internal/repository/memory"
	"github.com/iliyamo/membership-ledger/internal/service"
)

var (
	admin    = model.Caller{Address: "0xadmin", Role: model.RoleAdmin}
	merchant = model.Caller{Address: "0xshop", Role: model.RoleMerchant}
	stranger = model.Caller{Address: "0xnobody", Role: model.RoleHolder}
)

func holder(tokenID uint64) model.Caller {
	return model.Caller{Address: holderAddress(tokenID), Role: model.RoleHolder}
}

func holderAddress(tokenID uint64) string {
	return "0xholder" + string(rune('a'+tokenID))
}

var epoch = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recorder) Notify(_ context.Context, n model.Notification) {
	r.mu.Lock()
	r.kinds = append(r.kinds, n.Kind)
	r.mu.Unlock()
}

func (r *recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kinds...)
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	clk      *clock.Manual
	notes    *recorder
	ledger   *service.BenefitLedger
	registry *service.EventRegistry
	engine   *service.BookingEngine
}

// newFixture registers tokens 0..9, each held by holder(id).
func newFixture(t *testing.T, engineOpts ...service.EngineOption) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for id := uint64(0); id < 10; id++ {
		require.NoError(t, store.RegisterToken(ctx, id, holderAddress(id)))
	}

	clk := clock.NewManual(epoch)
	notes := &recorder{}
	auth := service.NewRoleAuthorizer(nil)
	opts := []service.Option{
		service.WithClock(clk),
		service.WithLogger(zaptest.NewLogger(t)),
		service.WithNotifier(notes),
	}
	registry := service.NewEventRegistry(store, auth, opts...)
	ledger := service.NewBenefitLedger(store, auth, opts...)
	engineOpts = append([]service.EngineOption{service.WithAccessRedeemer(ledger)}, engineOpts...)
	return &fixture{
		ctx:      ctx,
		store:    store,
		clk:      clk,
		notes:    notes,
		ledger:   ledger,
		registry: registry,
		engine:   service.NewBookingEngine(store, registry, auth, opts, engineOpts...),
	}
}

func (f *fixture) createEvent(t *testing.T, capacity int) model.Event {
	t.Helper()
	e, err := f.registry.CreateEvent(f.ctx, admin, model.NewEvent{
		Name:        "Sunset cruise",
		Location:    "Marina Bay",
		Date:        epoch.Add(7 * 24 * time.Hour),
		MaxCapacity: capacity,
	})
	require.NoError(t, err)
	return e
}
