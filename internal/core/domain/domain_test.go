package domain

import (
	"math"
	"testing"
	"time"

	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const month = 30 * 24 * time.Hour

func TestIdentity_IsActive(t *testing.T) {
	tests := []struct {
		name   string
		status IdentityStatus
		want   bool
	}{
		{"active", IdentityStatusActive, true},
		{"suspended", IdentityStatusSuspended, false},
		{"deactivated", IdentityStatusDeactivated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := &Identity{Status: tt.status}
			assert.Equal(t, tt.want, i.IsActive())
		})
	}
}

func TestIdentity_DebitCredit(t *testing.T) {
	i := &Identity{Balance: 100}

	require.NoError(t, i.Debit(40))
	assert.Equal(t, int64(60), i.Balance)

	err := i.Debit(61)
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientFunds))
	assert.Equal(t, int64(60), i.Balance)

	assert.True(t, apperror.Is(i.Credit(0), apperror.CodeInvalidArgument))
	require.NoError(t, i.Credit(5))
	assert.Equal(t, int64(65), i.Balance)
}

func TestCredit_RejectsOverflow(t *testing.T) {
	ident := &Identity{Balance: 10}
	wallet := &Wallet{Balance: 10}
	manager := &Manager{Balance: 10}

	tests := []struct {
		name    string
		credit  func(amount int64) error
		balance *int64
	}{
		{"identity", ident.Credit, &ident.Balance},
		{"wallet", wallet.Deposit, &wallet.Balance},
		{"manager", manager.Accrue, &manager.Balance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.credit(math.MaxInt64)
			assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument), "got %v", err)
			assert.Equal(t, int64(10), *tt.balance)

			require.NoError(t, tt.credit(math.MaxInt64-10))
			assert.Equal(t, int64(math.MaxInt64), *tt.balance)

			err = tt.credit(1)
			assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument), "got %v", err)
			assert.Equal(t, int64(math.MaxInt64), *tt.balance)
		})
	}
}

func TestParseFactoryKind(t *testing.T) {
	k, err := ParseFactoryKind("wallet")
	require.NoError(t, err)
	assert.Equal(t, FactoryKindWallet, k)

	k, err = ParseFactoryKind(" MANAGER ")
	require.NoError(t, err)
	assert.Equal(t, FactoryKindManager, k)

	_, err = ParseFactoryKind("token")
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))
}

func TestWallet_Balance(t *testing.T) {
	owner := uuid.New()
	w := &Wallet{Owner: owner}

	assert.True(t, w.IsOwner(owner))
	assert.False(t, w.IsOwner(uuid.New()))

	assert.True(t, apperror.Is(w.Deposit(-1), apperror.CodeInvalidArgument))
	require.NoError(t, w.Deposit(1000))

	assert.True(t, apperror.Is(w.Charge(1001), apperror.CodeInsufficientFunds))
	assert.Equal(t, int64(1000), w.Balance)
	require.NoError(t, w.Charge(1000))
	assert.Equal(t, int64(0), w.Balance)

	_, err := w.WithdrawAll()
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientFunds))

	require.NoError(t, w.Deposit(7))
	amount, err := w.WithdrawAll()
	require.NoError(t, err)
	assert.Equal(t, int64(7), amount)
	assert.Equal(t, int64(0), w.Balance)
}

func TestManager_Reprice(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		code  string
		want  int64
	}{
		{"positive", 2000, apperror.CodeOK, 2000},
		{"zero", 0, apperror.CodeInvalidArgument, 1000},
		{"negative", -5, apperror.CodeInvalidArgument, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manager{Name: "X", Price: 1000}
			assert.Equal(t, tt.code, apperror.CodeOf(m.Reprice(tt.price)))
			assert.Equal(t, tt.want, m.Price)
		})
	}
}

func TestManager_Rename(t *testing.T) {
	m := &Manager{Name: "X"}
	assert.True(t, apperror.Is(m.Rename(""), apperror.CodeInvalidArgument))
	long := make([]rune, MaxManagerNameLen+1)
	for i := range long {
		long[i] = 'é'
	}
	assert.True(t, apperror.Is(m.Rename(string(long)), apperror.CodeInvalidArgument))
	require.NoError(t, m.Rename(string(long[:MaxManagerNameLen])))
	assert.Equal(t, MaxManagerNameLen, len([]rune(m.Name)))
}

func TestManager_Withdraw(t *testing.T) {
	m := &Manager{}

	_, err := m.WithdrawAll()
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientFunds))

	require.NoError(t, m.Accrue(500))
	assert.True(t, apperror.Is(m.WithdrawAmount(0), apperror.CodeInvalidArgument))
	assert.True(t, apperror.Is(m.WithdrawAmount(501), apperror.CodeInsufficientFunds))
	assert.Equal(t, int64(500), m.Balance)

	require.NoError(t, m.WithdrawAmount(200))
	amount, err := m.WithdrawAll()
	require.NoError(t, err)
	assert.Equal(t, int64(300), amount)
	assert.Equal(t, int64(0), m.Balance)
}

func TestSubscription_Lifecycle(t *testing.T) {
	w, m := uuid.New(), uuid.New()
	s := NewSubscription(w, m, t0)
	assert.True(t, s.Active)
	assert.Equal(t, t0, s.LastPaymentAt)

	assert.False(t, s.Resubscribe(t0.Add(time.Hour)), "already active")

	require.NoError(t, s.Unsubscribe(t0.Add(time.Hour)))
	assert.True(t, apperror.Is(s.Unsubscribe(t0.Add(2*time.Hour)), apperror.CodeNotSubscribed))

	assert.True(t, s.Resubscribe(t0.Add(3*time.Hour)))
	assert.Equal(t, t0, s.LastPaymentAt, "resubscribe keeps billing clock")
}

func TestCheckPull(t *testing.T) {
	active := NewSubscription(uuid.New(), uuid.New(), t0)
	inactive := NewSubscription(uuid.New(), uuid.New(), t0)
	inactive.Active = false

	tests := []struct {
		name string
		sub  *Subscription
		now  time.Time
		code string
	}{
		{"never subscribed", nil, t0.Add(month), apperror.CodeNotSubscribed},
		{"inactive beats too early", inactive, t0, apperror.CodeNotSubscribed},
		{"immediately after subscribe", active, t0, apperror.CodeTooEarly},
		{"one nanosecond short", active, t0.Add(month - time.Nanosecond), apperror.CodeTooEarly},
		{"exactly one interval", active, t0.Add(month), apperror.CodeOK},
		{"long overdue", active, t0.Add(10 * month), apperror.CodeOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, apperror.CodeOf(CheckPull(tt.sub, tt.now, month)))
		})
	}
}

func TestSubscription_RecordPayment(t *testing.T) {
	s := NewSubscription(uuid.New(), uuid.New(), t0)
	paid := t0.Add(month)
	s.RecordPayment(paid)
	assert.Equal(t, paid, s.LastPaymentAt)
	assert.Equal(t, paid.Add(month), s.NextPaymentAt(month))
	assert.True(t, apperror.Is(CheckPull(s, paid, month), apperror.CodeTooEarly))
}

func TestStatusOf(t *testing.T) {
	w, m := uuid.New(), uuid.New()

	zero := StatusOf(w, m, nil)
	assert.False(t, zero.Active)
	assert.Nil(t, zero.LastPaymentAt)

	st := StatusOf(w, m, NewSubscription(w, m, t0))
	assert.True(t, st.Active)
	require.NotNil(t, st.LastPaymentAt)
	assert.Equal(t, t0, *st.LastPaymentAt)
}

func buildChain(t *testing.T, n int) []*Event {
	t.Helper()
	prev := GenesisHash
	events := make([]*Event, 0, n)
	for i := 1; i <= n; i++ {
		e, err := NewEvent(EventDeposited, uuid.New(), uuid.New(), uuid.New(),
			DepositedPayload{From: uuid.New(), To: uuid.New(), Amount: int64(i)}, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		e.Seal(int64(i), prev)
		prev = e.Hash
		events = append(events, e)
	}
	return events
}

func TestEvent_SealAndVerify(t *testing.T) {
	events := buildChain(t, 4)
	assert.Len(t, events[0].Hash, 64)
	assert.Equal(t, GenesisHash, events[0].PrevHash)
	assert.Equal(t, events[0].Hash, events[1].PrevHash)

	bad, err := VerifyChain(events)
	require.NoError(t, err)
	assert.Zero(t, bad)

	var p DepositedPayload
	require.NoError(t, events[2].Decode(&p))
	assert.Equal(t, int64(3), p.Amount)
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	events := buildChain(t, 3)
	events[1].Payload = []byte(`{"amount":999}`)

	bad, err := VerifyChain(events)
	require.Error(t, err)
	assert.Equal(t, int64(2), bad)

	events = buildChain(t, 3)
	events[2].PrevHash = GenesisHash
	bad, err = VerifyChain(events)
	require.Error(t, err)
	assert.Equal(t, int64(3), bad)
}

func TestNewEvent_TruncatesToMicroseconds(t *testing.T) {
	e, err := NewEvent(EventSubscribed, uuid.New(), uuid.New(), uuid.New(), SubscriptionPayload{}, t0.Add(1500*time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Microsecond), e.CreatedAt)
}

func TestBuildPaymentIdempotencyKey(t *testing.T) {
	manager := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	wallet := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	key := BuildPaymentIdempotencyKey(manager, wallet, "INV-001")
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000:6ba7b810-9dad-11d1-80b4-00c04fd430c8:pull:INV-001", key)
	assert.NotEqual(t, key, BuildPaymentIdempotencyKey(manager, uuid.New(), "INV-001"))
}

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("PAYMENT_RECEIVED"), EventPaymentReceived)
	assert.Equal(t, EventType("SUBSCRIBED"), EventSubscribed)
	assert.Equal(t, FactoryKind("WALLET"), FactoryKindWallet)
	assert.Equal(t, FactoryKind("MANAGER"), FactoryKindManager)
}
