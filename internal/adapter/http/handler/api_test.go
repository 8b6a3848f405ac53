package handler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	httpHandler "subscription-ledger/internal/adapter/http/handler"
	"subscription-ledger/internal/adapter/storage/memory"
	redisStorage "subscription-ledger/internal/adapter/storage/redis"
	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/internal/service"
	"subscription-ledger/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const billingInterval = 30 * 24 * time.Hour

// manualClock is advanced explicitly by the test.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testApp runs the real router, middleware and services over the memory
// store, with miniredis behind the nonce, rate limit and idempotency stores.
type testApp struct {
	server *httptest.Server
	clock  *manualClock
	store  *memory.Store
	audit  *service.AuditServiceImpl
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	encSvc, err := service.NewAESEncryptionService("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashServiceWithParams(service.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", time.Hour, "test-issuer")

	log := logger.New("error", false)
	clock := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := memory.New()
	repos := store.Repositories()

	eventSvc := service.NewEventService(repos.Events, nil, nil, nil, log)
	auditSvc := service.NewAuditService(repos.Audit, log)
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        service.NewAuthService(repos.Identities, hashSvc, encSvc, tokenSvc, log),
		IdentitySvc:    service.NewIdentityService(repos, encSvc, clock, eventSvc, log),
		RegistrySvc:    service.NewRegistryService(repos, clock, eventSvc, log),
		WalletSvc:      service.NewWalletService(repos, clock, eventSvc, log),
		ManagerSvc:     service.NewManagerService(repos, redisStorage.NewIdempotencyCache(rdb), clock, eventSvc, nil, billingInterval, log),
		EventSvc:       eventSvc,
		IdentityRepo:   repos.Identities,
		EncSvc:         encSvc,
		SigSvc:         sigSvc,
		NonceStore:     redisStorage.NewNonceStore(rdb),
		TokenSvc:       tokenSvc,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: []ports.HealthChecker{store, redisStorage.NewHealthCheck(rdb)},
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testApp{server: server, clock: clock, store: store, audit: auditSvc}
}

// client is a registered identity holding both credential kinds.
type client struct {
	id        string
	accessKey string
	secretKey string
	token     string
}

type envelope struct {
	Data       json.RawMessage `json:"data"`
	ErrorCode  string          `json:"error_code"`
	NextCursor int64           `json:"next_cursor"`
	HasMore    bool            `json:"has_more"`
}

func (a *testApp) register(t *testing.T, username string) *client {
	t.Helper()

	status, env := a.send(t, nil, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username":     username,
		"password":     "StrongPass123!",
		"display_name": username,
	})
	require.Equal(t, http.StatusCreated, status, env.ErrorCode)
	var reg struct {
		IdentityID string `json:"identity_id"`
		AccessKey  string `json:"access_key"`
		SecretKey  string `json:"secret_key"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	status, env = a.send(t, nil, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": "StrongPass123!",
	})
	require.Equal(t, http.StatusOK, status, env.ErrorCode)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))

	return &client{id: reg.IdentityID, accessKey: reg.AccessKey, secretKey: reg.SecretKey, token: login.Token}
}

// send issues a request. GETs and /identities/me routes carry the JWT; the
// remaining writes are HMAC-signed as METHOD|PATH|TIMESTAMP|NONCE|BODY.
func (a *testApp) send(t *testing.T, c *client, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, a.server.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	if c != nil {
		if method == http.MethodGet || isSelfService(path) {
			req.Header.Set("Authorization", "Bearer "+c.token)
		} else {
			ts := strconv.FormatInt(time.Now().Unix(), 10)
			nonce := uuid.NewString()
			canonical := fmt.Sprintf("%s|%s|%s|%s|%s", method, path, ts, nonce, raw)
			mac := hmac.New(sha256.New, []byte(c.secretKey))
			mac.Write([]byte(canonical))
			req.Header.Set("X-Access-Key", c.accessKey)
			req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
			req.Header.Set("X-Timestamp", ts)
			req.Header.Set("X-Nonce", nonce)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &env), string(data))
	}
	return resp.StatusCode, env
}

func isSelfService(path string) bool {
	const prefix = "/api/v1/identities/me"
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

type instance struct {
	ID      string `json:"id"`
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	Price   int64  `json:"price"`
	Balance int64  `json:"balance"`
}

func (a *testApp) factory(t *testing.T, c *client, kind string) string {
	t.Helper()
	status, env := a.send(t, c, http.MethodPost, "/api/v1/factories", map[string]string{"kind": kind})
	require.Equal(t, http.StatusCreated, status, env.ErrorCode)
	return decode[instance](t, env).ID
}

func (a *testApp) topup(t *testing.T, c *client, amount int64) {
	t.Helper()
	status, env := a.send(t, c, http.MethodPost, "/api/v1/identities/me/topup", map[string]int64{"amount": amount})
	require.Equal(t, http.StatusOK, status, env.ErrorCode)
}

// billingPair sets up a funded wallet owned by sub, subscribed to a manager
// owned by merchant.
func (a *testApp) billingPair(t *testing.T, sub, merchant *client, price, funds int64) (walletID, managerID string) {
	t.Helper()

	wf := a.factory(t, sub, "wallet")
	status, env := a.send(t, sub, http.MethodPost, "/api/v1/factories/"+wf+"/wallets", nil)
	require.Equal(t, http.StatusCreated, status, env.ErrorCode)
	walletID = decode[instance](t, env).ID

	mf := a.factory(t, merchant, "manager")
	status, env = a.send(t, merchant, http.MethodPost, "/api/v1/factories/"+mf+"/managers", map[string]interface{}{"name": "Pro Plan", "price": price})
	require.Equal(t, http.StatusCreated, status, env.ErrorCode)
	managerID = decode[instance](t, env).ID

	a.topup(t, sub, funds)
	status, env = a.send(t, sub, http.MethodPost, "/api/v1/wallets/"+walletID+"/deposit", map[string]int64{"amount": funds})
	require.Equal(t, http.StatusOK, status, env.ErrorCode)

	status, env = a.send(t, sub, http.MethodPost, "/api/v1/wallets/"+walletID+"/subscribe", map[string]string{"manager_id": managerID})
	require.Equal(t, http.StatusOK, status, env.ErrorCode)
	return walletID, managerID
}

func (a *testApp) pull(t *testing.T, merchant *client, managerID, walletID string) (int, envelope) {
	t.Helper()
	return a.send(t, merchant, http.MethodPost, "/api/v1/managers/"+managerID+"/payments", map[string]string{"wallet_id": walletID})
}

// --- Integration Tests ---

func TestAPI_HealthCheck(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestAPI_CreateWalletThroughFactory(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "alice")
	bob := app.register(t, "bob")

	wf := app.factory(t, alice, "wallet")
	status, env := app.send(t, alice, http.MethodPost, "/api/v1/factories/"+wf+"/wallets", nil)
	require.Equal(t, http.StatusCreated, status)
	w := decode[instance](t, env)
	assert.Equal(t, alice.id, w.Owner)
	assert.Equal(t, int64(0), w.Balance)

	status, env = app.send(t, alice, http.MethodGet, "/api/v1/factories/"+wf+"/verify/"+w.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[struct {
		Verified bool `json:"verified"`
	}](t, env).Verified)

	// Enumeration is scoped to the creator.
	status, env = app.send(t, alice, http.MethodGet, "/api/v1/factories/"+wf+"/instances", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{w.ID}, decode[struct {
		Instances []string `json:"instances"`
	}](t, env).Instances)

	status, env = app.send(t, bob, http.MethodGet, "/api/v1/factories/"+wf+"/instances", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[struct {
		Instances []string `json:"instances"`
	}](t, env).Instances)

	status, env = app.send(t, bob, http.MethodGet, "/api/v1/factories/"+wf+"/instances?creator="+alice.id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[struct {
		Instances []string `json:"instances"`
	}](t, env).Instances)

	// A directly deployed wallet has no registry provenance.
	status, env = app.send(t, alice, http.MethodPost, "/api/v1/wallets/deploy", nil)
	require.Equal(t, http.StatusCreated, status)
	stray := decode[instance](t, env)
	status, env = app.send(t, alice, http.MethodGet, "/api/v1/factories/"+wf+"/verify/"+stray.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[struct {
		Verified bool `json:"verified"`
	}](t, env).Verified)
}

func TestAPI_PaymentTooEarlyAfterSubscribe(t *testing.T) {
	app := newTestApp(t)
	sub := app.register(t, "subscriber")
	merchant := app.register(t, "merchant")
	walletID, managerID := app.billingPair(t, sub, merchant, 10, 100)

	status, env := app.pull(t, merchant, managerID, walletID)
	assert.Equal(t, http.StatusTooEarly, status)
	assert.Equal(t, "SUB_003", env.ErrorCode)
}

func TestAPI_PaymentAfterInterval(t *testing.T) {
	app := newTestApp(t)
	sub := app.register(t, "subscriber")
	merchant := app.register(t, "merchant")
	walletID, managerID := app.billingPair(t, sub, merchant, 10, 100)

	app.clock.Advance(billingInterval)

	status, env := app.pull(t, merchant, managerID, walletID)
	require.Equal(t, http.StatusCreated, status, env.ErrorCode)
	assert.Equal(t, int64(10), decode[struct {
		Amount int64 `json:"amount"`
	}](t, env).Amount)

	status, env = app.send(t, sub, http.MethodGet, "/api/v1/wallets/"+walletID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(90), decode[instance](t, env).Balance)

	status, env = app.pull(t, merchant, managerID, walletID)
	assert.Equal(t, http.StatusTooEarly, status)
	assert.Equal(t, "SUB_003", env.ErrorCode)

	// Only the owner may pull.
	app.clock.Advance(billingInterval)
	status, env = app.pull(t, sub, managerID, walletID)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "SUB_001", env.ErrorCode)
}

func TestAPI_UnsubscribeStopsBilling(t *testing.T) {
	app := newTestApp(t)
	sub := app.register(t, "subscriber")
	merchant := app.register(t, "merchant")
	walletID, managerID := app.billingPair(t, sub, merchant, 10, 100)

	status, env := app.send(t, sub, http.MethodPost, "/api/v1/wallets/"+walletID+"/unsubscribe", map[string]string{"manager_id": managerID})
	require.Equal(t, http.StatusOK, status, env.ErrorCode)

	app.clock.Advance(billingInterval)
	status, env = app.pull(t, merchant, managerID, walletID)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SUB_002", env.ErrorCode)

	// Historical membership survives the unsubscribe.
	status, env = app.send(t, merchant, http.MethodGet, "/api/v1/managers/"+managerID+"/subscribers", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{walletID}, decode[[]string](t, env))
}

func TestAPI_InvalidPriceKeepsPrice(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "alice")

	mf := app.factory(t, alice, "manager")
	status, env := app.send(t, alice, http.MethodPost, "/api/v1/factories/"+mf+"/managers", map[string]interface{}{"name": "X", "price": 1000})
	require.Equal(t, http.StatusCreated, status, env.ErrorCode)
	managerID := decode[instance](t, env).ID

	status, env = app.send(t, alice, http.MethodPut, "/api/v1/managers/"+managerID+"/price", map[string]int64{"price": 0})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "SUB_005", env.ErrorCode)

	status, env = app.send(t, alice, http.MethodGet, "/api/v1/managers/"+managerID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1000), decode[instance](t, env).Price)
}

func TestAPI_ConcurrentPullsBillOnce(t *testing.T) {
	app := newTestApp(t)
	sub := app.register(t, "subscriber")
	merchant := app.register(t, "merchant")
	walletID, managerID := app.billingPair(t, sub, merchant, 10, 100)
	app.clock.Advance(billingInterval)

	const n = 8
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i], _ = app.pull(t, merchant, managerID, walletID)
		}(i)
	}
	wg.Wait()

	var created, early int
	for _, s := range statuses {
		switch s {
		case http.StatusCreated:
			created++
		case http.StatusTooEarly:
			early++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, early)

	status, env := app.send(t, sub, http.MethodGet, "/api/v1/wallets/"+walletID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(90), decode[instance](t, env).Balance)
}

func TestAPI_RejectsBadSignatureAndReplay(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "alice")

	forged := *alice
	forged.secretKey = "sk_wrong"
	status, env := app.send(t, &forged, http.MethodPost, "/api/v1/wallets/deploy", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "SEC_002", env.ErrorCode)

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := uuid.NewString()
	mac := hmac.New(sha256.New, []byte(alice.secretKey))
	mac.Write([]byte("POST|/api/v1/wallets/deploy|" + ts + "|" + nonce + "|"))
	sig := hex.EncodeToString(mac.Sum(nil))

	results := make([]int, 2)
	for i := range results {
		req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/wallets/deploy", nil)
		require.NoError(t, err)
		req.Header.Set("X-Access-Key", alice.accessKey)
		req.Header.Set("X-Signature", sig)
		req.Header.Set("X-Timestamp", ts)
		req.Header.Set("X-Nonce", nonce)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		results[i] = resp.StatusCode
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusForbidden}, results)
}

func TestAPI_EventLogAndChain(t *testing.T) {
	app := newTestApp(t)
	sub := app.register(t, "subscriber")
	merchant := app.register(t, "merchant")
	walletID, managerID := app.billingPair(t, sub, merchant, 10, 100)
	app.clock.Advance(billingInterval)
	status, _ := app.pull(t, merchant, managerID, walletID)
	require.Equal(t, http.StatusCreated, status)

	status, env := app.send(t, merchant, http.MethodGet, "/api/v1/events?instance_id="+managerID, nil)
	require.Equal(t, http.StatusOK, status)
	events := decode[[]struct {
		Seq  int64  `json:"seq"`
		Type string `json:"type"`
	}](t, env)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		string(domain.EventManagerCreated),
		string(domain.EventSubscribed),
		string(domain.EventPaymentReceived),
	}, types)
	assert.False(t, env.HasMore)

	// Paging walks the merchant's slice of the log in sequence order.
	var seen []int64
	cursor := int64(0)
	for {
		status, env = app.send(t, merchant, http.MethodGet, "/api/v1/events?limit=3&after="+strconv.FormatInt(cursor, 10), nil)
		require.Equal(t, http.StatusOK, status)
		for _, e := range decode[[]struct {
			Seq     int64  `json:"seq"`
			OwnerID string `json:"owner_id"`
			ActorID string `json:"actor_id"`
		}](t, env) {
			assert.True(t, e.OwnerID == merchant.id || e.ActorID == merchant.id, "seq %d", e.Seq)
			seen = append(seen, e.Seq)
		}
		cursor = env.NextCursor
		if !env.HasMore {
			break
		}
	}
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}

	status, env = app.send(t, merchant, http.MethodGet, "/api/v1/events/verify", nil)
	require.Equal(t, http.StatusOK, status)
	report := decode[struct {
		Events int  `json:"events"`
		Valid  bool `json:"valid"`
	}](t, env)
	assert.True(t, report.Valid)
	assert.Greater(t, report.Events, len(seen))
}

func TestAPI_EventsHiddenFromOutsiders(t *testing.T) {
	app := newTestApp(t)
	sub := app.register(t, "subscriber")
	merchant := app.register(t, "merchant")
	walletID, managerID := app.billingPair(t, sub, merchant, 10, 100)
	eve := app.register(t, "eve")

	status, env := app.send(t, eve, http.MethodGet, "/api/v1/events?instance_id="+managerID+"&type="+string(domain.EventSubscribed), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]map[string]interface{}](t, env))

	status, env = app.send(t, eve, http.MethodGet, "/api/v1/events?owner_id="+sub.id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]map[string]interface{}](t, env))

	status, env = app.send(t, eve, http.MethodGet, "/api/v1/events?type="+string(domain.EventWalletCreated), nil)
	require.Equal(t, http.StatusOK, status)
	for _, e := range decode[[]struct {
		InstanceID string `json:"instance_id"`
		OwnerID    string `json:"owner_id"`
	}](t, env) {
		assert.NotEqual(t, walletID, e.InstanceID)
		assert.Equal(t, eve.id, e.OwnerID)
	}
}

func TestAPI_AuditTrail(t *testing.T) {
	app := newTestApp(t)
	sub := app.register(t, "subscriber")
	merchant := app.register(t, "merchant")
	walletID, managerID := app.billingPair(t, sub, merchant, 10, 100)

	app.clock.Advance(billingInterval)
	status, _ := app.pull(t, merchant, managerID, walletID)
	require.Equal(t, http.StatusCreated, status)

	// Rejected pulls are not audited.
	status, _ = app.pull(t, merchant, managerID, walletID)
	require.Equal(t, http.StatusTooEarly, status)

	require.NoError(t, app.audit.Close(context.Background()))

	counts := map[domain.AuditAction]int{}
	for _, entry := range app.store.AuditLogs() {
		counts[entry.Action]++
		if entry.Action == domain.AuditActionRequestPayment {
			assert.Equal(t, managerID, entry.ResourceID)
			require.NotNil(t, entry.IdentityID)
			assert.Equal(t, merchant.id, entry.IdentityID.String())
		}
	}
	assert.Equal(t, 2, counts[domain.AuditActionRegister])
	assert.Equal(t, 1, counts[domain.AuditActionSubscribe])
	assert.Equal(t, 1, counts[domain.AuditActionRequestPayment])
}

func TestAPI_TopupOverflowRejected(t *testing.T) {
	app := newTestApp(t)
	acct := app.register(t, "saver")
	app.topup(t, acct, 10)

	status, env := app.send(t, acct, http.MethodPost, "/api/v1/identities/me/topup", map[string]int64{"amount": math.MaxInt64})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "SUB_005", env.ErrorCode)

	status, env = app.send(t, acct, http.MethodGet, "/api/v1/identities/me/balance", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(10), decode[struct {
		Balance int64 `json:"balance"`
	}](t, env).Balance)
}
