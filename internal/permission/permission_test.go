package permission

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCapabilityFalseWhenNoneGranted(t *testing.T) {
	m := NewManager(t.TempDir())
	assert.False(t, m.HasCapability("plugin-a", Capability{Kind: VaultRead, Paths: []string{"notes/x.md"}}))
}

func TestGrantThenHasCapabilityTrue(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Grant("plugin-a", Capability{Kind: VaultRead, Paths: []string{"*"}}, nil))
	assert.True(t, m.HasCapability("plugin-a", Capability{Kind: VaultRead, Paths: []string{"notes/x.md"}}))
}

func TestWildcardPatternMatchesEverything(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Grant("p", Capability{Kind: VaultWrite, Paths: []string{"*"}}, nil))
	assert.True(t, m.HasCapability("p", Capability{Kind: VaultWrite, Paths: []string{"a/b/c.md"}}))
}

func TestPrefixWildcardMatchesOnlyUnderPrefix(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Grant("p", Capability{Kind: VaultRead, Paths: []string{"daily/*"}}, nil))
	assert.True(t, m.HasCapability("p", Capability{Kind: VaultRead, Paths: []string{"daily/2026-01-01.md"}}))
	assert.False(t, m.HasCapability("p", Capability{Kind: VaultRead, Paths: []string{"projects/x.md"}}))
}

func TestExpiredGrantIsNotInForce(t *testing.T) {
	m := NewManager(t.TempDir())
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, m.Grant("p", Capability{Kind: VaultRead, Paths: []string{"*"}}, &past))
	assert.False(t, m.HasCapability("p", Capability{Kind: VaultRead, Paths: []string{"x.md"}}))
}

func TestRequireCapabilityReturnsPermissionDeniedKind(t *testing.T) {
	m := NewManager(t.TempDir())
	err := m.RequireCapability("p", Capability{Kind: WorkspaceWrite})
	require.Error(t, err)
}

func TestRequireCapabilitySucceedsWhenGranted(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Grant("p", Capability{Kind: WorkspaceWrite}, nil))
	assert.NoError(t, m.RequireCapability("p", Capability{Kind: WorkspaceWrite}))
}

func TestRevokeRemovesCapability(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Grant("p", Capability{Kind: ClipboardRead}, nil))
	require.True(t, m.HasCapability("p", Capability{Kind: ClipboardRead}))

	require.NoError(t, m.Revoke("p", ClipboardRead))
	assert.False(t, m.HasCapability("p", Capability{Kind: ClipboardRead}))
}

func TestRequestConsentDenyGrantsNothing(t *testing.T) {
	m := NewManager(t.TempDir())
	req := ConsentRequest{PluginID: "p", Capability: Capability{Kind: NetworkAccess, Domains: []string{"example.com"}}}
	require.NoError(t, m.RequestConsent(req, Deny))
	assert.False(t, m.HasCapability("p", Capability{Kind: NetworkAccess, Domains: []string{"example.com"}}))
}

func TestRequestConsentGrantOnceExpiresInOneHour(t *testing.T) {
	m := NewManager(t.TempDir())
	req := ConsentRequest{PluginID: "p", Capability: Capability{Kind: NotificationShow}}
	require.NoError(t, m.RequestConsent(req, GrantOnce))

	m.mu.RLock()
	recs := m.records["p"]
	m.mu.RUnlock()
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(grantOnceDuration), *recs[0].ExpiresAt, 5*time.Second)
}

func TestRequestConsentGrantAlwaysNeverExpires(t *testing.T) {
	m := NewManager(t.TempDir())
	req := ConsentRequest{PluginID: "p", Capability: Capability{Kind: NotificationShow}}
	require.NoError(t, m.RequestConsent(req, GrantAlways))
	assert.True(t, m.HasCapability("p", Capability{Kind: NotificationShow}))

	m.mu.RLock()
	recs := m.records["p"]
	m.mu.RUnlock()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].ExpiresAt)
}

func TestConsentCachedPerPluginAndCapability(t *testing.T) {
	m := NewManager(t.TempDir())
	req := ConsentRequest{PluginID: "p", Capability: Capability{Kind: NotificationShow}}
	require.NoError(t, m.RequestConsent(req, GrantOnce))

	d, ok := m.CachedConsent("p", Capability{Kind: NotificationShow})
	require.True(t, ok)
	assert.Equal(t, GrantOnce, d)
}

func TestPersistenceSurvivesNewManagerInstance(t *testing.T) {
	dir := t.TempDir()
	m1 := NewManager(dir)
	require.NoError(t, m1.Grant("p", Capability{Kind: VaultRead, Paths: []string{"*"}}, nil))

	m2 := NewManager(dir)
	assert.True(t, m2.HasCapability("p", Capability{Kind: VaultRead, Paths: []string{"x.md"}}))
}

func TestGenerateCSPBasic(t *testing.T) {
	m := NewManager(t.TempDir())
	csp := m.GenerateCSP("p")
	assert.Contains(t, csp, "default-src 'self'")
	assert.True(t, strings.HasSuffix(csp, "; worker-src"), csp)
	assert.NotContains(t, csp, "wasm-unsafe-eval")
}

func TestGenerateCSPWithNetworkWasmWorkers(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Grant("p", Capability{Kind: NetworkAccess, Domains: []string{"api.example.com"}}, nil))
	require.NoError(t, m.Grant("p", Capability{Kind: WebAssembly}, nil))
	require.NoError(t, m.Grant("p", Capability{Kind: WebWorkers}, nil))

	csp := m.GenerateCSP("p")
	assert.Contains(t, csp, "api.example.com")
	assert.Contains(t, csp, "'wasm-unsafe-eval'")
	assert.Contains(t, csp, "worker-src 'self'")
}

func TestDomainPatternCaseInsensitive(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Grant("p", Capability{Kind: NetworkAccess, Domains: []string{"Example.COM"}}, nil))
	assert.True(t, m.HasCapability("p", Capability{Kind: NetworkAccess, Domains: []string{"example.com"}}))
}

func TestPathPatternCaseSensitive(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Grant("p", Capability{Kind: VaultRead, Paths: []string{"Notes/x.md"}}, nil))
	assert.False(t, m.HasCapability("p", Capability{Kind: VaultRead, Paths: []string{"notes/x.md"}}))
}
