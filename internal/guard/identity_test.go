package guard

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desktopEnvironment() Environment {
	return Environment{
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64)",
		Language:            "en-US",
		Languages:           []string{"en-US", "en"},
		ScreenWidth:         1920,
		ScreenHeight:        1080,
		ColorDepth:          24,
		TimezoneOffset:      -60,
		Platform:            "Linux x86_64",
		CookieEnabled:       true,
		CanvasFingerprint:   "data:image/png;base64,AAAA",
		HardwareConcurrency: 8,
	}
}

func TestIdentityGenerator_Golden(t *testing.T) {
	at := time.UnixMilli(1714564800000)
	gen := NewIdentityGenerator(func() time.Time { return at })

	assert.Equal(t, "rdr535m2o0", gen.Generate(desktopEnvironment()))

	sparse := Environment{UserAgent: "Mozilla/5.0 ☃ 😀", DevicePixelRatio: 1.5}
	assert.Equal(t, "vd3pixm2o0", gen.Generate(sparse))
}

func TestIdentityGenerator_StableWithinHour(t *testing.T) {
	clock := newManualClock()
	gen := NewIdentityGenerator(clock.Now)
	env := desktopEnvironment()

	first := gen.Generate(env)
	clock.Advance(time.Millisecond)
	second := gen.Generate(env)

	require.Greater(t, len(first), identitySuffixLength)
	assert.Equal(t, first[:len(first)-identitySuffixLength], second[:len(second)-identitySuffixLength])
	assert.NotEqual(t, first[len(first)-identitySuffixLength:], second[len(second)-identitySuffixLength:])
}

func TestIdentityGenerator_DriftsAcrossHours(t *testing.T) {
	clock := newManualClock()
	gen := NewIdentityGenerator(clock.Now)
	env := desktopEnvironment()

	before := gen.Generate(env)
	clock.Advance(time.Hour)
	after := gen.Generate(env)

	assert.NotEqual(t, before[:len(before)-identitySuffixLength], after[:len(after)-identitySuffixLength])
}

func TestIdentityGenerator_DistinguishesEnvironments(t *testing.T) {
	gen := NewIdentityGenerator(newManualClock().Now)
	phone := desktopEnvironment()
	phone.ScreenWidth, phone.ScreenHeight, phone.MaxTouchPoints = 390, 844, 5

	assert.NotEqual(t, gen.Generate(desktopEnvironment()), gen.Generate(phone))
}

func TestIdentityGenerator_ZeroPixelRatioMeansOne(t *testing.T) {
	gen := NewIdentityGenerator(newManualClock().Now)
	explicit := desktopEnvironment()
	explicit.DevicePixelRatio = 1

	assert.Equal(t, gen.Generate(explicit), gen.Generate(desktopEnvironment()))
}

func TestEnvironmentFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/identity", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	r.Header.Set("Accept-Language", "en-US,en;q=0.9")
	r.Header.Set("Sec-CH-UA-Platform", `"Linux x86_64"`)
	r.Header.Set("X-Client-Screen", "1920x1080")
	r.Header.Set("X-Client-Color-Depth", "24")
	r.Header.Set("X-Client-Timezone-Offset", "-60")
	r.Header.Set("X-Client-Canvas", "data:image/png;base64,AAAA")
	r.Header.Set("X-Client-Hardware-Concurrency", "8")
	r.Header.Set("X-Client-Touch-Points", "garbage")

	env := EnvironmentFromRequest(r)

	assert.Equal(t, desktopEnvironment(), env)
}

func TestEnvironmentFromRequest_Nil(t *testing.T) {
	assert.Equal(t, Environment{}, EnvironmentFromRequest(nil))
}
