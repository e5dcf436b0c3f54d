package guard

import (
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/text/language"
)

const (
	identityBucket       = time.Hour
	identitySuffixLength = 4
)

// Environment is the set of client signals an identity token is derived from. Field order
// matters: it fixes the order of the hashed components.
type Environment struct {
	UserAgent           string   `json:"userAgent"`
	Language            string   `json:"language"`
	Languages           []string `json:"languages"`
	ScreenWidth         int      `json:"screenWidth"`
	ScreenHeight        int      `json:"screenHeight"`
	ColorDepth          int      `json:"colorDepth"`
	TimezoneOffset      int      `json:"timezoneOffset"`
	Platform            string   `json:"platform"`
	CookieEnabled       bool     `json:"cookieEnabled"`
	DoNotTrack          string   `json:"doNotTrack"`
	CanvasFingerprint   string   `json:"canvasFingerprint"`
	HardwareConcurrency int      `json:"hardwareConcurrency"`
	MaxTouchPoints      int      `json:"maxTouchPoints"`
	DevicePixelRatio    float64  `json:"devicePixelRatio"`
}

// components renders the environment as the "|" joined string that is hashed.
func (e Environment) components() string {
	ratio := e.DevicePixelRatio
	if ratio == 0 {
		ratio = 1
	}
	parts := []string{
		e.UserAgent,
		e.Language,
		strings.Join(e.Languages, ","),
		strconv.Itoa(e.ScreenWidth) + "x" + strconv.Itoa(e.ScreenHeight),
		strconv.Itoa(e.ColorDepth),
		strconv.Itoa(e.TimezoneOffset),
		e.Platform,
		strconv.FormatBool(e.CookieEnabled),
		e.DoNotTrack,
		e.CanvasFingerprint,
		strconv.Itoa(e.HardwareConcurrency),
		strconv.Itoa(e.MaxTouchPoints),
		strconv.FormatFloat(ratio, 'f', -1, 64),
	}
	return strings.Join(parts, "|")
}

// IdentityGenerator derives best-effort pseudonymous visitor tokens. Tokens collide across
// similar environments and drift every hour; they key rate limits and reaction bookkeeping and
// must never be used to authenticate anyone.
type IdentityGenerator struct {
	clock func() time.Time
}

// NewIdentityGenerator constructs a generator. A nil clock means time.Now.
func NewIdentityGenerator(clock func() time.Time) *IdentityGenerator {
	if clock == nil {
		clock = time.Now
	}
	return &IdentityGenerator{clock: clock}
}

// Generate returns base36(|hash ^ hourBucket|) followed by the last four base36 digits of the
// current unix millisecond.
func (g *IdentityGenerator) Generate(env Environment) string {
	clock := time.Now
	if g != nil && g.clock != nil {
		clock = g.clock
	}
	nowMs := clock().UnixMilli()

	hash := rollingHash(env.components())
	hash ^= int32(nowMs / identityBucket.Milliseconds())

	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}
	stamp := strconv.FormatInt(nowMs, 36)
	if len(stamp) > identitySuffixLength {
		stamp = stamp[len(stamp)-identitySuffixLength:]
	}
	return strconv.FormatInt(abs, 36) + stamp
}

// rollingHash is h = h*31 + c over UTF-16 code units with 32-bit wraparound.
func rollingHash(s string) int32 {
	var h int32
	for _, unit := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(unit)
	}
	return h
}

// EnvironmentFromRequest assembles an Environment from request headers. Browsers send the
// display and hardware hints as X-Client-* headers; everything else comes from standard headers.
func EnvironmentFromRequest(r *http.Request) Environment {
	if r == nil {
		return Environment{}
	}
	h := r.Header
	env := Environment{
		UserAgent:           h.Get("User-Agent"),
		Platform:            strings.Trim(h.Get("Sec-CH-UA-Platform"), `"`),
		CookieEnabled:       true,
		DoNotTrack:          h.Get("DNT"),
		CanvasFingerprint:   h.Get("X-Client-Canvas"),
		ColorDepth:          headerInt(h, "X-Client-Color-Depth"),
		TimezoneOffset:      headerInt(h, "X-Client-Timezone-Offset"),
		HardwareConcurrency: headerInt(h, "X-Client-Hardware-Concurrency"),
		MaxTouchPoints:      headerInt(h, "X-Client-Touch-Points"),
	}
	if raw := strings.TrimSpace(h.Get("X-Client-Pixel-Ratio")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			env.DevicePixelRatio = v
		}
	}
	if w, hgt, ok := strings.Cut(strings.ToLower(h.Get("X-Client-Screen")), "x"); ok {
		env.ScreenWidth, _ = strconv.Atoi(strings.TrimSpace(w))
		env.ScreenHeight, _ = strconv.Atoi(strings.TrimSpace(hgt))
	}
	if tags, _, err := language.ParseAcceptLanguage(h.Get("Accept-Language")); err == nil && len(tags) > 0 {
		env.Languages = make([]string, 0, len(tags))
		for _, tag := range tags {
			env.Languages = append(env.Languages, tag.String())
		}
		env.Language = env.Languages[0]
	}
	return env
}

func headerInt(h http.Header, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(h.Get(key)))
	if err != nil {
		return 0
	}
	return v
}
