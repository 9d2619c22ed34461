package browser

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Viewport is a window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Fingerprint is the browser-observable identity of one stealth page.
// It is generated once, when the page is created, and never changes.
type Fingerprint struct {
	Viewport            Viewport `json:"viewport"`
	DeviceScaleFactor   float64  `json:"device_scale_factor"`
	UserAgent           string   `json:"user_agent"`
	Platform            string   `json:"platform"`
	AcceptLanguage      string   `json:"accept_language"`
	Timezone            string   `json:"timezone"`
	WebGLVendor         string   `json:"webgl_vendor"`
	WebGLRenderer       string   `json:"webgl_renderer"`
	CanvasSeed          uint32   `json:"canvas_seed"`
	HardwareConcurrency int      `json:"hardware_concurrency"`
}

type gpu struct{ vendor, renderer string }

// deviceProfile keeps UA, platform and GPU strings mutually consistent; a
// Mac UA with a Direct3D renderer is an instant tell.
type deviceProfile struct {
	uaFormat  string
	platform  string
	gpus      []gpu
	viewports []Viewport
	dprs      []float64
	cores     []int
}

var chromeVersions = []string{"128.0.0.0", "129.0.0.0", "130.0.0.0", "131.0.0.0"}

var deviceProfiles = []deviceProfile{
	{
		uaFormat: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
		platform: "Win32",
		gpus: []gpu{
			{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660 SUPER Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 620 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 580 Series Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		},
		viewports: []Viewport{{1920, 1080}, {1536, 864}, {1366, 768}, {1440, 900}, {1600, 900}},
		dprs:      []float64{1, 1, 1.25, 1.5},
		cores:     []int{4, 8, 12, 16},
	},
	{
		uaFormat: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
		platform: "MacIntel",
		gpus: []gpu{
			{"Google Inc. (Apple)", "ANGLE (Apple, ANGLE Metal Renderer: Apple M1, Unspecified Version)"},
			{"Google Inc. (Apple)", "ANGLE (Apple, ANGLE Metal Renderer: Apple M2, Unspecified Version)"},
			{"Google Inc. (Intel Inc.)", "ANGLE (Intel Inc., Intel(R) Iris(TM) Plus Graphics 655, OpenGL 4.1)"},
		},
		viewports: []Viewport{{1440, 900}, {1512, 982}, {1680, 1050}, {1280, 800}},
		dprs:      []float64{2, 2, 1},
		cores:     []int{8, 10, 12},
	},
}

var timezones = []string{
	"America/New_York",
	"America/Chicago",
	"America/Denver",
	"America/Phoenix",
	"America/Los_Angeles",
}

var acceptLanguages = []string{"en-US,en;q=0.9", "en-US,en;q=0.8", "en-US"}

// Generator produces randomized fingerprints. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator seeds a generator. Tests pass a fixed seed for reproducible
// fingerprints.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomGenerator seeds from the clock.
func NewRandomGenerator() *Generator {
	return NewGenerator(uint64(time.Now().UnixNano()))
}

// Generate returns a new fingerprint.
func (g *Generator) Generate() Fingerprint {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := deviceProfiles[g.rnd.IntN(len(deviceProfiles))]
	card := p.gpus[g.rnd.IntN(len(p.gpus))]
	vp := p.viewports[g.rnd.IntN(len(p.viewports))]

	// Jitter the window so identical screens still differ slightly.
	vp.Width -= g.rnd.IntN(16)
	vp.Height -= 60 + g.rnd.IntN(80)

	return Fingerprint{
		Viewport:            vp,
		DeviceScaleFactor:   p.dprs[g.rnd.IntN(len(p.dprs))],
		UserAgent:           fmt.Sprintf(p.uaFormat, chromeVersions[g.rnd.IntN(len(chromeVersions))]),
		Platform:            p.platform,
		AcceptLanguage:      acceptLanguages[g.rnd.IntN(len(acceptLanguages))],
		Timezone:            timezones[g.rnd.IntN(len(timezones))],
		WebGLVendor:         card.vendor,
		WebGLRenderer:       card.renderer,
		CanvasSeed:          g.rnd.Uint32() | 1,
		HardwareConcurrency: p.cores[g.rnd.IntN(len(p.cores))],
	}
}

// Signal is one masked browser property handed to the init shim.
type Signal struct {
	Name  string `json:"signal"`
	Value any    `json:"value"`
}

var defaultPlugins = []string{
	"PDF Viewer",
	"Chrome PDF Viewer",
	"Chromium PDF Viewer",
	"Microsoft Edge PDF Viewer",
	"WebKit built-in PDF",
}

// Signals lists the properties the shim masks for this fingerprint.
func (fp Fingerprint) Signals() []Signal {
	return []Signal{
		{Name: "navigator.webdriver", Value: false},
		{Name: "navigator.plugins", Value: defaultPlugins},
		{Name: "navigator.languages", Value: []string{"en-US", "en"}},
		{Name: "navigator.platform", Value: fp.Platform},
		{Name: "navigator.hardwareConcurrency", Value: fp.HardwareConcurrency},
		{Name: "webgl.vendor", Value: fp.WebGLVendor},
		{Name: "webgl.renderer", Value: fp.WebGLRenderer},
		{Name: "canvas.noise", Value: fp.CanvasSeed},
	}
}
