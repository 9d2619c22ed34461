package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maskShim applies a list of {signal, value} pairs. It is fixed code; only
// the JSON argument varies per page.
const maskShim = `(function (signals) {
  const define = (obj, prop, value) => {
    try {
      Object.defineProperty(obj, prop, { get: () => value, configurable: true });
    } catch (e) {}
  };

  const handlers = {
    'navigator.webdriver': () => define(Navigator.prototype, 'webdriver', undefined),
    'navigator.plugins': (names) => {
      const plugins = names.map((name) => ({
        name: name,
        filename: 'internal-pdf-viewer',
        description: 'Portable Document Format',
        length: 1,
      }));
      plugins.item = (i) => plugins[i] || null;
      plugins.namedItem = (n) => plugins.find((p) => p.name === n) || null;
      plugins.refresh = () => {};
      define(Navigator.prototype, 'plugins', plugins);
    },
    'navigator.languages': (langs) => define(Navigator.prototype, 'languages', Object.freeze(langs)),
    'navigator.platform': (v) => define(Navigator.prototype, 'platform', v),
    'navigator.hardwareConcurrency': (v) => define(Navigator.prototype, 'hardwareConcurrency', v),
    'webgl.vendor': (v) => patchWebGL(37445, v),
    'webgl.renderer': (v) => patchWebGL(37446, v),
    'canvas.noise': (seed) => patchCanvas(seed >>> 0),
  };

  const webglOverrides = {};
  let webglPatched = false;
  function patchWebGL(param, value) {
    webglOverrides[param] = value;
    if (webglPatched) return;
    webglPatched = true;
    for (const ctx of [window.WebGLRenderingContext, window.WebGL2RenderingContext]) {
      if (!ctx) continue;
      const orig = ctx.prototype.getParameter;
      ctx.prototype.getParameter = function (p) {
        if (Object.prototype.hasOwnProperty.call(webglOverrides, p)) return webglOverrides[p];
        return orig.call(this, p);
      };
    }
  }

  function patchCanvas(seed) {
    let state = seed || 1;
    const next = () => {
      state ^= state << 13; state >>>= 0;
      state ^= state >>> 17;
      state ^= state << 5; state >>>= 0;
      return state;
    };
    const noisify = (data) => {
      for (let i = 0; i < data.length; i += 4) {
        for (let c = 0; c < 3; c++) {
          const delta = (next() % 3) - 1;
          data[i + c] = Math.min(255, Math.max(0, data[i + c] + delta));
        }
      }
    };
    const origGetImageData = CanvasRenderingContext2D.prototype.getImageData;
    CanvasRenderingContext2D.prototype.getImageData = function () {
      const img = origGetImageData.apply(this, arguments);
      noisify(img.data);
      return img;
    };
    const origToDataURL = HTMLCanvasElement.prototype.toDataURL;
    HTMLCanvasElement.prototype.toDataURL = function () {
      const ctx = this.getContext('2d');
      if (ctx && this.width && this.height) {
        const img = origGetImageData.call(ctx, 0, 0, this.width, this.height);
        noisify(img.data);
        ctx.putImageData(img, 0, 0);
      }
      return origToDataURL.apply(this, arguments);
    };
  }

  for (const s of signals) {
    const h = handlers[s.signal];
    if (h) h(s.value);
  }
})(__SIGNALS__);`

// renderShim embeds the signal list into the masking shim.
func renderShim(signals []Signal) (string, error) {
	payload, err := json.Marshal(signals)
	if err != nil {
		return "", fmt.Errorf("encode stealth signals: %w", err)
	}
	return strings.Replace(maskShim, "__SIGNALS__", string(payload), 1), nil
}
