// Package render is the Landing Renderer Adapter: it turns the Policy
// Engine's opaque rendering options into template parameters and produces
// response bytes. Template execution itself is treated as the pure
// "render(template_name, params) -> bytes" collaborator SPEC_FULL.md
// keeps out of the core's scope; this package owns only the translation
// and the concrete (embedded, single-binary-friendly) implementation of
// that collaborator.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sync"

	"github.com/connectbox/captiveportal/internal/policy"
)

//go:embed assets/templates/*.html
var templateFS embed.FS

//go:embed assets/static
var StaticFS embed.FS

// AppleSuccessBody is the bit-exact body SPEC_FULL.md §6 requires for
// SendSuccessBody responses. It must contain the literal substring
// "<BODY>\nSuccess\n</BODY>" so Apple's wispr agent accepts it — this is
// not template output, it's a fixed wire constant.
const AppleSuccessBody = "<HTML><HEAD><TITLE>Success</TITLE></HEAD><BODY>\nSuccess\n</BODY></HTML>"

// connectedParams are the fields connected.html consumes.
type connectedParams struct {
	LinkType string // "href" or "text", per policy.LinkOps
	ShowOK   bool
	Icon     string
	LocalURL string
}

// Renderer renders the landing page template. The zero value is not
// usable; construct with New.
type Renderer struct {
	once sync.Once
	tmpl *template.Template
	err  error
}

// New returns a Renderer backed by the embedded template assets.
func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) parsed() (*template.Template, error) {
	r.once.Do(func() {
		r.tmpl, r.err = template.ParseFS(templateFS, "assets/templates/*.html")
	})
	return r.tmpl, r.err
}

// Landing renders connected.html from a policy.LandingOpts.
func (r *Renderer) Landing(opts policy.LandingOpts) ([]byte, error) {
	tmpl, err := r.parsed()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	params := connectedParams{
		LinkType: policy.LinkOps[opts.LinkType],
		ShowOK:   opts.ShowOK,
		Icon:     opts.Icon,
		LocalURL: opts.LocalURL,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "connected.html", params); err != nil {
		return nil, fmt.Errorf("render connected.html: %w", err)
	}
	return buf.Bytes(), nil
}
