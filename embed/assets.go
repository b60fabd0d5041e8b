package embed

import _ "embed"

// widgetCSS is the scoped stylesheet emitted inside every rendered widget so
// the cards look the same no matter what the host page loads.
//
//go:embed assets/widget.css
var widgetCSS string
