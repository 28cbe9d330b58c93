/*
events.go - Typed decoding of menu-tap callback data

The transport delivers menu taps as opaque strings. They are decoded here,
once, into a closed set of variants; nothing past this boundary ever
string-matches callback prefixes. Encoding lives next to decoding so the
wire vocabulary has exactly one home.
*/
package bot

import (
	"fmt"
	"strings"
)

// Wire vocabulary for callback data. Stable across deploys: old menu
// messages keep working after a restart.
const (
	prefixNode    = "NODE:"
	prefixBack    = "BACK:"
	prefixSelect  = "SELECT:"
	prefixExample = "EXAMPLE:"
	dataBalance   = "BALANCE"
	dataTopup     = "TOPUP"
)

// Tap is one decoded menu tap.
type Tap interface{ isTap() }

// TapOpenNode navigates into a category.
type TapOpenNode struct{ NodeID string }

// TapBack navigates to an ancestor (empty = root).
type TapBack struct{ NodeID string }

// TapSelect picks or toggles a leaf.
type TapSelect struct{ NodeID string }

// TapExample asks for a leaf's example description.
type TapExample struct{ NodeID string }

// TapBalance shows the current balance.
type TapBalance struct{}

// TapTopup starts the top-up dialog.
type TapTopup struct{}

func (TapOpenNode) isTap() {}
func (TapBack) isTap()     {}
func (TapSelect) isTap()   {}
func (TapExample) isTap()  {}
func (TapBalance) isTap()  {}
func (TapTopup) isTap()    {}

// ErrUnknownCallback covers data the current vocabulary cannot decode -
// usually a tap on a menu from an older deployment.
var ErrUnknownCallback = fmt.Errorf("unknown callback data")

// DecodeTap parses raw callback data into a Tap.
func DecodeTap(data string) (Tap, error) {
	switch {
	case strings.HasPrefix(data, prefixNode):
		return TapOpenNode{NodeID: data[len(prefixNode):]}, nil
	case strings.HasPrefix(data, prefixBack):
		return TapBack{NodeID: data[len(prefixBack):]}, nil
	case strings.HasPrefix(data, prefixSelect):
		return TapSelect{NodeID: data[len(prefixSelect):]}, nil
	case strings.HasPrefix(data, prefixExample):
		return TapExample{NodeID: data[len(prefixExample):]}, nil
	case data == dataBalance:
		return TapBalance{}, nil
	case data == dataTopup:
		return TapTopup{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallback, data)
	}
}

func encodeOpenNode(id string) string { return prefixNode + id }
func encodeBack(id string) string     { return prefixBack + id }
func encodeSelect(id string) string   { return prefixSelect + id }
func encodeExample(id string) string  { return prefixExample + id }
