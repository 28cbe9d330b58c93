/*
menu.go - Renders a catalog position as a logical menu

One row per child node. Leaves get a select button plus, when a description
exists, an example button. Non-root menus get a back row; the root carries
the balance and top-up shortcuts. Under the multi policy active leaves are
marked so the user can see the current set at a glance.
*/
package bot

import (
	"fmt"
	"strings"

	"github.com/nanoavatar/avatar-engine/catalog"
	"github.com/nanoavatar/avatar-engine/session"
)

const activeMark = "✓ " // check mark prefix on toggled leaves

type menuRenderer struct {
	catalog *catalog.Catalog
	policy  session.SelectionPolicy
}

// render builds the text and keyboard for a node. isActive reports whether
// a leaf is in the session's active set (always false under single-select).
func (r *menuRenderer) render(nodeID string, isActive func(string) bool) (string, *Menu, error) {
	node, err := r.catalog.Get(nodeID)
	if err != nil {
		return "", nil, err
	}
	children, err := r.catalog.Children(nodeID)
	if err != nil {
		return "", nil, err
	}

	menu := &Menu{}
	for _, child := range children {
		if child.IsLeaf() {
			label := child.Title
			if r.policy == session.SelectMulti && isActive(child.ID) {
				label = activeMark + label
			}
			row := []Button{{Label: label, Data: encodeSelect(child.ID)}}
			if child.Description != "" {
				row = append(row, Button{Label: "?", Data: encodeExample(child.ID)})
			}
			menu.Rows = append(menu.Rows, row)
			continue
		}
		menu.Rows = append(menu.Rows, []Button{
			{Label: child.Title + " »", Data: encodeOpenNode(child.ID)},
		})
	}

	if nodeID == r.catalog.RootID() {
		menu.Rows = append(menu.Rows, []Button{
			{Label: "Balance", Data: dataBalance},
			{Label: "Top up", Data: dataTopup},
		})
	} else {
		back := node.ParentID
		menu.Rows = append(menu.Rows, []Button{
			{Label: "← Back", Data: encodeBack(back)},
		})
	}

	return r.menuText(node, isActive), menu, nil
}

func (r *menuRenderer) menuText(node *catalog.Node, isActive func(string) bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", node.Title)
	if node.Description != "" {
		fmt.Fprintf(&b, "\n%s", node.Description)
	}
	if r.policy == session.SelectMulti {
		var active []string
		for _, childID := range node.ChildIDs {
			if isActive(childID) {
				if n, err := r.catalog.Get(childID); err == nil {
					active = append(active, n.Title)
				}
			}
		}
		if len(active) > 0 {
			fmt.Fprintf(&b, "\n\nActive: %s", strings.Join(active, ", "))
		}
	}
	return b.String()
}
