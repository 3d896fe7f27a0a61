package visitor

import (
	"github.com/sirupsen/logrus"

	"go-callgraph/internal/graph"
	"go-callgraph/internal/unit"
)

// link attaches an impl method to the trait declarations it implements.
// Inherent blocks and names the trait does not declare leave it unlinked.
func (w *walker) link(n *unit.Node) {
	impl, ok := w.host.EnclosingImpl(n.Def)
	if !ok {
		return
	}
	for _, trait := range impl.Traits {
		decl, ok := lookupItem(w.host.TraitItems(trait), n.Name)
		if !ok {
			continue
		}
		w.reg.AddMethodImpl(decl, n.Def)
		w.log.WithFields(logrus.Fields{"decl": decl, "impl": n.Def}).Debug("linked impl")
	}
}

// lookupItem returns the first item called name.
func lookupItem(items []unit.TraitItem, name string) (graph.DefID, bool) {
	for _, it := range items {
		if it.Name == name {
			return it.Def, true
		}
	}
	return "", false
}
