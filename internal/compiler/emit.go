package compiler

import (
	"bytes"
	"fmt"
	"strings"

	"tpf/internal/compiler/render"
	"tpf/internal/model"
	"tpf/pkg/logging"
)

// emitOrder stages the wiring resources after rendering: the canonical
// step order with synthetic steps at their owning aspect's position and,
// when an orchestrator is generated, the client wiring properties.
func (c *Compiler) emitOrder(round *Round, out *render.Staging) error {
	order := make(model.OrderedStepList, 0, len(round.Models))
	for _, m := range round.Models {
		order = append(order, m.Identity.FQN())
	}
	round.Order = order

	var buf bytes.Buffer
	if err := order.Encode(&buf); err != nil {
		return err
	}
	if err := out.Add(model.OrderResourcePath, buf.Bytes()); err != nil {
		return err
	}
	logging.Debug("Compiler", "step order: %s", strings.Join(order, " -> "))

	if round.Orchestrator == nil {
		return nil
	}
	return out.Add(model.ClientsResourcePath, []byte(clientProperties(round)))
}

// clientProperties renders the orchestrator client wiring consumed at
// runtime as the ordinal-90 config source.
func clientProperties(round *Round) string {
	var ob *model.OrchestratorBinding
	for _, b := range round.Bindings {
		if o, ok := b.(*model.OrchestratorBinding); ok {
			ob = o
			break
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s orchestrator client wiring (config ordinal %d)\n",
		round.Template.AppName, model.ClientsSourceOrdinal)
	if ob == nil {
		return sb.String()
	}
	for _, module := range ob.ModuleOrder {
		url := strings.ReplaceAll(ob.ClientDefaults.URLTemplate, "{module}", module)
		fmt.Fprintf(&sb, "pipeline.clients.%s.url=%s\n", module, url)
		fmt.Fprintf(&sb, "pipeline.clients.%s.timeout=%dms\n", module, ob.ClientDefaults.TimeoutMS)
	}
	return sb.String()
}
