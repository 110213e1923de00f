package compiler

import (
	"tpf/internal/model"
	"tpf/pkg/logging"
)

// resolveTargets assigns each analyzed step its generation targets and
// deployment role as a function of the global transport and the step kind,
// then freezes the result into the final IR. Synthetic steps run inside
// the serving process and get no client-side target.
func (c *Compiler) resolveTargets(round *Round) error {
	for _, entry := range round.analyzed {
		m := entry.model
		m.Targets, m.Role = targetsFor(round.Transport, &m)

		final, err := model.NewStepModel(m)
		if err != nil {
			round.Diagnostics.Errorf(PhaseTargets, m.Identity.Name, "%v", err)
			continue
		}
		round.Models = append(round.Models, final)
		logging.Debug("Compiler", "step %s: targets=%v role=%s", final.Identity.FQN(), final.Targets, final.Role)
	}
	return nil
}

// targetsFor implements the (transport, kind) resolution table.
func targetsFor(transport Transport, m *model.StepModel) (model.TargetSet, model.DeploymentRole) {
	switch {
	case m.Plugin:
		return model.TargetSet{model.TargetPluginServer, model.TargetPluginClient}, model.RolePluginServer
	case m.Synthetic:
		if transport == TransportREST {
			return model.TargetSet{model.TargetRestServer}, model.RoleRestServer
		}
		return model.TargetSet{model.TargetGrpcServer}, model.RolePipelineServer
	case transport == TransportREST:
		return model.TargetSet{model.TargetRestServer, model.TargetRestClient}, model.RoleRestServer
	default:
		return model.TargetSet{model.TargetGrpcServer, model.TargetGrpcClient}, model.RolePipelineServer
	}
}
