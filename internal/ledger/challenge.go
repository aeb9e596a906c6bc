package ledger

import (
	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/model"
)

type Op string

const (
	OpAccept  Op = "accept"
	OpReport  Op = "report"
	OpApprove Op = "approve"
	OpReject  Op = "reject"
)

const (
	MinChallengeStars = 1
	MaxChallengeStars = 5
)

// Target is the status a successful op moves the challenge to.
func (op Op) Target() model.ChallengeStatus {
	switch op {
	case OpAccept, OpReject:
		return model.ChallengeAccepted
	case OpReport:
		return model.ChallengeReported
	case OpApprove:
		return model.ChallengeCompleted
	}
	return ""
}

// CheckTransition validates op for actorID against the challenge's current
// state. Accept, approve and reject check the actor before the state;
// report checks the state first.
func CheckTransition(c *model.Challenge, op Op, actorID string) error {
	switch op {
	case OpAccept:
		if c.CreatedBy == actorID {
			return apperr.Forbidden("No puedes aceptar tu propio reto.")
		}
		if c.Status != model.ChallengePending {
			return apperr.Conflict("Este reto ya fue actualizado.")
		}
	case OpReport:
		if c.Status != model.ChallengeAccepted {
			return apperr.Conflict("El reto no esta aceptado.")
		}
		if c.AcceptedBy == nil || *c.AcceptedBy != actorID {
			return apperr.Forbidden("Solo quien acepta puede reportar.")
		}
	case OpApprove:
		if c.CreatedBy != actorID {
			return apperr.Forbidden("Solo el creador puede aprobar.")
		}
		if c.Status != model.ChallengeReported {
			return apperr.Conflict("El reto no esta reportado.")
		}
	case OpReject:
		if c.CreatedBy != actorID {
			return apperr.Forbidden("Solo el creador puede rechazar.")
		}
		if c.Status != model.ChallengeReported {
			return apperr.Conflict("El reto no esta reportado.")
		}
	default:
		return apperr.Validation("Operacion invalida.")
	}
	return nil
}

// Awardee is who earns the stars when a challenge is approved: the reporter,
// falling back to whoever accepted it.
func Awardee(c *model.Challenge) string {
	if c.ReportedBy != nil && *c.ReportedBy != "" {
		return *c.ReportedBy
	}
	if c.AcceptedBy != nil {
		return *c.AcceptedBy
	}
	return ""
}
