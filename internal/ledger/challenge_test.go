package ledger

import (
	"testing"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/model"
)

func strPtr(s string) *string { return &s }

func challengeIn(status model.ChallengeStatus) *model.Challenge {
	c := &model.Challenge{ID: "c1", CoupleID: "k", CreatedBy: "A", Stars: 3, Status: status}
	if status != model.ChallengePending {
		c.AcceptedBy = strPtr("B")
	}
	if status == model.ChallengeReported {
		c.ReportedBy = strPtr("B")
	}
	return c
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name   string
		status model.ChallengeStatus
		op     Op
		actor  string
		want   apperr.Kind
		ok     bool
	}{
		{"partner accepts pending", model.ChallengePending, OpAccept, "B", 0, true},
		{"creator cannot accept", model.ChallengePending, OpAccept, "A", apperr.KindForbidden, false},
		{"accept checks actor before state", model.ChallengeAccepted, OpAccept, "A", apperr.KindForbidden, false},
		{"accept twice conflicts", model.ChallengeAccepted, OpAccept, "B", apperr.KindConflict, false},

		{"acceptor reports", model.ChallengeAccepted, OpReport, "B", 0, true},
		{"report checks state before actor", model.ChallengePending, OpReport, "A", apperr.KindConflict, false},
		{"only acceptor reports", model.ChallengeAccepted, OpReport, "A", apperr.KindForbidden, false},

		{"creator approves", model.ChallengeReported, OpApprove, "A", 0, true},
		{"approve checks actor before state", model.ChallengeAccepted, OpApprove, "B", apperr.KindForbidden, false},
		{"approve requires report", model.ChallengeAccepted, OpApprove, "A", apperr.KindConflict, false},
		{"completed cannot be approved again", model.ChallengeCompleted, OpApprove, "A", apperr.KindConflict, false},

		{"creator rejects", model.ChallengeReported, OpReject, "A", 0, true},
		{"only creator rejects", model.ChallengeReported, OpReject, "B", apperr.KindForbidden, false},
		{"reject requires report", model.ChallengePending, OpReject, "A", apperr.KindConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransition(challengeIn(tt.status), tt.op, tt.actor)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOnlyApproveReachesCompleted(t *testing.T) {
	for _, op := range []Op{OpAccept, OpReport, OpReject} {
		if op.Target() == model.ChallengeCompleted {
			t.Errorf("%s must not target completed", op)
		}
	}
	if OpApprove.Target() != model.ChallengeCompleted {
		t.Errorf("approve target = %q, want completed", OpApprove.Target())
	}

	// Approve is only allowed from reported_accomplishment.
	for _, status := range []model.ChallengeStatus{model.ChallengePending, model.ChallengeAccepted, model.ChallengeCompleted} {
		if err := CheckTransition(challengeIn(status), OpApprove, "A"); err == nil {
			t.Errorf("approve from %s allowed", status)
		}
	}
}

func TestAwardee(t *testing.T) {
	c := challengeIn(model.ChallengeReported)
	if got := Awardee(c); got != "B" {
		t.Errorf("Awardee = %q, want B", got)
	}

	c.ReportedBy = nil
	c.AcceptedBy = strPtr("C")
	if got := Awardee(c); got != "C" {
		t.Errorf("Awardee fallback = %q, want C", got)
	}
}
