package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/pipeline"
)

// ──────────────────────────────────────────────────────────────────────────────
// Stage table
// ──────────────────────────────────────────────────────────────────────────────

func TestStagePercentage_Mapping(t *testing.T) {
	expected := map[entity.Stage]int{
		entity.StageL1Prospect:      5,
		entity.StageL1Qualification: 15,
		entity.StageL2NeedAnalysis:  40,
		entity.StageL3Proposal:      60,
		entity.StageL4Negotiation:   80,
		entity.StageL5Won:           100,
		entity.StageL6Lost:          0,
		entity.StageL7Dropped:       0,
	}
	for stage, pct := range expected {
		assert.Equal(t, pct, pipeline.StagePercentage(stage), "stage %s", stage)
		assert.True(t, pipeline.ValidStage(stage))
	}
	assert.False(t, pipeline.ValidStage("L9_Unknown"))
}

func TestStageOrder_OnlyWorkingStagesHaveLedgerOrder(t *testing.T) {
	order, has := pipeline.StageOrder(entity.StageL1Prospect)
	require.True(t, has)
	assert.Equal(t, 1, order)

	order, has = pipeline.StageOrder(entity.StageL4Negotiation)
	require.True(t, has)
	assert.Equal(t, 5, order)

	for _, terminal := range []entity.Stage{entity.StageL5Won, entity.StageL6Lost, entity.StageL7Dropped} {
		_, has := pipeline.StageOrder(terminal)
		assert.False(t, has, "terminal stage %s must not carry a ledger order", terminal)
	}
}

func TestOrderIndex_IncludesWon(t *testing.T) {
	idx, has := pipeline.OrderIndex(entity.StageL5Won)
	require.True(t, has)
	assert.Equal(t, 5, idx)

	_, has = pipeline.OrderIndex(entity.StageL6Lost)
	assert.False(t, has)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transition edges
// ──────────────────────────────────────────────────────────────────────────────

func TestAllowed_ForwardPath(t *testing.T) {
	path := []entity.Stage{
		entity.StageL1Prospect,
		entity.StageL1Qualification,
		entity.StageL2NeedAnalysis,
		entity.StageL3Proposal,
		entity.StageL4Negotiation,
		entity.StageL5Won,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, pipeline.Allowed(path[i], path[i+1]),
			"%s -> %s must be allowed", path[i], path[i+1])
	}
}

func TestAllowed_NoStageSkipping(t *testing.T) {
	assert.False(t, pipeline.Allowed(entity.StageL1Prospect, entity.StageL3Proposal))
	assert.False(t, pipeline.Allowed(entity.StageL2NeedAnalysis, entity.StageL5Won))
}

func TestAllowed_OneStepBack(t *testing.T) {
	assert.True(t, pipeline.Allowed(entity.StageL4Negotiation, entity.StageL3Proposal))
	assert.True(t, pipeline.Allowed(entity.StageL1Qualification, entity.StageL1Prospect))
	// Two steps back is not a legal move.
	assert.False(t, pipeline.Allowed(entity.StageL4Negotiation, entity.StageL2NeedAnalysis))
}

func TestAllowed_TerminalRules(t *testing.T) {
	// Won is final: no backward step, no drop.
	assert.False(t, pipeline.Allowed(entity.StageL5Won, entity.StageL4Negotiation))
	assert.False(t, pipeline.Allowed(entity.StageL5Won, entity.StageL7Dropped))
	// Lost is final.
	assert.False(t, pipeline.Allowed(entity.StageL6Lost, entity.StageL1Prospect))
	// Dropped can only reopen to prospect.
	assert.True(t, pipeline.Allowed(entity.StageL7Dropped, entity.StageL1Prospect))
	assert.False(t, pipeline.Allowed(entity.StageL7Dropped, entity.StageL4Negotiation))
	// Self-moves never count.
	assert.False(t, pipeline.Allowed(entity.StageL3Proposal, entity.StageL3Proposal))
}

func TestAllowed_DropFromAnyWorkingStage(t *testing.T) {
	for _, from := range pipeline.WorkingStages() {
		assert.True(t, pipeline.Allowed(from, entity.StageL7Dropped), "from %s", from)
	}
	// Lost requires at least qualification.
	assert.False(t, pipeline.Allowed(entity.StageL1Prospect, entity.StageL6Lost))
	assert.True(t, pipeline.Allowed(entity.StageL1Qualification, entity.StageL6Lost))
}

// ──────────────────────────────────────────────────────────────────────────────
// Probability derivation
// ──────────────────────────────────────────────────────────────────────────────

func TestDeriveProbability_DefaultAndOverrideWindow(t *testing.T) {
	assert.Equal(t, 60, pipeline.DeriveProbability(entity.StageL3Proposal, nil))

	within := 55
	assert.Equal(t, 55, pipeline.DeriveProbability(entity.StageL3Proposal, &within))

	tooHigh := 100
	assert.Equal(t, 70, pipeline.DeriveProbability(entity.StageL3Proposal, &tooHigh))

	tooLow := 10
	assert.Equal(t, 50, pipeline.DeriveProbability(entity.StageL3Proposal, &tooLow))
}

func TestDeriveProbability_TerminalsIgnoreOverride(t *testing.T) {
	override := 40
	assert.Equal(t, 100, pipeline.DeriveProbability(entity.StageL5Won, &override))
	assert.Equal(t, 0, pipeline.DeriveProbability(entity.StageL6Lost, &override))
	assert.Equal(t, 0, pipeline.DeriveProbability(entity.StageL7Dropped, &override))
}

func TestDeriveProbability_ClampedToRange(t *testing.T) {
	// L1_Prospect maps to 5, an override of -20 clamps through the window to 0.
	low := -20
	assert.Equal(t, 0, pipeline.DeriveProbability(entity.StageL1Prospect, &low))
}

// ──────────────────────────────────────────────────────────────────────────────
// Advancement gates
// ──────────────────────────────────────────────────────────────────────────────

func qualified() *entity.Opportunity {
	status := entity.QualificationQualified
	gate := entity.GoNoGoGo
	return &entity.Opportunity{
		Stage: entity.StageL1Qualification,
		Qualification: entity.QualificationGroup{
			QualificationStatus: &status,
			GoNoGoStatus:        &gate,
		},
	}
}

func TestAdvancementPreconditions_QualificationGate(t *testing.T) {
	opp := &entity.Opportunity{Stage: entity.StageL1Qualification}
	violations := pipeline.AdvancementPreconditions(opp, entity.StageL2NeedAnalysis)
	require.Len(t, violations, 2, "both qualification fields gate the move")

	assert.Empty(t, pipeline.AdvancementPreconditions(qualified(), entity.StageL2NeedAnalysis))
}

func TestAdvancementPreconditions_DemoGate(t *testing.T) {
	opp := &entity.Opportunity{Stage: entity.StageL2NeedAnalysis}
	violations := pipeline.AdvancementPreconditions(opp, entity.StageL3Proposal)
	require.Len(t, violations, 1)
	assert.Equal(t, "demo_completed", violations[0].Field)

	done := true
	opp.Demo.DemoCompleted = &done
	assert.Empty(t, pipeline.AdvancementPreconditions(opp, entity.StageL3Proposal))
}

func TestAdvancementPreconditions_ApprovedQuotationGate(t *testing.T) {
	opp := &entity.Opportunity{Stage: entity.StageL3Proposal}
	violations := pipeline.AdvancementPreconditions(opp, entity.StageL4Negotiation)
	require.Len(t, violations, 1)
	assert.Equal(t, "quotation_status", violations[0].Field)

	opp.Quotations = []*entity.Quotation{{
		Status: entity.QuotationApproved,
		Audit:  entity.Audit{IsActive: true},
	}}
	assert.Empty(t, pipeline.AdvancementPreconditions(opp, entity.StageL4Negotiation))
}

func TestAdvancementPreconditions_CommercialApprovalGate(t *testing.T) {
	required := true
	pending := "Pending"
	opp := &entity.Opportunity{
		Stage: entity.StageL4Negotiation,
		Negotiation: entity.NegotiationGroup{
			CommercialApprovalRequired: &required,
			CommercialApprovalStatus:   &pending,
		},
	}
	violations := pipeline.AdvancementPreconditions(opp, entity.StageL5Won)
	require.Len(t, violations, 1)

	approved := "Approved"
	opp.Negotiation.CommercialApprovalStatus = &approved
	assert.Empty(t, pipeline.AdvancementPreconditions(opp, entity.StageL5Won))
}

func TestAdvancementPreconditions_ClosingReasons(t *testing.T) {
	opp := &entity.Opportunity{Stage: entity.StageL2NeedAnalysis}
	require.Len(t, pipeline.AdvancementPreconditions(opp, entity.StageL6Lost), 1)
	require.Len(t, pipeline.AdvancementPreconditions(opp, entity.StageL7Dropped), 1)

	reason := "budget cut"
	opp.Lost.LostReason = &reason
	assert.Empty(t, pipeline.AdvancementPreconditions(opp, entity.StageL6Lost))
}

func TestAdvancementPreconditions_BackwardMoveSkipsGates(t *testing.T) {
	// Moving back from L3 to L2 must not re-check the demo gate.
	opp := &entity.Opportunity{Stage: entity.StageL3Proposal}
	assert.Empty(t, pipeline.AdvancementPreconditions(opp, entity.StageL2NeedAnalysis))
}
