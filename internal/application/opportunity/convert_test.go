package opportunity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
)

func qualifiedLead(id int64) *entity.Lead {
	return &entity.Lead{
		ID:           id,
		Status:       entity.LeadStatusQualified,
		Reviewed:     true,
		ReviewStatus: entity.ReviewStatusApproved,
		CompanyID:    1,
		LeadSource:   "Referral",
	}
}

func convertReq() dto.ConvertLeadRequest {
	return dto.ConvertLeadRequest{
		OpportunityName: "Acme from lead",
		ContactID:       1,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Conversion
// ──────────────────────────────────────────────────────────────────────────────

func TestConvertLead_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedLead(t, qualifiedLead(10))

	out, err := f.svc.ConvertLead(ctx, 10, convertReq(), sales)
	require.NoError(t, err)

	assert.Equal(t, entity.StageL1Prospect, out.Stage)
	assert.Equal(t, 10, out.Probability)
	require.NotNil(t, out.LeadID)
	assert.Equal(t, int64(10), *out.LeadID)

	// The lead is flipped in the same transaction.
	lead := f.store.leads[10]
	assert.True(t, lead.Converted)
	assert.Equal(t, entity.LeadStatusConverted, lead.Status)
	require.NotNil(t, lead.ConvertedToOpportunityID)
	assert.Equal(t, out.PotID, *lead.ConvertedToOpportunityID)
	assert.NotNil(t, lead.ConversionDate)

	// The whole five-stage ledger is pre-created: stage 1 running, rest open.
	got, err := f.svc.Get(ctx, out.ID, admin)
	require.NoError(t, err)
	require.Len(t, got.SalesProcesses, 5)
	assert.Equal(t, entity.ProcessInProgress, got.SalesProcesses[0].Status)
	for _, record := range got.SalesProcesses[1:] {
		assert.Equal(t, entity.ProcessOpen, record.Status, "stage %s", record.Stage)
	}

	assert.Contains(t, f.audit.actions(), "lead.converted")
}

func TestConvertLead_GateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Missing lead.
	_, err := f.svc.ConvertLead(ctx, 99, convertReq(), admin)
	requireCode(t, err, apperr.CodeNotFound)

	// Not yet qualified.
	lead := qualifiedLead(11)
	lead.Status = "New"
	f.seedLead(t, lead)
	_, err = f.svc.ConvertLead(ctx, 11, convertReq(), admin)
	requireCode(t, err, apperr.CodeBusinessRule)
	assert.Contains(t, err.Error(), "lead_not_qualified")

	// Qualified but review not approved.
	lead = qualifiedLead(12)
	lead.ReviewStatus = "Pending"
	f.seedLead(t, lead)
	_, err = f.svc.ConvertLead(ctx, 12, convertReq(), admin)
	requireCode(t, err, apperr.CodeBusinessRule)
	assert.Contains(t, err.Error(), "lead_not_approved")

	// Contact is not a decision maker.
	f.seedLead(t, qualifiedLead(13))
	req := convertReq()
	req.ContactID = 2
	_, err = f.svc.ConvertLead(ctx, 13, req, admin)
	requireCode(t, err, apperr.CodeBusinessRule)
	assert.Contains(t, err.Error(), "contact_not_decision_maker")
}

func TestConvertLead_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedLead(t, qualifiedLead(20))

	_, err := f.svc.ConvertLead(ctx, 20, convertReq(), admin)
	require.NoError(t, err)

	_, err = f.svc.ConvertLead(ctx, 20, convertReq(), admin)
	requireCode(t, err, apperr.CodeBusinessRule)
	assert.Contains(t, err.Error(), "lead_already_converted")
}

func TestConvertLead_RaceLosesAtTheLeadUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedLead(t, qualifiedLead(22))

	first, err := f.svc.ConvertLead(ctx, 22, convertReq(), admin)
	require.NoError(t, err)

	// A rival converter that read the lead before the first one committed
	// passes every gate on its stale snapshot; the repository's
	// unconverted-rows-only update predicate must still reject it.
	f.store.staleLeadReads = 1
	_, err = f.svc.ConvertLead(ctx, 22, convertReq(), admin)
	requireCode(t, err, apperr.CodeBusinessRule)
	assert.Contains(t, err.Error(), "lead_already_converted")

	lead := f.store.leads[22]
	require.NotNil(t, lead.ConvertedToOpportunityID)
	assert.Equal(t, first.PotID, *lead.ConvertedToOpportunityID, "the winner's link must survive")
}

func TestConvertLead_FailedGateLeavesLeadUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedLead(t, qualifiedLead(21))

	req := convertReq()
	req.OpportunityName = "x" // fails the name invariant after the gates
	_, err := f.svc.ConvertLead(ctx, 21, req, admin)
	requireCode(t, err, apperr.CodeValidation)

	assert.False(t, f.store.leads[21].Converted, "a failed conversion must not flip the lead")
}

// ──────────────────────────────────────────────────────────────────────────────
// Inactive-lead sweep
// ──────────────────────────────────────────────────────────────────────────────

func TestCloseInactiveLeads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := qualifiedLead(30)
	stale.LastActivityOn = time.Now().AddDate(0, 0, -120)
	f.seedLead(t, stale)

	fresh := qualifiedLead(31)
	fresh.LastActivityOn = time.Now().AddDate(0, 0, -5)
	f.seedLead(t, fresh)

	// Admin only.
	_, err := f.svc.CloseInactiveLeads(ctx, dto.CloseInactiveLeadsRequest{}, sales)
	requireCode(t, err, apperr.CodeAuthorization)

	// Default window is 90 days: only the stale lead closes.
	out, err := f.svc.CloseInactiveLeads(ctx, dto.CloseInactiveLeadsRequest{}, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Closed)
	assert.Equal(t, entity.LeadStatusClosed, f.store.leads[30].Status)
	assert.Equal(t, entity.LeadStatusQualified, f.store.leads[31].Status)

	// A tighter window sweeps the rest.
	out, err = f.svc.CloseInactiveLeads(ctx, dto.CloseInactiveLeadsRequest{Days: 1}, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Closed)
}
