package opportunity_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/crm-api/internal/application/opportunity"
	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/repository"
	"github.com/salesdesk/crm-api/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// In-memory store backing all fake repositories. Gets hand out copies so the
// service's read-modify-write cycle exercises the optimistic lock for real.
// ──────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu sync.Mutex

	opportunities map[int64]*entity.Opportunity
	quotations    map[int64]*entity.Quotation
	leads         map[int64]*entity.Lead
	companies     map[int64]*entity.Company
	contacts      map[int64]*entity.Contact
	processes     map[int64]*entity.SalesProcess

	nextOppID  int64
	nextQuoID  int64
	nextProcID int64
	quoSeq     int64

	// failOppUpdates injects that many CAS conflicts before updates succeed.
	failOppUpdates int

	// staleLeadReads serves that many lead reads as their pre-conversion
	// snapshot, emulating a converter that read before a rival committed.
	staleLeadReads int
}

func newMemStore() *memStore {
	return &memStore{
		opportunities: map[int64]*entity.Opportunity{},
		quotations:    map[int64]*entity.Quotation{},
		leads:         map[int64]*entity.Lead{},
		companies:     map[int64]*entity.Company{},
		contacts:      map[int64]*entity.Contact{},
		processes:     map[int64]*entity.SalesProcess{},
	}
}

func cloneOpportunity(o *entity.Opportunity) *entity.Opportunity {
	cp := *o
	cp.Quotations = nil
	cp.SalesProcesses = nil
	return &cp
}

func cloneQuotation(q *entity.Quotation) *entity.Quotation {
	cp := *q
	cp.LineItems = append([]entity.QuotationLineItem(nil), q.LineItems...)
	return &cp
}

func cloneProcess(p *entity.SalesProcess) *entity.SalesProcess {
	cp := *p
	return &cp
}

func cloneLead(l *entity.Lead) *entity.Lead {
	cp := *l
	return &cp
}

// loadRelations mirrors what the SQL repository eager-loads on a get.
func (s *memStore) loadRelations(opp *entity.Opportunity) {
	opp.Company = s.companies[opp.CompanyID]
	opp.Contact = s.contacts[opp.ContactID]
	for _, q := range s.quotations {
		if q.OpportunityID == opp.ID && q.IsActive {
			opp.Quotations = append(opp.Quotations, cloneQuotation(q))
		}
	}
	sort.Slice(opp.Quotations, func(i, j int) bool {
		return opp.Quotations[i].RevisionNumber < opp.Quotations[j].RevisionNumber
	})
	for _, p := range s.processes {
		if p.OpportunityID == opp.ID && p.IsActive {
			opp.SalesProcesses = append(opp.SalesProcesses, cloneProcess(p))
		}
	}
	sort.Slice(opp.SalesProcesses, func(i, j int) bool {
		return opp.SalesProcesses[i].StageOrder < opp.SalesProcesses[j].StageOrder
	})
}

func matchFilter(o *entity.Opportunity, f repository.OpportunityFilter) bool {
	if !o.IsActive {
		return false
	}
	if f.Stage != nil && o.Stage != *f.Stage {
		return false
	}
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	if f.CompanyID != nil && o.CompanyID != *f.CompanyID {
		return false
	}
	if f.LeadID != nil && (o.LeadID == nil || *o.LeadID != *f.LeadID) {
		return false
	}
	if f.CreatedBy != nil && o.CreatedBy != *f.CreatedBy {
		return false
	}
	return true
}

// ──────────────────────────────────────────────────────────────────────────────
// Fake repositories
// ──────────────────────────────────────────────────────────────────────────────

type memOpportunityRepo struct{ s *memStore }

var _ repository.OpportunityRepository = (*memOpportunityRepo)(nil)

func (r *memOpportunityRepo) Create(_ context.Context, opp *entity.Opportunity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextOppID++
	opp.ID = r.s.nextOppID
	opp.PotID = fmt.Sprintf("POT-%04d", 1000+opp.ID)
	r.s.opportunities[opp.ID] = cloneOpportunity(opp)
	return nil
}

func (r *memOpportunityRepo) GetByID(_ context.Context, id int64) (*entity.Opportunity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.opportunities[id]
	if !ok {
		return nil, nil
	}
	opp := cloneOpportunity(stored)
	r.s.loadRelations(opp)
	return opp, nil
}

func (r *memOpportunityRepo) GetByPotID(_ context.Context, potID string) (*entity.Opportunity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, stored := range r.s.opportunities {
		if stored.PotID == potID {
			opp := cloneOpportunity(stored)
			r.s.loadRelations(opp)
			return opp, nil
		}
	}
	return nil, nil
}

func (r *memOpportunityRepo) Update(_ context.Context, opp *entity.Opportunity, expectedUpdatedOn time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failOppUpdates > 0 {
		r.s.failOppUpdates--
		return apperr.Conflict("opportunity was modified concurrently")
	}
	stored, ok := r.s.opportunities[opp.ID]
	if !ok || !stored.IsActive {
		return apperr.NotFound("opportunity not found")
	}
	if !stored.UpdatedOn.Equal(expectedUpdatedOn) {
		return apperr.Conflict("opportunity was modified concurrently")
	}
	r.s.opportunities[opp.ID] = cloneOpportunity(opp)
	return nil
}

func (r *memOpportunityRepo) SoftDelete(_ context.Context, id, by int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.opportunities[id]
	if !ok || !stored.IsActive {
		return apperr.NotFound("opportunity not found")
	}
	stored.MarkDeleted(by, time.Now())
	return nil
}

func (r *memOpportunityRepo) List(_ context.Context, f repository.OpportunityFilter, limit, offset int) ([]*entity.Opportunity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Opportunity
	for _, stored := range r.s.opportunities {
		if matchFilter(stored, f) {
			out = append(out, cloneOpportunity(stored))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memOpportunityRepo) Count(_ context.Context, f repository.OpportunityFilter) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, stored := range r.s.opportunities {
		if matchFilter(stored, f) {
			n++
		}
	}
	return n, nil
}

func (r *memOpportunityRepo) AggregatePipeline(_ context.Context, f repository.OpportunityFilter) ([]repository.StageAggregate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byStage := map[entity.Stage]*repository.StageAggregate{}
	for _, stored := range r.s.opportunities {
		if !matchFilter(stored, f) {
			continue
		}
		agg, ok := byStage[stored.Stage]
		if !ok {
			agg = &repository.StageAggregate{Stage: stored.Stage, SumAmount: decimal.Zero}
			byStage[stored.Stage] = agg
		}
		agg.Count++
		agg.SumScoring += int64(stored.Scoring)
		if stored.Amount != nil {
			agg.SumAmount = agg.SumAmount.Add(*stored.Amount)
		}
	}
	var rows []repository.StageAggregate
	for _, agg := range byStage {
		rows = append(rows, *agg)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Stage < rows[j].Stage })
	return rows, nil
}

func (r *memOpportunityRepo) ListClosed(_ context.Context, f repository.OpportunityFilter) ([]*entity.Opportunity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Opportunity
	for _, stored := range r.s.opportunities {
		if !matchFilter(stored, f) {
			continue
		}
		switch stored.Status {
		case entity.StatusWon, entity.StatusLost, entity.StatusDropped:
			out = append(out, cloneOpportunity(stored))
		}
	}
	return out, nil
}

type memQuotationRepo struct{ s *memStore }

var _ repository.QuotationRepository = (*memQuotationRepo)(nil)

func (r *memQuotationRepo) Create(_ context.Context, q *entity.Quotation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextQuoID++
	r.s.quoSeq++
	q.ID = r.s.nextQuoID
	q.QuotationID = fmt.Sprintf("QUO-%d-%04d", time.Now().Year(), r.s.quoSeq)
	r.s.quotations[q.ID] = cloneQuotation(q)
	return nil
}

func (r *memQuotationRepo) GetByID(_ context.Context, id int64) (*entity.Quotation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.quotations[id]
	if !ok {
		return nil, nil
	}
	return cloneQuotation(stored), nil
}

func (r *memQuotationRepo) ListByOpportunity(_ context.Context, opportunityID int64) ([]*entity.Quotation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Quotation
	for _, stored := range r.s.quotations {
		if stored.OpportunityID == opportunityID && stored.IsActive {
			out = append(out, cloneQuotation(stored))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevisionNumber < out[j].RevisionNumber })
	return out, nil
}

func (r *memQuotationRepo) Update(_ context.Context, q *entity.Quotation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.quotations[q.ID]; !ok {
		return apperr.NotFound("quotation not found")
	}
	r.s.quotations[q.ID] = cloneQuotation(q)
	return nil
}

func (r *memQuotationRepo) SoftDelete(_ context.Context, id, by int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.quotations[id]
	if !ok || !stored.IsActive {
		return apperr.NotFound("quotation not found")
	}
	stored.MarkDeleted(by, time.Now())
	return nil
}

type memLeadRepo struct{ s *memStore }

var _ repository.LeadRepository = (*memLeadRepo)(nil)

func (r *memLeadRepo) GetByID(_ context.Context, id int64) (*entity.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.leads[id]
	if !ok {
		return nil, nil
	}
	cp := cloneLead(stored)
	if r.s.staleLeadReads > 0 && cp.Converted {
		r.s.staleLeadReads--
		cp.Converted = false
		cp.ConvertedToOpportunityID = nil
		cp.ConversionDate = nil
		cp.Status = entity.LeadStatusQualified
	}
	return cp, nil
}

func (r *memLeadRepo) Update(_ context.Context, lead *entity.Lead) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.leads[lead.ID]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	// Same predicate as the SQL adapter: conversion writes only match
	// unconverted rows.
	if stored.Converted {
		return apperr.BusinessRule("lead_already_converted")
	}
	r.s.leads[lead.ID] = cloneLead(lead)
	return nil
}

func (r *memLeadRepo) CloseInactiveBefore(_ context.Context, cutoff time.Time, by int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var closed int64
	for _, lead := range r.s.leads {
		if !lead.IsActive || lead.Converted {
			continue
		}
		if lead.Status == entity.LeadStatusConverted || lead.Status == entity.LeadStatusClosed {
			continue
		}
		if lead.LastActivityOn.Before(cutoff) {
			lead.Status = entity.LeadStatusClosed
			lead.Touch(by, time.Now())
			closed++
		}
	}
	return closed, nil
}

type memCompanyRepo struct{ s *memStore }

var _ repository.CompanyRepository = (*memCompanyRepo)(nil)

func (r *memCompanyRepo) GetByID(_ context.Context, id int64) (*entity.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.companies[id]
	if !ok {
		return nil, apperr.NotFound("company not found")
	}
	return c, nil
}

type memContactRepo struct{ s *memStore }

var _ repository.ContactRepository = (*memContactRepo)(nil)

func (r *memContactRepo) GetByID(_ context.Context, id int64) (*entity.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contacts[id]
	if !ok {
		return nil, nil
	}
	return c, nil
}

type memProcessRepo struct{ s *memStore }

var _ repository.SalesProcessRepository = (*memProcessRepo)(nil)

func (r *memProcessRepo) CreateBatch(_ context.Context, records []*entity.SalesProcess) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, record := range records {
		for _, existing := range r.s.processes {
			if existing.OpportunityID == record.OpportunityID && existing.Stage == record.Stage {
				return apperr.Duplicate("sales process already exists for stage")
			}
		}
		r.s.nextProcID++
		record.ID = r.s.nextProcID
		r.s.processes[record.ID] = cloneProcess(record)
	}
	return nil
}

func (r *memProcessRepo) ListByOpportunity(_ context.Context, opportunityID int64) ([]*entity.SalesProcess, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.SalesProcess
	for _, stored := range r.s.processes {
		if stored.OpportunityID == opportunityID && stored.IsActive {
			out = append(out, cloneProcess(stored))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageOrder < out[j].StageOrder })
	return out, nil
}

func (r *memProcessRepo) GetByOpportunityAndStage(_ context.Context, opportunityID int64, stage entity.Stage) (*entity.SalesProcess, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, stored := range r.s.processes {
		if stored.OpportunityID == opportunityID && stored.Stage == stage && stored.IsActive {
			return cloneProcess(stored), nil
		}
	}
	return nil, nil
}

func (r *memProcessRepo) Update(_ context.Context, record *entity.SalesProcess) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.processes[record.ID]; !ok {
		return apperr.NotFound("sales process not found")
	}
	r.s.processes[record.ID] = cloneProcess(record)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fake unit of work and side-effect collaborators
// ──────────────────────────────────────────────────────────────────────────────

type memTxRunner struct{ s *memStore }

var _ opportunity.TxRunner = (*memTxRunner)(nil)

func (t *memTxRunner) Run(_ context.Context, fn func(r opportunity.Repos) error) error {
	return fn(opportunity.Repos{
		Opportunities:  &memOpportunityRepo{s: t.s},
		Quotations:     &memQuotationRepo{s: t.s},
		Leads:          &memLeadRepo{s: t.s},
		Companies:      &memCompanyRepo{s: t.s},
		Contacts:       &memContactRepo{s: t.s},
		SalesProcesses: &memProcessRepo{s: t.s},
	})
}

type memAudit struct {
	mu     sync.Mutex
	events []*entity.AuditEvent
}

func (a *memAudit) Write(_ context.Context, event *entity.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

type memBlobs struct {
	mu   sync.Mutex
	keys []string
}

func (b *memBlobs) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	return "mem://" + key, nil
}

type stubPDF struct{}

func (stubPDF) Generate(_ context.Context, _ *entity.Quotation) ([]byte, error) {
	return []byte("%PDF-1.7 stub"), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixture
// ──────────────────────────────────────────────────────────────────────────────

type fixture struct {
	store     *memStore
	svc       *opportunity.Service
	quotes    *opportunity.QuotationService
	analytics *opportunity.AnalyticsService
	audit     *memAudit
	blobs     *memBlobs
}

var (
	admin    = entity.UserContext{ID: 1, Role: entity.RoleAdmin, Permissions: []string{entity.PermOpportunitiesRead, entity.PermOpportunitiesWrite}}
	reviewer = entity.UserContext{ID: 2, Role: entity.RoleReviewer, Permissions: []string{entity.PermOpportunitiesRead, entity.PermOpportunitiesWrite}}
	sales    = entity.UserContext{ID: 3, Role: entity.RoleSales, Permissions: []string{entity.PermOpportunitiesRead, entity.PermOpportunitiesWrite}}
)

// newFixture seeds company 1 with a decision-maker contact (1) and a regular
// contact (2).
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	store.companies[1] = &entity.Company{ID: 1, Name: "Acme Industries", Audit: entity.Audit{IsActive: true}}
	store.contacts[1] = &entity.Contact{
		ID: 1, CompanyID: 1, Name: "Dana Winters", Email: "dana@acme.example",
		Phone: "+91 98765 43210", IsDecisionMaker: true,
		Audit: entity.Audit{IsActive: true},
	}
	store.contacts[2] = &entity.Contact{
		ID: 2, CompanyID: 1, Name: "Sam Park", IsDecisionMaker: false,
		Audit: entity.Audit{IsActive: true},
	}

	log := logger.New(logger.Config{Env: "test", Level: "error"})
	txRunner := &memTxRunner{s: store}
	oppRepo := &memOpportunityRepo{s: store}
	quoRepo := &memQuotationRepo{s: store}
	contactRepo := &memContactRepo{s: store}
	audit := &memAudit{}
	blobs := &memBlobs{}

	return &fixture{
		store:     store,
		svc:       opportunity.NewService(txRunner, oppRepo, contactRepo, audit, blobs, log),
		quotes:    opportunity.NewQuotationService(txRunner, oppRepo, quoRepo, stubPDF{}, blobs, audit, log),
		analytics: opportunity.NewAnalyticsService(oppRepo),
		audit:     audit,
		blobs:     blobs,
	}
}

// seedOpportunity plants a record directly in the store, bypassing the
// service, for read-path and analytics tests.
func (f *fixture) seedOpportunity(t *testing.T, opp *entity.Opportunity) *entity.Opportunity {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.nextOppID++
	opp.ID = f.store.nextOppID
	if opp.PotID == "" {
		opp.PotID = fmt.Sprintf("POT-%04d", 1000+opp.ID)
	}
	if opp.CreatedOn.IsZero() {
		opp.CreatedOn = time.Now().Add(-24 * time.Hour)
	}
	if opp.UpdatedOn.IsZero() {
		opp.UpdatedOn = opp.CreatedOn
	}
	opp.IsActive = true
	f.store.opportunities[opp.ID] = cloneOpportunity(opp)
	return opp
}

func (f *fixture) seedLead(t *testing.T, lead *entity.Lead) *entity.Lead {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if lead.LastActivityOn.IsZero() {
		lead.LastActivityOn = time.Now()
	}
	lead.IsActive = true
	f.store.leads[lead.ID] = cloneLead(lead)
	return lead
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok, "expected an application error, got %v", err)
	require.Equal(t, code, appErr.Code, "error: %v", err)
}

func amount(s string) *decimal.Decimal {
	d := decq(s)
	return &d
}

func decq(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
