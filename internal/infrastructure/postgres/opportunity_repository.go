package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/repository"
	"github.com/salesdesk/crm-api/pkg/ids"
)

var _ repository.OpportunityRepository = (*OpportunityRepo)(nil)

// potIDAttempts bounds the random-draw loop before falling back to the
// sequence.
const potIDAttempts = 16

// OpportunityRepo implements the aggregate port on PostgreSQL (pool or tx).
type OpportunityRepo struct {
	q Querier
}

// NewOpportunityRepository builds the adapter. Pass a pool or a tx (Querier).
func NewOpportunityRepository(q Querier) *OpportunityRepo {
	return &OpportunityRepo{q: q}
}

const opportunityColumns = `
	id, pot_id, name, company_id, contact_id, lead_id, delivery_owner_id,
	stage, status, amount, costing, probability, scoring, close_date,
	justification, notes,
	qualification, demo, proposal, negotiation, won, lost, dropped,
	created_on, updated_on, deleted_on, created_by, updated_by, deleted_by, is_active`

// Create inserts the opportunity, minting a unique POT id: bounded random
// draws against the unique index, then the sequence as a fallback.
func (r *OpportunityRepo) Create(ctx context.Context, opp *entity.Opportunity) error {
	for attempt := 0; attempt < potIDAttempts; attempt++ {
		opp.PotID = ids.FormatPot(ids.RandomPotNumber())
		err := r.insert(ctx, opp)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) && strings.Contains(constraintName(err), "pot_id") {
			continue
		}
		return err
	}
	// The random space is crowded; take the next sequence value instead.
	var seq int64
	if err := r.q.QueryRow(ctx, `SELECT nextval('opportunities_pot_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("next pot sequence: %w", err)
	}
	opp.PotID = ids.FormatPot(int(seq))
	return r.insert(ctx, opp)
}

func (r *OpportunityRepo) insert(ctx context.Context, opp *entity.Opportunity) error {
	groups, err := marshalGroups(opp)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO opportunities (
			pot_id, name, company_id, contact_id, lead_id, delivery_owner_id,
			stage, status, amount, costing, probability, scoring, close_date,
			justification, notes,
			qualification, demo, proposal, negotiation, won, lost, dropped,
			created_on, updated_on, created_by, updated_by, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27
		) RETURNING id`
	err = r.q.QueryRow(ctx, query,
		opp.PotID, opp.Name, opp.CompanyID, opp.ContactID, opp.LeadID, opp.DeliveryOwnerID,
		opp.Stage, opp.Status, opp.Amount, opp.Costing, opp.Probability, opp.Scoring, opp.CloseDate,
		opp.Justification, opp.Notes,
		groups[0], groups[1], groups[2], groups[3], groups[4], groups[5], groups[6],
		opp.CreatedOn, opp.UpdatedOn, opp.CreatedBy, opp.UpdatedBy, opp.IsActive,
	).Scan(&opp.ID)
	if err != nil {
		if isUniqueViolation(err) && !strings.Contains(constraintName(err), "pot_id") {
			return apperr.Duplicate("opportunity already exists")
		}
		if isForeignKeyViolation(err) {
			return apperr.Integrity(fmt.Sprintf("referenced row missing: %s", constraintName(err)))
		}
		if isUniqueViolation(err) {
			return err // pot_id collision, retried by Create
		}
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

// GetByID loads the aggregate with company/contact names, quotations and the
// sales-process ledger eagerly attached.
func (r *OpportunityRepo) GetByID(ctx context.Context, id int64) (*entity.Opportunity, error) {
	return r.getOne(ctx, `o.id = $1`, id)
}

// GetByPotID loads the aggregate by its external POT id.
func (r *OpportunityRepo) GetByPotID(ctx context.Context, potID string) (*entity.Opportunity, error) {
	return r.getOne(ctx, `o.pot_id = $1`, potID)
}

func (r *OpportunityRepo) getOne(ctx context.Context, where string, arg any) (*entity.Opportunity, error) {
	query := fmt.Sprintf(`
		SELECT %s, c.name, ct.name, ct.email, ct.phone, ct.is_decision_maker
		FROM opportunities o
		LEFT JOIN companies c ON c.id = o.company_id
		LEFT JOIN contacts ct ON ct.id = o.contact_id
		WHERE %s AND o.is_active = true`, prefixColumns("o"), where)

	opp := &entity.Opportunity{}
	var raw [7][]byte
	var companyName, contactName, contactEmail, contactPhone *string
	var decisionMaker *bool
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&opp.ID, &opp.PotID, &opp.Name, &opp.CompanyID, &opp.ContactID, &opp.LeadID, &opp.DeliveryOwnerID,
		&opp.Stage, &opp.Status, &opp.Amount, &opp.Costing, &opp.Probability, &opp.Scoring, &opp.CloseDate,
		&opp.Justification, &opp.Notes,
		&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &raw[6],
		&opp.CreatedOn, &opp.UpdatedOn, &opp.DeletedOn, &opp.CreatedBy, &opp.UpdatedBy, &opp.DeletedBy, &opp.IsActive,
		&companyName, &contactName, &contactEmail, &contactPhone, &decisionMaker,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get opportunity: %w", err)
	}
	if err := unmarshalGroups(opp, raw); err != nil {
		return nil, err
	}
	if companyName != nil {
		opp.Company = &entity.Company{ID: opp.CompanyID, Name: *companyName}
	}
	if contactName != nil {
		opp.Contact = &entity.Contact{
			ID:              opp.ContactID,
			CompanyID:       opp.CompanyID,
			Name:            *contactName,
			Email:           deref(contactEmail),
			Phone:           deref(contactPhone),
			IsDecisionMaker: decisionMaker != nil && *decisionMaker,
		}
	}
	if err := r.loadRelations(ctx, opp); err != nil {
		return nil, err
	}
	return opp, nil
}

func (r *OpportunityRepo) loadRelations(ctx context.Context, opp *entity.Opportunity) error {
	quotations, err := NewQuotationRepository(r.q).ListByOpportunity(ctx, opp.ID)
	if err != nil {
		return err
	}
	opp.Quotations = quotations

	processes, err := NewSalesProcessRepository(r.q).ListByOpportunity(ctx, opp.ID)
	if err != nil {
		return err
	}
	opp.SalesProcesses = processes
	return nil
}

// Update writes every mutable column under an optimistic compare-and-set on
// updated_on. A vanished or concurrently modified row surfaces as not_found
// or conflict respectively.
func (r *OpportunityRepo) Update(ctx context.Context, opp *entity.Opportunity, expectedUpdatedOn time.Time) error {
	groups, err := marshalGroups(opp)
	if err != nil {
		return err
	}
	query := `
		UPDATE opportunities SET
			name = $3, contact_id = $4, delivery_owner_id = $5,
			stage = $6, status = $7, amount = $8, costing = $9,
			probability = $10, scoring = $11, close_date = $12,
			justification = $13, notes = $14,
			qualification = $15, demo = $16, proposal = $17, negotiation = $18,
			won = $19, lost = $20, dropped = $21,
			updated_on = $22, updated_by = $23
		WHERE id = $1 AND updated_on = $2 AND is_active = true`
	cmd, err := r.q.Exec(ctx, query,
		opp.ID, expectedUpdatedOn,
		opp.Name, opp.ContactID, opp.DeliveryOwnerID,
		opp.Stage, opp.Status, opp.Amount, opp.Costing,
		opp.Probability, opp.Scoring, opp.CloseDate,
		opp.Justification, opp.Notes,
		groups[0], groups[1], groups[2], groups[3], groups[4], groups[5], groups[6],
		opp.UpdatedOn, opp.UpdatedBy,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperr.Integrity(fmt.Sprintf("referenced row missing: %s", constraintName(err)))
		}
		return fmt.Errorf("update opportunity: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM opportunities WHERE id = $1 AND is_active = true)`,
			opp.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check opportunity: %w", err)
		}
		if !exists {
			return apperr.NotFound("opportunity not found")
		}
		return apperr.Conflict("opportunity was modified concurrently")
	}
	return nil
}

// SoftDelete flips is_active and stamps the deletion.
func (r *OpportunityRepo) SoftDelete(ctx context.Context, id, by int64) error {
	cmd, err := r.q.Exec(ctx, `
		UPDATE opportunities
		SET is_active = false, deleted_on = now(), deleted_by = $2,
		    updated_on = now(), updated_by = $2
		WHERE id = $1 AND is_active = true`, id, by)
	if err != nil {
		return fmt.Errorf("delete opportunity: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("opportunity not found")
	}
	return nil
}

// List returns a filtered page, newest first, with company names attached.
func (r *OpportunityRepo) List(ctx context.Context, filter repository.OpportunityFilter, limit, offset int) ([]*entity.Opportunity, error) {
	where, args := buildWhere(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s, c.name
		FROM opportunities o
		LEFT JOIN companies c ON c.id = o.company_id
		%s
		ORDER BY o.created_on DESC
		LIMIT $%d OFFSET $%d`, prefixColumns("o"), where, len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var list []*entity.Opportunity
	for rows.Next() {
		opp := &entity.Opportunity{}
		var raw [7][]byte
		var companyName *string
		if err := rows.Scan(
			&opp.ID, &opp.PotID, &opp.Name, &opp.CompanyID, &opp.ContactID, &opp.LeadID, &opp.DeliveryOwnerID,
			&opp.Stage, &opp.Status, &opp.Amount, &opp.Costing, &opp.Probability, &opp.Scoring, &opp.CloseDate,
			&opp.Justification, &opp.Notes,
			&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &raw[6],
			&opp.CreatedOn, &opp.UpdatedOn, &opp.DeletedOn, &opp.CreatedBy, &opp.UpdatedBy, &opp.DeletedBy, &opp.IsActive,
			&companyName,
		); err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		if err := unmarshalGroups(opp, raw); err != nil {
			return nil, err
		}
		if companyName != nil {
			opp.Company = &entity.Company{ID: opp.CompanyID, Name: *companyName}
		}
		list = append(list, opp)
	}
	return list, rows.Err()
}

// Count returns the total matching the filter, for pagination.
func (r *OpportunityRepo) Count(ctx context.Context, filter repository.OpportunityFilter) (int64, error) {
	where, args := buildWhere(filter)
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM opportunities o
		LEFT JOIN companies c ON c.id = o.company_id
		%s`, where)
	var total int64
	if err := r.q.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count opportunities: %w", err)
	}
	return total, nil
}

// AggregatePipeline rolls counts, amount and scoring up per stage.
func (r *OpportunityRepo) AggregatePipeline(ctx context.Context, filter repository.OpportunityFilter) ([]repository.StageAggregate, error) {
	where, args := buildWhere(filter)
	query := fmt.Sprintf(`
		SELECT o.stage, COUNT(*), COALESCE(SUM(o.amount), 0), COALESCE(SUM(o.scoring), 0)
		FROM opportunities o
		LEFT JOIN companies c ON c.id = o.company_id
		%s
		GROUP BY o.stage`, where)
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate pipeline: %w", err)
	}
	defer rows.Close()

	var aggs []repository.StageAggregate
	for rows.Next() {
		var a repository.StageAggregate
		if err := rows.Scan(&a.Stage, &a.Count, &a.SumAmount, &a.SumScoring); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// ListClosed returns Won/Lost/Dropped opportunities in scope, for the
// outcome metrics. Groups are not needed there so only core columns load.
func (r *OpportunityRepo) ListClosed(ctx context.Context, filter repository.OpportunityFilter) ([]*entity.Opportunity, error) {
	where, args := buildWhere(filter)
	query := fmt.Sprintf(`
		SELECT o.id, o.pot_id, o.stage, o.status, o.amount, o.close_date, o.created_on
		FROM opportunities o
		LEFT JOIN companies c ON c.id = o.company_id
		%s AND o.status IN ('Won', 'Lost', 'Dropped')`, where)
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list closed opportunities: %w", err)
	}
	defer rows.Close()

	var list []*entity.Opportunity
	for rows.Next() {
		opp := &entity.Opportunity{}
		if err := rows.Scan(&opp.ID, &opp.PotID, &opp.Stage, &opp.Status, &opp.Amount, &opp.CloseDate, &opp.CreatedOn); err != nil {
			return nil, fmt.Errorf("scan closed opportunity: %w", err)
		}
		list = append(list, opp)
	}
	return list, rows.Err()
}

// buildWhere renders the filter into a WHERE clause over alias "o" (with
// company alias "c" available for search).
func buildWhere(filter repository.OpportunityFilter) (string, []any) {
	conds := []string{"o.is_active = true"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Stage != nil {
		conds = append(conds, "o.stage = "+arg(*filter.Stage))
	}
	if filter.Status != nil {
		conds = append(conds, "o.status = "+arg(*filter.Status))
	}
	if filter.CompanyID != nil {
		conds = append(conds, "o.company_id = "+arg(*filter.CompanyID))
	}
	if filter.LeadID != nil {
		conds = append(conds, "o.lead_id = "+arg(*filter.LeadID))
	}
	if filter.CreatedBy != nil {
		conds = append(conds, "o.created_by = "+arg(*filter.CreatedBy))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, fmt.Sprintf("(o.name ILIKE %s OR o.pot_id ILIKE %s OR c.name ILIKE %s)", p, p, p))
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// prefixColumns qualifies opportunityColumns with a table alias.
func prefixColumns(alias string) string {
	parts := strings.Split(opportunityColumns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// marshalGroups renders the seven stage groups as JSONB payloads in column
// order: qualification, demo, proposal, negotiation, won, lost, dropped.
func marshalGroups(opp *entity.Opportunity) ([7][]byte, error) {
	var out [7][]byte
	sources := []any{
		opp.Qualification, opp.Demo, opp.Proposal, opp.Negotiation,
		opp.Won, opp.Lost, opp.Dropped,
	}
	for i, src := range sources {
		raw, err := json.Marshal(src)
		if err != nil {
			return out, fmt.Errorf("marshal stage group: %w", err)
		}
		out[i] = raw
	}
	return out, nil
}

func unmarshalGroups(opp *entity.Opportunity, raw [7][]byte) error {
	targets := []any{
		&opp.Qualification, &opp.Demo, &opp.Proposal, &opp.Negotiation,
		&opp.Won, &opp.Lost, &opp.Dropped,
	}
	for i, target := range targets {
		if len(raw[i]) == 0 {
			continue
		}
		if err := json.Unmarshal(raw[i], target); err != nil {
			return fmt.Errorf("unmarshal stage group: %w", err)
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
