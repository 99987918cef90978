package opportunity

import (
	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/domain/entity"
)

func toOpportunityResponse(opp *entity.Opportunity) *dto.OpportunityResponse {
	if opp == nil {
		return nil
	}
	resp := &dto.OpportunityResponse{
		ID:              opp.ID,
		PotID:           opp.PotID,
		Name:            opp.Name,
		CompanyID:       opp.CompanyID,
		ContactID:       opp.ContactID,
		LeadID:          opp.LeadID,
		DeliveryOwnerID: opp.DeliveryOwnerID,
		Stage:           opp.Stage,
		Status:          opp.Status,
		Amount:          opp.Amount,
		Costing:         opp.Costing,
		Probability:     opp.Probability,
		Scoring:         opp.Scoring,
		CloseDate:       opp.CloseDate,
		Justification:   opp.Justification,
		Notes:           opp.Notes,
		Qualification:   opp.Qualification,
		Demo:            opp.Demo,
		Proposal:        opp.Proposal,
		Negotiation:     opp.Negotiation,
		Won:             opp.Won,
		Lost:            opp.Lost,
		Dropped:         opp.Dropped,
		CreatedOn:       opp.CreatedOn,
		UpdatedOn:       opp.UpdatedOn,
		CreatedBy:       opp.CreatedBy,
	}
	if opp.Company != nil {
		resp.CompanyName = opp.Company.Name
	}
	if opp.Contact != nil {
		resp.ContactName = opp.Contact.Name
	}
	for _, sp := range opp.SalesProcesses {
		resp.SalesProcesses = append(resp.SalesProcesses, dto.SalesProcessResponse{
			Stage:          sp.Stage,
			StageOrder:     sp.StageOrder,
			Status:         sp.Status,
			CompletionDate: sp.CompletionDate,
			Comments:       sp.Comments,
			CompletedBy:    sp.CompletedBy,
		})
	}
	for _, q := range opp.Quotations {
		resp.Quotations = append(resp.Quotations, *toQuotationResponse(q))
	}
	return resp
}

func toQuotationResponse(q *entity.Quotation) *dto.QuotationResponse {
	if q == nil {
		return nil
	}
	return &dto.QuotationResponse{
		ID:                 q.ID,
		QuotationID:        q.QuotationID,
		OpportunityID:      q.OpportunityID,
		Name:               q.Name,
		QuotationDate:      q.QuotationDate,
		ValidUntil:         q.ValidUntil,
		Amount:             q.Amount,
		Subtotal:           q.Subtotal,
		TaxAmount:          q.TaxAmount,
		TaxPercentage:      q.TaxPercentage,
		DiscountAmount:     q.DiscountAmount,
		DiscountPercentage: q.DiscountPercentage,
		TotalAmount:        q.TotalAmount,
		Currency:           q.Currency,
		LineItems:          q.LineItems,
		Status:             q.Status,
		RevisionNumber:     q.RevisionNumber,
		ParentQuotationID:  q.ParentQuotationID,
		CustomerInfo:       q.CustomerInfo,
		FilePath:           q.FilePath,
		RejectReason:       q.RejectReason,
		CreatedOn:          q.CreatedOn,
		UpdatedOn:          q.UpdatedOn,
	}
}
