package opportunity

import (
	"encoding/json"
	"fmt"

	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/pipeline"
)

// taskGroupStage maps a task-group path segment to its pipeline stage.
func taskGroupStage(group string) (entity.Stage, bool) {
	switch group {
	case "qualification":
		return entity.StageL1Qualification, true
	case "demo":
		return entity.StageL2NeedAnalysis, true
	case "proposal":
		return entity.StageL3Proposal, true
	case "negotiation":
		return entity.StageL4Negotiation, true
	case "won":
		return entity.StageL5Won, true
	}
	return "", false
}

// mergeStageData folds a stage_specific_data payload into the field group of
// the target stage. Unknown keys are rejected; present keys overwrite, absent
// keys are left alone, which makes repeated application idempotent.
func mergeStageData(opp *entity.Opportunity, stage entity.Stage, data map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	allowed := pipeline.RequiredFields(stage)
	if len(allowed) == 0 {
		return apperr.Validation("stage_specific_data", fmt.Sprintf("stage %s accepts no stage data", stage))
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		allowedSet[f] = true
	}
	for key := range data {
		if !allowedSet[key] {
			return apperr.Validation("stage_specific_data", fmt.Sprintf("field %q does not belong to stage %s", key, stage))
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return apperr.Validation("stage_specific_data", "payload is not serializable")
	}

	var target any
	switch stage {
	case entity.StageL1Qualification:
		target = &opp.Qualification
	case entity.StageL2NeedAnalysis:
		target = &opp.Demo
	case entity.StageL3Proposal:
		target = &opp.Proposal
	case entity.StageL4Negotiation:
		target = &opp.Negotiation
	case entity.StageL5Won:
		target = &opp.Won
	case entity.StageL6Lost:
		target = &opp.Lost
	case entity.StageL7Dropped:
		target = &opp.Dropped
	default:
		return apperr.Validation("stage_specific_data", fmt.Sprintf("stage %s accepts no stage data", stage))
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return apperr.Validation("stage_specific_data", fmt.Sprintf("malformed field value: %v", err))
	}
	return nil
}

// Attachment slots per task group: which fields hold blob references and
// whether they append (lists) or overwrite.
var attachmentSlots = map[string]map[string]bool{
	"demo": {
		"presentation_materials": true, // append
	},
	"proposal": {
		"proposal_file_path": false,
	},
	"negotiation": {
		"updated_proposal_file_path":     false,
		"negotiated_quotation_file_path": false,
	},
	"won": {
		"loi_file_path": false,
	},
}

// bindAttachment stores a blob path into the named slot of a group.
func bindAttachment(opp *entity.Opportunity, group, field, path string) error {
	slots, ok := attachmentSlots[group]
	if !ok {
		return apperr.Validation("group", "group does not accept attachments")
	}
	appendMode, ok := slots[field]
	if !ok {
		return apperr.Validation("field", fmt.Sprintf("field %q does not accept attachments", field))
	}

	groupStage, _ := taskGroupStage(group)
	cur, curOK := pipeline.OrderIndex(opp.Stage)
	want, _ := pipeline.OrderIndex(groupStage)
	if !curOK || cur < want {
		return apperr.BusinessRule(fmt.Sprintf("%s attachments are not available before %s", group, groupStage))
	}

	if appendMode {
		opp.Demo.PresentationMaterials = append(opp.Demo.PresentationMaterials, path)
		return nil
	}
	switch field {
	case "proposal_file_path":
		opp.Proposal.ProposalFilePath = &path
	case "updated_proposal_file_path":
		opp.Negotiation.UpdatedProposalFilePath = &path
	case "negotiated_quotation_file_path":
		opp.Negotiation.NegotiatedQuotationFilePath = &path
	case "loi_file_path":
		opp.Won.LoiFilePath = &path
	}
	return nil
}
