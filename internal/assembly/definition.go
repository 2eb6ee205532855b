// Package assembly provides the built-in owners' assembly workflows and the
// typed accessors for their data blob.
package assembly

import (
	"time"

	"condo-manager/backend/internal/workflow"
	"condo-manager/backend/pkg/models"
)

// Built-in workflow ids.
const (
	MinutesWorkflowID     = "assembly-minutes"
	ConvocationWorkflowID = "assembly-convocation"
)

// Step ids of the minutes workflow.
const (
	StepPreparation = "preparation"
	StepAttendance  = "attendance"
	StepQuorum      = "quorum"
	StepVoting      = "voting"
	StepDrafting    = "drafting"
	StepSignatures  = "signatures"
)

// MinutesWorkflow guides an assembly from preparation to signed minutes.
func MinutesWorkflow() models.WorkflowDefinition {
	return models.WorkflowDefinition{
		ID:                MinutesWorkflowID,
		Name:              "Ata da assembleia de condóminos",
		Category:          "assembly",
		Version:           "1.0",
		EstimatedDuration: 2 * time.Hour,
		LegalContext: models.LegalContext{
			Citations: []string{
				"Código Civil art. 1431.º",
				"Código Civil art. 1432.º",
				"Código Civil art. 1433.º",
				"Decreto-Lei n.º 268/94 art. 1.º",
			},
			ComplianceNotes: []string{
				"Quorum and majorities are computed on the permilage of each fraction, not on headcount.",
				"Minutes must be drafted and signed by those who presided and become binding once signed.",
				"Absent owners must be informed of the deliberations within 30 days.",
			},
		},
		Steps: []models.WorkflowStep{
			{
				ID:                StepPreparation,
				Title:             "Preparação",
				Description:       "Identify the building, date, place and agenda of the meeting.",
				RequiredRole:      "administrator",
				EstimatedDuration: 15 * time.Minute,
				LegalRequirement: &models.LegalRequirement{
					Article:     "Código Civil art. 1431.º",
					Description: "The assembly meets in the first fortnight of January, or when convened by the administrator or by owners holding 25% of the capital.",
					Mandatory:   true,
				},
				ValidationRules: []models.ValidationRule{
					{Field: KeyBuildingID, Kind: models.RuleRequired, Message: "Selecione o edifício"},
					{Field: KeyMeetingDate, Kind: models.RuleRequired, Message: "Indique a data da reunião"},
					{Field: KeyMeetingDate, Kind: models.RuleDate, Message: "Data da reunião inválida"},
					{Field: KeyLocation, Kind: models.RuleRequired, Message: "Indique o local da reunião"},
					{Field: KeyAgendaItems, Kind: models.RuleRequired, Message: "A ordem de trabalhos não pode estar vazia"},
					{Field: KeyAgendaItems, Kind: models.RuleCustom, Message: "Ordem de trabalhos inválida: números únicos e maioria definida em pontos de votação", Predicate: validAgenda},
				},
			},
			{
				ID:                StepAttendance,
				Title:             "Presenças",
				Description:       "Record each owner as present, represented or absent.",
				EstimatedDuration: 10 * time.Minute,
				ValidationRules: []models.ValidationRule{
					{Field: KeyMembers, Kind: models.RuleRequired, Message: "A lista de condóminos está vazia"},
					{Field: KeyMembers, Kind: models.RuleCustom, Message: "Registe a presença de todos os condóminos e o nome de cada representante", Predicate: attendanceRecorded},
				},
			},
			{
				ID:                StepQuorum,
				Title:             "Quórum",
				Description:       "Check the represented capital against the threshold of the call.",
				EstimatedDuration: 5 * time.Minute,
				LegalRequirement: &models.LegalRequirement{
					Article:     "Código Civil art. 1432.º",
					Description: "First call requires owners holding more than half of the building's value; second call requires more than a quarter.",
					Mandatory:   true,
					Penalty:     "Deliberations taken without quorum are voidable.",
				},
				ValidationRules: []models.ValidationRule{
					{Field: KeyQuorum, Kind: models.RuleCustom, Message: "Quórum não atingido para esta convocatória", Predicate: quorumMet},
				},
			},
			{
				ID:                StepVoting,
				Title:             "Deliberações",
				Description:       "Record every attending owner's vote on every votable item.",
				EstimatedDuration: time.Hour,
				LegalRequirement: &models.LegalRequirement{
					Article:     "Código Civil art. 1432.º n.º 3 e art. 1433.º",
					Description: "Deliberations pass by majority of the capital present; qualified matters require two thirds of the building's total value.",
					Mandatory:   true,
					Penalty:     "Deliberations contrary to law may be annulled at the request of an owner who did not approve them.",
				},
				ValidationRules: []models.ValidationRule{
					{Field: KeyVotes, Kind: models.RuleCustom, Message: "Faltam votos de condóminos presentes ou representados", Predicate: votesComplete},
				},
			},
			{
				ID:                StepDrafting,
				Title:             "Redação da ata",
				Description:       "Draft the minutes text and name the secretary.",
				EstimatedDuration: 20 * time.Minute,
				LegalRequirement: &models.LegalRequirement{
					Article:     "Decreto-Lei n.º 268/94 art. 1.º",
					Description: "Minutes of every assembly are drafted and signed by those who presided.",
					Mandatory:   true,
				},
				ValidationRules: []models.ValidationRule{
					{Field: KeyMinutesText, Kind: models.RuleRequired, Message: "O texto da ata é obrigatório"},
					{Field: KeySecretaryEmail, Kind: models.RuleEmail, Message: "Email do secretário inválido"},
				},
			},
			{
				ID:                StepSignatures,
				Title:             "Assinaturas",
				Description:       "Collect the signature of every attending owner or representative.",
				EstimatedDuration: 10 * time.Minute,
				LegalRequirement: &models.LegalRequirement{
					Article:     "Decreto-Lei n.º 268/94 art. 1.º n.º 1",
					Description: "Signed minutes are effective and bind the condominium.",
					Mandatory:   true,
				},
				ValidationRules: []models.ValidationRule{
					{Field: KeySignatures, Kind: models.RuleCustom, Message: "Faltam assinaturas de participantes", Predicate: signaturesCollected},
				},
			},
		},
	}
}

// ConvocationWorkflow prepares and sends the notice of an assembly.
func ConvocationWorkflow() models.WorkflowDefinition {
	return models.WorkflowDefinition{
		ID:                ConvocationWorkflowID,
		Name:              "Convocatória de assembleia",
		Category:          "assembly",
		Version:           "1.0",
		EstimatedDuration: 30 * time.Minute,
		LegalContext: models.LegalContext{
			Citations: []string{"Código Civil art. 1432.º n.º 1 a 3"},
			ComplianceNotes: []string{
				"The notice names the day, time, place and agenda of the meeting.",
				"The notice may fix a second call for when first-call quorum is not reached.",
			},
		},
		Steps: []models.WorkflowStep{
			{
				ID:    "details",
				Title: "Data e local",
				ValidationRules: []models.ValidationRule{
					{Field: KeyMeetingDate, Kind: models.RuleRequired, Message: "Indique a data da reunião"},
					{Field: KeyMeetingDate, Kind: models.RuleDate, Message: "Data da reunião inválida"},
					{Field: KeySecondCallDate, Kind: models.RuleDate, Message: "Data da segunda convocatória inválida"},
					{Field: KeySecondCallDate, Kind: models.RuleCustom, Message: "A segunda convocatória tem de ser posterior à primeira", Predicate: secondCallAfterFirst},
					{Field: KeyLocation, Kind: models.RuleRequired, Message: "Indique o local da reunião"},
				},
			},
			{
				ID:    "agenda",
				Title: "Ordem de trabalhos",
				ValidationRules: []models.ValidationRule{
					{Field: KeyAgendaItems, Kind: models.RuleRequired, Message: "A ordem de trabalhos não pode estar vazia"},
					{Field: KeyAgendaItems, Kind: models.RuleCustom, Message: "Ordem de trabalhos inválida", Predicate: validAgenda},
				},
			},
			{
				ID:    "notice",
				Title: "Aviso",
				LegalRequirement: &models.LegalRequirement{
					Article:     "Código Civil art. 1432.º n.º 1",
					Description: "The assembly is convened with at least 10 days' notice.",
					Mandatory:   true,
					Penalty:     "An assembly convened late may see its deliberations annulled.",
				},
				ValidationRules: []models.ValidationRule{
					{Field: KeyNoticeDate, Kind: models.RuleRequired, Message: "Indique a data do aviso"},
					{Field: KeyNoticeDate, Kind: models.RuleDate, Message: "Data do aviso inválida"},
					{Field: KeyNoticeDate, Kind: models.RuleCustom, Message: "O aviso tem de ser enviado com pelo menos 10 dias de antecedência", Predicate: enoughNotice},
				},
			},
			{
				ID:    "delivery",
				Title: "Envio",
				LegalRequirement: &models.LegalRequirement{
					Article:     "Código Civil art. 1432.º n.º 1 e 2",
					Description: "Notice goes by registered letter, by signed receipt or by email to owners who agreed to it.",
					Mandatory:   true,
				},
				ValidationRules: []models.ValidationRule{
					{Field: KeyDeliveryMethod, Kind: models.RuleRequired, Message: "Escolha o meio de envio"},
					{Field: KeyDeliveryMethod, Kind: models.RuleCustom, Message: "Meio de envio desconhecido", Predicate: knownDeliveryMethod},
					{Field: KeyContactEmail, Kind: models.RuleEmail, Message: "Email de contacto inválido"},
				},
			},
		},
	}
}

// Register adds the built-in workflows to r.
func Register(r *workflow.Registry) error {
	for _, def := range []models.WorkflowDefinition{MinutesWorkflow(), ConvocationWorkflow()} {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
