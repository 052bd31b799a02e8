package domain

import (
	"fmt"
	"time"
)

// ContactChannel is how the interaction with the client took place.
type ContactChannel string

const (
	ChannelPhoneCall       ContactChannel = "PHONE_CALL"
	ChannelEmail           ContactChannel = "EMAIL"
	ChannelSMSWhatsapp     ContactChannel = "SMS_WHATSAPP"
	ChannelPhysicalMeeting ContactChannel = "PHYSICAL_MEETING"
)

// ClientStatus describes the client's relationship with the bank.
type ClientStatus string

const (
	ClientRegular    ClientStatus = "REGULAR"
	ClientOccasional ClientStatus = "OCCASIONAL"
	ClientNew        ClientStatus = "NEW"
)

// InteractionFrequency buckets how often the client is in contact.
type InteractionFrequency string

const (
	FrequencyRare     InteractionFrequency = "RARE"
	FrequencyMedium   InteractionFrequency = "MEDIUM"
	FrequencyFrequent InteractionFrequency = "FREQUENT"
)

// MaritalStatus values.
type MaritalStatus string

const (
	MaritalSingle   MaritalStatus = "SINGLE"
	MaritalMarried  MaritalStatus = "MARRIED"
	MaritalDivorced MaritalStatus = "DIVORCED"
	MaritalWidowed  MaritalStatus = "WIDOWED"
)

// ProfessionalStatus values for the client or spouse.
type ProfessionalStatus string

const (
	StatusEmployeeCDI  ProfessionalStatus = "EMPLOYEE_CDI"
	StatusEmployeeCDD  ProfessionalStatus = "EMPLOYEE_CDD"
	StatusSelfEmployed ProfessionalStatus = "SELF_EMPLOYED"
	StatusEntrepreneur ProfessionalStatus = "ENTREPRENEUR"
	StatusUnemployed   ProfessionalStatus = "UNEMPLOYED"
)

// Level is a LOW/MEDIUM/HIGH three-point scale, used for job stability,
// discourse coherence and the global risk profile.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// BankingHistory summarizes past incidents on the client's accounts.
type BankingHistory string

const (
	HistoryNoIncident     BankingHistory = "NO_INCIDENT"
	HistoryMinorIncidents BankingHistory = "MINOR_INCIDENTS"
	HistoryMajorIncidents BankingHistory = "MAJOR_INCIDENTS"
)

// CreditType values.
type CreditType string

const (
	CreditRealEstate   CreditType = "REAL_ESTATE"
	CreditPersonal     CreditType = "PERSONAL"
	CreditAuto         CreditType = "AUTO"
	CreditProfessional CreditType = "PROFESSIONAL"
)

// CreditPurpose values.
type CreditPurpose string

const (
	PurposeInvestment       CreditPurpose = "INVESTMENT"
	PurposeNecessaryExpense CreditPurpose = "NECESSARY_EXPENSE"
	PurposeComfortExpense   CreditPurpose = "COMFORT_EXPENSE"
)

// MainMotivation values for the client's stated driver behind the request.
type MainMotivation string

const (
	MotivationNecessity        MainMotivation = "NECESSITY"
	MotivationOpportunity      MainMotivation = "OPPORTUNITY"
	MotivationExternalPressure MainMotivation = "EXTERNAL_PRESSURE"
)

// ProjectionCapacity values.
type ProjectionCapacity string

const (
	ProjectionShortTermOnly ProjectionCapacity = "SHORT_TERM_ONLY"
	ProjectionMediumTerm    ProjectionCapacity = "MEDIUM_TERM"
	ProjectionLongTerm      ProjectionCapacity = "LONG_TERM"
)

// RepaymentCapacity values for the advisor's theoretical assessment.
type RepaymentCapacity string

const (
	RepaymentInsufficient RepaymentCapacity = "INSUFFICIENT"
	RepaymentAcceptable   RepaymentCapacity = "ACCEPTABLE"
	RepaymentSolid        RepaymentCapacity = "SOLID"
)

// InteractionMetadata records how the application was collected.
type InteractionMetadata struct {
	InteractionID    string         `json:"interaction_id,omitempty"`
	Timestamp        time.Time      `json:"timestamp,omitempty"`
	ContactChannel   ContactChannel `json:"contact_channel"`
	DurationMinutes  int            `json:"duration_minutes,omitempty"`
	AgentResponsible string         `json:"agent_responsible,omitempty"`
}

// ClientIdentity identifies the applicant. FullName is masked upstream.
type ClientIdentity struct {
	ClientID              string               `json:"client_id,omitempty"`
	FullName              string               `json:"full_name,omitempty"`
	Age                   int                  `json:"age"`
	ClientStatus          ClientStatus         `json:"client_status"`
	BankingSeniorityYears float64              `json:"banking_seniority_years,omitempty"`
	InteractionFrequency  InteractionFrequency `json:"interaction_frequency"`
}

// SpouseInfo is present only when PersonalSituation.SpouseExists is true.
type SpouseInfo struct {
	ProfessionalStatus ProfessionalStatus `json:"professional_status"`
	MonthlyIncome      float64            `json:"monthly_income,omitempty"`
}

// PersonalSituation covers the family context of the applicant.
type PersonalSituation struct {
	MaritalStatus   MaritalStatus `json:"marital_status"`
	DependentsCount int           `json:"dependents_count"`
	SpouseExists    bool          `json:"spouse_exists"`
	SpouseInfo      *SpouseInfo   `json:"spouse_info,omitempty"`
}

// ProfessionalSituation covers employment.
type ProfessionalSituation struct {
	ProfessionalStatus ProfessionalStatus `json:"professional_status"`
	Sector             string             `json:"sector,omitempty"`
	SeniorityYears     float64            `json:"seniority_years,omitempty"`
	Stability          Level              `json:"stability"`
}

// FinancialSituation covers income, expenses and existing debt.
// DebtRatio is derived from the credit payments when not provided.
type FinancialSituation struct {
	MonthlyIncomeNet              float64        `json:"monthly_income_net"`
	MonthlyFixedExpenses          float64        `json:"monthly_fixed_expenses"`
	ExistingCreditsTotal          float64        `json:"existing_credits_total,omitempty"`
	ExistingCreditsMonthlyPayment float64        `json:"existing_credits_monthly_payment,omitempty"`
	DebtRatio                     float64        `json:"debt_ratio,omitempty"`
	AvailableSavings              float64        `json:"available_savings,omitempty"`
	BankingHistory                BankingHistory `json:"banking_history"`
}

// CreditRequest is what the client is asking for.
type CreditRequest struct {
	CreditType              CreditType    `json:"credit_type"`
	AmountRequested         float64       `json:"amount_requested"`
	DurationMonths          int           `json:"duration_months"`
	EstimatedMonthlyPayment float64       `json:"estimated_monthly_payment,omitempty"`
	Purpose                 CreditPurpose `json:"purpose"`
}

// BehavioralIndicators are 1-5 advisor ratings captured during the interaction,
// except DiscourseCoherence which is a three-point scale.
type BehavioralIndicators struct {
	StressLevel        int   `json:"stress_level"`
	UrgencyLevel       int   `json:"urgency_level"`
	ProjectClarity     int   `json:"project_clarity"`
	EngagementLevel    int   `json:"engagement_level"`
	DiscourseCoherence Level `json:"discourse_coherence"`
}

// RealIntention captures the advisor's read on why the client wants the credit.
type RealIntention struct {
	MainMotivation     MainMotivation     `json:"main_motivation"`
	ProjectionCapacity ProjectionCapacity `json:"projection_capacity"`
}

// RiskChecklist is the advisor's binary risk flags.
type RiskChecklist struct {
	ProfessionalInstability bool `json:"professional_instability"`
	HighDebt                bool `json:"high_debt"`
	SpouseIncomeDependency  bool `json:"spouse_income_dependency"`
	NonPriorityProject      bool `json:"non_priority_project"`
	ExcessiveUrgency        bool `json:"excessive_urgency"`
	IncoherentDiscourse     bool `json:"incoherent_discourse"`
}

// Synthesis is the advisor's structured overall assessment.
type Synthesis struct {
	GlobalRiskProfile            Level             `json:"global_risk_profile"`
	TheoreticalRepaymentCapacity RepaymentCapacity `json:"theoretical_repayment_capacity"`
}

// DocumentRef points at a stored supporting document.
type DocumentRef struct {
	DocID string `json:"doc_id"`
	Type  string `json:"type"` // ID_CARD | BANK_STATEMENT | CONTRACT
	URI   string `json:"uri"`
}

// ApplicationPackage is the complete submitted application. It is validated
// once at the API boundary and treated as immutable afterwards.
type ApplicationPackage struct {
	CaseID      string    `json:"case_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at,omitempty"`

	InteractionMetadata   InteractionMetadata   `json:"interaction_metadata"`
	ClientIdentity        ClientIdentity        `json:"client_identity"`
	PersonalSituation     PersonalSituation     `json:"personal_situation"`
	ProfessionalSituation ProfessionalSituation `json:"professional_situation"`
	FinancialSituation    FinancialSituation    `json:"financial_situation"`
	CreditRequest         CreditRequest         `json:"credit_request"`
	BehavioralIndicators  BehavioralIndicators  `json:"behavioral_indicators"`
	RealIntention         RealIntention         `json:"real_intention"`
	RiskChecklist         RiskChecklist         `json:"risk_checklist"`
	Synthesis             Synthesis             `json:"synthesis"`

	Documents []DocumentRef `json:"documents,omitempty"`
}

// Validate checks that the package is complete enough to evaluate.
// It rejects malformed input before the fusion pipeline ever sees it.
func (p *ApplicationPackage) Validate() error {
	if p.ClientIdentity.Age <= 0 || p.ClientIdentity.Age > 120 {
		return fmt.Errorf("client_identity.age must be between 1 and 120")
	}
	if p.ClientIdentity.ClientStatus == "" {
		return fmt.Errorf("client_identity.client_status is required")
	}
	if p.ProfessionalSituation.ProfessionalStatus == "" {
		return fmt.Errorf("professional_situation.professional_status is required")
	}
	if p.ProfessionalSituation.Stability == "" {
		return fmt.Errorf("professional_situation.stability is required")
	}
	if p.FinancialSituation.MonthlyIncomeNet < 0 {
		return fmt.Errorf("financial_situation.monthly_income_net must not be negative")
	}
	if p.FinancialSituation.BankingHistory == "" {
		return fmt.Errorf("financial_situation.banking_history is required")
	}
	if p.CreditRequest.CreditType == "" {
		return fmt.Errorf("credit_request.credit_type is required")
	}
	if p.CreditRequest.AmountRequested <= 0 {
		return fmt.Errorf("credit_request.amount_requested must be positive")
	}
	if p.CreditRequest.DurationMonths <= 0 {
		return fmt.Errorf("credit_request.duration_months must be positive")
	}
	for _, rating := range []struct {
		name  string
		value int
	}{
		{"stress_level", p.BehavioralIndicators.StressLevel},
		{"urgency_level", p.BehavioralIndicators.UrgencyLevel},
		{"project_clarity", p.BehavioralIndicators.ProjectClarity},
		{"engagement_level", p.BehavioralIndicators.EngagementLevel},
	} {
		if rating.value < 1 || rating.value > 5 {
			return fmt.Errorf("behavioral_indicators.%s must be between 1 and 5", rating.name)
		}
	}
	if p.PersonalSituation.SpouseExists && p.PersonalSituation.SpouseInfo == nil {
		return fmt.Errorf("personal_situation.spouse_info is required when spouse_exists is true")
	}
	return nil
}

// EffectiveDebtRatio returns the declared debt ratio, deriving it from
// existing credit payments and income when it was not provided.
func (p *ApplicationPackage) EffectiveDebtRatio() float64 {
	fin := p.FinancialSituation
	if fin.DebtRatio > 0 {
		return fin.DebtRatio
	}
	if fin.MonthlyIncomeNet > 0 {
		return fin.ExistingCreditsMonthlyPayment / fin.MonthlyIncomeNet
	}
	return 0
}
